package transfer

// KeyResult is the outcome of checking the first chunk for an
// authenticity key.
type KeyResult uint8

// Validation results.
const (
	KeyAbsent  KeyResult = iota // No key present, or key checking disabled
	KeyInvalid                  // Key present and does not match
	KeyValid                    // Key present and matches
)

// String returns a string representation of the result.
func (k KeyResult) String() string {
	switch k {
	case KeyAbsent:
		return "absent"
	case KeyInvalid:
		return "invalid"
	case KeyValid:
		return "valid"
	default:
		return "unknown"
	}
}

// Validator checks the first chunk of an image for an authenticity key.
type Validator interface {
	Validate(chunk []byte) KeyResult
}

// ValidatorFunc adapts a function to the Validator interface.
type ValidatorFunc func(chunk []byte) KeyResult

// Validate calls f(chunk).
func (f ValidatorFunc) Validate(chunk []byte) KeyResult {
	return f(chunk)
}

// NoValidation accepts every image as carrying no key.
var NoValidation Validator = ValidatorFunc(func([]byte) KeyResult { return KeyAbsent })

// Verification is the verification status of the current transfer.
type Verification uint8

// Verification states.
const (
	VerificationUnknown Verification = iota // First chunk not yet seen
	VerificationPending                     // Valid key consumed
	VerificationOK                          // No key required
	VerificationFailed                      // Invalid key, transfer aborted
)

// String returns a string representation of the verification state.
func (v Verification) String() string {
	switch v {
	case VerificationUnknown:
		return "unknown"
	case VerificationPending:
		return "pending"
	case VerificationOK:
		return "ok"
	case VerificationFailed:
		return "failed"
	default:
		return "invalid"
	}
}

// Flashable reports whether chunks after the first may be programmed.
func (v Verification) Flashable() bool {
	return v == VerificationOK || v == VerificationPending
}
