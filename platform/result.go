package platform

import "github.com/ardnew/softdfu/pkg"

// Result is a flash controller outcome reported by a platform.
type Result uint8

// Flash result codes.
const (
	ResultOK           Result = iota // Chunk programmed
	ResultError                      // Generic controller error
	ResultInvalid                    // Invalid address or size
	ResultNotSupported               // Operation unsupported by the controller
	ResultProtection                 // Protection violation
	ResultCollision                  // Read collision during command
	ResultAccess                     // Access error
)

// String returns a string representation of the result.
func (r Result) String() string {
	switch r {
	case ResultOK:
		return "ok"
	case ResultError:
		return "error"
	case ResultInvalid:
		return "invalid"
	case ResultNotSupported:
		return "not supported"
	case ResultProtection:
		return "protection"
	case ResultCollision:
		return "collision"
	case ResultAccess:
		return "access"
	default:
		return "unknown"
	}
}

// Err returns the corresponding error for the result, or nil for ResultOK.
func (r Result) Err() error {
	switch r {
	case ResultOK:
		return nil
	case ResultInvalid:
		return pkg.ErrOutOfRegion
	case ResultNotSupported:
		return pkg.ErrNotSupported
	case ResultProtection:
		return pkg.ErrFlashProtected
	case ResultCollision:
		return pkg.ErrFlashCollision
	case ResultAccess:
		return pkg.ErrFlashAccess
	default:
		return pkg.ErrFlashProgram
	}
}
