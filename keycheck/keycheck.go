package keycheck

import (
	"bytes"
	"crypto/subtle"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/blake2b"

	"github.com/ardnew/softdfu/pkg"
	"github.com/ardnew/softdfu/transfer"
)

// Header layout.
const (
	MagicSize  = 8
	KeySize    = 32
	HeaderSize = MagicSize + KeySize
)

// DigestSize is the size of a key digest.
const DigestSize = blake2b.Size256

// Magic identifies a keyed image.
var Magic = [MagicSize]byte{'s', 'o', 'f', 't', 'd', 'f', 'u', 0x01}

// Digest is the BLAKE2b-256 digest of a key.
type Digest [DigestSize]byte

// DigestOf returns the digest of key.
func DigestOf(key []byte) Digest {
	return blake2b.Sum256(key)
}

// ParseDigest decodes a hex-encoded digest.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	b, err := hex.DecodeString(s)
	if err != nil {
		return d, fmt.Errorf("%w: digest: %v", pkg.ErrInvalidParameter, err)
	}
	if len(b) != DigestSize {
		return d, fmt.Errorf("%w: digest is %d bytes, want %d", pkg.ErrInvalidParameter, len(b), DigestSize)
	}
	copy(d[:], b)
	return d, nil
}

// String returns the hex encoding of d.
func (d Digest) String() string {
	return hex.EncodeToString(d[:])
}

// Header returns a header chunk of chunkSize bytes carrying key. The
// padding is zero.
func Header(key []byte, chunkSize int) ([]byte, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key is %d bytes, want %d", pkg.ErrInvalidParameter, len(key), KeySize)
	}
	if chunkSize < HeaderSize {
		return nil, fmt.Errorf("%w: chunk size %d smaller than header", pkg.ErrInvalidParameter, chunkSize)
	}
	buf := make([]byte, chunkSize)
	copy(buf, Magic[:])
	copy(buf[MagicSize:], key)
	return buf, nil
}

// Validator checks the header of the first chunk against a key digest.
type Validator struct {
	digest   Digest
	required bool
}

// Option configures a Validator.
type Option func(*Validator)

// WithRequired rejects images that carry no header.
func WithRequired() Option {
	return func(v *Validator) {
		v.required = true
	}
}

// New creates a validator accepting the key whose digest is d.
func New(d Digest, opts ...Option) *Validator {
	v := &Validator{digest: d}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Check validates chunk and returns a descriptive error for rejected
// images.
func (v *Validator) Check(chunk []byte) error {
	if len(chunk) < MagicSize || !bytes.Equal(chunk[:MagicSize], Magic[:]) {
		if v.required {
			return pkg.ErrKeyRequired
		}
		return nil
	}
	if len(chunk) < HeaderSize {
		return fmt.Errorf("%w: truncated header", pkg.ErrInvalidKey)
	}
	d := DigestOf(chunk[MagicSize:HeaderSize])
	if subtle.ConstantTimeCompare(d[:], v.digest[:]) != 1 {
		return pkg.ErrInvalidKey
	}
	return nil
}

// Validate implements transfer.Validator.
func (v *Validator) Validate(chunk []byte) transfer.KeyResult {
	keyed := len(chunk) >= MagicSize && bytes.Equal(chunk[:MagicSize], Magic[:])

	if err := v.Check(chunk); err != nil {
		pkg.LogWarn(pkg.ComponentTransfer, "firmware key rejected", "error", err)
		return transfer.KeyInvalid
	}
	if keyed {
		return transfer.KeyValid
	}
	return transfer.KeyAbsent
}

// Compile-time interface check
var _ transfer.Validator = (*Validator)(nil)
