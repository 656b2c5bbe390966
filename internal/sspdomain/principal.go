package sspdomain

import (
	"encoding/hex"

	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
)

// Principal is an opaque identity, at most magic.PrincipalMaxBytes long.
// It is the unit of identity for controllers, the backend, and users
// alike.
type Principal struct {
	bytes []byte
}

// AnonymousPrincipal is the single distinguished byte value 0x04,
// matching the platform convention that reserves that byte for "no
// identity was presented." It is never a valid backend or user
// principal.
var AnonymousPrincipal = Principal{bytes: []byte{0x04}}

// NewPrincipal validates and wraps raw principal bytes.
func NewPrincipal(b []byte) (Principal, error) {
	if len(b) == 0 {
		return Principal{}, apperr.New(apperr.KindValidationError, "principal must not be empty")
	}

	if len(b) > magic.PrincipalMaxBytes {
		return Principal{}, apperr.New(apperr.KindValidationError, "principal exceeds maximum length")
	}

	out := make([]byte, len(b))
	copy(out, b)

	return Principal{bytes: out}, nil
}

// ParsePrincipalText parses the hex text form used on the wire.
func ParsePrincipalText(s string) (Principal, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindValidationError, "invalid principal encoding", err)
	}

	return NewPrincipal(b)
}

// Bytes returns the raw principal bytes.
func (p Principal) Bytes() []byte {
	out := make([]byte, len(p.bytes))
	copy(out, p.bytes)

	return out
}

// String renders the lower-case hex text form.
func (p Principal) String() string {
	return hex.EncodeToString(p.bytes)
}

// Equal reports whether p and other denote the same principal.
func (p Principal) Equal(other Principal) bool {
	if len(p.bytes) != len(other.bytes) {
		return false
	}

	for i := range p.bytes {
		if p.bytes[i] != other.bytes[i] {
			return false
		}
	}

	return true
}

// IsAnonymous reports whether p is the distinguished anonymous
// principal.
func (p Principal) IsAnonymous() bool {
	return p.Equal(AnonymousPrincipal)
}

// IsZero reports whether p was never assigned a value.
func (p Principal) IsZero() bool {
	return len(p.bytes) == 0
}
