package sspdomain

import (
	"bytes"
	"crypto/rand"

	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
)

// Salt is the fixed 32-byte, process-wide salt mixed into principal
// derivation. The zero value, EmptySalt, means "not yet initialized."
type Salt [magic.SaltSize]byte

// EmptySalt is the all-zero sentinel meaning the salt has not yet been
// initialized.
var EmptySalt Salt

// IsEmpty reports whether s is still the uninitialized sentinel.
func (s Salt) IsEmpty() bool {
	return bytes.Equal(s[:], EmptySalt[:])
}

// NewSalt draws SaltSize bytes from the platform's cryptographic RNG.
func NewSalt() (Salt, error) {
	var s Salt

	if _, err := rand.Read(s[:]); err != nil {
		return Salt{}, apperr.Wrap(apperr.KindTransient, "failed to generate salt", err)
	}

	// An astronomically unlikely all-zero draw would be indistinguishable
	// from "uninitialized"; re-derive rather than ever persist it.
	if s.IsEmpty() {
		return NewSalt()
	}

	return s, nil
}

// SaltFromBytes validates and wraps a raw 32-byte slice, e.g. one read
// back from the store.
func SaltFromBytes(b []byte) (Salt, error) {
	if len(b) != magic.SaltSize {
		return Salt{}, apperr.New(apperr.KindValidationError, "salt must be exactly 32 bytes")
	}

	var s Salt
	copy(s[:], b)

	return s, nil
}
