package sspdomain

import (
	googleUuid "github.com/google/uuid"

	"sspbackend/internal/sspshared/apperr"
)

// Uuid is a 16-byte, big-endian-ordered identifier. It backs both
// UserDbId and CertificateId.
type Uuid struct {
	id googleUuid.UUID
}

// MinUuid and MaxUuid are the range sentinels used by composite-key
// range scans: (P, Id::min)..=(P, Id::max).
var (
	MinUuid = Uuid{id: googleUuid.Nil}
	MaxUuid = Uuid{id: func() googleUuid.UUID {
		var u googleUuid.UUID
		for i := range u {
			u[i] = 0xff
		}

		return u
	}()}
)

// NewUuid draws 16 bytes of randomness from the platform's cryptographic
// RNG (google/uuid's default generator reads crypto/rand).
func NewUuid() (Uuid, error) {
	id, err := googleUuid.NewRandom()
	if err != nil {
		return Uuid{}, apperr.Wrap(apperr.KindTransient, "failed to generate random UUID", err)
	}

	return Uuid{id: id}, nil
}

// ParseUuid parses a hyphenated UUID string.
func ParseUuid(s string) (Uuid, error) {
	id, err := googleUuid.Parse(s)
	if err != nil {
		return Uuid{}, apperr.Wrap(apperr.KindValidationError, "invalid uuid", err)
	}

	return Uuid{id: id}, nil
}

// MustUuid parses s and panics on error; for use with known-good literals
// in tests and fixtures only.
func MustUuid(s string) Uuid {
	u, err := ParseUuid(s)
	if err != nil {
		panic(err)
	}

	return u
}

// String renders the canonical hyphenated form.
func (u Uuid) String() string {
	return u.id.String()
}

// Bytes returns the big-endian 16-byte encoding.
func (u Uuid) Bytes() []byte {
	b := make([]byte, 16)
	copy(b, u.id[:])

	return b
}

// UuidFromBytes parses a 16-byte big-endian encoding.
func UuidFromBytes(b []byte) (Uuid, error) {
	id, err := googleUuid.FromBytes(b)
	if err != nil {
		return Uuid{}, apperr.Wrap(apperr.KindValidationError, "invalid uuid bytes", err)
	}

	return Uuid{id: id}, nil
}

// Compare returns -1, 0, or 1 comparing u and other in big-endian byte
// order, giving Uuid a total order.
func (u Uuid) Compare(other Uuid) int {
	for i := range u.id {
		if u.id[i] != other.id[i] {
			if u.id[i] < other.id[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}

// IsNil reports whether u is the nil UUID.
func (u Uuid) IsNil() bool {
	return u.id == googleUuid.Nil
}
