package sspdomain

import (
	"github.com/fxamacker/cbor/v2"

	"sspbackend/internal/sspshared/apperr"
)

// User is the directory record owned by its Principal key. It is
// created exactly once per principal, on first successful
// delegation preparation, and is never mutated or deleted afterward.
type User struct {
	Principal Principal
	JWTSub    string
	DbID      Uuid
	CreatedAt DateTime
}

// NewUser validates and constructs a User.
func NewUser(principal Principal, jwtSub string, dbID Uuid, createdAt DateTime) (User, error) {
	if principal.IsZero() || principal.IsAnonymous() {
		return User{}, apperr.New(apperr.KindValidationError, "user principal must not be empty or anonymous")
	}

	if jwtSub == "" {
		return User{}, apperr.New(apperr.KindValidationError, "jwt_sub must not be empty")
	}

	if len(jwtSub) > 255 {
		return User{}, apperr.New(apperr.KindValidationError, "jwt_sub exceeds maximum length")
	}

	return User{Principal: principal, JWTSub: jwtSub, DbID: dbID, CreatedAt: createdAt}, nil
}

// userWire is the plain-field CBOR representation of User: Principal,
// Uuid, and DateTime all keep their internals unexported, so the
// service layer encodes through this shape rather than marshaling
// User directly.
type userWire struct {
	Principal []byte `cbor:"1,keyasint"`
	JWTSub    string `cbor:"2,keyasint"`
	DbID      []byte `cbor:"3,keyasint"`
	CreatedAt string `cbor:"4,keyasint"`
}

// EncodeUserCBOR produces the deterministic, self-describing CBOR
// encoding of a User.
func EncodeUserCBOR(u User) ([]byte, error) {
	wire := userWire{
		Principal: u.Principal.Bytes(),
		JWTSub:    u.JWTSub,
		DbID:      u.DbID.Bytes(),
		CreatedAt: u.CreatedAt.String(),
	}

	body, err := canonicalEncMode.Marshal(wire)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to cbor-encode user", err)
	}

	out := make([]byte, 0, len(selfDescribeTag)+len(body))
	out = append(out, selfDescribeTag...)
	out = append(out, body...)

	return out, nil
}

// DecodeUserCBOR parses bytes previously produced by EncodeUserCBOR
// back into a User.
func DecodeUserCBOR(data []byte) (User, error) {
	body := data
	if len(data) >= len(selfDescribeTag) {
		matches := true

		for i, b := range selfDescribeTag {
			if data[i] != b {
				matches = false
				break
			}
		}

		if matches {
			body = data[len(selfDescribeTag):]
		}
	}

	var wire userWire
	if err := cbor.Unmarshal(body, &wire); err != nil {
		return User{}, apperr.Wrap(apperr.KindValidationError, "failed to cbor-decode user", err)
	}

	principal, err := NewPrincipal(wire.Principal)
	if err != nil {
		return User{}, err
	}

	dbID, err := UuidFromBytes(wire.DbID)
	if err != nil {
		return User{}, err
	}

	createdAt, err := ParseDateTime(wire.CreatedAt)
	if err != nil {
		return User{}, err
	}

	return User{Principal: principal, JWTSub: wire.JWTSub, DbID: dbID, CreatedAt: createdAt}, nil
}
