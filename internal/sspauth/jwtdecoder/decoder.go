// Package jwtdecoder validates compact JWS bearer tokens against a
// cached JWKS and extracts the claims ssp-backend's delegation flow
// needs. Algorithm confusion is closed at the door: the deployment
// accepts exactly one algorithm (magic.ExpectedJWTAlgorithm), checked
// against the token's own header before any signature verification is
// attempted, never inferred from whatever key matches.
package jwtdecoder

import (
	"encoding/json"
	"time"

	"github.com/lestrrat-go/jwx/v3/jwk"
	"github.com/lestrrat-go/jwx/v3/jws"
	"github.com/lestrrat-go/jwx/v3/jwt"

	"sspbackend/internal/sspdomain"
	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
)

const hasuraClaimsKey = "https://hasura.io/jwt/claims"

// KeySetProvider returns the currently cached JWKS to verify against.
// Implemented by jwksfetcher.Service.
type KeySetProvider interface {
	KeySet() (jwk.Set, error)
}

// Decoder validates and decodes bearer tokens for one configured
// issuer/audience pair.
type Decoder struct {
	issuer   string
	audience string
	keys     KeySetProvider
	now      func() time.Time
}

// NewDecoder builds a Decoder. issuer and audience are deployment
// configuration, not frozen constants, unlike the signature algorithm.
func NewDecoder(issuer, audience string, keys KeySetProvider) *Decoder {
	return &Decoder{issuer: issuer, audience: audience, keys: keys, now: time.Now}
}

// Decode verifies tokenString's signature against the cached JWKS,
// checks standard and deployment-specific claims, and returns the
// decoded claim set.
func (d *Decoder) Decode(tokenString string) (sspdomain.JWTClaims, error) {
	if err := d.checkAlgorithm([]byte(tokenString)); err != nil {
		return sspdomain.JWTClaims{}, err
	}

	keySet, err := d.keys.KeySet()
	if err != nil {
		return sspdomain.JWTClaims{}, apperr.Wrap(apperr.KindNoWorkingKey, "failed to obtain signing key set", err)
	}

	token, err := jwt.Parse([]byte(tokenString),
		jwt.WithKeySet(keySet),
		jwt.WithValidate(true),
		jwt.WithIssuer(d.issuer),
		jwt.WithAudience(d.audience),
	)
	if err != nil {
		return sspdomain.JWTClaims{}, classifyParseError(err)
	}

	claims, err := d.extractClaims(token)
	if err != nil {
		return sspdomain.JWTClaims{}, err
	}

	if d.now().Add(-magic.IatFreshnessWindow).Unix() > claims.Iat {
		return sspdomain.JWTClaims{}, apperr.New(apperr.KindIatTooOld, "token issued-at claim is outside the freshness window")
	}

	return claims, nil
}

func (d *Decoder) checkAlgorithm(raw []byte) error {
	msg, err := jws.Parse(raw)
	if err != nil {
		return apperr.Wrap(apperr.KindInvalidToken, "malformed compact JWS", err)
	}

	sigs := msg.Signatures()
	if len(sigs) != 1 {
		return apperr.New(apperr.KindInvalidToken, "expected exactly one JWS signature")
	}

	alg, ok := sigs[0].ProtectedHeaders().Algorithm()
	if !ok || alg.String() != magic.ExpectedJWTAlgorithm {
		return apperr.New(apperr.KindInvalidAlgorithm, "token algorithm does not match the deployment's expected algorithm")
	}

	return nil
}

func classifyParseError(err error) error {
	switch {
	case jwt.IsValidationError(err):
		return apperr.Wrap(apperr.KindTokenExpired, "token failed standard claim validation", err)
	default:
		return apperr.Wrap(apperr.KindInvalidSignature, "token signature verification failed", err)
	}
}

func (d *Decoder) extractClaims(token jwt.Token) (sspdomain.JWTClaims, error) {
	aud := token.Audience()
	if len(aud) == 0 {
		return sspdomain.JWTClaims{}, apperr.New(apperr.KindAudienceMismatch, "token has no audience claim")
	}

	var expUnix, iatUnix int64

	if exp, ok := token.Expiration(); ok {
		expUnix = exp.Unix()
	}

	if iat, ok := token.IssuedAt(); ok {
		iatUnix = iat.Unix()
	}

	sub, _ := token.Subject()
	iss, _ := token.Issuer()

	var nonce string
	if err := token.Get("nonce", &nonce); err != nil {
		nonce = ""
	}

	claims := sspdomain.JWTClaims{
		Iss:   iss,
		Aud:   aud[0],
		Iat:   iatUnix,
		Exp:   expUnix,
		Sub:   sub,
		Nonce: nonce,
	}

	var hasuraRaw map[string]any
	if err := token.Get(hasuraClaimsKey, &hasuraRaw); err == nil && len(hasuraRaw) > 0 {
		reencoded, jsonErr := json.Marshal(hasuraRaw)
		if jsonErr == nil {
			var hasura sspdomain.HasuraJWTClaims
			if jsonErr := json.Unmarshal(reencoded, &hasura); jsonErr == nil {
				claims.HasuraClaims = &hasura
			}
		}
	}

	return claims, nil
}
