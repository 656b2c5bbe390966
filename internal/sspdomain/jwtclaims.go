package sspdomain

// HasuraJWTClaims carries the nested claims block Hasura-shaped identity
// providers attach under the "https://hasura.io/jwt/claims" key.
type HasuraJWTClaims struct {
	XHasuraUserID string `json:"x-hasura-user-id"`
}

// JWTClaims is the set of standard and custom claims this service reads
// out of a validated token.
type JWTClaims struct {
	Iss          string           `json:"iss"`
	Aud          string           `json:"aud"`
	Iat          int64            `json:"iat"`
	Exp          int64            `json:"exp"`
	Sub          string           `json:"sub"`
	Nonce        string           `json:"nonce"`
	HasuraClaims *HasuraJWTClaims `json:"https://hasura.io/jwt/claims,omitempty"`
}
