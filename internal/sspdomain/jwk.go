package sspdomain

// Auth0JWK is the RFC 7517 subset of a JSON Web Key this service needs.
type Auth0JWK struct {
	Kty string   `json:"kty"`
	Use string   `json:"use,omitempty"`
	N   string   `json:"n"`
	E   string   `json:"e"`
	Kid string   `json:"kid"`
	Alg string   `json:"alg,omitempty"`
	X5t string   `json:"x5t,omitempty"`
	X5c []string `json:"x5c,omitempty"`
}

// Auth0JWKSet is the ordered list of keys published at the provider's
// JWKS endpoint.
type Auth0JWKSet struct {
	Keys []Auth0JWK `json:"keys"`
}

// Lookup returns the key with the given kid, if any.
func (s Auth0JWKSet) Lookup(kid string) (Auth0JWK, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}

	return Auth0JWK{}, false
}
