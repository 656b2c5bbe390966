// Package platformcert signs the certificate registry's root hash the
// way a subnet-level certification authority would: a single detached
// signature over (root hash, timestamp), refreshed every time the
// registry is re-certified. It stands in for the BLS subnet
// certificate this deployment does not have access to, generalized
// from the keypair-generation conventions the rest of this codebase's
// lineage uses for its other asymmetric keys.
package platformcert

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/fxamacker/cbor/v2"

	"sspbackend/internal/sspshared/apperr"
)

// Signer holds the platform's long-lived Ed25519 keypair and produces
// certificates over a root hash.
type Signer struct {
	public  ed25519.PublicKey
	private ed25519.PrivateKey
}

// NewSigner generates a fresh keypair from the platform's cryptographic
// RNG. Call once at process startup; the resulting Signer is held for
// the process lifetime.
func NewSigner() (*Signer, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to generate platform certificate keypair", err)
	}

	return &Signer{public: pub, private: priv}, nil
}

// SignerFromSeed deterministically derives a Signer from a 32-byte
// seed, for reproducing the same platform identity across restarts
// when the seed is itself persisted.
func SignerFromSeed(seed []byte) (*Signer, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, apperr.New(apperr.KindValidationError, "platform certificate seed must be exactly 32 bytes")
	}

	priv := ed25519.NewKeyFromSeed(seed)

	return &Signer{public: priv.Public().(ed25519.PublicKey), private: priv}, nil
}

// PublicKey returns the raw 32-byte Ed25519 public key, for publishing
// to clients that need to verify a Certificate independently.
func (s *Signer) PublicKey() ed25519.PublicKey {
	out := make(ed25519.PublicKey, len(s.public))
	copy(out, s.public)

	return out
}

// payload is the signed message: the registry root hash and the Unix
// nanosecond timestamp of certification, CBOR-encoded with a fixed,
// frozen field order.
type payload struct {
	RootHash        []byte `cbor:"1,keyasint"`
	TimestampUnixNs uint64 `cbor:"2,keyasint"`
}

// Certificate is a platform data certificate: the signed (root hash,
// timestamp) payload plus its detached Ed25519 signature, the
// generalized stand-in for an Internet Computer subnet certificate.
type Certificate struct {
	Payload   []byte `cbor:"1,keyasint"`
	Signature []byte `cbor:"2,keyasint"`
}

// Certify signs rootHash at timestampUnixNs, producing a Certificate
// ready to embed in a get_certificate response.
func (s *Signer) Certify(rootHash [32]byte, timestampUnixNs uint64) (Certificate, error) {
	p := payload{RootHash: rootHash[:], TimestampUnixNs: timestampUnixNs}

	body, err := cbor.Marshal(p)
	if err != nil {
		return Certificate{}, apperr.Wrap(apperr.KindTransient, "failed to encode platform certificate payload", err)
	}

	sig := ed25519.Sign(s.private, body)

	return Certificate{Payload: body, Signature: sig}, nil
}

// Verify reports whether cert is a valid signature by pub over a
// payload matching rootHash, and returns the certified timestamp.
func Verify(pub ed25519.PublicKey, cert Certificate, rootHash [32]byte) (uint64, bool) {
	if !ed25519.Verify(pub, cert.Payload, cert.Signature) {
		return 0, false
	}

	var p payload
	if err := cbor.Unmarshal(cert.Payload, &p); err != nil {
		return 0, false
	}

	if len(p.RootHash) != len(rootHash) {
		return 0, false
	}

	for i := range rootHash {
		if p.RootHash[i] != rootHash[i] {
			return 0, false
		}
	}

	return p.TimestampUnixNs, true
}
