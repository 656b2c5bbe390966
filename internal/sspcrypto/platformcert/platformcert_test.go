package platformcert_test

import (
	"crypto/rand"
	"testing"

	"github.com/cloudflare/circl/sign/ed448"
	"github.com/stretchr/testify/require"

	"sspbackend/internal/sspcrypto/platformcert"
)

func TestSigner_CertifyAndVerify(t *testing.T) {
	t.Parallel()

	signer, err := platformcert.NewSigner()
	require.NoError(t, err)

	var root [32]byte
	root[0] = 0xab

	cert, err := signer.Certify(root, 1700000000000000000)
	require.NoError(t, err)

	ts, ok := platformcert.Verify(signer.PublicKey(), cert, root)
	require.True(t, ok)
	require.Equal(t, uint64(1700000000000000000), ts)
}

func TestVerify_RejectsWrongRootHash(t *testing.T) {
	t.Parallel()

	signer, err := platformcert.NewSigner()
	require.NoError(t, err)

	var root, other [32]byte
	root[0] = 1
	other[0] = 2

	cert, err := signer.Certify(root, 1)
	require.NoError(t, err)

	_, ok := platformcert.Verify(signer.PublicKey(), cert, other)
	require.False(t, ok)
}

func TestVerify_RejectsWrongKey(t *testing.T) {
	t.Parallel()

	signerA, err := platformcert.NewSigner()
	require.NoError(t, err)

	signerB, err := platformcert.NewSigner()
	require.NoError(t, err)

	var root [32]byte

	cert, err := signerA.Certify(root, 1)
	require.NoError(t, err)

	_, ok := platformcert.Verify(signerB.PublicKey(), cert, root)
	require.False(t, ok)
}

func TestSignerFromSeed_IsDeterministic(t *testing.T) {
	t.Parallel()

	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	s1, err := platformcert.SignerFromSeed(seed)
	require.NoError(t, err)

	s2, err := platformcert.SignerFromSeed(seed)
	require.NoError(t, err)

	require.Equal(t, s1.PublicKey(), s2.PublicKey())
}

func TestSignerFromSeed_RejectsWrongLength(t *testing.T) {
	t.Parallel()

	_, err := platformcert.SignerFromSeed(make([]byte, 16))
	require.Error(t, err)
}

// TestVerify_RejectsForeignSignatureScheme checks that a detached
// signature produced by a different EdDSA curve over the identical
// payload bytes does not verify against the platform's Ed25519 key:
// Certify/Verify are scheme-specific, not "any signature over these
// bytes".
func TestVerify_RejectsForeignSignatureScheme(t *testing.T) {
	t.Parallel()

	signer, err := platformcert.NewSigner()
	require.NoError(t, err)

	var root [32]byte
	root[0] = 0x42

	cert, err := signer.Certify(root, 1)
	require.NoError(t, err)

	_, ed448Priv, err := ed448.GenerateKey(rand.Reader)
	require.NoError(t, err)

	foreignSig := ed448.Sign(ed448Priv, cert.Payload, "")
	cert.Signature = foreignSig

	_, ok := platformcert.Verify(signer.PublicKey(), cert, root)
	require.False(t, ok)
}
