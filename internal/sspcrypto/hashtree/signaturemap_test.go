package hashtree_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sspbackend/internal/sspcrypto/hashtree"
)

func seed(b byte) [32]byte {
	var s [32]byte
	s[0] = b

	return s
}

func msgHash(b byte) [32]byte {
	var h [32]byte
	h[31] = b

	return h
}

func TestSignatureMap_AddAndHas(t *testing.T) {
	t.Parallel()

	m := hashtree.NewSignatureMap()
	future := time.Now().Add(time.Hour)

	require.False(t, m.Has(seed(1), msgHash(1)))

	m.Add(seed(1), msgHash(1), future)
	require.True(t, m.Has(seed(1), msgHash(1)))
	require.False(t, m.Has(seed(1), msgHash(2)))
}

func TestSignatureMap_AddOverwritesPriorCommitment(t *testing.T) {
	t.Parallel()

	m := hashtree.NewSignatureMap()
	future := time.Now().Add(time.Hour)

	m.Add(seed(1), msgHash(1), future)
	m.Add(seed(1), msgHash(2), future)

	require.False(t, m.Has(seed(1), msgHash(1)))
	require.True(t, m.Has(seed(1), msgHash(2)))
}

func TestSignatureMap_WitnessReconstructsRoot(t *testing.T) {
	t.Parallel()

	m := hashtree.NewSignatureMap()
	future := time.Now().Add(time.Hour)

	m.Add(seed(1), msgHash(1), future)
	m.Add(seed(2), msgHash(2), future)

	root := m.Root()

	witness, found := m.Witness(seed(1))
	require.True(t, found)
	require.Equal(t, root, witness.Reconstruct())

	_, found = m.Witness(seed(99))
	require.False(t, found)
}

func TestSignatureMap_Prune(t *testing.T) {
	t.Parallel()

	m := hashtree.NewSignatureMap()
	now := time.Now()

	m.Add(seed(1), msgHash(1), now.Add(-time.Minute))
	m.Add(seed(2), msgHash(2), now.Add(time.Hour))

	m.Prune(now)

	require.False(t, m.Has(seed(1), msgHash(1)))
	require.True(t, m.Has(seed(2), msgHash(2)))
}
