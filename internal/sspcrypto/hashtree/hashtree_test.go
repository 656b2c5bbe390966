package hashtree_test

import (
	"crypto/sha256"
	"testing"

	"github.com/stretchr/testify/require"

	"sspbackend/internal/sspcrypto/hashtree"
)

func entry(label string, content string) hashtree.Entry {
	return hashtree.Entry{Label: []byte(label), Hash: hashtree.LeafHash("test-leaf", []byte(content))}
}

func TestBuildMapRoot_OrderIndependent(t *testing.T) {
	t.Parallel()

	a := entry("alpha", "1")
	b := entry("bravo", "2")
	c := entry("charlie", "3")

	root1 := hashtree.BuildMapRoot([]hashtree.Entry{a, b, c})
	root2 := hashtree.BuildMapRoot([]hashtree.Entry{c, a, b})

	require.Equal(t, root1, root2, "root hash must not depend on insertion order")
}

func TestBuildMapWitness_ReconstructsRootForEveryEntry(t *testing.T) {
	t.Parallel()

	entries := []hashtree.Entry{
		entry("alpha", "1"),
		entry("bravo", "2"),
		entry("charlie", "3"),
		entry("delta", "4"),
	}

	root := hashtree.BuildMapRoot(entries)

	for _, e := range entries {
		witness, found := hashtree.BuildMapWitness(entries, e.Label)
		require.True(t, found)
		require.Equal(t, root, witness.Reconstruct())
	}
}

func TestBuildMapWitness_MissingLabel(t *testing.T) {
	t.Parallel()

	entries := []hashtree.Entry{entry("alpha", "1")}

	_, found := hashtree.BuildMapWitness(entries, []byte("missing"))
	require.False(t, found)
}

func TestLeafHash_DomainSeparated(t *testing.T) {
	t.Parallel()

	h1 := hashtree.LeafHash("domain-a", []byte("content"))
	h2 := hashtree.LeafHash("domain-b", []byte("content"))
	require.NotEqual(t, h1, h2)

	plain := sha256.Sum256([]byte("content"))
	require.NotEqual(t, plain, h1, "leaf hash must not equal the plain hash of content")
}

func TestEmptyMap_HasEmptyRoot(t *testing.T) {
	t.Parallel()

	require.Equal(t, hashtree.EmptyHash(), hashtree.BuildMapRoot(nil))
}
