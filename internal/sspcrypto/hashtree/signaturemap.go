package hashtree

import (
	"sync"
	"time"
)

// sigEntry is one (seed, msg_hash) pair recorded in the signature map,
// together with the instant after which it should be pruned.
type sigEntry struct {
	seed    [32]byte
	msgHash [32]byte
	expiry  time.Time
}

func (e sigEntry) label() []byte {
	return e.seed[:]
}

func (e sigEntry) leafHash() [32]byte {
	return LeafHash("sig-leaf", e.msgHash[:])
}

// SignatureMap is the mutable "seed -> committed message hash" map a
// delegation signer consults to answer get_signature: a seed is present
// only once a delegation for that seed has actually been prepared, and
// entries age out once their delegation's validity window elapses.
type SignatureMap struct {
	mu      sync.Mutex
	entries map[[32]byte]sigEntry
}

// NewSignatureMap returns an empty signature map.
func NewSignatureMap() *SignatureMap {
	return &SignatureMap{entries: make(map[[32]byte]sigEntry)}
}

// Add records that seed has committed to msgHash, valid until expiry.
// A later Add for the same seed overwrites any prior commitment —
// preparing a new delegation for a principal supersedes the old one.
func (m *SignatureMap) Add(seed [32]byte, msgHash [32]byte, expiry time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.entries[seed] = sigEntry{seed: seed, msgHash: msgHash, expiry: expiry}
}

// Has reports whether seed currently commits to msgHash.
func (m *SignatureMap) Has(seed [32]byte, msgHash [32]byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[seed]
	if !ok {
		return false
	}

	return e.msgHash == msgHash
}

// Prune removes every entry whose expiry is at or before before.
func (m *SignatureMap) Prune(before time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for seed, e := range m.entries {
		if !e.expiry.After(before) {
			delete(m.entries, seed)
		}
	}
}

func (m *SignatureMap) snapshotEntries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, Entry{Label: e.label(), Hash: e.leafHash()})
	}

	return out
}

// Root computes the labeled root hash of the signature map, tagged
// under the "sig" label so it composes with sibling subtrees of a
// larger certified state tree.
func (m *SignatureMap) Root() [32]byte {
	m.mu.Lock()
	defer m.mu.Unlock()

	return LabeledHash([]byte("sig"), BuildMapRoot(m.snapshotEntries()))
}

// Witness builds a pruned-tree witness proving seed commits to its
// recorded message hash, nested under the "sig" label. The second
// return value is false if seed has no entry.
func (m *SignatureMap) Witness(seed [32]byte) (*Node, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.snapshotEntries()

	inner, found := BuildMapWitness(entries, seed[:])
	if !found {
		return nil, false
	}

	return &Node{Kind: KindLabeled, Label: []byte("sig"), Left: inner}, true
}
