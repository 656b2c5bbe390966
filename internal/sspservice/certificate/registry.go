// Package certificate implements the certificate registry: a two-level
// labeled hash tree (user principal -> certificate id -> leaf hash)
// backed by the durable store, plus the platform certification that
// makes a get_certificate response independently verifiable.
package certificate

import (
	"sync"

	"sspbackend/internal/sspcrypto/hashtree"
	"sspbackend/internal/sspshared/magic"
)

// RegistryEntry is one leaf of the registry: a single certificate
// owned by a single user principal.
type RegistryEntry struct {
	Principal []byte
	CertID    []byte
	LeafHash  [32]byte
}

// Registry is the in-memory mirror of the certificate tree. The
// durable store (see package store) remains the source of truth for
// certificate content; Registry exists to answer Root and Witness
// queries without re-hashing the whole table on every request.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]RegistryEntry // key: principal + 0x00 + certID
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{entries: make(map[string]RegistryEntry)}
}

func entryKey(principal, certID []byte) string {
	return string(principal) + "\x00" + string(certID)
}

// Insert records (or overwrites) the leaf hash for one certificate.
// Certificates are immutable once created, so in practice this is only
// ever called once per (principal, certID) pair — overwrite support
// exists solely to make RebuildFromEntries idempotent.
func (r *Registry) Insert(principal []byte, certID []byte, leafHash [32]byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[entryKey(principal, certID)] = RegistryEntry{
		Principal: append([]byte(nil), principal...),
		CertID:    append([]byte(nil), certID...),
		LeafHash:  leafHash,
	}
}

// RebuildFromEntries replaces the registry's contents wholesale, for
// reconstructing the in-memory tree from the durable store on startup
// (the equivalent of a canister's post_upgrade certify_all pass).
func (r *Registry) RebuildFromEntries(entries []RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]RegistryEntry, len(entries))
	for _, e := range entries {
		r.entries[entryKey(e.Principal, e.CertID)] = e
	}
}

// innerGroupsLocked groups entries by owning principal. Must be called
// with r.mu held.
func (r *Registry) innerGroupsLocked() (map[string][]hashtree.Entry, map[string][]byte) {
	byPrincipal := make(map[string][]hashtree.Entry)
	principalBytes := make(map[string][]byte)

	for _, e := range r.entries {
		key := string(e.Principal)
		byPrincipal[key] = append(byPrincipal[key], hashtree.Entry{Label: e.CertID, Hash: e.LeafHash})
		principalBytes[key] = e.Principal
	}

	return byPrincipal, principalBytes
}

// Root computes the registry's root hash, labeled so it composes
// alongside a sibling signature-map subtree under one certified state
// tree.
func (r *Registry) Root() [32]byte {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPrincipal, principalBytes := r.innerGroupsLocked()

	outer := make([]hashtree.Entry, 0, len(byPrincipal))
	for key, inner := range byPrincipal {
		outer = append(outer, hashtree.Entry{Label: principalBytes[key], Hash: hashtree.BuildMapRoot(inner)})
	}

	return hashtree.LabeledHash([]byte(magic.LabelSSPCertificates), hashtree.BuildMapRoot(outer))
}

// Witness builds a nested pruned-tree witness proving that certID,
// owned by principal, maps to its recorded leaf hash. The second
// return value is false if no such certificate is registered under
// that principal.
func (r *Registry) Witness(principal []byte, certID []byte) (*hashtree.Node, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byPrincipal, principalBytes := r.innerGroupsLocked()

	inner, found := byPrincipal[string(principal)]
	if !found {
		return nil, false
	}

	innerWitness, found := hashtree.BuildMapWitness(inner, certID)
	if !found {
		return nil, false
	}

	revealed := &hashtree.Node{Kind: hashtree.KindLabeled, Label: principal, Left: innerWitness}

	outer := make([]hashtree.Entry, 0, len(byPrincipal))
	for key, group := range byPrincipal {
		outer = append(outer, hashtree.Entry{Label: principalBytes[key], Hash: hashtree.BuildMapRoot(group)})
	}

	outerWitness, found := hashtree.BuildMapWitnessWithNode(outer, principal, revealed)
	if !found {
		return nil, false
	}

	return &hashtree.Node{Kind: hashtree.KindLabeled, Label: []byte(magic.LabelSSPCertificates), Left: outerWitness}, true
}
