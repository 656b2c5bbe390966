// Package hashtree implements the labeled hash tree mechanics shared by
// the delegation signer's signature map and the certificate registry's
// two-level Merkle tree: leaf hashing with a domain separator,
// label-tagged nodes, and witness (pruned-tree) generation for
// inclusion proofs.
package hashtree

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"sort"

	"github.com/fxamacker/cbor/v2"

	"sspbackend/internal/sspshared/apperr"
)

// Kind discriminates the five node shapes of a labeled hash tree.
type Kind int

const (
	KindEmpty Kind = iota
	KindFork
	KindLabeled
	KindLeaf
	KindPruned
)

// Node is both a full tree and a witness (pruned tree): a witness is
// simply a Node where some subtrees have been replaced by KindPruned
// nodes carrying only their hash.
type Node struct {
	Kind  Kind   `cbor:"1,keyasint"`
	Label []byte `cbor:"2,keyasint,omitempty"`
	Left  *Node  `cbor:"3,keyasint,omitempty"`
	Right *Node  `cbor:"4,keyasint,omitempty"`
	// Value holds the already-computed hash for KindLeaf and KindPruned
	// nodes; Reconstruct returns it unchanged for those kinds.
	Value [32]byte `cbor:"5,keyasint,omitempty"`
}

var witnessEncMode = func() cbor.EncMode {
	mode, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("hashtree: invalid cbor encode options: %v", err))
	}

	return mode
}()

// EncodeWitness produces the self-describing CBOR encoding of a witness
// tree, suitable for embedding in a signature or certificate response.
func EncodeWitness(n *Node) ([]byte, error) {
	body, err := witnessEncMode.Marshal(n)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to cbor-encode witness", err)
	}

	out := make([]byte, 0, 3+len(body))
	out = append(out, 0xd9, 0xd9, 0xf7)
	out = append(out, body...)

	return out, nil
}

// DecodeWitness parses bytes produced by EncodeWitness.
func DecodeWitness(data []byte) (*Node, error) {
	body := data
	if len(data) >= 3 && data[0] == 0xd9 && data[1] == 0xd9 && data[2] == 0xf7 {
		body = data[3:]
	}

	var n Node
	if err := cbor.Unmarshal(body, &n); err != nil {
		return nil, apperr.Wrap(apperr.KindValidationError, "failed to cbor-decode witness", err)
	}

	return &n, nil
}

func domainSep(s string) []byte {
	b := make([]byte, 0, 1+len(s))
	b = append(b, byte(len(s)))
	b = append(b, s...)

	return b
}

var (
	emptyDomainSep   = domainSep("ic-hashtree-empty")
	forkDomainSep    = domainSep("ic-hashtree-fork")
	labeledDomainSep = domainSep("ic-hashtree-labeled")
)

// EmptyHash is the hash of the empty tree.
func EmptyHash() [32]byte {
	return sha256.Sum256(emptyDomainSep)
}

// ForkHash combines two sibling subtree hashes.
func ForkHash(left, right [32]byte) [32]byte {
	buf := make([]byte, 0, len(forkDomainSep)+64)
	buf = append(buf, forkDomainSep...)
	buf = append(buf, left[:]...)
	buf = append(buf, right[:]...)

	return sha256.Sum256(buf)
}

// LabeledHash tags a subtree hash with a label: H(label_len ‖ label ‖
// child_hash), generalized with a type domain separator so Labeled
// nodes never collide with Fork or Leaf nodes of the same byte length.
func LabeledHash(label []byte, child [32]byte) [32]byte {
	buf := make([]byte, 0, len(labeledDomainSep)+1+len(label)+32)
	buf = append(buf, labeledDomainSep...)
	buf = append(buf, byte(len(label)))
	buf = append(buf, label...)
	buf = append(buf, child[:]...)

	return sha256.Sum256(buf)
}

// LeafHash computes leaf_hash(content) = H(domain_sep ‖ content).
func LeafHash(domainSepLabel string, content []byte) [32]byte {
	buf := make([]byte, 0, len(content)+len(domainSepLabel)+1)
	buf = append(buf, domainSep(domainSepLabel)...)
	buf = append(buf, content...)

	return sha256.Sum256(buf)
}

// Reconstruct recomputes the root hash of n, treating Pruned and Leaf
// nodes as opaque precomputed hashes.
func (n *Node) Reconstruct() [32]byte {
	if n == nil {
		return EmptyHash()
	}

	switch n.Kind {
	case KindEmpty:
		return EmptyHash()
	case KindPruned, KindLeaf:
		return n.Value
	case KindLabeled:
		return LabeledHash(n.Label, n.Left.Reconstruct())
	case KindFork:
		return ForkHash(n.Left.Reconstruct(), n.Right.Reconstruct())
	default:
		return [32]byte{}
	}
}

// Entry is one (label, leaf-or-subtree hash) pair of a map-shaped
// tree level.
type Entry struct {
	Label []byte
	Hash  [32]byte
}

func sortedEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].Label, out[j].Label) < 0 })

	return out
}

// BuildMapRoot computes the root hash of a map-shaped tree level: a
// left fold of Labeled(label_i, hash_i) nodes in ascending label order.
// This is a correctness-first, not asymptotically-optimal, encoding of
// a "map of labeled children": every call rehashes all entries.
func BuildMapRoot(entries []Entry) [32]byte {
	sorted := sortedEntries(entries)
	if len(sorted) == 0 {
		return EmptyHash()
	}

	acc := LabeledHash(sorted[0].Label, sorted[0].Hash)
	for _, e := range sorted[1:] {
		acc = ForkHash(acc, LabeledHash(e.Label, e.Hash))
	}

	return acc
}

// BuildMapWitness builds a pruned-tree witness proving that label maps
// to its recorded hash within entries. The second return value is false
// if label is not present.
func BuildMapWitness(entries []Entry, label []byte) (*Node, bool) {
	return BuildMapWitnessWithNode(entries, label, nil)
}

// BuildMapWitnessWithNode builds a pruned-tree witness like
// BuildMapWitness, but lets the caller supply the revealed node for
// label instead of a plain leaf — used to nest one map's witness
// inside another map's witness at the labeled position (the
// certificate registry's per-user inner tree nested under its outer
// per-principal tree). A nil revealed node falls back to a plain
// Labeled(label, Leaf(hash)) node.
func BuildMapWitnessWithNode(entries []Entry, label []byte, revealed *Node) (*Node, bool) {
	sorted := sortedEntries(entries)

	idx := -1

	for i, e := range sorted {
		if bytes.Equal(e.Label, label) {
			idx = i
			break
		}
	}

	if idx == -1 {
		return nil, false
	}

	labeledNode := func(e Entry, reveal bool) *Node {
		if reveal {
			if revealed != nil {
				return revealed
			}

			return &Node{
				Kind:  KindLabeled,
				Label: e.Label,
				Left:  &Node{Kind: KindLeaf, Value: e.Hash},
			}
		}

		return &Node{Kind: KindPruned, Value: LabeledHash(e.Label, e.Hash)}
	}

	acc := labeledNode(sorted[0], idx == 0)

	for i, e := range sorted[1:] {
		pos := i + 1
		acc = &Node{Kind: KindFork, Left: acc, Right: labeledNode(e, pos == idx)}
	}

	return acc, true
}
