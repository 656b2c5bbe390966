// Package cansig implements the canister-signature-style public key
// encoding and self-authenticating principal derivation that bind
// ssp-backend to the platform it issues delegations for. Every
// constant, byte order, and tag here is a versioned, frozen contract:
// changing any of it invalidates every previously issued user identity.
package cansig

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/asn1"
	"sort"

	"sspbackend/internal/sspshared/apperr"
	"sspbackend/internal/sspshared/magic"
)

// canisterSigOID is the object identifier the DER wrapper uses to tag a
// canister-signature public key, mirroring the arrangement the
// Internet Computer uses for its own algorithm identifiers (an
// arbitrary but fixed, frozen value for this deployment).
var canisterSigOID = asn1.ObjectIdentifier{1, 3, 6, 1, 4, 1, 56387, 1, 2}

type algorithmIdentifier struct {
	Algorithm asn1.ObjectIdentifier
}

type subjectPublicKeyInfo struct {
	Algorithm algorithmIdentifier
	PublicKey asn1.BitString
}

// DeriveSeed computes seed = H(len_prefixed(salt) ‖ len_prefixed(sub)).
// Subjects longer than 255 bytes are rejected explicitly rather than
// silently truncated by a one-byte length cast.
func DeriveSeed(salt [magic.SaltSize]byte, sub string) ([32]byte, error) {
	subBytes := []byte(sub)
	if len(subBytes) > magic.MaxSubjectBytes {
		return [32]byte{}, apperr.New(apperr.KindValidationError, "jwt subject exceeds 255 bytes and cannot be length-prefixed")
	}

	h := sha256.New()
	h.Write([]byte{byte(len(salt))})
	h.Write(salt[:])
	h.Write([]byte{byte(len(subBytes))})
	h.Write(subBytes)

	var out [32]byte
	copy(out[:], h.Sum(nil))

	return out, nil
}

// RawCanisterSigPublicKey builds the raw (pre-DER) canister-signature
// public key blob: a length-prefixed canister id followed by the seed.
func RawCanisterSigPublicKey(selfCanisterID []byte, seed [32]byte) []byte {
	raw := make([]byte, 0, 1+len(selfCanisterID)+len(seed))
	raw = append(raw, byte(len(selfCanisterID)))
	raw = append(raw, selfCanisterID...)
	raw = append(raw, seed[:]...)

	return raw
}

// EncodeCanisterSigPublicKeyDER wraps the raw public key blob in a
// SubjectPublicKeyInfo-shaped DER structure tagged with canisterSigOID:
// user_key = DER(canister_sig_pk(seed)).
func EncodeCanisterSigPublicKeyDER(selfCanisterID []byte, seed [32]byte) ([]byte, error) {
	raw := RawCanisterSigPublicKey(selfCanisterID, seed)

	spki := subjectPublicKeyInfo{
		Algorithm: algorithmIdentifier{Algorithm: canisterSigOID},
		PublicKey: asn1.BitString{Bytes: raw, BitLength: len(raw) * 8},
	}

	der, err := asn1.Marshal(spki)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindTransient, "failed to der-encode canister signature public key", err)
	}

	return der, nil
}

// SelfAuthenticatingPrincipal derives a principal from a DER-encoded
// public key: SHA-224(pubkey) ‖ 0x02.
func SelfAuthenticatingPrincipal(pubkeyDER []byte) []byte {
	sum := sha512.Sum512_224(pubkeyDER)
	out := make([]byte, 0, len(sum)+1)
	out = append(out, sum[:]...)
	out = append(out, 0x02)

	return out
}

// delegationPayload is the representation-independent hash input for a
// delegation message: { pubkey, expiration, targets: null }.
type delegationPayload struct {
	Pubkey     []byte
	Expiration uint64
}

// DeriveMessageHash computes msg_hash = H(representation_independent_hash(
// {pubkey, expiration, targets: null})). The hash is built
// field-by-field — each field contributes H(field_name) ‖ H(field_value),
// the pairs are sorted by their hashed name, and the concatenation is
// hashed again — the same shape as the platform's domain-separated
// "representation independent hash," with "targets: null" represented by
// simply omitting that field (an empty targets list and an absent
// targets field are indistinguishable once hashed, matching the
// semantics of "no target restriction").
func DeriveMessageHash(payload delegationPayload) [32]byte {
	type kv struct {
		hashedName []byte
		hashedVal  []byte
	}

	fields := []struct {
		name  string
		value []byte
	}{
		{name: "pubkey", value: payload.Pubkey},
		{name: "expiration", value: uint64BE(payload.Expiration)},
	}

	pairs := make([]kv, 0, len(fields))

	for _, f := range fields {
		nameHash := sha256.Sum256([]byte(f.name))
		valHash := sha256.Sum256(f.value)
		pairs = append(pairs, kv{hashedName: nameHash[:], hashedVal: valHash[:]})
	}

	sort.Slice(pairs, func(i, j int) bool {
		return lessBytes(pairs[i].hashedName, pairs[j].hashedName)
	})

	h := sha256.New()
	for _, p := range pairs {
		h.Write(p.hashedName)
		h.Write(p.hashedVal)
	}

	var out [32]byte
	copy(out[:], h.Sum(nil))

	return out
}

// NewDelegationPayload is the exported constructor for delegationPayload,
// kept unexported internally so the field set stays a closed, frozen
// contract.
func NewDelegationPayload(pubkey []byte, expirationUnixNanos uint64) delegationPayload {
	return delegationPayload{Pubkey: pubkey, Expiration: expirationUnixNanos}
}

func uint64BE(v uint64) []byte {
	b := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		b[i] = byte(v)
		v >>= 8
	}

	return b
}

func lessBytes(a, b []byte) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}

	return len(a) < len(b)
}
