package store

import "encoding/binary"

// EncodeCompositeKey joins fixed-identity parts into a single ordered
// byte key: each part is length-prefixed with a 2-byte big-endian
// count so concatenation never lets a short part's bytes bleed into
// the next part's range, which would otherwise corrupt ordering on a
// prefix scan.
func EncodeCompositeKey(parts ...[]byte) []byte {
	out := make([]byte, 0, 64)

	for _, p := range parts {
		var lenPrefix [2]byte
		binary.BigEndian.PutUint16(lenPrefix[:], uint16(len(p)))
		out = append(out, lenPrefix[:]...)
		out = append(out, p...)
	}

	return out
}

// PrefixRangeBounds returns the [start, end] byte bounds that select
// every composite key beginning with the length-prefixed encoding of
// prefixParts, i.e. every (prefixParts..., anything) key. Correct as
// long as every part stays under 256 bytes, true for every identity
// part (principal, uuid) this store ever keys on.
func PrefixRangeBounds(prefixParts ...[]byte) (start []byte, end []byte) {
	p := EncodeCompositeKey(prefixParts...)

	start = append([]byte(nil), p...)

	end = append([]byte(nil), p...)
	end = append(end, 0xff)

	return start, end
}
