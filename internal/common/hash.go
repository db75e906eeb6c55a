package common

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

// Digest returns the lowercase hex SHA-256 of parts. Every part is length
// prefixed, so Digest("ab", "c") and Digest("a", "bc") differ.
func Digest(parts ...string) string {
	h := sha256.New()
	var n [binary.MaxVarintLen64]byte
	for _, p := range parts {
		h.Write(n[:binary.PutUvarint(n[:], uint64(len(p)))])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}
