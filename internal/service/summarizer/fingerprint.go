package summarizer

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
)

const cacheKeyPrefix = "summary:"

// Fingerprint hashes the full input together with its owner and kind. Each
// field is length-prefixed so distinct tuples never share a byte stream.
func Fingerprint(userID string, kind Kind, raw []byte) string {
	h := sha256.New()
	for _, field := range [][]byte{[]byte(userID), []byte(kind), raw} {
		var size [8]byte
		binary.BigEndian.PutUint64(size[:], uint64(len(field)))
		h.Write(size[:])
		h.Write(field)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CacheKey is the cache slot of a fingerprint.
func CacheKey(fingerprint string) string {
	return cacheKeyPrefix + fingerprint
}
