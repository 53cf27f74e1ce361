package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// SimpleHashFromTwoHashes returns the SHA256 hash of the concatenation of left
// and right data.
func SimpleHashFromTwoHashes(left []byte, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// XOR returns a new slice holding a^b. The result has the length of the longer
// input; missing bytes of the shorter one count as zero.
func XOR(a, b []byte) []byte {
	if len(a) < len(b) {
		a, b = b, a
	}
	res := make([]byte, len(a))
	copy(res, a)
	for i := range b {
		res[i] ^= b[i]
	}
	return res
}
