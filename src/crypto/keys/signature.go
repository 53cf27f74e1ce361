package keys

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"
)

// signatureSize is the length of an encoded signature: r and s, 32 bytes each.
const signatureSize = 64

// Sign signs the data with the private key and returns the fixed-size r||s
// encoding.
func Sign(priv *ecdsa.PrivateKey, data []byte) ([]byte, error) {
	r, s, err := ecdsa.Sign(rand.Reader, priv, data)
	if err != nil {
		return nil, err
	}
	return EncodeSignature(r, s), nil
}

// Verify verifies an r||s signature of data against a public key.
func Verify(pub *ecdsa.PublicKey, data []byte, sig []byte) (bool, error) {
	r, s, err := DecodeSignature(sig)
	if err != nil {
		return false, err
	}
	return ecdsa.Verify(pub, data, r, s), nil
}

// EncodeSignature returns the r||s byte representation of a signature.
func EncodeSignature(r, s *big.Int) []byte {
	res := make([]byte, signatureSize)
	copy(res[:32], leftPad(r.Bytes(), 32))
	copy(res[32:], leftPad(s.Bytes(), 32))
	return res
}

// DecodeSignature parses a signature produced by EncodeSignature.
func DecodeSignature(sig []byte) (r, s *big.Int, err error) {
	if len(sig) != signatureSize {
		return nil, nil, fmt.Errorf("wrong signature length: got %d, want %d", len(sig), signatureSize)
	}
	r = new(big.Int).SetBytes(sig[:32])
	s = new(big.Int).SetBytes(sig[32:])
	return r, s, nil
}
