package keys

import (
	"crypto/ecdsa"
	"crypto/elliptic"

	"github.com/mosaicnetworks/eventcore/src/common"
)

// ToPublicKey unmarshals the uncompressed form of a secp256k1 point, as
// returned by FromPublicKey.
func ToPublicKey(pub []byte) *ecdsa.PublicKey {
	if len(pub) == 0 {
		return nil
	}
	x, y := elliptic.Unmarshal(Curve(), pub)
	if x == nil {
		return nil
	}
	return &ecdsa.PublicKey{Curve: Curve(), X: x, Y: y}
}

// FromPublicKey outputs the point in uncompressed form.
func FromPublicKey(pub *ecdsa.PublicKey) []byte {
	if pub == nil || pub.X == nil || pub.Y == nil {
		return nil
	}
	return elliptic.Marshal(Curve(), pub.X, pub.Y)
}

// PublicKeyID gives a compact uint32 identifier for a public key. Collisions
// are possible but the address book rejects duplicate ids.
func PublicKeyID(pub *ecdsa.PublicKey) uint32 {
	return common.Hash32(FromPublicKey(pub))
}

// PublicKeyHex returns the 0X-prefixed hexadecimal representation of the
// uncompressed public key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return common.EncodeToString(FromPublicKey(pub))
}
