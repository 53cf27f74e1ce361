// Package keys implements the public key cryptography used to sign events.
//
// Nodes own an ECDSA key-pair on the secp256k1 curve. The core never verifies
// signatures itself (that happens before an event reaches it), but the
// simulator and the tests create and sign events with these helpers, and the
// keygen command writes new keys to disk.
package keys
