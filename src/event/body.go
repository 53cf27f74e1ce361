package event

import (
	"bytes"
	"time"

	"github.com/ugorji/go/codec"

	"github.com/mosaicnetworks/eventcore/src/crypto"
	"github.com/mosaicnetworks/eventcore/src/window"
)

// Transaction is an opaque payload. System transactions are addressed to the
// node itself rather than to the application.
type Transaction struct {
	Payload []byte
	System  bool
}

// Descriptor references a parent event together with its indicator values, so
// that ancientness can be decided without resolving the parent.
type Descriptor struct {
	Hash       []byte
	Creator    uint32
	Generation int64
	BirthRound int64
}

// Indicator returns the parent's indicator value under mode.
func (d *Descriptor) Indicator(mode window.AncientMode) int64 {
	return mode.Select(d.Generation, d.BirthRound)
}

// Body is the hashed part of an Event. NewEvent keeps its own deep copy and
// the copy must be treated as read-only afterwards.
type Body struct {
	Creator         uint32
	SelfParent      *Descriptor
	OtherParent     *Descriptor
	TimeCreated     time.Time
	Transactions    []Transaction
	SoftwareVersion string
	BirthRound      int64
	Generation      int64
}

// Parents returns the non-nil parent descriptors, self-parent first.
func (b *Body) Parents() []*Descriptor {
	res := make([]*Descriptor, 0, 2)
	if b.SelfParent != nil {
		res = append(res, b.SelfParent)
	}
	if b.OtherParent != nil {
		res = append(res, b.OtherParent)
	}
	return res
}

// clone returns a deep copy of the Body. Payloads and parent hashes are
// copied so that the caller's slices cannot alter a hashed event.
func (b *Body) clone() Body {
	c := *b
	c.SelfParent = b.SelfParent.clone()
	c.OtherParent = b.OtherParent.clone()
	if b.Transactions != nil {
		c.Transactions = make([]Transaction, len(b.Transactions))
		for i, tx := range b.Transactions {
			c.Transactions[i] = Transaction{Payload: cloneBytes(tx.Payload), System: tx.System}
		}
	}
	return c
}

func (d *Descriptor) clone() *Descriptor {
	if d == nil {
		return nil
	}
	c := *d
	c.Hash = cloneBytes(d.Hash)
	return &c
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	return append(make([]byte, 0, len(b)), b...)
}

// computeGeneration returns 1 + the maximum generation of the parents.
func (b *Body) computeGeneration() int64 {
	highest := window.GenerationUndefined
	for _, p := range b.Parents() {
		if p.Generation > highest {
			highest = p.Generation
		}
	}
	return highest + 1
}

// Marshal returns the canonical JSON encoding of the Body. Canonical encoding
// keeps the hash identical on every node.
func (b *Body) Marshal() ([]byte, error) {
	buf := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(buf, jh)

	if err := enc.Encode(b); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Unmarshal decodes a Body encoded with Marshal.
func (b *Body) Unmarshal(data []byte) error {
	buf := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(buf, jh)

	return dec.Decode(b)
}

// Hash returns the SHA256 hash of the canonical encoding.
func (b *Body) Hash() ([]byte, error) {
	data, err := b.Marshal()
	if err != nil {
		return nil, err
	}
	return crypto.SHA256(data), nil
}
