package consensus

import "math/bits"

// Bitset is a fixed-size vector of votes.
type Bitset struct {
	words []uint64
	n     int
}

// NewBitset returns a Bitset of n bits, all false.
func NewBitset(n int) *Bitset {
	return &Bitset{
		words: make([]uint64, (n+63)/64),
		n:     n,
	}
}

// Len returns the number of bits.
func (b *Bitset) Len() int {
	return b.n
}

// Set sets bit i to v.
func (b *Bitset) Set(i int, v bool) {
	if v {
		b.words[i/64] |= 1 << uint(i%64)
	} else {
		b.words[i/64] &^= 1 << uint(i%64)
	}
}

// Get returns bit i.
func (b *Bitset) Get(i int) bool {
	return b.words[i/64]&(1<<uint(i%64)) != 0
}

// Count returns the number of bits set.
func (b *Bitset) Count() int {
	c := 0
	for _, w := range b.words {
		c += bits.OnesCount64(w)
	}
	return c
}
