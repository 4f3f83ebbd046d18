package core

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"math"
)

// Hash represents a cryptographic hash
type Hash string

// NewHash creates a new hash from data
func NewHash(data []byte) Hash {
	sum := sha256.Sum256(data)
	return Hash(hex.EncodeToString(sum[:]))
}

// String returns the string representation
func (h Hash) String() string {
	return string(h)
}

// IsEmpty checks if the hash is empty
func (h Hash) IsEmpty() bool {
	return h == ""
}

// Fingerprint accumulates column names and cell values into a stable hash.
// Two datasets with identical column order and contents yield the same fingerprint.
type Fingerprint struct {
	buf []byte
}

// AddString appends a length-prefixed string.
func (f *Fingerprint) AddString(s string) {
	f.buf = binary.LittleEndian.AppendUint64(f.buf, uint64(len(s)))
	f.buf = append(f.buf, s...)
}

// AddFloat appends the IEEE-754 bits of v.
func (f *Fingerprint) AddFloat(v float64) {
	f.buf = binary.LittleEndian.AppendUint64(f.buf, math.Float64bits(v))
}

// Sum returns the hash of everything added so far.
func (f *Fingerprint) Sum() Hash {
	return NewHash(f.buf)
}
