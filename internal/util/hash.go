// Package util contains internal helpers: content hashing and padded counters.
//revive:disable:var-naming  // allow 'util' as an internal helpers package name
package util

import (
	"encoding/binary"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Hasher accumulates the content hash of a descriptor field by field.
// Every field is written at a fixed width (strings are length-prefixed), so
// different field sequences cannot collide by concatenation.
// The zero value is not usable; call NewHasher.
type Hasher struct {
	d   *xxhash.Digest
	buf [8]byte
}

// NewHasher returns a Hasher whose stream is prefixed with tag. Use a distinct
// tag per object kind so equal-looking descriptors of different kinds differ.
func NewHasher(tag string) *Hasher {
	h := &Hasher{d: xxhash.New()}
	h.String(tag)
	return h
}

// Uint64 writes v as 8 little-endian bytes.
func (h *Hasher) Uint64(v uint64) *Hasher {
	binary.LittleEndian.PutUint64(h.buf[:], v)
	_, _ = h.d.Write(h.buf[:])
	return h
}

// Uint32 writes v widened to 64 bits.
func (h *Hasher) Uint32(v uint32) *Hasher { return h.Uint64(uint64(v)) }

// Bool writes 1 or 0.
func (h *Hasher) Bool(v bool) *Hasher {
	if v {
		return h.Uint64(1)
	}
	return h.Uint64(0)
}

// Float32 writes the IEEE-754 bits of v; -0 and +0 are folded together so the
// hash agrees with ==.
func (h *Hasher) Float32(v float32) *Hasher {
	if v == 0 {
		v = 0
	}
	return h.Uint64(uint64(math.Float32bits(v)))
}

// String writes the length of s followed by its bytes.
func (h *Hasher) String(s string) *Hasher {
	h.Uint64(uint64(len(s)))
	_, _ = h.d.WriteString(s)
	return h
}

// Sum64 returns the hash of everything written so far.
func (h *Hasher) Sum64() uint64 { return h.d.Sum64() }

// HashString hashes a single string without the framing used by Hasher.
func HashString(s string) uint64 { return xxhash.Sum64String(s) }
