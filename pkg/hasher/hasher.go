// Package hasher computes the chunk-identity and whole-source digests used
// throughout the archive format: a truncatable per-chunk digest (spec §4.3)
// and an untruncated whole-source checksum (spec §4.4).
package hasher

import (
	"golang.org/x/crypto/blake2b"
	"lukechampine.com/blake3"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
)

// Algorithm selects the underlying hash family.
type Algorithm int

const (
	Blake2 Algorithm = iota
	Blake3
)

func (a Algorithm) String() string {
	switch a {
	case Blake2:
		return "blake2"
	case Blake3:
		return "blake3"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a manifest/CLI string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "blake2":
		return Blake2, nil
	case "blake3":
		return Blake3, nil
	default:
		return 0, archiveerr.New(archiveerr.Config, "unknown hash algorithm: "+s, nil)
	}
}

// blake2FullSize is the native, untruncated Blake2b digest length.
const blake2FullSize = blake2b.Size // 64

// blake3FullSize is the digest length used for the whole-source checksum
// when the manifest's chunk hash algorithm is Blake3.
const blake3FullSize = 32

// ChunkHasher produces the truncated per-chunk digest that doubles as a
// chunk's dictionary key. hash_length is the length of every descriptor
// checksum in a manifest and must match across every chunk in it.
type ChunkHasher struct {
	algo       Algorithm
	hashLength int
	blake2     interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
		Reset()
	}
}

// NewChunkHasher returns a ChunkHasher truncating digests to hashLength
// bytes, as spec §4.3 requires.
func NewChunkHasher(algo Algorithm, hashLength int) (*ChunkHasher, error) {
	if hashLength < 1 {
		return nil, archiveerr.New(archiveerr.Config, "hash_length must be >= 1", nil)
	}
	h := &ChunkHasher{algo: algo, hashLength: hashLength}
	switch algo {
	case Blake2:
		bh, err := blake2b.New512(nil)
		if err != nil {
			return nil, archiveerr.New(archiveerr.Other, "failed to construct blake2b hasher", err)
		}
		h.blake2 = bh
	case Blake3:
		// blake3 is handled per-call below since its finalize step differs
		// from an incremental hash.Hash Sum.
	default:
		return nil, archiveerr.New(archiveerr.Config, "unknown hash algorithm", nil)
	}
	return h, nil
}

// Sum computes the truncated digest of data in one call.
func (h *ChunkHasher) Sum(data []byte) []byte {
	switch h.algo {
	case Blake3:
		out := make([]byte, h.hashLength)
		b3 := blake3.New(h.hashLength, nil)
		b3.Write(data)
		b3.Sum(out[:0])
		return out
	default:
		h.blake2.Reset()
		h.blake2.Write(data)
		full := h.blake2.Sum(nil)
		return full[:h.hashLength]
	}
}

// SourceChecksum streams the whole source and produces the full,
// untruncated digest used for source_checksum verification.
type SourceChecksum struct {
	algo   Algorithm
	blake2 interface {
		Write(p []byte) (int, error)
		Sum(b []byte) []byte
	}
	blake3 *blake3.Hasher
}

// NewSourceChecksum returns a streaming SourceChecksum for algo.
func NewSourceChecksum(algo Algorithm) (*SourceChecksum, error) {
	s := &SourceChecksum{algo: algo}
	switch algo {
	case Blake2:
		bh, err := blake2b.New(blake2FullSize, nil)
		if err != nil {
			return nil, archiveerr.New(archiveerr.Other, "failed to construct blake2b hasher", err)
		}
		s.blake2 = bh
	case Blake3:
		s.blake3 = blake3.New(blake3FullSize, nil)
	default:
		return nil, archiveerr.New(archiveerr.Config, "unknown hash algorithm", nil)
	}
	return s, nil
}

// Write feeds more source bytes into the running digest.
func (s *SourceChecksum) Write(p []byte) (int, error) {
	if s.algo == Blake3 {
		return s.blake3.Write(p)
	}
	return s.blake2.Write(p)
}

// Sum returns the full digest accumulated so far without resetting state.
func (s *SourceChecksum) Sum() []byte {
	if s.algo == Blake3 {
		return s.blake3.Sum(nil)
	}
	return s.blake2.Sum(nil)
}
