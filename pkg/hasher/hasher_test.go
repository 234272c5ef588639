package hasher

import (
	"bytes"
	"testing"
)

func TestChunkHasherTruncatesToHashLength(t *testing.T) {
	for _, algo := range []Algorithm{Blake2, Blake3} {
		h, err := NewChunkHasher(algo, 24)
		if err != nil {
			t.Fatalf("%v: NewChunkHasher: %v", algo, err)
		}
		sum := h.Sum([]byte("some chunk payload"))
		if len(sum) != 24 {
			t.Fatalf("%v: expected 24-byte digest, got %d", algo, len(sum))
		}
	}
}

func TestChunkHasherDeterministic(t *testing.T) {
	for _, algo := range []Algorithm{Blake2, Blake3} {
		h, err := NewChunkHasher(algo, 16)
		if err != nil {
			t.Fatalf("%v: NewChunkHasher: %v", algo, err)
		}
		a := h.Sum([]byte("payload one"))
		b := h.Sum([]byte("payload one"))
		if !bytes.Equal(a, b) {
			t.Fatalf("%v: same input produced different digests", algo)
		}
		c := h.Sum([]byte("payload two"))
		if bytes.Equal(a, c) {
			t.Fatalf("%v: distinct inputs produced the same digest", algo)
		}
	}
}

func TestSourceChecksumFullLength(t *testing.T) {
	cases := []struct {
		algo Algorithm
		size int
	}{
		{Blake2, blake2FullSize},
		{Blake3, blake3FullSize},
	}
	for _, tc := range cases {
		s, err := NewSourceChecksum(tc.algo)
		if err != nil {
			t.Fatalf("%v: NewSourceChecksum: %v", tc.algo, err)
		}
		s.Write([]byte("chunk a"))
		s.Write([]byte("chunk b"))
		sum := s.Sum()
		if len(sum) != tc.size {
			t.Fatalf("%v: expected %d-byte full digest, got %d", tc.algo, tc.size, len(sum))
		}
	}
}

func TestSourceChecksumOrderSensitive(t *testing.T) {
	s1, _ := NewSourceChecksum(Blake2)
	s1.Write([]byte("a"))
	s1.Write([]byte("b"))

	s2, _ := NewSourceChecksum(Blake2)
	s2.Write([]byte("b"))
	s2.Write([]byte("a"))

	if bytes.Equal(s1.Sum(), s2.Sum()) {
		t.Fatal("checksum must depend on write order")
	}
}

func TestParseAlgorithmRejectsUnknown(t *testing.T) {
	if _, err := ParseAlgorithm("sha1"); err == nil {
		t.Fatal("expected error for unsupported algorithm name")
	}
}
