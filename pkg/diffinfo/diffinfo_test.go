package diffinfo

import (
	"testing"

	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

func genData(n int, seed byte) []byte {
	out := make([]byte, n)
	for i := 0; i < n; i++ {
		seed ^= byte(i)
		out[i] = seed
	}
	return out
}

func testConfig() chunker.Config {
	return chunker.Config{
		Algorithm:    chunker.BuzHash,
		FilterBits:   6,
		MinChunkSize: 256,
		MaxChunkSize: 4096,
		WindowSize:   32,
	}
}

func TestComputeIdenticalInputsAreFullyCommon(t *testing.T) {
	data := genData(100000, 0x7a)
	report, err := Compute(data, data, testConfig(), hasher.Blake2, 32)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.ChangedBytes != 0 {
		t.Fatalf("expected 0 changed bytes for identical inputs, got %d", report.ChangedBytes)
	}
	if report.CommonBytes != report.NewSize {
		t.Fatalf("expected common_bytes == new_size, got %d vs %d", report.CommonBytes, report.NewSize)
	}
	if report.BsdiffPatchSize < 0 {
		t.Fatal("expected a non-negative bsdiff patch size")
	}
}

func TestComputeDisjointInputsShareNothing(t *testing.T) {
	oldData := genData(50000, 0x11)
	newData := genData(50000, 0x99)
	report, err := Compute(oldData, newData, testConfig(), hasher.Blake2, 32)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.CommonChunks != 0 {
		t.Fatalf("expected 0 common chunks between disjoint inputs, got %d", report.CommonChunks)
	}
	if report.ChangedBytes != report.NewSize {
		t.Fatalf("expected changed_bytes == new_size, got %d vs %d", report.ChangedBytes, report.NewSize)
	}
}

func TestComputeLocalizedEditChangesFewChunks(t *testing.T) {
	base := genData(200000, 0x33)
	edited := append([]byte(nil), base...)
	// Flip a handful of bytes in the middle; only the chunk(s) containing
	// them should fail to match.
	for i := 100000; i < 100010; i++ {
		edited[i] ^= 0xff
	}

	report, err := Compute(base, edited, testConfig(), hasher.Blake2, 32)
	if err != nil {
		t.Fatalf("Compute: %v", err)
	}
	if report.CommonChunks == 0 {
		t.Fatal("expected most chunks to remain common after a localized edit")
	}
	if report.ChangedBytes == 0 || report.ChangedBytes >= report.NewSize {
		t.Fatalf("expected a small nonzero changed_bytes, got %d of %d", report.ChangedBytes, report.NewSize)
	}
}
