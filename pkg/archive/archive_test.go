package archive

import (
	"bytes"
	"context"
	"testing"

	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
	"github.com/saworbit/bitaforge/pkg/manifest"
)

func genData(n int) []byte {
	out := make([]byte, n)
	var seed byte
	for i := 0; i < n; i++ {
		seed ^= byte(i)
		out[i] = seed
	}
	return out
}

func testOptions() BuildOptions {
	return BuildOptions{
		ChunkerConfig: chunker.Config{
			Algorithm:    chunker.BuzHash,
			FilterBits:   6,
			MinChunkSize: 256,
			MaxChunkSize: 4096,
			WindowSize:   32,
		},
		HashAlgorithm:       hasher.Blake2,
		HashLength:          32,
		Compression:         manifest.ChunkCompression{Codec: compressor.Zstd, Level: 3},
		Concurrency:         4,
		ApplicationVersion:  "bitaforge/test",
	}
}

// memRangeReader implements rangereader.RangeReader over an in-memory byte
// slice, for tests that exercise archive.Open/Fetch without real files.
type memRangeReader struct {
	data []byte
}

func (m memRangeReader) ReadAt(_ context.Context, offset uint64, length uint32) ([]byte, error) {
	end := offset + uint64(length)
	if end > uint64(len(m.data)) {
		return nil, bytes.ErrTooLarge
	}
	return m.data[offset:end], nil
}

func buildInMemory(t *testing.T, source []byte, opts BuildOptions) ([]byte, *manifest.Manifest) {
	t.Helper()
	var out bytes.Buffer
	m, err := Build(bytes.NewReader(source), &out, opts)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return out.Bytes(), m
}

func TestBuildOpenFetchRoundTrip(t *testing.T) {
	source := genData(200000)
	archiveBytes, builtManifest := buildInMemory(t, source, testOptions())

	rr := memRangeReader{data: archiveBytes}
	reader, err := Open(context.Background(), rr, uint64(len(archiveBytes)))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if reader.Manifest.SourceTotalSize != uint64(len(source)) {
		t.Fatalf("source_total_size: got %d, want %d", reader.Manifest.SourceTotalSize, len(source))
	}
	if len(reader.Manifest.ChunkDescriptors) != len(builtManifest.ChunkDescriptors) {
		t.Fatalf("chunk_descriptors count mismatch after reopen")
	}

	var hashes [][]byte
	for _, d := range reader.Manifest.ChunkDescriptors {
		hashes = append(hashes, d.Checksum)
	}
	chunks, err := reader.Fetch(context.Background(), hashes)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	byChecksum := make(map[string][]byte, len(chunks))
	for _, c := range chunks {
		byChecksum[string(c.Checksum)] = c.Data
	}

	var rebuilt bytes.Buffer
	for _, idx := range reader.Manifest.RebuildOrder {
		d := reader.Manifest.ChunkDescriptors[idx]
		rebuilt.Write(byChecksum[string(d.Checksum)])
	}
	if !bytes.Equal(rebuilt.Bytes(), source) {
		t.Fatal("reconstructed source does not match original")
	}
}

func TestBuildDeduplicatesRepeatedBlocks(t *testing.T) {
	opts := testOptions()
	block := genData(opts.ChunkerConfig.MaxChunkSize * 3)
	var source bytes.Buffer
	for i := 0; i < 5; i++ {
		source.Write(block)
	}

	_, m := buildInMemory(t, source.Bytes(), opts)

	maxUnique := (len(block) / opts.ChunkerConfig.MinChunkSize) + 1
	if len(m.ChunkDescriptors) > maxUnique {
		t.Fatalf("expected at most ~%d unique chunks for repeated block, got %d", maxUnique, len(m.ChunkDescriptors))
	}
	if len(m.RebuildOrder) <= len(m.ChunkDescriptors) {
		t.Fatalf("expected rebuild_order to be longer than unique chunk count for repeated input")
	}
}

func TestEmptySourceProducesEmptyManifest(t *testing.T) {
	_, m := buildInMemory(t, nil, testOptions())
	if m.SourceTotalSize != 0 {
		t.Fatalf("expected source_total_size 0, got %d", m.SourceTotalSize)
	}
	if len(m.RebuildOrder) != 0 {
		t.Fatalf("expected empty rebuild_order, got %d entries", len(m.RebuildOrder))
	}
	if len(m.ChunkDescriptors) != 0 {
		t.Fatalf("expected empty chunk_descriptors, got %d", len(m.ChunkDescriptors))
	}
}

func TestOpenRejectsCorruptedManifestChecksum(t *testing.T) {
	archiveBytes, _ := buildInMemory(t, genData(10000), testOptions())

	corrupted := append([]byte(nil), archiveBytes...)
	// Flip a byte inside the manifest body (just past the fixed prefix).
	corrupted[len(magic)+headerLengthSize] ^= 0xff

	rr := memRangeReader{data: corrupted}
	_, err := Open(context.Background(), rr, uint64(len(corrupted)))
	if err == nil {
		t.Fatal("expected ChecksumMismatch opening an archive with a corrupted manifest")
	}
}

func TestOpenRejectsBadMagic(t *testing.T) {
	archiveBytes, _ := buildInMemory(t, genData(1000), testOptions())
	corrupted := append([]byte(nil), archiveBytes...)
	corrupted[0] = 'X'

	rr := memRangeReader{data: corrupted}
	_, err := Open(context.Background(), rr, uint64(len(corrupted)))
	if err == nil {
		t.Fatal("expected NotAnArchive opening an archive with a bad magic prefix")
	}
}

func TestAdaptiveFallbackStoresUncompressed(t *testing.T) {
	opts := testOptions()
	opts.ChunkerConfig = chunker.Config{Algorithm: chunker.FixedSize, ChunkSize: 64}
	source := genData(64 * 20) // genData output is not meaningfully compressible at this scale
	_, m := buildInMemory(t, source, opts)
	for _, d := range m.ChunkDescriptors {
		if d.ArchiveSize > d.SourceSize {
			t.Fatalf("archive_size %d exceeds source_size %d", d.ArchiveSize, d.SourceSize)
		}
	}
}
