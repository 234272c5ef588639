package manifest

import (
	"bytes"
	"testing"

	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

func sampleManifest() *Manifest {
	return &Manifest{
		RebuildOrder:       []uint32{0, 1, 0, 2},
		ApplicationVersion: "bitaforge/test",
		ChunkDescriptors: []ChunkDescriptor{
			{Checksum: []byte{1, 2, 3, 4}, SourceSize: 1024, ArchiveOffset: 0, ArchiveSize: 900},
			{Checksum: []byte{5, 6, 7, 8}, SourceSize: 2048, ArchiveOffset: 900, ArchiveSize: 2048},
			{Checksum: []byte{9, 9, 9, 9}, SourceSize: 512, ArchiveOffset: 2948, ArchiveSize: 480},
		},
		SourceChecksum:  bytes.Repeat([]byte{0xab}, 64),
		SourceTotalSize: 1024 + 2048 + 1024 + 512,
		ChunkCompression: ChunkCompression{
			Codec: compressor.Zstd,
			Level: 3,
		},
		ChunkerParams: ChunkerParams{
			Algorithm:    chunker.BuzHash,
			FilterBits:   13,
			MinChunkSize: 1 << 14,
			MaxChunkSize: 1 << 20,
			WindowSize:   48,
		},
		ChunkHashAlgorithm: hasher.Blake2,
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	m := sampleManifest()
	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(encoded)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.ApplicationVersion != m.ApplicationVersion {
		t.Errorf("application_version: got %q, want %q", decoded.ApplicationVersion, m.ApplicationVersion)
	}
	if decoded.SourceTotalSize != m.SourceTotalSize {
		t.Errorf("source_total_size: got %d, want %d", decoded.SourceTotalSize, m.SourceTotalSize)
	}
	if !bytes.Equal(decoded.SourceChecksum, m.SourceChecksum) {
		t.Errorf("source_checksum mismatch")
	}
	if len(decoded.RebuildOrder) != len(m.RebuildOrder) {
		t.Fatalf("rebuild_order length: got %d, want %d", len(decoded.RebuildOrder), len(m.RebuildOrder))
	}
	for i := range m.RebuildOrder {
		if decoded.RebuildOrder[i] != m.RebuildOrder[i] {
			t.Errorf("rebuild_order[%d]: got %d, want %d", i, decoded.RebuildOrder[i], m.RebuildOrder[i])
		}
	}
	if len(decoded.ChunkDescriptors) != len(m.ChunkDescriptors) {
		t.Fatalf("chunk_descriptors length: got %d, want %d", len(decoded.ChunkDescriptors), len(m.ChunkDescriptors))
	}
	for i, want := range m.ChunkDescriptors {
		got := decoded.ChunkDescriptors[i]
		if !bytes.Equal(got.Checksum, want.Checksum) || got.SourceSize != want.SourceSize ||
			got.ArchiveOffset != want.ArchiveOffset || got.ArchiveSize != want.ArchiveSize {
			t.Errorf("chunk_descriptors[%d]: got %+v, want %+v", i, got, want)
		}
	}
	if decoded.ChunkCompression.Codec != m.ChunkCompression.Codec || decoded.ChunkCompression.Level != m.ChunkCompression.Level {
		t.Errorf("chunk_compression: got %+v, want %+v", decoded.ChunkCompression, m.ChunkCompression)
	}
	if decoded.ChunkerParams != m.ChunkerParams {
		t.Errorf("chunker_params: got %+v, want %+v", decoded.ChunkerParams, m.ChunkerParams)
	}
	if decoded.ChunkHashAlgorithm != m.ChunkHashAlgorithm {
		t.Errorf("chunk_hash_algorithm: got %v, want %v", decoded.ChunkHashAlgorithm, m.ChunkHashAlgorithm)
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	m := sampleManifest()
	encoded, err := Encode(m)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	// Append a well-formed but unrecognized field (number 99, varint type).
	var tail []byte
	tail = append(tail, encoded...)
	// tag for field 99, wire type 0 (varint): (99<<3)|0 = 792, varint-encode it.
	tag := uint64(99<<3) | 0
	for tag >= 0x80 {
		tail = append(tail, byte(tag)|0x80)
		tag >>= 7
	}
	tail = append(tail, byte(tag))
	tail = append(tail, 0x2a) // arbitrary varint value

	decoded, err := Decode(tail)
	if err != nil {
		t.Fatalf("Decode with trailing unknown field: %v", err)
	}
	if decoded.ApplicationVersion != m.ApplicationVersion {
		t.Errorf("unknown field corrupted decode: got %q", decoded.ApplicationVersion)
	}
}

func TestStoredUncompressedDetection(t *testing.T) {
	d := ChunkDescriptor{SourceSize: 1000, ArchiveSize: 1000}
	if !d.StoredUncompressed() {
		t.Fatal("expected archive_size == source_size to report stored-uncompressed")
	}
	d.ArchiveSize = 500
	if d.StoredUncompressed() {
		t.Fatal("expected archive_size < source_size to report compressed")
	}
}

func TestSourceOffsetsExpandsRebuildOrder(t *testing.T) {
	m := sampleManifest()
	offsets := m.SourceOffsets()
	want := []uint64{0, 1024, 1024 + 2048, 1024 + 2048 + 1024}
	if len(offsets) != len(want) {
		t.Fatalf("expected %d offsets, got %d", len(want), len(offsets))
	}
	for i := range want {
		if offsets[i] != want[i] {
			t.Errorf("offsets[%d]: got %d, want %d", i, offsets[i], want[i])
		}
	}
}

func TestByChecksumIndexesDescriptors(t *testing.T) {
	m := sampleManifest()
	idx := m.ByChecksum()
	for i, d := range m.ChunkDescriptors {
		got, ok := idx[string(d.Checksum)]
		if !ok || got != i {
			t.Errorf("ByChecksum[%x] = %d, %v; want %d, true", d.Checksum, got, ok, i)
		}
	}
}
