// Package manifest implements the chunk dictionary of spec §3/§4.5: the
// serialized metadata at the head of an archive describing how to rebuild
// the source from its unique chunks.
package manifest

import (
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

// ChunkDescriptor is per-unique-chunk metadata stored in the manifest.
type ChunkDescriptor struct {
	Checksum      []byte
	SourceSize    uint32
	ArchiveOffset uint64
	ArchiveSize   uint32
}

// StoredUncompressed reports whether this descriptor's payload was stored
// without compression, per spec §4.4's adaptive fallback.
func (d ChunkDescriptor) StoredUncompressed() bool {
	return d.ArchiveSize == d.SourceSize
}

// ChunkCompression names the codec and level applied to unique chunks.
type ChunkCompression struct {
	Codec compressor.Kind
	Level int32
}

// ChunkerParams captures enough of a chunker.Config to reproduce identical
// chunking when re-scanning seeds during reconstruction.
type ChunkerParams struct {
	Algorithm    chunker.Algorithm
	FilterBits   int
	MinChunkSize int
	MaxChunkSize int
	WindowSize   int
	ChunkSize    int
}

// ToConfig converts stored chunker_params back into a chunker.Config.
func (p ChunkerParams) ToConfig() chunker.Config {
	return chunker.Config{
		Algorithm:    p.Algorithm,
		FilterBits:   p.FilterBits,
		MinChunkSize: p.MinChunkSize,
		MaxChunkSize: p.MaxChunkSize,
		WindowSize:   p.WindowSize,
		ChunkSize:    p.ChunkSize,
	}
}

// ParamsFromConfig captures a chunker.Config as chunker_params.
func ParamsFromConfig(cfg chunker.Config) ChunkerParams {
	return ChunkerParams{
		Algorithm:    cfg.Algorithm,
		FilterBits:   cfg.FilterBits,
		MinChunkSize: cfg.MinChunkSize,
		MaxChunkSize: cfg.MaxChunkSize,
		WindowSize:   cfg.WindowSize,
		ChunkSize:    cfg.ChunkSize,
	}
}

// Manifest is the chunk dictionary of spec §3.
type Manifest struct {
	RebuildOrder      []uint32
	ApplicationVersion string
	ChunkDescriptors  []ChunkDescriptor
	SourceChecksum    []byte
	ChunkCompression  ChunkCompression
	SourceTotalSize   uint64
	ChunkerParams     ChunkerParams
	ChunkHashAlgorithm hasher.Algorithm
}

// ByChecksum returns a lookup map from chunk checksum to descriptor index,
// as built once by the archive reader on open (spec §4.7).
func (m *Manifest) ByChecksum() map[string]int {
	idx := make(map[string]int, len(m.ChunkDescriptors))
	for i, d := range m.ChunkDescriptors {
		idx[string(d.Checksum)] = i
	}
	return idx
}

// SourceOffsets expands rebuild_order into the cumulative byte offset each
// occurrence of a chunk begins at within the source, as used by the
// reconstructor's scatter-write step (spec §4.8).
func (m *Manifest) SourceOffsets() []uint64 {
	offsets := make([]uint64, len(m.RebuildOrder))
	var cursor uint64
	for i, idx := range m.RebuildOrder {
		offsets[i] = cursor
		cursor += uint64(m.ChunkDescriptors[idx].SourceSize)
	}
	return offsets
}
