package archive

import (
	"bytes"
	"context"
	"sort"

	"github.com/saworbit/bitaforge/internal/metrics"
	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
	"github.com/saworbit/bitaforge/pkg/manifest"
	"github.com/saworbit/bitaforge/pkg/rangereader"
)

// coalesceGapThreshold is the maximum gap, in bytes, between two
// descriptors' payload ranges for them to be merged into a single
// read_at request, per spec §4.7's "cost-per-request tradeoff."
const coalesceGapThreshold = 64 * 1024

// Reader opens an archive over a RangeReader and serves chunk metadata and
// coalesced fetches, per spec §4.7.
type Reader struct {
	rr          rangereader.RangeReader
	Manifest    *manifest.Manifest
	byChecksum  map[string]int
	codec       compressor.Codec
	payloadBase uint64
}

// Open reads and validates an archive's header over rr, which must expose
// at least totalLen bytes.
func Open(ctx context.Context, rr rangereader.RangeReader, totalLen uint64) (*Reader, error) {
	if totalLen < uint64(len(magic)+headerLengthSize) {
		return nil, archiveerr.New(archiveerr.NotAnArchive, "archive shorter than fixed prefix", nil)
	}
	prefix, err := rr.ReadAt(ctx, 0, uint32(len(magic)+headerLengthSize))
	if err != nil {
		return nil, archiveerr.New(archiveerr.IO, "read archive prefix", err)
	}
	headerLen, err := parsePrefix(prefix)
	if err != nil {
		return nil, err
	}
	if uint64(len(magic)+headerLengthSize)+headerLen > totalLen {
		return nil, archiveerr.New(archiveerr.NotAnArchive, "header length exceeds archive size", nil)
	}

	header, err := rr.ReadAt(ctx, uint64(len(magic)+headerLengthSize), uint32(headerLen))
	if err != nil {
		return nil, archiveerr.New(archiveerr.IO, "read manifest header", err)
	}
	manifestBytes, err := verifyManifestChecksum(header)
	if err != nil {
		return nil, err
	}

	m, err := manifest.Decode(manifestBytes)
	if err != nil {
		return nil, err
	}

	for _, idx := range m.RebuildOrder {
		if int(idx) >= len(m.ChunkDescriptors) {
			return nil, archiveerr.New(archiveerr.NotAnArchive, "rebuild_order index out of range", nil)
		}
	}
	var sum uint64
	for _, idx := range m.RebuildOrder {
		sum += uint64(m.ChunkDescriptors[idx].SourceSize)
	}
	if sum != m.SourceTotalSize {
		return nil, archiveerr.New(archiveerr.NotAnArchive, "rebuild_order size sum does not match source_total_size", nil)
	}

	payloadBase := uint64(headerSize(manifestBytes))
	for _, d := range m.ChunkDescriptors {
		if payloadBase+d.ArchiveOffset+uint64(d.ArchiveSize) > totalLen {
			return nil, archiveerr.New(archiveerr.NotAnArchive, "chunk descriptor exceeds archive length", nil)
		}
	}

	codec, err := compressor.New(m.ChunkCompression.Codec, int(m.ChunkCompression.Level))
	if err != nil {
		return nil, err
	}

	return &Reader{
		rr:          rr,
		Manifest:    m,
		byChecksum:  m.ByChecksum(),
		codec:       codec,
		payloadBase: payloadBase,
	}, nil
}

// Chunk is a fetched, decompressed, digest-verified chunk payload.
type Chunk struct {
	Checksum []byte
	Data     []byte
}

// group is a run of descriptors whose payload ranges are contiguous or
// close enough to coalesce into a single read_at request.
type group struct {
	start uint64 // payload-region-relative start offset
	end   uint64 // payload-region-relative end offset (exclusive)
	descs []manifest.ChunkDescriptor
}

// Fetch retrieves and verifies every chunk named by hashes, coalescing
// adjacent descriptors into as few range requests as possible.
func (r *Reader) Fetch(ctx context.Context, hashes [][]byte) ([]Chunk, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	descs := make([]manifest.ChunkDescriptor, 0, len(hashes))
	for _, h := range hashes {
		idx, ok := r.byChecksum[string(h)]
		if !ok {
			return nil, archiveerr.New(archiveerr.Other, "chunk hash not present in archive manifest", nil)
		}
		descs = append(descs, r.Manifest.ChunkDescriptors[idx])
	}
	sort.Slice(descs, func(i, j int) bool { return descs[i].ArchiveOffset < descs[j].ArchiveOffset })

	groups := coalesce(descs)
	chunkHasher := r.chunkHasher()

	var out []Chunk
	for _, g := range groups {
		length := g.end - g.start
		raw, err := r.rr.ReadAt(ctx, r.payloadOffset(g.start), uint32(length))
		if err != nil {
			return nil, archiveerr.New(archiveerr.IO, "range fetch", err)
		}
		metrics.ObserveRangeFetch(len(g.descs))
		for _, d := range g.descs {
			rel := d.ArchiveOffset - g.start
			buf := raw[rel : rel+uint64(d.ArchiveSize)]
			chunkBytes, err := compressor.Decompress(r.codec, buf, d.StoredUncompressed())
			if err != nil {
				return nil, err
			}
			checksum := chunkHasher.Sum(chunkBytes)
			if !bytes.Equal(checksum, d.Checksum) {
				return nil, archiveerr.New(archiveerr.ChecksumMismatch, "fetched chunk digest mismatch", nil)
			}
			out = append(out, Chunk{Checksum: d.Checksum, Data: chunkBytes})
		}
	}
	return out, nil
}

// chunkHasher builds the truncated digest used to verify fetched chunks.
func (r *Reader) chunkHasher() *hasher.ChunkHasher {
	hashLength := 0
	if len(r.Manifest.ChunkDescriptors) > 0 {
		hashLength = len(r.Manifest.ChunkDescriptors[0].Checksum)
	}
	h, err := hasher.NewChunkHasher(r.Manifest.ChunkHashAlgorithm, hashLength)
	if err != nil {
		// Manifest already round-tripped through Decode, which validates
		// ChunkHashAlgorithm; hashLength came from an existing descriptor.
		panic(err)
	}
	return h
}

// payloadOffset converts a payload-region-relative offset into an
// archive-absolute offset.
func (r *Reader) payloadOffset(relative uint64) uint64 {
	return r.payloadBase + relative
}

func coalesce(descs []manifest.ChunkDescriptor) []group {
	var groups []group
	for _, d := range descs {
		start := d.ArchiveOffset
		end := d.ArchiveOffset + uint64(d.ArchiveSize)
		if len(groups) > 0 {
			last := &groups[len(groups)-1]
			if start <= last.end+coalesceGapThreshold {
				if end > last.end {
					last.end = end
				}
				last.descs = append(last.descs, d)
				continue
			}
		}
		groups = append(groups, group{start: start, end: end, descs: []manifest.ChunkDescriptor{d}})
	}
	return groups
}
