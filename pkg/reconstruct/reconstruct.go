// Package reconstruct implements the unpack pipeline of spec §4.8: given an
// opened archive and an ordered list of seed byte streams, it computes the
// minimum set of chunks still missing after scanning the seeds, fetches
// those from the archive's coalesced range reader, and scatter-writes every
// chunk to every source offset it occupies.
package reconstruct

import (
	"bytes"
	"context"
	"io"
	"os"

	"github.com/saworbit/bitaforge/pkg/archive"
	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/chunkcache"
	"github.com/saworbit/bitaforge/pkg/hasher"
	"github.com/saworbit/bitaforge/pkg/manifest"
)

// Options configures one reconstruction run.
type Options struct {
	// Seeds are scanned in order; scanning stops early once every chunk
	// hash has been located, per spec §4.8.
	Seeds []io.Reader
	// VerifySource, when true, re-reads the completed output and checks
	// its full source digest against the manifest's source_checksum.
	VerifySource bool
	// Cache, if set, is consulted for each still-missing chunk before
	// scanning seeds, and populated with every chunk resolved from a
	// seed or a range fetch.
	Cache *chunkcache.Cache
}

// offsetIndex maps a chunk's checksum to every source-relative byte offset
// it must be written to.
func offsetIndex(m *manifest.Manifest) map[string][]uint64 {
	offsets := m.SourceOffsets()
	idx := make(map[string][]uint64)
	for i, ord := range m.RebuildOrder {
		d := m.ChunkDescriptors[ord]
		key := string(d.Checksum)
		idx[key] = append(idx[key], offsets[i])
	}
	return idx
}

// Stats reports how a reconstruction resolved its chunks, for the caller to
// feed into internal/metrics.
type Stats struct {
	TotalChunks    int
	NetworkFetched int
}

// Run rebuilds the target named by the manifest behind arc, writing it to
// output, per spec §4.8.
func Run(ctx context.Context, arc *archive.Reader, output *os.File, opts Options) (Stats, error) {
	m := arc.Manifest
	stats := Stats{TotalChunks: len(m.ChunkDescriptors)}

	if err := prepareOutput(output, m.SourceTotalSize); err != nil {
		return stats, err
	}

	offsets := offsetIndex(m)
	missing := make(map[string]bool, len(m.ChunkDescriptors))
	for _, d := range m.ChunkDescriptors {
		missing[string(d.Checksum)] = true
	}

	hashLength := 0
	if len(m.ChunkDescriptors) > 0 {
		hashLength = len(m.ChunkDescriptors[0].Checksum)
	}
	chunkHasher, err := hasher.NewChunkHasher(m.ChunkHashAlgorithm, hashLength)
	if err != nil {
		return stats, err
	}
	cfg := m.ChunkerParams.ToConfig()

	if opts.Cache != nil {
		if err := drainFromCache(opts.Cache, missing, offsets, output); err != nil {
			return stats, err
		}
	}

	for _, seed := range opts.Seeds {
		if len(missing) == 0 {
			break
		}
		if err := scanSeed(seed, cfg, chunkHasher, missing, offsets, output, opts.Cache); err != nil {
			return stats, err
		}
	}

	if len(missing) > 0 {
		var hashes [][]byte
		for key := range missing {
			hashes = append(hashes, []byte(key))
		}
		chunks, err := arc.Fetch(ctx, hashes)
		if err != nil {
			return stats, err
		}
		for _, c := range chunks {
			if err := scatterWrite(output, c.Data, offsets[string(c.Checksum)]); err != nil {
				return stats, err
			}
			if opts.Cache != nil {
				if err := opts.Cache.Put(c.Checksum, c.Data); err != nil {
					return stats, err
				}
			}
			delete(missing, string(c.Checksum))
			stats.NetworkFetched++
		}
	}

	if len(missing) > 0 {
		return stats, archiveerr.New(archiveerr.Other, "archive fetch did not resolve every missing chunk", nil)
	}

	if opts.VerifySource {
		if err := verifySourceDigest(output, m); err != nil {
			return stats, err
		}
	}

	return stats, nil
}

// scanSeed chunks seed with cfg and, for every chunk whose digest is still
// missing, scatter-writes it and removes it from the missing set.
func scanSeed(seed io.Reader, cfg chunker.Config, chunkHasher *hasher.ChunkHasher, missing map[string]bool, offsets map[string][]uint64, output *os.File, cache *chunkcache.Cache) error {
	c, err := chunker.New(seed, cfg)
	if err != nil {
		return err
	}
	for {
		if len(missing) == 0 {
			return nil
		}
		chunk, err := c.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		key := string(chunkHasher.Sum(chunk.Data))
		if !missing[key] {
			continue
		}
		if err := scatterWrite(output, chunk.Data, offsets[key]); err != nil {
			return err
		}
		if cache != nil {
			if err := cache.Put([]byte(key), chunk.Data); err != nil {
				return err
			}
		}
		delete(missing, key)
	}
}

// drainFromCache scatter-writes every still-missing chunk already present
// in cache, removing it from missing as it is resolved.
func drainFromCache(cache *chunkcache.Cache, missing map[string]bool, offsets map[string][]uint64, output *os.File) error {
	for key := range missing {
		data, ok, err := cache.Get([]byte(key))
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := scatterWrite(output, data, offsets[key]); err != nil {
			return err
		}
		delete(missing, key)
	}
	return nil
}

// scatterWrite writes data to output at every offset in positions.
func scatterWrite(output *os.File, data []byte, positions []uint64) error {
	for _, pos := range positions {
		if _, err := output.WriteAt(data, int64(pos)); err != nil {
			return archiveerr.New(archiveerr.IO, "scatter-write chunk to output", err)
		}
	}
	return nil
}

// prepareOutput sizes output to totalSize, per spec §4.8: a block device's
// existing size must already equal totalSize; a regular file is truncated
// (or extended) to it.
func prepareOutput(output *os.File, totalSize uint64) error {
	info, err := output.Stat()
	if err != nil {
		return archiveerr.New(archiveerr.IO, "stat output", err)
	}
	if isBlockDevice(info) {
		size, err := blockDeviceSize(output)
		if err != nil {
			return err
		}
		if size != totalSize {
			return archiveerr.New(archiveerr.Config, "output block device size does not match source_total_size", nil)
		}
		return nil
	}
	if err := output.Truncate(int64(totalSize)); err != nil {
		return archiveerr.New(archiveerr.IO, "size output file", err)
	}
	return nil
}

// verifySourceDigest re-reads the completed output and compares its full
// digest against the manifest's source_checksum.
func verifySourceDigest(output *os.File, m *manifest.Manifest) error {
	sum, err := hasher.NewSourceChecksum(m.ChunkHashAlgorithm)
	if err != nil {
		return err
	}
	if _, err := output.Seek(0, io.SeekStart); err != nil {
		return archiveerr.New(archiveerr.IO, "seek output for verification", err)
	}
	if _, err := io.Copy(sum, output); err != nil {
		return archiveerr.New(archiveerr.IO, "read output for verification", err)
	}
	if !bytes.Equal(sum.Sum(), m.SourceChecksum) {
		return archiveerr.New(archiveerr.ChecksumMismatch, "reconstructed output digest does not match source_checksum", nil)
	}
	return nil
}
