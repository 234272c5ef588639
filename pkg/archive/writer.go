package archive

import (
	"io"
	"os"
	"sync"

	"github.com/saworbit/bitaforge/internal/metrics"
	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
	"github.com/saworbit/bitaforge/pkg/manifest"
)

// defaultConcurrency is the default in-flight limit for the hash and
// compress stages, per spec §4.6.
const defaultConcurrency = 8

// BuildOptions configures one archive build.
type BuildOptions struct {
	ChunkerConfig      chunker.Config
	HashAlgorithm      hasher.Algorithm
	HashLength         int
	Compression        manifest.ChunkCompression
	Concurrency        int
	ApplicationVersion string
}

func (o *BuildOptions) setDefaults() {
	if o.Concurrency < 1 {
		o.Concurrency = defaultConcurrency
	}
	if o.ApplicationVersion == "" {
		o.ApplicationVersion = "bitaforge"
	}
}

type rawChunk struct {
	offset uint64
	data   []byte
}

type hashedChunk struct {
	data   []byte
	digest []byte
}

type dedupedChunk struct {
	uniqueIndex int
	data        []byte
}

type compressedChunk struct {
	uniqueIndex int
	data        []byte
}

// Build runs the archive-builder pipeline of spec §4.6 over source and
// writes the framed archive to out. It stages the chunk payload region in a
// temporary file so the final header (which embeds descriptor offsets
// computed only after all chunks are known) can be written before the
// payload is appended.
func Build(source io.Reader, out io.Writer, opts BuildOptions) (*manifest.Manifest, error) {
	opts.setDefaults()

	c, err := chunker.New(source, opts.ChunkerConfig)
	if err != nil {
		return nil, err
	}
	chunkHasher, err := hasher.NewChunkHasher(opts.HashAlgorithm, opts.HashLength)
	if err != nil {
		return nil, err
	}
	sourceSum, err := hasher.NewSourceChecksum(opts.HashAlgorithm)
	if err != nil {
		return nil, err
	}
	codec, err := compressor.New(opts.Compression.Codec, int(opts.Compression.Level))
	if err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp("", "bitaforge-payload-*")
	if err != nil {
		return nil, archiveerr.New(archiveerr.IO, "create temporary payload file", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	// Stage 1: chunk (serial, single producer). Also updates the running
	// source checksum in source order, as spec §4.6 requires.
	rawCh := make(chan rawChunk, opts.Concurrency)
	var chunkErr error
	var totalSize uint64
	go func() {
		defer close(rawCh)
		for {
			ch, nextErr := c.Next()
			if nextErr == io.EOF {
				return
			}
			if nextErr != nil {
				chunkErr = nextErr
				return
			}
			if _, err := sourceSum.Write(ch.Data); err != nil {
				chunkErr = archiveerr.New(archiveerr.IO, "update source checksum", err)
				return
			}
			totalSize += uint64(len(ch.Data))
			rawCh <- rawChunk{offset: ch.Offset, data: ch.Data}
		}
	}()

	// Stage 2: hash (parallel, order-preserving).
	hashedCh, hashErrc := orderedParallel(rawCh, opts.Concurrency, func(rc rawChunk) (hashedChunk, error) {
		return hashedChunk{data: rc.data, digest: chunkHasher.Sum(rc.data)}, nil
	})

	// Stage 3: dedup (single-threaded critical section over the digest map).
	var descMu sync.Mutex
	var descriptors []manifest.ChunkDescriptor
	digestIndex := make(map[string]int)
	var rebuildOrder []uint32

	toCompress := make(chan dedupedChunk, opts.Concurrency)
	go func() {
		defer close(toCompress)
		for hc := range hashedCh {
			key := string(hc.digest)
			idx, exists := digestIndex[key]
			if !exists {
				descMu.Lock()
				idx = len(descriptors)
				descriptors = append(descriptors, manifest.ChunkDescriptor{
					Checksum:   hc.digest,
					SourceSize: uint32(len(hc.data)),
				})
				descMu.Unlock()
				digestIndex[key] = idx
			}
			rebuildOrder = append(rebuildOrder, uint32(idx))
			if exists {
				metrics.ObserveChunk("dup")
			} else {
				metrics.ObserveChunk("new")
				toCompress <- dedupedChunk{uniqueIndex: idx, data: hc.data}
			}
		}
	}()

	// Stage 4: compress (parallel, order-preserving; unique chunks only).
	compressedCh, compressErrc := orderedParallel(toCompress, opts.Concurrency, func(dc dedupedChunk) (compressedChunk, error) {
		data, _, err := compressor.AdaptiveCompress(codec, dc.data)
		if err != nil {
			return compressedChunk{}, err
		}
		return compressedChunk{uniqueIndex: dc.uniqueIndex, data: data}, nil
	})

	// Stage 5: write (serial). Records archive_offset/archive_size per
	// descriptor as each unique chunk's bytes land in the payload region.
	writeDone := make(chan struct{})
	var writeErr error
	go func() {
		defer close(writeDone)
		var cursor uint64
		for cc := range compressedCh {
			if writeErr != nil {
				continue
			}
			n, err := tmp.Write(cc.data)
			if err != nil {
				writeErr = archiveerr.New(archiveerr.IO, "write chunk payload", err)
				continue
			}
			descMu.Lock()
			descriptors[cc.uniqueIndex].ArchiveOffset = cursor
			descriptors[cc.uniqueIndex].ArchiveSize = uint32(n)
			descMu.Unlock()
			cursor += uint64(n)
		}
	}()

	// Waiting on writeDone is sufficient: every upstream stage closes its
	// output channel only after its input is exhausted, so by the time the
	// write stage finishes, the whole chain (chunk -> hash -> dedup ->
	// compress) has already completed and every shared variable below has
	// stopped mutating.
	<-writeDone

	if chunkErr != nil {
		return nil, chunkErr
	}
	if err := <-hashErrc; err != nil {
		return nil, err
	}
	if err := <-compressErrc; err != nil {
		return nil, err
	}
	if writeErr != nil {
		return nil, writeErr
	}

	m := &manifest.Manifest{
		RebuildOrder:       rebuildOrder,
		ApplicationVersion: opts.ApplicationVersion,
		ChunkDescriptors:   descriptors,
		SourceChecksum:     sourceSum.Sum(),
		ChunkCompression:   opts.Compression,
		SourceTotalSize:    totalSize,
		ChunkerParams:      manifest.ParamsFromConfig(opts.ChunkerConfig),
		ChunkHashAlgorithm: opts.HashAlgorithm,
	}

	encoded, err := manifest.Encode(m)
	if err != nil {
		return nil, archiveerr.New(archiveerr.ManifestEncode, "encode manifest", err)
	}

	if _, err := out.Write(frameHeader(encoded)); err != nil {
		return nil, archiveerr.New(archiveerr.IO, "write archive header", err)
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, archiveerr.New(archiveerr.IO, "seek temporary payload file", err)
	}
	if _, err := io.Copy(out, tmp); err != nil {
		return nil, archiveerr.New(archiveerr.IO, "copy payload region", err)
	}

	return m, nil
}
