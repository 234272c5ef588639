// Package diffinfo backs the `diff` subcommand's informational comparison
// of two byte streams: a chunk-hash overlap report computed the same way
// the archive builder would see the two inputs, plus a supplementary
// bsdiff patch-size estimate. Neither writes an archive.
package diffinfo

import (
	"bytes"
	"io"

	"github.com/gabstv/go-bsdiff/pkg/bsdiff"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

// Report summarizes how two inputs compare under one chunker configuration.
type Report struct {
	OldSize         uint64
	NewSize         uint64
	OldChunks       int
	NewChunks       int
	CommonChunks    int
	CommonBytes     uint64
	ChangedBytes    uint64
	BsdiffPatchSize int
}

// Compute chunks oldData and newData under cfg, reports their chunk-hash
// overlap, and estimates a bsdiff patch size between the two whole inputs.
func Compute(oldData, newData []byte, cfg chunker.Config, algo hasher.Algorithm, hashLength int) (*Report, error) {
	oldHashes, err := chunkHashes(oldData, cfg, algo, hashLength)
	if err != nil {
		return nil, err
	}
	newHashes, err := chunkHashes(newData, cfg, algo, hashLength)
	if err != nil {
		return nil, err
	}

	oldCounts := make(map[string]int, len(oldHashes))
	for _, h := range oldHashes {
		oldCounts[string(h.digest)]++
	}

	var commonChunks int
	var commonBytes uint64
	for _, h := range newHashes {
		key := string(h.digest)
		if oldCounts[key] > 0 {
			oldCounts[key]--
			commonChunks++
			commonBytes += uint64(len(h.data))
		}
	}

	newBytes := uint64(len(newData))
	changedBytes := newBytes - commonBytes

	patch, err := bsdiff.Bytes(oldData, newData)
	if err != nil {
		return nil, archiveerr.New(archiveerr.Other, "compute bsdiff patch-size estimate", err)
	}

	return &Report{
		OldSize:         uint64(len(oldData)),
		NewSize:         newBytes,
		OldChunks:       len(oldHashes),
		NewChunks:       len(newHashes),
		CommonChunks:    commonChunks,
		CommonBytes:     commonBytes,
		ChangedBytes:    changedBytes,
		BsdiffPatchSize: len(patch),
	}, nil
}

type hashedChunk struct {
	data   []byte
	digest []byte
}

func chunkHashes(data []byte, cfg chunker.Config, algo hasher.Algorithm, hashLength int) ([]hashedChunk, error) {
	c, err := chunker.New(bytes.NewReader(data), cfg)
	if err != nil {
		return nil, err
	}
	h, err := hasher.NewChunkHasher(algo, hashLength)
	if err != nil {
		return nil, err
	}

	var out []hashedChunk
	for {
		chunk, err := c.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		out = append(out, hashedChunk{data: chunk.Data, digest: h.Sum(chunk.Data)})
	}
}
