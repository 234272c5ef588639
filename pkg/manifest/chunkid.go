package manifest

import (
	"github.com/multiformats/go-multihash"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

// ChunkID renders a chunk descriptor's checksum as a self-describing
// multihash string, for human-readable display in `info` output. It has no
// bearing on the archive's on-disk identity, which uses the raw truncated
// digest bytes directly.
func ChunkID(algo hasher.Algorithm, checksum []byte) (string, error) {
	var code uint64
	switch algo {
	case hasher.Blake2:
		code = multihash.BLAKE2B_MIN + uint64(len(checksum)) - 1
	case hasher.Blake3:
		code = multihash.BLAKE3
	default:
		return "", archiveerr.New(archiveerr.Config, "unknown hash algorithm for chunk id", nil)
	}
	mh, err := multihash.Encode(checksum, code)
	if err != nil {
		return "", archiveerr.New(archiveerr.Other, "encode chunk multihash", err)
	}
	return multihash.Multihash(mh).B58String(), nil
}
