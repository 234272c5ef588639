// Package compressor implements the chunk payload codecs of spec §4.5,
// including the adaptive store-uncompressed fallback used whenever
// compression would not actually shrink a chunk.
package compressor

import "github.com/saworbit/bitaforge/pkg/archiveerr"

// Codec compresses and decompresses chunk payloads.
type Codec interface {
	Name() string
	Compress(data []byte) ([]byte, error)
	Decompress(data []byte) ([]byte, error)
}

// Kind enumerates the supported codecs.
type Kind int

const (
	None Kind = iota
	Zstd
	Lz4
	Xz
	Brotli
)

func (k Kind) String() string {
	switch k {
	case None:
		return "none"
	case Zstd:
		return "zstd"
	case Lz4:
		return "lz4"
	case Xz:
		return "xz"
	case Brotli:
		return "brotli"
	default:
		return "unknown"
	}
}

// ParseKind maps a manifest/CLI string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "none":
		return None, nil
	case "zstd":
		return Zstd, nil
	case "lz4":
		return Lz4, nil
	case "xz":
		return Xz, nil
	case "brotli":
		return Brotli, nil
	default:
		return 0, archiveerr.New(archiveerr.Config, "unknown compression codec: "+s, nil)
	}
}

// New constructs a Codec for kind at the given compression level. level is
// ignored by None, Lz4 and Xz (which have no tunable level in this wrapper).
func New(kind Kind, level int) (Codec, error) {
	switch kind {
	case None:
		return noneCodec{}, nil
	case Zstd:
		return newZstdCodec(level)
	case Lz4:
		return lz4Codec{}, nil
	case Xz:
		return xzCodec{}, nil
	case Brotli:
		return brotliCodec{level: level}, nil
	default:
		return nil, archiveerr.New(archiveerr.Config, "unknown compression codec", nil)
	}
}

// AdaptiveCompress compresses data with codec and falls back to storing it
// uncompressed whenever the compressed form is not strictly smaller, per
// spec §4.5 ("archive_size == source_size signals stored-uncompressed").
// stored reports whether the fallback was taken.
func AdaptiveCompress(codec Codec, data []byte) (out []byte, stored bool, err error) {
	if codec.Name() == "none" {
		return data, true, nil
	}
	compressed, err := codec.Compress(data)
	if err != nil {
		return nil, false, archiveerr.New(archiveerr.Compression, "compress chunk", err)
	}
	if len(compressed) >= len(data) {
		return data, true, nil
	}
	return compressed, false, nil
}

// Decompress inflates data using codec unless stored indicates the payload
// was kept uncompressed in the archive.
func Decompress(codec Codec, data []byte, stored bool) ([]byte, error) {
	if stored || codec.Name() == "none" {
		return data, nil
	}
	out, err := codec.Decompress(data)
	if err != nil {
		return nil, archiveerr.New(archiveerr.Compression, "decompress chunk", err)
	}
	return out, nil
}
