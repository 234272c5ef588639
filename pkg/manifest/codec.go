package manifest

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/hasher"
)

// Field numbers are part of the on-disk contract (spec §4.5): they and
// their wire types MUST NOT change across archive-format minor versions.
const (
	fieldDescChecksum      = 1
	fieldDescSourceSize    = 2
	fieldDescArchiveOffset = 3
	fieldDescArchiveSize   = 4

	fieldParamsAlgorithm    = 1
	fieldParamsFilterBits   = 2
	fieldParamsMinChunk     = 3
	fieldParamsMaxChunk     = 4
	fieldParamsWindowSize   = 5
	fieldParamsChunkSize    = 6

	fieldCompressionCodec = 1
	fieldCompressionLevel = 2

	fieldManifestRebuildOrder   = 1
	fieldManifestAppVersion     = 2
	fieldManifestDescriptors    = 3
	fieldManifestSourceChecksum = 4
	fieldManifestCompression    = 5
	fieldManifestTotalSize      = 6
	fieldManifestChunkerParams  = 7
	fieldManifestHashAlgorithm  = 8
)

// Encode serializes m into the Protocol-Buffers-compatible wire format
// required by spec §4.5. Field numbers and wire types are fixed so that
// archives remain interoperable across implementations.
func Encode(m *Manifest) ([]byte, error) {
	var b []byte

	if len(m.RebuildOrder) > 0 {
		var packed []byte
		for _, idx := range m.RebuildOrder {
			packed = protowire.AppendVarint(packed, uint64(idx))
		}
		b = protowire.AppendTag(b, fieldManifestRebuildOrder, protowire.BytesType)
		b = protowire.AppendBytes(b, packed)
	}

	b = protowire.AppendTag(b, fieldManifestAppVersion, protowire.BytesType)
	b = protowire.AppendString(b, m.ApplicationVersion)

	for _, d := range m.ChunkDescriptors {
		encoded := encodeDescriptor(d)
		b = protowire.AppendTag(b, fieldManifestDescriptors, protowire.BytesType)
		b = protowire.AppendBytes(b, encoded)
	}

	b = protowire.AppendTag(b, fieldManifestSourceChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, m.SourceChecksum)

	b = protowire.AppendTag(b, fieldManifestCompression, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeCompression(m.ChunkCompression))

	b = protowire.AppendTag(b, fieldManifestTotalSize, protowire.VarintType)
	b = protowire.AppendVarint(b, m.SourceTotalSize)

	b = protowire.AppendTag(b, fieldManifestChunkerParams, protowire.BytesType)
	b = protowire.AppendBytes(b, encodeParams(m.ChunkerParams))

	b = protowire.AppendTag(b, fieldManifestHashAlgorithm, protowire.BytesType)
	b = protowire.AppendString(b, m.ChunkHashAlgorithm.String())

	return b, nil
}

func encodeDescriptor(d ChunkDescriptor) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldDescChecksum, protowire.BytesType)
	b = protowire.AppendBytes(b, d.Checksum)
	b = protowire.AppendTag(b, fieldDescSourceSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.SourceSize))
	b = protowire.AppendTag(b, fieldDescArchiveOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, d.ArchiveOffset)
	b = protowire.AppendTag(b, fieldDescArchiveSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(d.ArchiveSize))
	return b
}

func encodeCompression(c ChunkCompression) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldCompressionCodec, protowire.BytesType)
	b = protowire.AppendString(b, c.Codec.String())
	b = protowire.AppendTag(b, fieldCompressionLevel, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(int64(c.Level)))
	return b
}

func encodeParams(p ChunkerParams) []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldParamsAlgorithm, protowire.BytesType)
	b = protowire.AppendString(b, p.Algorithm.String())
	b = protowire.AppendTag(b, fieldParamsFilterBits, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.FilterBits))
	b = protowire.AppendTag(b, fieldParamsMinChunk, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.MinChunkSize))
	b = protowire.AppendTag(b, fieldParamsMaxChunk, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.MaxChunkSize))
	b = protowire.AppendTag(b, fieldParamsWindowSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.WindowSize))
	b = protowire.AppendTag(b, fieldParamsChunkSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.ChunkSize))
	return b
}

// Decode parses the wire format produced by Encode. Unknown fields are
// skipped rather than rejected, per spec §4.5.
func Decode(data []byte) (*Manifest, error) {
	m := &Manifest{}
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, archiveerr.New(archiveerr.ManifestDecode, "malformed manifest tag", fmt.Errorf("wire decode error code %d", n))
		}
		b = b[n:]

		switch num {
		case fieldManifestRebuildOrder:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
			for len(v) > 0 {
				idx, vn := protowire.ConsumeVarint(v)
				if vn < 0 {
					return nil, archiveerr.New(archiveerr.ManifestDecode, "malformed rebuild_order entry", fmt.Errorf("wire decode error code %d", vn))
				}
				m.RebuildOrder = append(m.RebuildOrder, uint32(idx))
				v = v[vn:]
			}
		case fieldManifestAppVersion:
			s, n, err := consumeStringField(b, typ)
			if err != nil {
				return nil, err
			}
			m.ApplicationVersion = s
			b = b[n:]
		case fieldManifestDescriptors:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
			d, err := decodeDescriptor(v)
			if err != nil {
				return nil, err
			}
			m.ChunkDescriptors = append(m.ChunkDescriptors, d)
		case fieldManifestSourceChecksum:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return nil, err
			}
			m.SourceChecksum = append([]byte(nil), v...)
			b = b[n:]
		case fieldManifestCompression:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
			c, err := decodeCompression(v)
			if err != nil {
				return nil, err
			}
			m.ChunkCompression = c
		case fieldManifestTotalSize:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return nil, err
			}
			m.SourceTotalSize = val
			b = b[n:]
		case fieldManifestChunkerParams:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return nil, err
			}
			b = b[n:]
			p, err := decodeParams(v)
			if err != nil {
				return nil, err
			}
			m.ChunkerParams = p
		case fieldManifestHashAlgorithm:
			s, n, err := consumeStringField(b, typ)
			if err != nil {
				return nil, err
			}
			algo, err := hasher.ParseAlgorithm(s)
			if err != nil {
				return nil, archiveerr.New(archiveerr.ManifestDecode, "unknown chunk_hash_algorithm", err)
			}
			m.ChunkHashAlgorithm = algo
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return nil, archiveerr.New(archiveerr.ManifestDecode, "malformed unknown field", fmt.Errorf("wire decode error code %d", n))
			}
			b = b[n:]
		}
	}

	if m.ApplicationVersion == "" {
		return nil, archiveerr.New(archiveerr.ManifestDecode, "manifest missing application_version", nil)
	}
	return m, nil
}

func decodeDescriptor(data []byte) (ChunkDescriptor, error) {
	var d ChunkDescriptor
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return d, archiveerr.New(archiveerr.ManifestDecode, "malformed chunk_descriptor tag", fmt.Errorf("wire decode error code %d", n))
		}
		b = b[n:]
		switch num {
		case fieldDescChecksum:
			v, n, err := consumeBytesField(b, typ)
			if err != nil {
				return d, err
			}
			d.Checksum = append([]byte(nil), v...)
			b = b[n:]
		case fieldDescSourceSize:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return d, err
			}
			d.SourceSize = uint32(val)
			b = b[n:]
		case fieldDescArchiveOffset:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return d, err
			}
			d.ArchiveOffset = val
			b = b[n:]
		case fieldDescArchiveSize:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return d, err
			}
			d.ArchiveSize = uint32(val)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return d, archiveerr.New(archiveerr.ManifestDecode, "malformed unknown field in chunk_descriptor", fmt.Errorf("wire decode error code %d", n))
			}
			b = b[n:]
		}
	}
	if d.Checksum == nil {
		return d, archiveerr.New(archiveerr.ManifestDecode, "chunk_descriptor missing checksum", nil)
	}
	return d, nil
}

func decodeCompression(data []byte) (ChunkCompression, error) {
	var c ChunkCompression
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return c, archiveerr.New(archiveerr.ManifestDecode, "malformed chunk_compression tag", fmt.Errorf("wire decode error code %d", n))
		}
		b = b[n:]
		switch num {
		case fieldCompressionCodec:
			s, n, err := consumeStringField(b, typ)
			if err != nil {
				return c, err
			}
			kind, err := compressor.ParseKind(s)
			if err != nil {
				return c, archiveerr.New(archiveerr.ManifestDecode, "unknown chunk_compression codec", err)
			}
			c.Codec = kind
			b = b[n:]
		case fieldCompressionLevel:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return c, err
			}
			c.Level = int32(protowire.DecodeZigZag(val))
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return c, archiveerr.New(archiveerr.ManifestDecode, "malformed unknown field in chunk_compression", fmt.Errorf("wire decode error code %d", n))
			}
			b = b[n:]
		}
	}
	return c, nil
}

func decodeParams(data []byte) (ChunkerParams, error) {
	var p ChunkerParams
	b := data
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return p, archiveerr.New(archiveerr.ManifestDecode, "malformed chunker_params tag", fmt.Errorf("wire decode error code %d", n))
		}
		b = b[n:]
		switch num {
		case fieldParamsAlgorithm:
			s, n, err := consumeStringField(b, typ)
			if err != nil {
				return p, err
			}
			algo, err := chunker.ParseAlgorithm(s)
			if err != nil {
				return p, archiveerr.New(archiveerr.ManifestDecode, "unknown chunker_params algorithm", err)
			}
			p.Algorithm = algo
			b = b[n:]
		case fieldParamsFilterBits:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return p, err
			}
			p.FilterBits = int(val)
			b = b[n:]
		case fieldParamsMinChunk:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return p, err
			}
			p.MinChunkSize = int(val)
			b = b[n:]
		case fieldParamsMaxChunk:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return p, err
			}
			p.MaxChunkSize = int(val)
			b = b[n:]
		case fieldParamsWindowSize:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return p, err
			}
			p.WindowSize = int(val)
			b = b[n:]
		case fieldParamsChunkSize:
			val, n, err := consumeVarintField(b, typ)
			if err != nil {
				return p, err
			}
			p.ChunkSize = int(val)
			b = b[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return p, archiveerr.New(archiveerr.ManifestDecode, "malformed unknown field in chunker_params", fmt.Errorf("wire decode error code %d", n))
			}
			b = b[n:]
		}
	}
	return p, nil
}

func consumeBytesField(b []byte, typ protowire.Type) ([]byte, int, error) {
	if typ != protowire.BytesType {
		return nil, 0, archiveerr.New(archiveerr.ManifestDecode, "expected length-delimited field", nil)
	}
	v, n := protowire.ConsumeBytes(b)
	if n < 0 {
		return nil, 0, archiveerr.New(archiveerr.ManifestDecode, "malformed length-delimited field", fmt.Errorf("wire decode error code %d", n))
	}
	return v, n, nil
}

func consumeStringField(b []byte, typ protowire.Type) (string, int, error) {
	v, n, err := consumeBytesField(b, typ)
	if err != nil {
		return "", 0, err
	}
	return string(v), n, nil
}

func consumeVarintField(b []byte, typ protowire.Type) (uint64, int, error) {
	if typ != protowire.VarintType {
		return 0, 0, archiveerr.New(archiveerr.ManifestDecode, "expected varint field", nil)
	}
	v, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return 0, 0, archiveerr.New(archiveerr.ManifestDecode, "malformed varint field", fmt.Errorf("wire decode error code %d", n))
	}
	return v, n, nil
}
