package chunker

import "github.com/saworbit/bitaforge/pkg/archiveerr"

// Algorithm selects which boundary policy a Config uses.
type Algorithm int

const (
	RollSum Algorithm = iota
	BuzHash
	FixedSize
)

func (a Algorithm) String() string {
	switch a {
	case RollSum:
		return "rollsum"
	case BuzHash:
		return "buzhash"
	case FixedSize:
		return "fixed-size"
	default:
		return "unknown"
	}
}

// ParseAlgorithm maps a CLI/config string to an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch s {
	case "rollsum":
		return RollSum, nil
	case "buzhash":
		return BuzHash, nil
	case "fixed-size":
		return FixedSize, nil
	default:
		return 0, archiveerr.New(archiveerr.Config, "unknown chunker algorithm: "+s, nil)
	}
}

// Config describes one of the three chunker variants of spec §3. Only the
// fields relevant to Algorithm are consulted; the rest are ignored.
type Config struct {
	Algorithm    Algorithm
	FilterBits   int // 1..31, rolling-hash variants
	MinChunkSize int
	MaxChunkSize int
	WindowSize   int // rolling-hash variants
	ChunkSize    int // fixed-size variant
}

// Validate enforces the invariants of spec §3.
func (c Config) Validate() error {
	switch c.Algorithm {
	case RollSum, BuzHash:
		if c.FilterBits < 1 || c.FilterBits > 31 {
			return archiveerr.New(archiveerr.Config, "filter_bits must be in 1..=31", nil)
		}
		if c.MinChunkSize < 0 || c.MinChunkSize > c.MaxChunkSize {
			return archiveerr.New(archiveerr.Config, "min_chunk_size must be <= max_chunk_size", nil)
		}
		if c.WindowSize < 1 {
			return archiveerr.New(archiveerr.Config, "window_size must be >= 1", nil)
		}
	case FixedSize:
		if c.ChunkSize < 1 {
			return archiveerr.New(archiveerr.Config, "chunk_size must be >= 1", nil)
		}
	default:
		return archiveerr.New(archiveerr.Config, "unknown chunker algorithm", nil)
	}
	return nil
}

// mask returns the filter mask M = (1 << filter_bits) - 1.
func (c Config) mask() uint32 {
	return (uint32(1) << uint(c.FilterBits)) - 1
}
