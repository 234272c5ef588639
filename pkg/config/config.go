// Package config holds process-wide defaults for the bitaforge CLI,
// overridable via BITAFORGE_* environment variables, per spec §6's flag
// surface.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the defaults a CLI invocation falls back to when a flag is
// not explicitly set.
type Config struct {
	// ChunkerAlgorithm is one of "rollsum", "buzhash", "fixed-size".
	ChunkerAlgorithm string
	AvgChunkSize     int
	MinChunkSize     int
	MaxChunkSize     int
	WindowSize       int

	// HashAlgorithm is one of "blake2", "blake3".
	HashAlgorithm string
	HashLength    int

	// CompressionCodec is one of "none", "zstd", "lz4", "xz", "brotli".
	CompressionCodec string
	CompressionLevel int

	Concurrency int

	// MetricsAddr, if non-empty, is the listen address for internal/metrics.Serve.
	MetricsAddr string

	// CacheDir, if non-empty, is the chunkcache directory consulted during unpack.
	CacheDir string
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		ChunkerAlgorithm: "buzhash",
		AvgChunkSize:     8 * 1024,
		MinChunkSize:     2 * 1024,
		MaxChunkSize:     64 * 1024,
		WindowSize:       64,
		HashAlgorithm:    "blake2",
		HashLength:       32,
		CompressionCodec: "zstd",
		CompressionLevel: 3,
		Concurrency:      8,
		MetricsAddr:      "",
		CacheDir:         "",
	}
}

// LoadFromEnv returns DefaultConfig overridden by any BITAFORGE_* variables
// present in the environment.
func LoadFromEnv() *Config {
	cfg := DefaultConfig()

	if v := os.Getenv("BITAFORGE_CHUNKER_ALGORITHM"); v != "" {
		cfg.ChunkerAlgorithm = v
	}
	if v := os.Getenv("BITAFORGE_AVG_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AvgChunkSize = n
		}
	}
	if v := os.Getenv("BITAFORGE_MIN_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MinChunkSize = n
		}
	}
	if v := os.Getenv("BITAFORGE_MAX_CHUNK_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxChunkSize = n
		}
	}
	if v := os.Getenv("BITAFORGE_WINDOW_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WindowSize = n
		}
	}
	if v := os.Getenv("BITAFORGE_HASH_ALGORITHM"); v != "" {
		cfg.HashAlgorithm = v
	}
	if v := os.Getenv("BITAFORGE_HASH_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.HashLength = n
		}
	}
	if v := os.Getenv("BITAFORGE_COMPRESSION"); v != "" {
		cfg.CompressionCodec = v
	}
	if v := os.Getenv("BITAFORGE_COMPRESSION_LEVEL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.CompressionLevel = n
		}
	}
	if v := os.Getenv("BITAFORGE_CONCURRENCY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Concurrency = n
		}
	}
	if v := os.Getenv("BITAFORGE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("BITAFORGE_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}

	return cfg
}

// Validate checks that the configuration describes a usable pipeline,
// mirroring the invariants chunker.Config.Validate enforces at the
// lower layer so a bad env var is reported before any I/O starts.
func (c *Config) Validate() error {
	switch c.ChunkerAlgorithm {
	case "rollsum", "buzhash", "fixed-size":
	default:
		return fmt.Errorf("invalid chunker algorithm: %s (must be rollsum, buzhash, or fixed-size)", c.ChunkerAlgorithm)
	}
	if c.MinChunkSize <= 0 || c.MaxChunkSize <= 0 {
		return fmt.Errorf("chunk sizes must be positive (min=%d max=%d)", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.MinChunkSize > c.MaxChunkSize {
		return fmt.Errorf("min_chunk_size cannot exceed max_chunk_size (min=%d max=%d)", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.AvgChunkSize < c.MinChunkSize || c.AvgChunkSize > c.MaxChunkSize {
		return fmt.Errorf("avg_chunk_size must be between min and max (avg=%d min=%d max=%d)", c.AvgChunkSize, c.MinChunkSize, c.MaxChunkSize)
	}
	if c.WindowSize <= 0 {
		return fmt.Errorf("window_size must be positive, got: %d", c.WindowSize)
	}
	switch c.HashAlgorithm {
	case "blake2", "blake3":
	default:
		return fmt.Errorf("invalid hash algorithm: %s (must be blake2 or blake3)", c.HashAlgorithm)
	}
	if c.HashLength < 4 || c.HashLength > 64 {
		return fmt.Errorf("hash_length must be in 4..=64, got: %d", c.HashLength)
	}
	switch c.CompressionCodec {
	case "none", "zstd", "lz4", "xz", "brotli":
	default:
		return fmt.Errorf("invalid compression codec: %s", c.CompressionCodec)
	}
	if c.Concurrency <= 0 {
		return fmt.Errorf("concurrency must be positive, got: %d", c.Concurrency)
	}
	return nil
}

// FilterBits derives the rolling-hash filter_bits implied by AvgChunkSize,
// since the CLI surface (spec §6) exposes an average size rather than a
// bit count: the largest b with 2^b <= AvgChunkSize.
func (c *Config) FilterBits() int {
	bits := 0
	for (1 << uint(bits+1)) <= c.AvgChunkSize {
		bits++
	}
	if bits < 1 {
		bits = 1
	}
	return bits
}
