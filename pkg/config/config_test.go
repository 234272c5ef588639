package config

import (
	"os"
	"testing"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.ChunkerAlgorithm != "buzhash" {
		t.Errorf("expected default chunker algorithm 'buzhash', got %q", cfg.ChunkerAlgorithm)
	}
	if cfg.AvgChunkSize != 8*1024 {
		t.Errorf("expected default avg chunk size 8KiB, got %d", cfg.AvgChunkSize)
	}
	if cfg.MinChunkSize != 2*1024 {
		t.Errorf("expected default min chunk size 2KiB, got %d", cfg.MinChunkSize)
	}
	if cfg.MaxChunkSize != 64*1024 {
		t.Errorf("expected default max chunk size 64KiB, got %d", cfg.MaxChunkSize)
	}
	if cfg.HashAlgorithm != "blake2" {
		t.Errorf("expected default hash algorithm 'blake2', got %q", cfg.HashAlgorithm)
	}
	if cfg.HashLength != 32 {
		t.Errorf("expected default hash length 32, got %d", cfg.HashLength)
	}
	if cfg.CompressionCodec != "zstd" {
		t.Errorf("expected default compression codec 'zstd', got %q", cfg.CompressionCodec)
	}
	if cfg.Concurrency != 8 {
		t.Errorf("expected default concurrency 8, got %d", cfg.Concurrency)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("expected default config to validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	vars := map[string]string{
		"BITAFORGE_CHUNKER_ALGORITHM": "rollsum",
		"BITAFORGE_AVG_CHUNK_SIZE":    "16384",
		"BITAFORGE_MIN_CHUNK_SIZE":    "4096",
		"BITAFORGE_MAX_CHUNK_SIZE":    "131072",
		"BITAFORGE_WINDOW_SIZE":       "128",
		"BITAFORGE_HASH_ALGORITHM":    "blake3",
		"BITAFORGE_HASH_LENGTH":       "16",
		"BITAFORGE_COMPRESSION":       "lz4",
		"BITAFORGE_COMPRESSION_LEVEL": "5",
		"BITAFORGE_CONCURRENCY":       "4",
		"BITAFORGE_METRICS_ADDR":      ":9090",
		"BITAFORGE_CACHE_DIR":         "/tmp/bitaforge-cache",
	}
	for k, v := range vars {
		os.Setenv(k, v)
	}
	defer func() {
		for k := range vars {
			os.Unsetenv(k)
		}
	}()

	cfg := LoadFromEnv()

	if cfg.ChunkerAlgorithm != "rollsum" {
		t.Errorf("expected chunker algorithm 'rollsum', got %q", cfg.ChunkerAlgorithm)
	}
	if cfg.AvgChunkSize != 16384 {
		t.Errorf("expected avg chunk size 16384, got %d", cfg.AvgChunkSize)
	}
	if cfg.MinChunkSize != 4096 {
		t.Errorf("expected min chunk size 4096, got %d", cfg.MinChunkSize)
	}
	if cfg.MaxChunkSize != 131072 {
		t.Errorf("expected max chunk size 131072, got %d", cfg.MaxChunkSize)
	}
	if cfg.WindowSize != 128 {
		t.Errorf("expected window size 128, got %d", cfg.WindowSize)
	}
	if cfg.HashAlgorithm != "blake3" {
		t.Errorf("expected hash algorithm 'blake3', got %q", cfg.HashAlgorithm)
	}
	if cfg.HashLength != 16 {
		t.Errorf("expected hash length 16, got %d", cfg.HashLength)
	}
	if cfg.CompressionCodec != "lz4" {
		t.Errorf("expected compression codec 'lz4', got %q", cfg.CompressionCodec)
	}
	if cfg.CompressionLevel != 5 {
		t.Errorf("expected compression level 5, got %d", cfg.CompressionLevel)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Concurrency)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("expected metrics addr ':9090', got %q", cfg.MetricsAddr)
	}
	if cfg.CacheDir != "/tmp/bitaforge-cache" {
		t.Errorf("expected cache dir '/tmp/bitaforge-cache', got %q", cfg.CacheDir)
	}
}

func TestValidateRejectsBadChunkerAlgorithm(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkerAlgorithm = "snappy"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for an unknown chunker algorithm")
	}
}

func TestValidateRejectsInvertedChunkSizes(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinChunkSize = 100
	cfg.MaxChunkSize = 10
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error when min_chunk_size exceeds max_chunk_size")
	}
}

func TestValidateRejectsOutOfRangeHashLength(t *testing.T) {
	cfg := DefaultConfig()
	cfg.HashLength = 128
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected an error for hash_length outside 4..=64")
	}
}

func TestFilterBitsDerivedFromAvgChunkSize(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AvgChunkSize = 8 * 1024
	if got := cfg.FilterBits(); got != 13 {
		t.Errorf("expected filter_bits 13 for avg_chunk_size 8192, got %d", got)
	}
}
