package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/saworbit/bitaforge/internal/metrics"
	"github.com/saworbit/bitaforge/pkg/archive"
	"github.com/saworbit/bitaforge/pkg/archiveerr"
	"github.com/saworbit/bitaforge/pkg/chunker"
	"github.com/saworbit/bitaforge/pkg/chunkcache"
	"github.com/saworbit/bitaforge/pkg/compressor"
	"github.com/saworbit/bitaforge/pkg/config"
	"github.com/saworbit/bitaforge/pkg/diffinfo"
	"github.com/saworbit/bitaforge/pkg/hasher"
	"github.com/saworbit/bitaforge/pkg/integrity"
	"github.com/saworbit/bitaforge/pkg/manifest"
	"github.com/saworbit/bitaforge/pkg/rangereader"
	"github.com/saworbit/bitaforge/pkg/reconstruct"
)

var debugEnabled bool

func logDebug(format string, args ...interface{}) {
	if !debugEnabled {
		return
	}
	log.Printf("[DEBUG] "+format, args...)
}

// chunkerConfigFrom builds a chunker.Config out of cfg and any CLI
// overrides already folded into cfg, deriving filter_bits from
// avg_chunk_size since the CLI surface exposes the latter.
func chunkerConfigFrom(cfg *config.Config) (chunker.Config, error) {
	algo, err := chunker.ParseAlgorithm(cfg.ChunkerAlgorithm)
	if err != nil {
		return chunker.Config{}, err
	}
	return chunker.Config{
		Algorithm:    algo,
		FilterBits:   cfg.FilterBits(),
		MinChunkSize: cfg.MinChunkSize,
		MaxChunkSize: cfg.MaxChunkSize,
		WindowSize:   cfg.WindowSize,
		ChunkSize:    cfg.AvgChunkSize,
	}, nil
}

// isRemote reports whether target looks like an http(s) URL rather than a
// local path, selecting the range-reader backend for clone/info.
func isRemote(target string) bool {
	u, err := url.Parse(target)
	if err != nil {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// httpContentLength issues a HEAD request to learn a remote archive's total
// length before any ranged ReadAt calls against it.
func httpContentLength(ctx context.Context, target string) (uint64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, target, nil)
	if err != nil {
		return 0, archiveerr.New(archiveerr.InvalidUri, "build head request", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return 0, archiveerr.New(archiveerr.Http, "head request failed", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, archiveerr.New(archiveerr.Http, fmt.Sprintf("unexpected head response status %d", resp.StatusCode), nil)
	}
	if resp.ContentLength < 0 {
		return 0, archiveerr.New(archiveerr.Http, "remote did not report a content length", nil)
	}
	return uint64(resp.ContentLength), nil
}

func openRangeReader(ctx context.Context, target string) (rangereader.RangeReader, uint64, func() error, error) {
	if isRemote(target) {
		size, err := httpContentLength(ctx, target)
		if err != nil {
			return nil, 0, nil, err
		}
		return rangereader.NewHTTPRange(nil, target), size, func() error { return nil }, nil
	}

	f, err := os.Open(target)
	if err != nil {
		return nil, 0, nil, archiveerr.New(archiveerr.IO, "open archive", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, nil, archiveerr.New(archiveerr.IO, "stat archive", err)
	}
	return rangereader.NewLocalFile(f), uint64(info.Size()), f.Close, nil
}

func runCompress(cmd *cobra.Command, cfg *config.Config, input, output string, force, watch bool) error {
	cfgCompressor, err := compressor.ParseKind(cfg.CompressionCodec)
	if err != nil {
		return err
	}
	chunkerCfg, err := chunkerConfigFrom(cfg)
	if err != nil {
		return err
	}
	hashAlgo, err := hasher.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return err
	}

	opts := archive.BuildOptions{
		ChunkerConfig: chunkerCfg,
		HashAlgorithm: hashAlgo,
		HashLength:    cfg.HashLength,
		Compression: manifest.ChunkCompression{
			Codec: cfgCompressor,
			Level: int32(cfg.CompressionLevel),
		},
		Concurrency: cfg.Concurrency,
	}

	run := func() error {
		if !force {
			if _, err := os.Stat(output); err == nil {
				return archiveerr.New(archiveerr.Other, fmt.Sprintf("output %s already exists (use --force)", output), nil)
			}
		}
		in, err := os.Open(input)
		if err != nil {
			return archiveerr.New(archiveerr.IO, "open input", err)
		}
		defer in.Close()

		tmp := output + ".tmp"
		out, err := os.Create(tmp)
		if err != nil {
			return archiveerr.New(archiveerr.IO, "create output", err)
		}

		start := time.Now()
		m, err := archive.Build(in, out, opts)
		if err != nil {
			out.Close()
			os.Remove(tmp)
			return err
		}
		if err := out.Close(); err != nil {
			os.Remove(tmp)
			return archiveerr.New(archiveerr.IO, "close output", err)
		}
		if err := os.Rename(tmp, output); err != nil {
			os.Remove(tmp)
			return archiveerr.New(archiveerr.IO, "commit output", err)
		}

		written := int64(0)
		if info, err := os.Stat(output); err == nil {
			written = info.Size()
		}
		metrics.ObserveBuild(start, int64(m.SourceTotalSize), written, cfgCompressor.String())
		log.Printf("[Compress] wrote %s (%d chunks, %d bytes source)", output, len(m.ChunkDescriptors), m.SourceTotalSize)
		return nil
	}

	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(cmd.Context(), cfg.MetricsAddr, log.Default()); err != nil {
				log.Printf("[Metrics] server error: %v", err)
			}
		}()
	}

	if err := run(); err != nil {
		return err
	}
	if !watch {
		return nil
	}

	return watchAndRecompress(cmd.Context(), input, run)
}

// watchAndRecompress re-runs run whenever input is rewritten, modeled on
// the teacher's addWatchRecursive/WatchLoop fsnotify pattern but scoped to
// a single file rather than a directory tree.
func watchAndRecompress(ctx context.Context, input string, run func() error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return archiveerr.New(archiveerr.IO, "create fsnotify watcher", err)
	}
	defer watcher.Close()

	if err := watcher.Add(input); err != nil {
		return archiveerr.New(archiveerr.IO, "watch input", err)
	}
	log.Printf("[Watch] watching %s for changes (ctrl-c to stop)", input)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-sigCh:
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logDebug("[Watch] %s: %s", ev.Name, ev.Op)
			if err := run(); err != nil {
				log.Printf("[Watch] recompress failed: %v", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			log.Printf("[Watch] watcher error: %v", err)
		}
	}
}

func runClone(cmd *cobra.Command, cfg *config.Config, source, output string, seeds []string, force bool) error {
	ctx := cmd.Context()

	rr, size, closeFn, err := openRangeReader(ctx, source)
	if err != nil {
		return err
	}
	defer closeFn()

	arc, err := archive.Open(ctx, rr, size)
	if err != nil {
		return err
	}

	if !force {
		if _, err := os.Stat(output); err == nil {
			return archiveerr.New(archiveerr.Other, fmt.Sprintf("output %s already exists (use --force)", output), nil)
		}
	}
	outFile, err := os.Create(output)
	if err != nil {
		return archiveerr.New(archiveerr.IO, "create output", err)
	}
	defer outFile.Close()

	var seedReaders []io.Reader
	for _, s := range seeds {
		f, err := os.Open(s)
		if err != nil {
			return archiveerr.New(archiveerr.IO, "open seed", err)
		}
		defer f.Close()
		seedReaders = append(seedReaders, f)
	}

	var cache *chunkcache.Cache
	if cfg.CacheDir != "" {
		cache, err = chunkcache.Open(cfg.CacheDir)
		if err != nil {
			return err
		}
		defer cache.Close()
	}

	start := time.Now()
	stats, err := reconstruct.Run(ctx, arc, outFile, reconstruct.Options{
		Seeds:        seedReaders,
		VerifySource: true,
		Cache:        cache,
	})
	if err != nil {
		return err
	}
	metrics.ObserveReconstruct(start, stats.TotalChunks, stats.NetworkFetched)
	log.Printf("[Clone] reconstructed %s (%d bytes)", output, arc.Manifest.SourceTotalSize)
	return nil
}

func runInfo(cmd *cobra.Command, source string) error {
	ctx := cmd.Context()
	rr, size, closeFn, err := openRangeReader(ctx, source)
	if err != nil {
		return err
	}
	defer closeFn()

	arc, err := archive.Open(ctx, rr, size)
	if err != nil {
		return err
	}
	m := arc.Manifest

	p := m.ChunkerParams
	hashLength := 0
	if len(m.ChunkDescriptors) > 0 {
		hashLength = len(m.ChunkDescriptors[0].Checksum)
	}

	fmt.Printf("source_total_size: %d\n", m.SourceTotalSize)
	fmt.Printf("chunker: %s (filter_bits %d, min_chunk_size %d, max_chunk_size %d, window_size %d, chunk_size %d)\n",
		p.Algorithm, p.FilterBits, p.MinChunkSize, p.MaxChunkSize, p.WindowSize, p.ChunkSize)
	fmt.Printf("chunk_hash_algorithm: %s\n", m.ChunkHashAlgorithm)
	fmt.Printf("chunk_hash_length: %d\n", hashLength)
	fmt.Printf("compression: %s (level %d)\n", m.ChunkCompression.Codec, m.ChunkCompression.Level)
	fmt.Printf("unique_chunks: %d\n", len(m.ChunkDescriptors))
	fmt.Printf("rebuild_order_length: %d\n", len(m.RebuildOrder))
	fmt.Printf("application_version: %s\n", m.ApplicationVersion)

	fp, err := integrity.Build(m)
	if err != nil {
		logDebug("[Info] fingerprint unavailable: %v", err)
	} else {
		fmt.Printf("merkle_fingerprint: %x\n", fp.Root)
	}

	for i, d := range m.ChunkDescriptors {
		id, err := manifest.ChunkID(m.ChunkHashAlgorithm, d.Checksum)
		if err != nil {
			id = fmt.Sprintf("%x", d.Checksum)
		}
		fmt.Printf("  chunk[%d] %s source_size=%d archive_size=%d\n", i, id, d.SourceSize, d.ArchiveSize)
	}
	return nil
}

func runDiff(pathA, pathB string, cfg *config.Config) error {
	chunkerCfg, err := chunkerConfigFrom(cfg)
	if err != nil {
		return err
	}
	hashAlgo, err := hasher.ParseAlgorithm(cfg.HashAlgorithm)
	if err != nil {
		return err
	}

	a, err := os.ReadFile(pathA)
	if err != nil {
		return archiveerr.New(archiveerr.IO, "read path_a", err)
	}
	b, err := os.ReadFile(pathB)
	if err != nil {
		return archiveerr.New(archiveerr.IO, "read path_b", err)
	}

	report, err := diffinfo.Compute(a, b, chunkerCfg, hashAlgo, cfg.HashLength)
	if err != nil {
		return err
	}

	fmt.Printf("old_size: %d\n", report.OldSize)
	fmt.Printf("new_size: %d\n", report.NewSize)
	fmt.Printf("old_chunks: %d\n", report.OldChunks)
	fmt.Printf("new_chunks: %d\n", report.NewChunks)
	fmt.Printf("common_chunks: %d\n", report.CommonChunks)
	fmt.Printf("common_bytes: %d\n", report.CommonBytes)
	fmt.Printf("changed_bytes: %d\n", report.ChangedBytes)
	fmt.Printf("bsdiff_patch_size_estimate: %d\n", report.BsdiffPatchSize)
	return nil
}

func main() {
	var (
		// compress flags
		input            string
		output           string
		force            bool
		compressionCodec string
		compressionLevel int
		hashLength       int
		chunkerAlgorithm string
		avgChunkSize     int
		minChunkSize     int
		maxChunkSize     int
		windowSize       int
		watch            bool
		metricsAddr      string

		// clone flags
		seeds    []string
		cacheDir string
	)

	rootCmd := &cobra.Command{
		Use:   "bitaforge",
		Short: "bitaforge - content-defined-chunking archive engine",
		Long: `bitaforge chunks a source into content-defined blocks, deduplicates and
compresses them into a self-describing archive, and reconstructs a source
from that archive plus whatever local seed data is already on disk.`,
	}
	rootCmd.PersistentFlags().BoolVar(&debugEnabled, "debug", false, "Enable verbose debug logging")

	compressCmd := &cobra.Command{
		Use:   "compress",
		Short: "Chunk, deduplicate, and compress a source into an archive",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if cmd.Flags().Changed("compression") {
				cfg.CompressionCodec = compressionCodec
			}
			if cmd.Flags().Changed("compression-level") {
				cfg.CompressionLevel = compressionLevel
			}
			if cmd.Flags().Changed("hash-length") {
				cfg.HashLength = hashLength
			}
			if cmd.Flags().Changed("chunker") {
				cfg.ChunkerAlgorithm = chunkerAlgorithm
			}
			if cmd.Flags().Changed("avg-chunk-size") {
				cfg.AvgChunkSize = avgChunkSize
			}
			if cmd.Flags().Changed("min-chunk-size") {
				cfg.MinChunkSize = minChunkSize
			}
			if cmd.Flags().Changed("max-chunk-size") {
				cfg.MaxChunkSize = maxChunkSize
			}
			if cmd.Flags().Changed("window-size") {
				cfg.WindowSize = windowSize
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return archiveerr.New(archiveerr.Config, "invalid configuration", err)
			}
			if input == "" || output == "" {
				return archiveerr.New(archiveerr.Other, "--input and --output are required", nil)
			}
			return runCompress(cmd, cfg, input, output, force, watch)
		},
	}
	compressCmd.Flags().StringVar(&input, "input", "", "Path to the source file to compress")
	compressCmd.Flags().StringVar(&output, "output", "", "Path to write the archive to")
	compressCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing output")
	compressCmd.Flags().StringVar(&compressionCodec, "compression", "", "Compression codec (none, brotli, zstd, lz4, xz)")
	compressCmd.Flags().IntVar(&compressionLevel, "compression-level", 0, "Compression level, codec-specific")
	compressCmd.Flags().IntVar(&hashLength, "hash-length", 0, "Truncated chunk digest length, 4..64")
	compressCmd.Flags().StringVar(&chunkerAlgorithm, "chunker", "", "Chunker algorithm (rollsum, buzhash, fixed-size)")
	compressCmd.Flags().IntVar(&avgChunkSize, "avg-chunk-size", 0, "Target average chunk size in bytes")
	compressCmd.Flags().IntVar(&minChunkSize, "min-chunk-size", 0, "Minimum chunk size in bytes")
	compressCmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", 0, "Maximum chunk size in bytes")
	compressCmd.Flags().IntVar(&windowSize, "window-size", 0, "Rolling-hash window size in bytes")
	compressCmd.Flags().BoolVar(&watch, "watch", false, "Re-run compress whenever --input changes")
	compressCmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	cloneCmd := &cobra.Command{
		Use:   "clone URL_OR_PATH OUTPUT",
		Short: "Reconstruct a source from an archive plus local seeds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if cmd.Flags().Changed("cache-dir") {
				cfg.CacheDir = cacheDir
			}
			if err := cfg.Validate(); err != nil {
				return archiveerr.New(archiveerr.Config, "invalid configuration", err)
			}
			return runClone(cmd, cfg, args[0], args[1], seeds, force)
		},
	}
	cloneCmd.Flags().StringArrayVar(&seeds, "seed", nil, "Local file to scan for already-present chunks (repeatable)")
	cloneCmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing output")
	cloneCmd.Flags().StringVar(&cacheDir, "cache-dir", "", "Persistent chunk cache directory")

	infoCmd := &cobra.Command{
		Use:   "info URL_OR_PATH",
		Short: "Print a manifest summary and Merkle fingerprint for an archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(cmd, args[0])
		},
	}

	diffCmd := &cobra.Command{
		Use:   "diff PATH_A PATH_B",
		Short: "Report chunk-hash overlap and an estimated bsdiff patch size between two files (informational)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadFromEnv()
			if cmd.Flags().Changed("chunker") {
				cfg.ChunkerAlgorithm = chunkerAlgorithm
			}
			if cmd.Flags().Changed("avg-chunk-size") {
				cfg.AvgChunkSize = avgChunkSize
			}
			if cmd.Flags().Changed("min-chunk-size") {
				cfg.MinChunkSize = minChunkSize
			}
			if cmd.Flags().Changed("max-chunk-size") {
				cfg.MaxChunkSize = maxChunkSize
			}
			if cmd.Flags().Changed("window-size") {
				cfg.WindowSize = windowSize
			}
			if err := cfg.Validate(); err != nil {
				return archiveerr.New(archiveerr.Config, "invalid configuration", err)
			}
			return runDiff(args[0], args[1], cfg)
		},
	}
	diffCmd.Flags().StringVar(&chunkerAlgorithm, "chunker", "", "Chunker algorithm (rollsum, buzhash, fixed-size)")
	diffCmd.Flags().IntVar(&avgChunkSize, "avg-chunk-size", 0, "Target average chunk size in bytes")
	diffCmd.Flags().IntVar(&minChunkSize, "min-chunk-size", 0, "Minimum chunk size in bytes")
	diffCmd.Flags().IntVar(&maxChunkSize, "max-chunk-size", 0, "Maximum chunk size in bytes")
	diffCmd.Flags().IntVar(&windowSize, "window-size", 0, "Rolling-hash window size in bytes")

	rootCmd.AddCommand(compressCmd, cloneCmd, infoCmd, diffCmd)

	if err := rootCmd.Execute(); err != nil {
		if debugEnabled {
			log.Printf("[Error] %+v", err)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(archiveerr.ExitCode(err))
	}
}
