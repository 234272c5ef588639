// Package metrics instruments compress/clone operations with a dedicated
// Prometheus registry, served over /metrics when --metrics-addr is set.
package metrics

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "bitaforge"

var (
	// Registry is a dedicated Prometheus registry for all bitaforge metrics.
	Registry = prometheus.NewRegistry()

	// ChunkTotal counts chunks produced by the archive builder, by outcome.
	ChunkTotal = promauto.With(Registry).NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_total",
			Help:      "Total chunks produced by the archive builder",
		},
		[]string{"outcome"}, // new | dup
	)

	// ChunkDedupRatio reports the instant dedup ratio of the running build.
	ChunkDedupRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_dedup_ratio",
			Help:      "Fraction of chunks seen so far that were duplicates",
		},
	)

	// BytesWritten tracks payload bytes actually written to an archive.
	BytesWritten = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_written_total",
			Help:      "Bytes written to the archive payload region",
		},
	)

	// BytesLogical tracks the logical (pre-dedup, pre-compression) source
	// bytes a build has consumed.
	BytesLogical = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_logical_total",
			Help:      "Logical source bytes consumed by the archive builder",
		},
	)

	// CompressionRatio reports archive_size/source_size per codec.
	CompressionRatio = promauto.With(Registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "compression_ratio",
			Help:      "Current archive_size / source_size ratio by codec",
		},
		[]string{"codec"},
	)

	// BuildDuration measures archive-builder wall time.
	BuildDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_ms",
			Help:      "Duration of archive build operations in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	// RangeFetchTotal counts range-read requests issued by the archive reader.
	RangeFetchTotal = promauto.With(Registry).NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_fetch_total",
			Help:      "Total ReadAt calls issued by the archive reader",
		},
	)

	// RangeFetchCoalescedChunks counts how many chunk descriptors were
	// served by each coalesced request, to gauge coalescing effectiveness.
	RangeFetchCoalescedChunks = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "range_fetch_coalesced_chunks",
			Help:      "Number of chunk descriptors served by a single range fetch",
			Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
		},
	)

	// ReconstructDuration measures unpack wall time.
	ReconstructDuration = promauto.With(Registry).NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "reconstruct_duration_ms",
			Help:      "Duration of reconstruct (unpack) operations in milliseconds",
			Buckets:   []float64{10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		},
	)

	// SeedHitRatio reports the fraction of a reconstruction's chunks found
	// in seeds (or the chunk cache) rather than fetched over the network.
	SeedHitRatio = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "seed_hit_ratio",
			Help:      "Fraction of chunks resolved from seeds/cache during the last reconstruct",
		},
	)

	// Up is a liveness gauge.
	Up = promauto.With(Registry).NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "up",
			Help:      "1 if the process is running and healthy",
		},
	)
)

var (
	chunkTotalCount atomic.Int64
	chunkDupCount   atomic.Int64
)

func init() {
	Registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	Registry.MustRegister(prometheus.NewGoCollector())
	Up.Set(1)
}

// ObserveChunk records a chunk outcome ("new" or "dup") and updates the
// running dedup ratio.
func ObserveChunk(outcome string) {
	if outcome != "dup" {
		outcome = "new"
	}
	count := chunkTotalCount.Add(1)
	dups := chunkDupCount.Load()
	if outcome == "dup" {
		dups = chunkDupCount.Add(1)
	}
	ChunkDedupRatio.Set(float64(dups) / float64(count))
	ChunkTotal.WithLabelValues(outcome).Inc()
}

// ObserveBuild records archive-builder throughput and duration.
func ObserveBuild(start time.Time, logicalBytes, writtenBytes int64, codec string) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	BuildDuration.Observe(elapsed)
	BytesLogical.Add(float64(logicalBytes))
	BytesWritten.Add(float64(writtenBytes))
	if logicalBytes > 0 {
		CompressionRatio.WithLabelValues(codec).Set(float64(writtenBytes) / float64(logicalBytes))
	}
}

// ObserveRangeFetch records one coalesced range request covering
// descriptorCount chunk descriptors.
func ObserveRangeFetch(descriptorCount int) {
	RangeFetchTotal.Inc()
	RangeFetchCoalescedChunks.Observe(float64(descriptorCount))
}

// ObserveReconstruct records unpack duration and the fraction of chunks
// resolved from seeds/cache rather than the network.
func ObserveReconstruct(start time.Time, totalChunks, networkFetched int) {
	elapsed := float64(time.Since(start)) / float64(time.Millisecond)
	ReconstructDuration.Observe(elapsed)
	if totalChunks > 0 {
		hits := totalChunks - networkFetched
		SeedHitRatio.Set(float64(hits) / float64(totalChunks))
	}
}

// SetUp toggles the liveness gauge.
func SetUp(healthy bool) {
	if healthy {
		Up.Set(1)
		return
	}
	Up.Set(0)
}

// Serve starts the /metrics HTTP endpoint on addr, shutting down cleanly
// when ctx is canceled.
func Serve(ctx context.Context, addr string, logger *log.Logger) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = log.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(Registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	srv := &http.Server{Addr: addr, Handler: mux}

	idleClosed := make(chan struct{})
	go func() {
		defer close(idleClosed)
		<-ctx.Done()
		_ = srv.Shutdown(context.Background())
	}()

	logger.Printf("[metrics] Prometheus endpoint listening on %s", addr)
	err := srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		<-idleClosed
		return nil
	}

	return err
}
