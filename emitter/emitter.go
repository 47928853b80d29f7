// Package emitter drives one emit run end to end, fetching metrics from
// Vespa, flattening them and publishing them in chunks to a sink.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/vespa-engine/metrics-emitter/metrics"
	"github.com/vespa-engine/metrics-emitter/sink"
	"github.com/vespa-engine/metrics-emitter/vespa"
)

// Outcome classifies how an emit run ended.
type Outcome string

const (
	// OutcomeCompleted means every chunk was published.
	OutcomeCompleted Outcome = "completed"
	// OutcomeNoNodes means the response carried no nodes array.
	OutcomeNoNodes Outcome = "no-nodes"
	// OutcomeFetchTimeout means the metrics fetch timed out.
	OutcomeFetchTimeout Outcome = "fetch-timeout"
	// OutcomeFetchFailed means the metrics fetch failed for another reason.
	OutcomeFetchFailed Outcome = "fetch-failed"
	// OutcomeBadResponse means the response body was not valid metrics JSON.
	OutcomeBadResponse Outcome = "bad-response"
	// OutcomePublishFailed means a chunk could not be published.
	OutcomePublishFailed Outcome = "publish-failed"
	// OutcomeError covers failures outside the other classes.
	OutcomeError Outcome = "error"
)

// Summary describes a single emit run.
type Summary struct {
	RunID      string
	Started    time.Time
	Duration   time.Duration
	Points     int
	ChunksSent int
	Outcome    Outcome
	Detail     string
}

// MetricsFetcher retrieves the raw metrics document from Vespa.
type MetricsFetcher interface {
	FetchMetrics(ctx context.Context) (*vespa.Document, error)
}

// Runner executes emit runs against a fixed fetcher and sink.
type Runner struct {
	fetcher   MetricsFetcher
	sink      sink.Sink
	namespace string
	chunkSize int
}

// NewRunner creates a runner. A chunk size below one falls back to the
// default.
func NewRunner(fetcher MetricsFetcher, target sink.Sink, namespace string, chunkSize int) *Runner {
	if fetcher == nil {
		panic("fetcher cannot be nil")
	}
	if target == nil {
		panic("sink cannot be nil")
	}
	if chunkSize < 1 {
		log.Printf("[emitter] Invalid chunk size %d, using default %d", chunkSize, metrics.DefaultChunkSize)
		chunkSize = metrics.DefaultChunkSize
	}

	return &Runner{
		fetcher:   fetcher,
		sink:      target,
		namespace: namespace,
		chunkSize: chunkSize,
	}
}

// Run performs one emit run and reports what happened. It never returns an
// error and never panics, every failure ends up classified in the summary.
func (r *Runner) Run(ctx context.Context) (summary Summary) {
	summary.RunID = uuid.NewString()
	summary.Started = time.Now()
	summary.Outcome = OutcomeError

	defer func() {
		summary.Duration = time.Since(summary.Started)
		if recovered := recover(); recovered != nil {
			summary.Outcome = OutcomeError
			summary.Detail = fmt.Sprintf("panic: %v", recovered)
			log.Printf("[emitter] Run %s panicked: %v", summary.RunID, recovered)
		}
	}()

	log.Printf("[emitter] Starting emit run %s", summary.RunID)

	document, err := r.fetcher.FetchMetrics(ctx)
	if err != nil {
		summary.Outcome = classifyFetchError(err)
		summary.Detail = err.Error()
		log.Printf("[emitter] Run %s failed to fetch metrics: %v", summary.RunID, err)
		return summary
	}

	noNodes := document == nil || document.Nodes == nil

	points := metrics.Flatten(document)
	summary.Points = len(points)

	chunks := metrics.Chunk(points, r.chunkSize)
	if len(points) > 0 {
		log.Printf("[emitter] Emitting %d metrics in chunks of max %d", len(points), r.chunkSize)
	}
	for _, chunk := range chunks {
		log.Printf("[emitter] Emitting chunk with %d metrics", len(chunk))
		if err := r.sink.PublishBatch(ctx, chunk, r.namespace); err != nil {
			summary.Outcome = OutcomePublishFailed
			summary.Detail = err.Error()
			log.Printf("[emitter] Run %s failed to publish chunk: %v", summary.RunID, err)
			return summary
		}
		summary.ChunksSent++
	}

	if noNodes {
		summary.Outcome = OutcomeNoNodes
	} else {
		summary.Outcome = OutcomeCompleted
	}
	log.Printf("[emitter] Finished emitting %d metrics chunks", summary.ChunksSent)
	return summary
}

// classifyFetchError maps a fetch error onto the outcome taxonomy.
func classifyFetchError(err error) Outcome {
	var transportErr *vespa.TransportError
	switch {
	case errors.As(err, &transportErr):
		if transportErr.Timeout {
			return OutcomeFetchTimeout
		}
		return OutcomeFetchFailed
	case errors.Is(err, vespa.ErrMalformedResponse):
		return OutcomeBadResponse
	case errors.Is(err, context.DeadlineExceeded):
		return OutcomeFetchTimeout
	default:
		return OutcomeError
	}
}

var _ MetricsFetcher = (*vespa.Client)(nil)
