package emitter

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/vespa-engine/metrics-emitter/metrics"
	"github.com/vespa-engine/metrics-emitter/vespa"
)

// mockFetcher returns a fixed document or error.
type mockFetcher struct {
	doc       *vespa.Document
	failErr   error
	fetchFunc func(ctx context.Context) (*vespa.Document, error)
}

func (m *mockFetcher) FetchMetrics(ctx context.Context) (*vespa.Document, error) {
	if m.fetchFunc != nil {
		return m.fetchFunc(ctx)
	}
	if m.failErr != nil {
		return nil, m.failErr
	}
	return m.doc, nil
}

// mockSink records published batches. It fails once len(batches) reaches
// failAfter when failErr is set, and panics on every call when panicOn is set.
type mockSink struct {
	batches    [][]metrics.Point
	namespaces []string
	failAfter  int
	failErr    error
	panicOn    bool
}

func (m *mockSink) Name() string {
	return "mock"
}

func (m *mockSink) PublishBatch(ctx context.Context, batch []metrics.Point, namespace string) error {
	if m.panicOn {
		panic("sink exploded")
	}
	if m.failErr != nil && len(m.batches) >= m.failAfter {
		return m.failErr
	}
	m.batches = append(m.batches, batch)
	m.namespaces = append(m.namespaces, namespace)
	return nil
}

func (m *mockSink) Close() error {
	return nil
}

// testDocument yields seven points: three from the node holder and four from
// the distributor service.
func testDocument() *vespa.Document {
	return &vespa.Document{
		Nodes: []vespa.NodeEntry{
			{
				Hostname: "host1.example.com",
				Node: &vespa.NodeMetrics{
					Metrics: []vespa.MetricsEntry{
						{
							Values: vespa.MetricValues{
								{Name: "cpu.util", Value: 11.1},
								{Name: "cpu.sys.util", Value: 0.9},
								{Name: "mem.util", Value: 62},
							},
							Dimensions: vespa.DimensionSet{
								{Name: "host", Value: "host1.example.com"},
							},
						},
					},
				},
				Services: []vespa.Service{
					{
						Name: "vespa.distributor",
						Metrics: []vespa.MetricsEntry{
							{
								Values: vespa.MetricValues{
									{Name: "net.in.bytes", Value: 123},
									{Name: "net.out.bytes", Value: 321},
									{Name: "queue.size", Value: 2},
									{Name: "doc.count", Value: 10000},
								},
								Dimensions: vespa.DimensionSet{
									{Name: "host", Value: "host1.example.com"},
									{Name: "serviceId", Value: "distributor"},
								},
							},
						},
					},
				},
			},
		},
	}
}

func TestRunCompleted(t *testing.T) {
	fetcher := &mockFetcher{doc: testDocument()}
	sink := &mockSink{}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	summary := runner.Run(context.Background())

	if summary.Outcome != OutcomeCompleted {
		t.Fatalf("Expected outcome completed, got %s (%s)", summary.Outcome, summary.Detail)
	}
	if summary.RunID == "" {
		t.Error("Expected a run ID")
	}
	if summary.Points != 7 {
		t.Errorf("Expected 7 points, got %d", summary.Points)
	}
	if summary.ChunksSent != 3 {
		t.Errorf("Expected 3 chunks sent, got %d", summary.ChunksSent)
	}

	if len(sink.batches) != 3 {
		t.Fatalf("Expected 3 published batches, got %d", len(sink.batches))
	}
	sizes := []int{len(sink.batches[0]), len(sink.batches[1]), len(sink.batches[2])}
	if sizes[0] != 3 || sizes[1] != 3 || sizes[2] != 1 {
		t.Errorf("Unexpected batch sizes: %v", sizes)
	}
	for _, namespace := range sink.namespaces {
		if namespace != "vespa-metrics" {
			t.Errorf("Expected namespace vespa-metrics, got %q", namespace)
		}
	}
	if sink.batches[0][0].MetricName != "cpu.util" {
		t.Errorf("Expected first point cpu.util, got %q", sink.batches[0][0].MetricName)
	}
}

// TestRunNoNodes covers a response without a nodes array. Nothing is
// published and the run is classified as no-nodes rather than a failure.
func TestRunNoNodes(t *testing.T) {
	fetcher := &mockFetcher{doc: &vespa.Document{}}
	sink := &mockSink{}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	summary := runner.Run(context.Background())

	if summary.Outcome != OutcomeNoNodes {
		t.Errorf("Expected outcome no-nodes, got %s", summary.Outcome)
	}
	if summary.Points != 0 || summary.ChunksSent != 0 {
		t.Errorf("Expected empty run, got %d points and %d chunks", summary.Points, summary.ChunksSent)
	}
	if len(sink.batches) != 0 {
		t.Errorf("Expected no published batches, got %d", len(sink.batches))
	}
}

// TestRunEmptyNodes covers an explicitly empty nodes array, which is a valid
// response from a cluster with no members.
func TestRunEmptyNodes(t *testing.T) {
	fetcher := &mockFetcher{doc: &vespa.Document{Nodes: []vespa.NodeEntry{}}}
	sink := &mockSink{}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	summary := runner.Run(context.Background())

	if summary.Outcome != OutcomeCompleted {
		t.Errorf("Expected outcome completed, got %s", summary.Outcome)
	}
	if summary.ChunksSent != 0 {
		t.Errorf("Expected 0 chunks sent, got %d", summary.ChunksSent)
	}
}

func TestRunFetchOutcomes(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Outcome
	}{
		{
			name:     "timeout",
			err:      &vespa.TransportError{URL: "https://vespa:4443/metrics/v2/values", Timeout: true, Err: context.DeadlineExceeded},
			expected: OutcomeFetchTimeout,
		},
		{
			name:     "status code",
			err:      &vespa.TransportError{URL: "https://vespa:4443/metrics/v2/values", StatusCode: 503},
			expected: OutcomeFetchFailed,
		},
		{
			name:     "connection refused",
			err:      &vespa.TransportError{URL: "https://vespa:4443/metrics/v2/values", Err: errors.New("connection refused")},
			expected: OutcomeFetchFailed,
		},
		{
			name:     "malformed body",
			err:      fmt.Errorf("%w: unexpected end of JSON input", vespa.ErrMalformedResponse),
			expected: OutcomeBadResponse,
		},
		{
			name:     "bare deadline",
			err:      context.DeadlineExceeded,
			expected: OutcomeFetchTimeout,
		},
		{
			name:     "unclassified",
			err:      errors.New("boom"),
			expected: OutcomeError,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			fetcher := &mockFetcher{failErr: test.err}
			sink := &mockSink{}
			runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

			summary := runner.Run(context.Background())

			if summary.Outcome != test.expected {
				t.Errorf("Expected outcome %s, got %s", test.expected, summary.Outcome)
			}
			if summary.Detail == "" {
				t.Error("Expected error detail to be recorded")
			}
			if len(sink.batches) != 0 {
				t.Errorf("Expected no published batches, got %d", len(sink.batches))
			}
		})
	}
}

// TestRunPublishFailed checks that a mid-run publish failure stops the run
// and that the chunk counter only covers the published chunks.
func TestRunPublishFailed(t *testing.T) {
	fetcher := &mockFetcher{doc: testDocument()}
	sink := &mockSink{failAfter: 1, failErr: errors.New("throttled")}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	summary := runner.Run(context.Background())

	if summary.Outcome != OutcomePublishFailed {
		t.Fatalf("Expected outcome publish-failed, got %s", summary.Outcome)
	}
	if summary.ChunksSent != 1 {
		t.Errorf("Expected 1 chunk sent before the failure, got %d", summary.ChunksSent)
	}
	if !strings.Contains(summary.Detail, "throttled") {
		t.Errorf("Expected detail to mention the publish error, got %q", summary.Detail)
	}
}

// TestRunCancelledContext checks that cancellation during fetch is contained
// like any other transport failure.
func TestRunCancelledContext(t *testing.T) {
	fetcher := &mockFetcher{
		fetchFunc: func(ctx context.Context) (*vespa.Document, error) {
			return nil, &vespa.TransportError{URL: "https://vespa:4443/metrics/v2/values", Err: ctx.Err()}
		},
	}
	sink := &mockSink{}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary := runner.Run(ctx)

	if summary.Outcome == OutcomeCompleted {
		t.Fatalf("Expected a failed outcome, got %s", summary.Outcome)
	}
	if len(sink.batches) != 0 {
		t.Errorf("Expected no published batches, got %d", len(sink.batches))
	}
}

// TestRunSinkPanic makes sure a panicking sink cannot crash the caller.
func TestRunSinkPanic(t *testing.T) {
	fetcher := &mockFetcher{doc: testDocument()}
	sink := &mockSink{panicOn: true}
	runner := NewRunner(fetcher, sink, "vespa-metrics", 3)

	summary := runner.Run(context.Background())

	if summary.Outcome != OutcomeError {
		t.Errorf("Expected outcome error, got %s", summary.Outcome)
	}
	if !strings.Contains(summary.Detail, "panic") {
		t.Errorf("Expected detail to mention the panic, got %q", summary.Detail)
	}
}

func TestNewRunnerChunkSizeFallback(t *testing.T) {
	runner := NewRunner(&mockFetcher{}, &mockSink{}, "vespa-metrics", 0)
	if runner.chunkSize != metrics.DefaultChunkSize {
		t.Errorf("Expected default chunk size %d, got %d", metrics.DefaultChunkSize, runner.chunkSize)
	}
}

func TestNewRunnerNilDependencies(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil fetcher")
		}
	}()
	NewRunner(nil, &mockSink{}, "vespa-metrics", 3)
}

func TestNewRunnerNilSink(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Expected panic for nil sink")
		}
	}()
	NewRunner(&mockFetcher{}, nil, "vespa-metrics", 3)
}

// mockRecorder captures recorded summaries.
type mockRecorder struct {
	summaries []Summary
	failErr   error
}

func (m *mockRecorder) RecordRun(ctx context.Context, summary Summary) error {
	if m.failErr != nil {
		return m.failErr
	}
	m.summaries = append(m.summaries, summary)
	return nil
}

func TestEmitJobRecordsSummary(t *testing.T) {
	runner := NewRunner(&mockFetcher{doc: testDocument()}, &mockSink{}, "vespa-metrics", 3)
	recorder := &mockRecorder{}
	job := NewEmitJob(runner, recorder)

	if job.Name() != "emit-metrics" {
		t.Errorf("Unexpected job name %q", job.Name())
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if len(recorder.summaries) != 1 {
		t.Fatalf("Expected 1 recorded summary, got %d", len(recorder.summaries))
	}
	if recorder.summaries[0].Outcome != OutcomeCompleted {
		t.Errorf("Expected recorded outcome completed, got %s", recorder.summaries[0].Outcome)
	}
}

// TestEmitJobNeverFails checks that neither run failures nor recorder
// failures surface as job errors.
func TestEmitJobNeverFails(t *testing.T) {
	runner := NewRunner(&mockFetcher{failErr: errors.New("boom")}, &mockSink{}, "vespa-metrics", 3)
	job := NewEmitJob(runner, &mockRecorder{failErr: errors.New("disk full")})

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}

func TestEmitJobNilRecorder(t *testing.T) {
	runner := NewRunner(&mockFetcher{doc: testDocument()}, &mockSink{}, "vespa-metrics", 3)
	job := NewEmitJob(runner, nil)

	if err := job.Run(context.Background()); err != nil {
		t.Errorf("Expected nil error, got %v", err)
	}
}
