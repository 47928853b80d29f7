// Package sink provides the publishing backends for flattened metric points.
package sink

import (
	"context"

	"github.com/vespa-engine/metrics-emitter/metrics"
)

// Sink publishes batches of metric points to a collection backend.
type Sink interface {
	// Name identifies the sink implementation in logs and the info endpoint.
	Name() string

	// PublishBatch sends one batch of points under the given namespace.
	// The caller treats any error as a failed batch; there are no retries.
	PublishBatch(ctx context.Context, batch []metrics.Point, namespace string) error

	// Close releases the resources held by the sink.
	Close() error
}
