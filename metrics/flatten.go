package metrics

import (
	"log"

	"github.com/vespa-engine/metrics-emitter/vespa"
)

// Flatten walks a metrics document and produces one point per metric value.
// Output order follows the document: for each node, the node-level metrics
// come first, then the metrics of each service in turn. Within an entry the
// value order and dimension order of the document are preserved.
//
// A document without a "nodes" key yields an empty result with a warning.
// Nodes without a node-level holder or without services are logged and
// skipped in part, never aborting the walk.
func Flatten(doc *vespa.Document) []Point {
	points := []Point{}

	if doc == nil || doc.Nodes == nil {
		log.Printf("[metrics] Warning: no 'nodes' in metrics json")
		return points
	}

	for _, node := range doc.Nodes {
		log.Printf("[metrics] Parsing metrics from node %s", node.Hostname)

		if node.Node == nil {
			log.Printf("[metrics] No node metrics for node %s (this is expected for self-hosted Vespa)", node.Hostname)
		} else {
			points = appendEntryPoints(points, node.Node.Metrics)
		}

		if node.Services == nil {
			log.Printf("[metrics] Warning: no services for node %s", node.Hostname)
			continue
		}
		for _, service := range node.Services {
			points = appendEntryPoints(points, service.Metrics)
		}
	}

	return points
}

// appendEntryPoints expands each metrics entry into one point per value. The
// dimension slice is built once per entry and shared by all of its points.
func appendEntryPoints(points []Point, entries []vespa.MetricsEntry) []Point {
	for _, entry := range entries {
		dimensions := make([]Dimension, 0, len(entry.Dimensions))
		for _, d := range entry.Dimensions {
			dimensions = append(dimensions, Dimension{Name: d.Name, Value: d.Value})
		}

		for _, value := range entry.Values {
			points = append(points, Point{
				MetricName: value.Name,
				Value:      value.Value,
				Unit:       UnitNone,
				Dimensions: dimensions,
			})
		}
	}
	return points
}
