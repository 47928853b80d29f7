// Package vespa provides the client and data model for the metrics/v2/values
// endpoint exposed by Vespa nodes.
package vespa

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Document is the top-level payload returned by the metrics/v2/values endpoint.
// A nil Nodes slice means the response carried no "nodes" key at all, which is
// different from an empty fleet ("nodes": []).
type Document struct {
	Nodes []NodeEntry `json:"nodes"`
}

// NodeEntry describes one node in the fleet, with its node-level metrics
// holder and the metrics of the services running on it.
type NodeEntry struct {
	Hostname string       `json:"hostname"`
	Role     string       `json:"role"`
	Node     *NodeMetrics `json:"node"`
	Services []Service    `json:"services"`
}

// NodeMetrics holds the node-level metrics of a single node. Self-hosted
// installations typically omit this holder entirely.
type NodeMetrics struct {
	Timestamp int64          `json:"timestamp"`
	Metrics   []MetricsEntry `json:"metrics"`
}

// Service holds the metrics reported by one service on a node.
type Service struct {
	Name      string         `json:"name"`
	Timestamp int64          `json:"timestamp"`
	Status    ServiceStatus  `json:"status"`
	Metrics   []MetricsEntry `json:"metrics"`
}

// ServiceStatus is the health of a service as reported by the node.
type ServiceStatus struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// MetricsEntry is one group of metric values sharing a dimension set.
type MetricsEntry struct {
	Values     MetricValues `json:"values"`
	Dimensions DimensionSet `json:"dimensions"`
}

// MetricValue is a single named metric reading.
type MetricValue struct {
	Name  string
	Value float64
}

// MetricValues holds the "values" object of a metrics entry. It preserves the
// key order of the JSON document, which a plain map would not.
type MetricValues []MetricValue

// UnmarshalJSON decodes a JSON object into an ordered list of metric values.
func (mv *MetricValues) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*mv = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("metric values must be a JSON object, got %v", tok)
	}

	values := MetricValues{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in metric values", keyTok)
		}

		var value float64
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("metric %q has a non-numeric value: %w", name, err)
		}

		values = append(values, MetricValue{Name: name, Value: value})
	}

	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*mv = values
	return nil
}

// MarshalJSON encodes the values back as a JSON object in their original order.
func (mv MetricValues) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, v := range mv {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(v.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(v.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Dimension is a single dimension name/value pair on a metrics entry.
type Dimension struct {
	Name  string
	Value string
}

// DimensionSet holds the "dimensions" object of a metrics entry in document
// order. Published points carry their dimensions in exactly this order.
type DimensionSet []Dimension

// UnmarshalJSON decodes a JSON object into an ordered list of dimensions.
func (ds *DimensionSet) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if tok == nil {
		*ds = nil
		return nil
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("dimensions must be a JSON object, got %v", tok)
	}

	dims := DimensionSet{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := keyTok.(string)
		if !ok {
			return fmt.Errorf("unexpected token %v in dimensions", keyTok)
		}

		var value string
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("dimension %q has a non-string value: %w", name, err)
		}

		dims = append(dims, Dimension{Name: name, Value: value})
	}

	// Consume the closing brace
	if _, err := dec.Token(); err != nil {
		return err
	}

	*ds = dims
	return nil
}

// MarshalJSON encodes the dimensions back as a JSON object in their original order.
func (ds DimensionSet) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, d := range ds {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(d.Name)
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(d.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
