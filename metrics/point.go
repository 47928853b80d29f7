// Package metrics turns Vespa metrics documents into flat, dimensioned data
// points and groups them into size-bounded batches for publishing.
package metrics

// UnitNone is the unit attached to every point. The metrics document carries
// no unit information, so points are published without one.
const UnitNone = "None"

// Dimension is a single name/value label on a published point.
type Dimension struct {
	Name  string `json:"Name"`
	Value string `json:"Value"`
}

// Point is one flattened metric observation, shaped the way the publishing
// backends expect it.
type Point struct {
	MetricName string      `json:"MetricName"`
	Value      float64     `json:"Value"`
	Unit       string      `json:"Unit"`
	Dimensions []Dimension `json:"Dimensions"`
}
