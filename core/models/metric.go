package models

import "time"

// MetricEvent is one structured progress record parsed from the training
// process output. Immutable; fanned out to every sink in emission order.
type MetricEvent struct {
	Step      int64
	Fields    map[string]float64
	Timestamp time.Time
}
