// Package location defines where raw position samples come from and how the
// path log is persisted.
package location

import (
	"context"
	"errors"
	"time"

	"trackmybus/internal/types"
)

// ErrUnavailable reports that a position source could not produce a sample:
// permission denied, hardware off, or no fix within the allowed time.
var ErrUnavailable = errors.New("location source unavailable")

// Sample is one raw position reading. Accuracy is the reported radius in
// metres, zero when unknown.
type Sample struct {
	Point     types.GeoPoint
	Timestamp time.Time
	Accuracy  float64
}

// TimedPoint converts the sample to the epoch-millisecond form stored in paths.
// A zero Timestamp gives 0, which the Publisher reads as "now".
func (s Sample) TimedPoint() types.TimedPoint {
	tp := types.TimedPoint{GeoPoint: s.Point}
	if !s.Timestamp.IsZero() {
		tp.Timestamp = s.Timestamp.UnixMilli()
	}
	return tp
}

// Fix is a single delivery from a Source: either a Sample or a terminal Err.
// A source closes its channel after delivering an error.
type Fix struct {
	Sample Sample
	Err    error
}

// Source produces a stream of position fixes until ctx is cancelled.
type Source interface {
	Watch(ctx context.Context) (<-chan Fix, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func(ctx context.Context) (<-chan Fix, error)

func (f SourceFunc) Watch(ctx context.Context) (<-chan Fix, error) { return f(ctx) }
