package telemetry

import (
	"time"
)

// Trace times one remote operation.
type Trace struct {
	op    string
	start time.Time
}

// Track starts timing op.
func Track(op string) *Trace {
	return &Trace{op: op, start: time.Now()}
}

// Finish records latency and the outcome derived from err.
func (t *Trace) Finish(err error) time.Duration {
	d := time.Since(t.start)
	RemoteLatency.WithLabelValues(t.op).Observe(d.Seconds())
	RemoteRequests.WithLabelValues(t.op, Outcome(err)).Inc()
	return d
}
