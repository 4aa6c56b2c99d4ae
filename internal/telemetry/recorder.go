package telemetry

import (
	"context"
	"sync/atomic"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Recorder aggregates session lifecycle counters over OTel metrics. Events are
// fed through a channel from a single consumer goroutine, so callers never
// contend on shared counter state. Record is non-blocking: if the buffer is
// full the event is dropped and a drop counter is bumped on the next flush.
type Recorder struct {
	ch      chan *Event
	done    chan struct{}
	log     *logrus.Logger
	created metric.Int64Counter
	rotated metric.Int64Counter
	invalid metric.Int64Counter
	dropped atomic.Int64
}

// NewRecorder builds a Recorder on the given meter. Call Run in a goroutine
// and Close during shutdown.
func NewRecorder(meter metric.Meter, log *logrus.Logger) (*Recorder, error) {
	if log == nil {
		log = logrus.StandardLogger()
	}
	created, err := meter.Int64Counter("auth.sessions.created",
		metric.WithDescription("Sessions created by login and refresh"))
	if err != nil {
		return nil, err
	}
	rotated, err := meter.Int64Counter("auth.sessions.rotations",
		metric.WithDescription("Refresh rotation attempts by outcome"))
	if err != nil {
		return nil, err
	}
	invalid, err := meter.Int64Counter("auth.sessions.invalidated",
		metric.WithDescription("Sessions removed by logout, password change, and reaping"))
	if err != nil {
		return nil, err
	}
	return &Recorder{
		ch:      make(chan *Event, 256),
		done:    make(chan struct{}),
		log:     log,
		created: created,
		rotated: rotated,
		invalid: invalid,
	}, nil
}

// Record queues the event for aggregation. Never blocks; events are dropped
// when the buffer is full.
func (r *Recorder) Record(event *Event) {
	if r == nil || event == nil {
		return
	}
	select {
	case r.ch <- event:
	default:
		r.dropped.Add(1)
	}
}

// Emit implements EventEmitter so the Recorder can sit in a MultiEmitter.
func (r *Recorder) Emit(ctx context.Context, event *Event) error {
	r.Record(event)
	return nil
}

// Run consumes queued events until Close is called. Call from a dedicated goroutine.
func (r *Recorder) Run() {
	for {
		select {
		case event := <-r.ch:
			r.apply(event)
		case <-r.done:
			// Drain whatever is still buffered before returning.
			for {
				select {
				case event := <-r.ch:
					r.apply(event)
				default:
					if n := r.dropped.Load(); n > 0 {
						r.log.WithField("dropped", n).Warn("telemetry: recorder dropped events")
					}
					return
				}
			}
		}
	}
}

// Close stops Run. Safe to call once.
func (r *Recorder) Close() {
	close(r.done)
}

func (r *Recorder) apply(event *Event) {
	ctx := context.Background()
	switch event.Type {
	case EventSessionCreated:
		r.created.Add(ctx, 1)
	case EventSessionRotated, EventRefreshDenied:
		r.rotated.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", event.Outcome)))
	case EventSessionInvalidated, EventSessionReaped:
		n := event.Count
		if n <= 0 {
			n = 1
		}
		r.invalid.Add(ctx, n, metric.WithAttributes(attribute.String("reason", event.Source)))
	}
}
