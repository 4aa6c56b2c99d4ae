package otel

import (
	"context"
	"strconv"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"storyhub/backend/internal/telemetry"
)

// recordSink is the subset of otellog.Logger the adapter needs. Tests supply a capture.
type recordSink interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewEventEmitter returns an EventEmitter that sends events as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider *sdklog.LoggerProvider) telemetry.EventEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{sink: loggerSink{provider.Logger("storyhub.telemetry")}}
}

// NewEventEmitterWithSink returns an emitter over an explicit record sink.
func NewEventEmitterWithSink(sink recordSink) telemetry.EventEmitter {
	return &otelEmitter{sink: sink}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *telemetry.Event) error { return nil }

type loggerSink struct {
	logger otellog.Logger
}

func (s loggerSink) Emit(ctx context.Context, rec otellog.Record) {
	s.logger.Emit(ctx, rec)
}

type otelEmitter struct {
	sink recordSink
}

// Emit converts the telemetry event to an OTel log record and emits it. Best-effort.
func (e *otelEmitter) Emit(ctx context.Context, event *telemetry.Event) error {
	if event == nil {
		return nil
	}
	rec := otellog.Record{}
	if !event.CreatedAt.IsZero() {
		rec.SetTimestamp(event.CreatedAt)
	}
	rec.SetBody(otellog.StringValue(event.Type))
	if event.UserID != "" {
		rec.AddAttributes(otellog.String("user_id", event.UserID))
	}
	if event.SessionID != "" {
		rec.AddAttributes(otellog.String("session_id", event.SessionID))
	}
	if event.Outcome != "" {
		rec.AddAttributes(otellog.String("outcome", event.Outcome))
	}
	if event.IP != "" {
		rec.AddAttributes(otellog.String("ip", event.IP))
	}
	if event.UserAgent != "" {
		rec.AddAttributes(otellog.String("user_agent", event.UserAgent))
	}
	if event.Count > 0 {
		rec.AddAttributes(otellog.String("count", strconv.FormatInt(event.Count, 10)))
	}
	if event.Source != "" {
		rec.AddAttributes(otellog.String("source", event.Source))
	}
	if rec.Timestamp().IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	e.sink.Emit(ctx, rec)
	return nil
}
