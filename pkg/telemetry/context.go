package telemetry

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/openfroyo/hostsync/pkg/engine"
)

// Telemetry bundles logging, tracing, metrics and progress events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a telemetry instance from configuration. Events are
// logged through the logger at debug level, failures at error level.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	return newTelemetry(cfg, logger)
}

// NewTelemetryWithLogger creates a telemetry instance around an existing logger.
func NewTelemetryWithLogger(cfg *Config, logger *Logger) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return newTelemetry(cfg, logger)
}

func newTelemetry(cfg *Config, logger *Logger) (*Telemetry, error) {
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion)
	if err != nil {
		return nil, err
	}

	events := NewEventPublisher(cfg.Events)
	events.Subscribe(LogSubscriber(logger.NewComponentLogger("events")), FilterByLevel(cfg.Events.MinLevel))

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: NewMetrics(cfg.Metrics),
		Events:  events,
		Config:  cfg,
	}, nil
}

// LogSubscriber logs every event it receives.
func LogSubscriber(logger *Logger) EventSubscriber {
	return func(event Event) {
		z := logger.Zerolog()
		e := z.Debug()
		switch event.Level {
		case EventLevelWarning:
			e = z.Info()
		case EventLevelError:
			e = z.Error()
		}
		e.Str("type", event.Type).
			Str("run_id", event.RunID).
			Str("subsystem", event.Subsystem).
			Msg(event.Message)
	}
}

// WithContext adds the telemetry instance and its logger to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown drains events, flushes spans and writes the metrics textfile.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
		t.Metrics.WriteTextfile(),
	)
}

// RunObserver instruments the execution of one plan.
type RunObserver struct {
	tel       *Telemetry
	runID     string
	direction string
	span      trace.Span
	timer     *Timer
}

// ObserveRun starts instrumenting an execution. The returned context carries
// the execution span.
func (t *Telemetry) ObserveRun(ctx context.Context, runID, direction string, summary engine.PlanSummary) (context.Context, *RunObserver) {
	ctx, span := t.Tracer.StartPhaseSpan(ctx, "execute")
	span.SetAttributes(AttrRunID.String(runID))

	_ = t.Events.PublishRunStarted(runID, direction, summary)

	return ctx, &RunObserver{
		tel:       t,
		runID:     runID,
		direction: direction,
		span:      span,
		timer:     NewTimer(),
	}
}

// Progress is an engine progress callback.
func (o *RunObserver) Progress(p engine.OperationProgress) {
	AddOperationEvent(o.span, p)
	_ = o.tel.Events.PublishProgress(o.runID, p)
}

// Finish records the report and ends the execution span.
func (o *RunObserver) Finish(report *engine.ExecutionReport, err error) time.Duration {
	duration := o.timer.Duration()
	if report != nil {
		o.span.SetAttributes(AttrRunStatus.String(string(report.Status())))
		o.tel.Metrics.RecordRun(o.direction, report, duration)
		_ = o.tel.Events.PublishRunCompleted(o.runID, o.direction, report)
	}
	if err != nil {
		o.tel.Metrics.RecordError(err)
	}
	EndSpan(o.span, err)
	return duration
}
