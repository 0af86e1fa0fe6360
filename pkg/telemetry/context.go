package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/tidysurv/censored/pkg/model"
)

// Telemetry provides a unified telemetry interface combining logging, tracing and metrics.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Config  *Config
}

// telemetryContextKey is the context key for telemetry instances.
type telemetryContextKey struct{}

// NewTelemetry creates a new telemetry instance from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}

	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}

	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Config:  cfg,
	}, nil
}

// WithContext adds the telemetry instance to the context.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	ctx = t.Logger.WithContext(ctx)
	return ctx
}

// FromTelemetryContext retrieves the telemetry instance from the context.
// If no telemetry is found, it returns nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown flushes spans and writes the metrics textfile if configured.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if err := t.Tracer.Shutdown(ctx); err != nil {
		return err
	}
	return t.Metrics.WriteTextfile(t.Config.Metrics.TextfilePath)
}

// InstrumentedContext carries the span, logger and timer of one operation.
type InstrumentedContext struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger
	Timer  *Timer

	tel    *Telemetry
	op     string
	labels []string
}

// StartOperation begins an instrumented operation with logging, tracing, and timing.
func StartOperation(ctx context.Context, operation string, attrs ...attribute.KeyValue) *InstrumentedContext {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return &InstrumentedContext{
			Ctx:    ctx,
			Logger: FromContext(ctx).WithField("operation", operation),
			Timer:  NewTimer(),
			op:     operation,
		}
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, operation, attrs...)

	logger := FromContext(ctx).WithField("operation", operation)
	if span.SpanContext().IsValid() {
		logger = logger.WithFields(map[string]interface{}{
			"trace_id": span.SpanContext().TraceID().String(),
			"span_id":  span.SpanContext().SpanID().String(),
		})
	}

	return &InstrumentedContext{
		Ctx:    logger.WithContext(spanCtx),
		Span:   span,
		Logger: logger,
		Timer:  NewTimer(),
		tel:    tel,
		op:     operation,
	}
}

// StartFit begins an instrumented fit.
func StartFit(ctx context.Context, family model.Family, engine model.EngineName) *InstrumentedContext {
	ic := StartOperation(ctx, "model.fit",
		AttrFamily.String(string(family)),
		AttrEngine.String(string(engine)),
	)
	ic.Logger = ic.Logger.WithEngine(family, engine)
	ic.Ctx = ic.Logger.WithContext(ic.Ctx)
	ic.labels = []string{string(family), string(engine)}
	return ic
}

// StartPredict begins an instrumented predict call.
func StartPredict(ctx context.Context, family model.Family, engine model.EngineName, typ model.PredictionType) *InstrumentedContext {
	ic := StartOperation(ctx, "model.predict",
		AttrFamily.String(string(family)),
		AttrEngine.String(string(engine)),
		AttrPredictionType.String(string(typ)),
	)
	ic.Logger = ic.Logger.WithEngine(family, engine).WithPredictionType(typ)
	ic.Ctx = ic.Logger.WithContext(ic.Ctx)
	ic.labels = []string{string(family), string(engine), string(typ)}
	return ic
}

// SetAttributes adds attributes to the operation span, if one is recording.
func (ic *InstrumentedContext) SetAttributes(attrs ...attribute.KeyValue) {
	if ic.Span != nil {
		ic.Span.SetAttributes(attrs...)
	}
}

// End finishes the instrumented operation, recording success or failure.
func (ic *InstrumentedContext) End(err error) {
	if ic.Span != nil {
		endSpan(ic.Span, err)
	}

	if ic.tel == nil {
		return
	}

	status := "success"
	if err != nil {
		status = "error"
		ic.tel.Metrics.RecordError(string(model.KindOf(err)))
	}

	switch {
	case ic.op == "model.fit" && len(ic.labels) == 2:
		ic.tel.Metrics.RecordFit(ic.labels[0], ic.labels[1], status, ic.Timer.Duration())
	case ic.op == "model.predict" && len(ic.labels) == 3:
		ic.tel.Metrics.RecordPrediction(ic.labels[0], ic.labels[1], ic.labels[2], status, ic.Timer.Duration())
	}
}

// RecordPathExpansion counts a multi-penalty prediction if telemetry is
// attached to the context.
func RecordPathExpansion(ctx context.Context, typ model.PredictionType, mode string) {
	if tel := FromTelemetryContext(ctx); tel != nil {
		tel.Metrics.RecordPathExpansion(string(typ), mode)
	}
}
