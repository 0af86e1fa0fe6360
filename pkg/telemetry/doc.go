// Package telemetry provides logging, tracing and metrics for fitting and
// prediction.
//
// The package combines structured logging (zerolog), distributed tracing
// (OpenTelemetry) and metrics (Prometheus) behind one Telemetry value that
// travels in the context.
//
// # Usage
//
// Initialize telemetry at startup:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("router")
//	logger = logger.WithEngine(model.FamilySurvivalReg, model.EngineSurvival)
//	logger.Info("prediction complete")
//
// # Tracing
//
// Fit and predict calls each open a span carrying the family, engine and
// prediction type. Failed calls tag the span with the error kind and code.
// Multi-penalty predictions add a penalty.batch event, or one
// penalty.single event per strength when the engine is called once per
// penalty. Supported exporters: otlp (gRPC), stdout (written to stderr),
// none.
//
// # Metrics
//
// Metrics live on a private registry and are no-ops when disabled:
//
//	censored_fits_total{family, engine, status}
//	censored_fit_duration_seconds{family, engine}
//	censored_predictions_total{family, engine, type, status}
//	censored_prediction_duration_seconds{family, engine, type}
//	censored_path_expansions_total{type, mode}
//	censored_errors_by_kind_total{kind}
//
// A command-line process can dump the registry to a textfile on shutdown
// by setting Metrics.TextfilePath.
//
// # Context Helpers
//
//	ic := telemetry.StartPredict(ctx, family, engine, typ)
//	res, err := predict(ic.Ctx)
//	ic.End(err)
package telemetry
