// Package config loads application configuration and parses CUE model
// specification files.
//
// # Application Configuration
//
// Load layers built-in defaults, an optional YAML file and CENSORED_*
// environment overrides, then validates the result:
//
//	cfg, err := config.Load("censored.yaml")
//
// Recognised environment variables:
//
//	CENSORED_CONFIG            path of the YAML file
//	CENSORED_LOG_LEVEL         trace, debug, info, warn, error, fatal
//	CENSORED_LOG_FORMAT        console, json
//	CENSORED_STORE_PATH        SQLite database for fitted models
//	CENSORED_PREDICT_WORKERS   concurrent single-strength predictions
//	CENSORED_EVAL_TIMEOUT      deferred argument timeout, e.g. 2s
//	CENSORED_TRACING_EXPORTER  otlp, stdout, none
//	CENSORED_TRACING_ENDPOINT  OTLP collector address
//	CENSORED_METRICS_TEXTFILE  Prometheus textfile written on exit
//
// # Model Specification Files
//
// A spec file holds one `model` value checked against the built-in
// #ModelSpec schema:
//
//	model: {
//	    family:  "proportional_hazards"
//	    engine:  "glmnet"
//	    formula: "Surv(time, status) ~ ."
//	    args: {
//	        penalty: {expr: "1 / n_obs"}
//	        mixture: 1
//	    }
//	    engine_args: nlambda: 50
//	}
//
// Arguments written as {expr: "..."} are deferred and evaluated at fit
// time against the training data. All problems are reported together as a
// SpecFileError with file positions, wrapped in an invalid_argument error.
package config
