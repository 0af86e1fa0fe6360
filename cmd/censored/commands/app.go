package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/tidysurv/censored/pkg/args"
	"github.com/tidysurv/censored/pkg/config"
	"github.com/tidysurv/censored/pkg/engines"
	"github.com/tidysurv/censored/pkg/fit"
	"github.com/tidysurv/censored/pkg/frame"
	"github.com/tidysurv/censored/pkg/penalty"
	"github.com/tidysurv/censored/pkg/predict"
	"github.com/tidysurv/censored/pkg/registry"
	"github.com/tidysurv/censored/pkg/stores"
	"github.com/tidysurv/censored/pkg/telemetry"
)

// app holds the components shared by every command.
type app struct {
	cfg    *config.Config
	tel    *telemetry.Telemetry
	logger *telemetry.Logger
	reg    *registry.Registry
	store  *stores.SQLiteStore
	router *predict.Router
	tr     *args.Translator
}

// newApp loads configuration, sets up telemetry and opens the store. The
// returned context carries the telemetry and logger.
func newApp(ctx context.Context) (*app, context.Context, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, ctx, err
	}
	cfg.Telemetry.ServiceVersion = buildVersion
	if verbose {
		cfg.Telemetry.Logging.Level = "debug"
	}
	if lvl, err := zerolog.ParseLevel(cfg.Telemetry.Logging.Level); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	tel, err := telemetry.NewTelemetry(&cfg.Telemetry)
	if err != nil {
		return nil, ctx, fmt.Errorf("failed to set up telemetry: %w", err)
	}
	ctx = tel.WithContext(ctx)
	ctx = tel.Logger.WithContext(ctx)

	reg, err := engines.Default()
	if err != nil {
		shutdownTelemetry(tel, tel.Logger)
		return nil, ctx, err
	}

	store, err := openStore(ctx, cfg.Store.Path, reg)
	if err != nil {
		shutdownTelemetry(tel, tel.Logger)
		return nil, ctx, err
	}

	a := &app{
		cfg:    cfg,
		tel:    tel,
		logger: tel.Logger.NewComponentLogger("cli"),
		reg:    reg,
		store:  store,
		router: predict.NewRouter(reg, penalty.NewResolver(cfg.Predict.Workers)),
		tr:     args.NewTranslator(args.NewEvaluator(cfg.Args.EvalTimeout), tel.Logger.NewComponentLogger("args")),
	}
	return a, ctx, nil
}

func openStore(ctx context.Context, path string, reg *registry.Registry) (*stores.SQLiteStore, error) {
	store, err := stores.NewSQLiteStore(stores.Config{Path: path, Registry: reg})
	if err != nil {
		return nil, fmt.Errorf("failed to create store: %w", err)
	}
	if err := store.Init(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return store, nil
}

func (a *app) fitter(catchErrors bool) *fit.Fitter {
	return fit.NewFitter(a.reg, a.tr, fit.Options{CatchErrors: catchErrors})
}

// close releases the store and flushes telemetry.
func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.WithError(err).Warn("Failed to close store")
	}
	shutdownTelemetry(a.tel, a.logger)
}

func shutdownTelemetry(tel *telemetry.Telemetry, logger *telemetry.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := tel.Shutdown(ctx); err != nil {
		logger.WithError(err).Warn("Failed to shut down telemetry")
	}
}

func readFrame(path string) (*frame.Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open data file: %w", err)
	}
	defer f.Close()

	fr, err := frame.ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return fr, nil
}
