// Command censored fits survival models for censored data and predicts from
// the stored fits.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tidysurv/censored/cmd/censored/commands"
)

// Set with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	bootstrapLogger(os.Getenv("CENSORED_LOG_LEVEL"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := commands.Execute(ctx, version, commit, buildDate)
	if ctx.Err() != nil {
		log.Warn().Msg("censored interrupted, command abandoned")
		return 130
	}
	if err != nil {
		log.Error().Err(err).Msg("censored failed")
		return 1
	}
	return 0
}

// bootstrapLogger sets the global logger used until the config is loaded.
// Unknown or empty levels fall back to info.
func bootstrapLogger(level string) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).With().Str("tool", "censored").Logger()

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}
