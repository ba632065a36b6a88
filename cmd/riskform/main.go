package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"credit-risk/internal/cfg"
	"credit-risk/internal/features"
	"credit-risk/internal/metrics"
	"credit-risk/internal/ml"
	"credit-risk/internal/storage"
	"credit-risk/internal/web"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	cfg.ConfigureLogging(c, os.Stderr)

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	opts := web.Options{
		Addr:         c.Addr(),
		Schema:       features.DefaultSchema(),
		JournalLimit: c.JournalLimit,
		Metrics:      mw,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}

	// A missing or broken artifact is not fatal: the form stays up in its
	// unavailable state so the operator can see why.
	if evaluator, err := loadEvaluator(c, mw); err != nil {
		opts.LoadErr = err
	} else {
		opts.Scorer = evaluator
	}

	store := initializeStorage(c)
	if store != nil {
		opts.Journal = store
	}

	srv := web.New(opts)
	serveErr, err := srv.Start()
	if err != nil {
		log.Fatal().Err(err).Msg("web server start failed")
	}

	clean := waitForShutdown(srv, serveErr)
	if store != nil {
		if err := store.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close prediction journal")
		}
	}
	if !clean {
		os.Exit(1)
	}
}

func loadEvaluator(c cfg.Settings, mw *metrics.MetricsWrapper) (*ml.Evaluator, error) {
	evaluator, err := ml.Load(c.ModelPath,
		ml.WithMetrics(mw),
		ml.WithTimeout(c.PythonTimeout),
		ml.WithPython(c.PythonPath),
	)
	if err != nil {
		log.Error().Err(err).Str("model_path", c.ModelPath).Msg("model unavailable, serving error page")
		return nil, err
	}
	return evaluator, nil
}

// initializeStorage opens the prediction journal if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if !c.JournalEnabled() {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without journal")
		return nil
	}
	log.Info().Str("data_path", c.DataPath).Msg("prediction journal enabled")
	return store
}

// waitForShutdown blocks until a signal arrives or the listener dies, then stops
// the server. It reports whether the process should exit cleanly.
func waitForShutdown(srv *web.Server, serveErr <-chan error) bool {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	clean := true
	select {
	case sig := <-sigChan:
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
	case err, ok := <-serveErr:
		if ok && err != nil {
			log.Error().Err(err).Msg("web server stopped unexpectedly")
			clean = false
		}
	}

	log.Info().Msg("shutting down gracefully...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Stop(ctx); err != nil {
		log.Warn().Err(err).Msg("shutdown timeout, forcing exit")
		return false
	}
	return clean
}
