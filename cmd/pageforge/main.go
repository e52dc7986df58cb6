// Package main is the PageForge service entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pageforge/pageforge/internal/batch"
	"github.com/pageforge/pageforge/internal/browser"
	"github.com/pageforge/pageforge/internal/config"
	"github.com/pageforge/pageforge/internal/fingerprint"
	"github.com/pageforge/pageforge/internal/handlers"
	"github.com/pageforge/pageforge/internal/metrics"
	"github.com/pageforge/pageforge/internal/middleware"
	"github.com/pageforge/pageforge/internal/renderer"
	"github.com/pageforge/pageforge/internal/stats"
	"github.com/pageforge/pageforge/pkg/version"
)

// serverTimeout is the HTTP-level safety net. It sits well above the
// largest render budget plus emergency extraction headroom, so the
// renderer's own deadline always fires first.
const serverTimeout = 180 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.Load()
	setupLogging(cfg)

	if err := cfg.Validate(); err != nil {
		log.Error().Err(err).Msg("Configuration invalid")
		return 1
	}

	printBanner()

	fp, err := fingerprint.NewManager(cfg.FingerprintPoolFile)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load fingerprint pools")
		return 1
	}
	defer func() {
		if err := fp.Close(); err != nil {
			log.Error().Err(err).Msg("Fingerprint manager close error")
		}
	}()

	synth := fingerprint.NewSynthesiser(fp.Pools)
	mgr := browser.NewManager(cfg)
	reg := stats.NewRegistry()
	rend := renderer.New(cfg, mgr, synth, reg)
	sched := batch.New(rend.Render)

	h := handlers.New(cfg, rend, sched, mgr, reg)

	chain := middleware.Chain(
		middleware.RequestID,
		middleware.Recovery,
		middleware.Logging(cfg),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.BodyLimit(cfg.BodyLimit),
		middleware.Timeout(serverTimeout),
		middleware.Auth(cfg),
	)

	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           chain(h.Router()),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      serverTimeout + 10*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	stopCh := make(chan struct{})

	var metricsServer *http.Server
	if cfg.MetricsPort > 0 {
		metrics.SetBuildInfo(version.Full(), version.GoVersion())
		go metrics.StartMemoryCollector(10*time.Second, stopCh)

		metricsMux := http.NewServeMux()
		metricsMux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.MetricsPort),
			Handler:      metricsMux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}

		go func() {
			log.Info().Int("port", cfg.MetricsPort).Msg("Metrics listener started")
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("Metrics listener failed")
			}
		}()
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("address", addr).
			Int("max_concurrency", cfg.MaxConcurrency).
			Bool("metrics_enabled", cfg.MetricsPort > 0).
			Msg("PageForge is ready to accept requests")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Error().Err(err).Msg("Server failed")
		return 1
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutting down...")
	}

	close(stopCh)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("Metrics listener shutdown error")
		}
	}

	if err := mgr.Shutdown(); err != nil {
		log.Error().Err(err).Msg("Browser shutdown error")
	}
	reg.Close()

	log.Info().Msg("Shutdown complete")
	return 0
}

// setupLogging configures zerolog from LOG_LEVEL and LOG_PRETTY.
func setupLogging(cfg *config.Config) {
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		})
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}

func printBanner() {
	banner := `
 ____                  _____
|  _ \ __ _  __ _  ___|  ___|__  _ __ __ _  ___
| |_) / _' |/ _' |/ _ \ |_ / _ \| '__/ _' |/ _ \
|  __/ (_| | (_| |  __/  _| (_) | | | (_| |  __/
|_|   \__,_|\__, |\___|_|  \___/|_|  \__, |\___|
            |___/                    |___/
`
	fmt.Println(banner)
	log.Info().
		Str("version", version.Full()).
		Str("go_version", version.GoVersion()).
		Msg("Starting PageForge")
}
