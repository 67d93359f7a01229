// Package main is the entry point for the home device controller server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/home-device-controller/backend/internal/api"
	"github.com/home-device-controller/backend/internal/config"
	"github.com/home-device-controller/backend/internal/controller"
	"github.com/home-device-controller/backend/internal/events"
	"github.com/home-device-controller/backend/internal/homeapi"
	"github.com/home-device-controller/backend/internal/logging"
	"github.com/home-device-controller/backend/internal/mqtt"
	"github.com/home-device-controller/backend/internal/storage"
	"github.com/home-device-controller/backend/internal/websocket"
)

// version is set at build time via -ldflags "-X main.version=x.y.z".
var version = "dev"

func main() {
	configPath := flag.String("config", "", "Path to a YAML config file")
	healthCheck := flag.Bool("health-check", false, "Run health check and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	// Health check mode for Docker HEALTHCHECK
	if *healthCheck {
		if err := runHealthCheck(cfg.ListenAddr); err != nil {
			fmt.Fprintf(os.Stderr, "health check failed: %v\n", err)
			os.Exit(1)
		}
		os.Exit(0)
	}

	if envVer := os.Getenv("VERSION"); envVer != "" {
		version = envVer
	}

	log, err := logging.New(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuring logging: %v\n", err)
		os.Exit(1)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal().Err(err).Msg("server failed")
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().Str("version", version).Msg("starting home device controller")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.Open(ctx, filepath.Join(cfg.DataDir, "home-controller.db"), log)
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer db.Close()

	hub := websocket.NewHub(log)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	publishers := events.NewFanout(hub)
	if cfg.MQTT.Enabled() {
		mirror, err := mqtt.New(mqtt.Config{
			BrokerURL:   cfg.MQTT.BrokerURL,
			ClientID:    cfg.MQTT.ClientID,
			TopicPrefix: cfg.MQTT.TopicPrefix,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("mqtt mirror disabled")
		} else {
			defer mirror.Close()
			publishers.Add(mirror)
		}
	}

	creds := homeapi.NewCredentialStore()
	if cfg.API.Token == "" {
		log.Warn().Msg("no api token configured, requests are sent without authorization")
	}
	creds.Load(homeapi.Credentials{Token: cfg.API.Token, UserID: cfg.API.UserID})
	client := homeapi.NewClient(homeapi.Config{BaseURL: cfg.API.BaseURL, Timeout: cfg.API.Timeout}, creds)

	settingsRepo := storage.NewSettingsRepository(db)
	commandRepo := storage.NewCommandLogRepository(db)
	transcriptRepo := storage.NewTranscriptRepository(db)

	defaults := controller.Tunables{PollInterval: cfg.Poll.Interval, BulkConcurrency: cfg.Bulk.Concurrency}
	tunables, err := controller.LoadTunables(ctx, settingsRepo, defaults)
	if err != nil {
		log.Warn().Err(err).Msg("loading stored settings, using configured values")
		tunables = defaults
	}

	ctrl := controller.New(controller.Config{
		FallbackName:    cfg.Device.FallbackName,
		BulkConcurrency: tunables.BulkConcurrency,
	}, client, log,
		controller.WithPublisher(publishers),
		controller.WithCommandLog(commandRepo),
		controller.WithTranscriptLog(transcriptRepo),
	)

	if err := ctrl.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("initial poll failed, continuing with empty registry")
	}
	if err := ctrl.Poller().Start(tunables.PollInterval); err != nil {
		return fmt.Errorf("starting poller: %w", err)
	}

	router := api.NewRouter(api.Dependencies{
		DB:          db,
		Controller:  ctrl,
		Hub:         hub,
		Settings:    settingsRepo,
		Commands:    commandRepo,
		Transcripts: transcriptRepo,
		Defaults:    defaults,
		StaticDir:   cfg.StaticDir,
		Log:         log,
	})

	server := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("server listening")
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("serving http: %w", err)
		}
	}

	log.Info().Msg("shutting down")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	select {
	case <-ctrl.Poller().Stop().Done():
	case <-shutdownCtx.Done():
		log.Warn().Msg("poll still in flight at shutdown")
	}
	ctrl.StopListening()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	stopHub()

	log.Info().Msg("server stopped")
	return nil
}

// runHealthCheck performs a health check against the running server.
func runHealthCheck(addr string) error {
	resp, err := http.Get("http://localhost" + addr + "/api/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
