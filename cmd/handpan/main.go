package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/satindergrewal/handpan/internal/config"
	"github.com/satindergrewal/handpan/internal/controller"
	"github.com/satindergrewal/handpan/internal/synth"
	"github.com/satindergrewal/handpan/internal/voice"
)

const sentryFlushTimeout = 2 * time.Second

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.SentryDSN,
			Environment: cfg.Environment,
			Release:     "handpan@dev",
		}); err != nil {
			log.Printf("Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("Sentry initialized (environment: %s)", cfg.Environment)
			defer sentry.Flush(sentryFlushTimeout)
		}
	}

	if err := run(cfg); err != nil {
		sentry.CaptureException(err)
		sentry.Flush(sentryFlushTimeout)
		log.Fatalf("handpan: %v", err)
	}
}

func run(cfg config.Config) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	mode, err := controller.ParseMode(cfg.Mode)
	if err != nil {
		return err
	}
	driver, err := synth.ParseDriver(cfg.Driver)
	if err != nil {
		return err
	}
	factory, err := generatorFactory(cfg)
	if err != nil {
		return err
	}

	log.Println("handpan starting up...")

	// The controller closes the backend; stream plumbing stops when run returns.
	outCtx, outCancel := context.WithCancel(context.Background())
	defer outCancel()

	out, err := openOutput(outCtx, driver, cfg)
	if err != nil {
		return err
	}

	engine, err := voice.New(voice.Strategy(cfg.VoiceStrategy), out.backend, voice.Config{
		Channel: cfg.Channel,
		Bank:    cfg.Bank,
		Program: cfg.Program,
	})
	if err != nil {
		out.backend.Close()
		return err
	}

	ctrl := controller.New(mode, engine, controller.WithGenerator(cfg.Generator, factory))

	if out.broadcaster != nil {
		srv := newServer(cfg.Port, ctrl, out)
		go func() {
			log.Printf("handpan live on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !isServerClosed(err) {
				sentry.CaptureException(err)
				log.Printf("HTTP server error: %v", err)
			}
		}()
		defer srv.Close()
		defer out.webrtc.Close()
	}

	err = ctrl.Start(ctx)
	log.Println("Shutting down...")
	return err
}
