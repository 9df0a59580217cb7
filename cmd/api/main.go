package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/geocoder89/chatauth/internal/auth"
	"github.com/geocoder89/chatauth/internal/config"
	httpx "github.com/geocoder89/chatauth/internal/http"
	"github.com/geocoder89/chatauth/internal/observability"
	"github.com/geocoder89/chatauth/internal/security"
	"github.com/geocoder89/chatauth/internal/service"
	"github.com/geocoder89/chatauth/internal/upload"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const serviceName = "chatauth"

func main() {
	// Load the config set up
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	// start up the observability logger
	log := observability.NewLogger(cfg.Env)
	slog.SetDefault(log)

	ctx := context.Background()

	shutdownTracer, err := observability.InitTracer(ctx, observability.TracingConfig{
		ServiceName: serviceName,
		Environment: cfg.Env,
		Endpoint:    cfg.OTelEndpoint,
		Insecure:    cfg.OTelInsecure,
		SampleRatio: cfg.OTelSampleRatio,
	})
	if err != nil {
		log.Error("tracer init failed", "err", err)
		os.Exit(1)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	prom := observability.NewProm(reg)

	store, err := openAccountStore(ctx, cfg, prom)
	if err != nil {
		log.Error("account store init failed", "store", cfg.AccountStore, "err", err)
		os.Exit(1)
	}
	defer store.close()

	avatars, err := openAvatarStore(ctx, cfg)
	if err != nil {
		log.Error("avatar store init failed", "driver", cfg.Upload.Driver, "err", err)
		os.Exit(1)
	}
	defer avatars.close()

	hasher, err := security.NewHasher(cfg.BcryptCost, cfg.HashConcurrency)
	if err != nil {
		log.Error("hasher init failed", "err", err)
		os.Exit(1)
	}

	tokens, err := auth.NewManager(cfg.JWTSecret, cfg.JWTTTL, cfg.JWTIssuer)
	if err != nil {
		log.Error("token manager init failed", "err", err)
		os.Exit(1)
	}

	uploader := upload.NewProtectedUploader(avatars.uploader, upload.ProtectedUploaderConfig{
		Timeout:          cfg.Upload.Timeout,
		FailureThreshold: cfg.Upload.BreakerFails,
		Cooldown:         cfg.Upload.BreakerCooloff,
	})

	accounts := service.NewAccounts(
		store.repo,
		hasher,
		tokens,
		auth.NewGate(tokens, store.repo),
		uploader,
		service.Options{
			UnifyLoginErrors: cfg.UnifyLoginErrors,
			MaxImageBytes:    cfg.Upload.MaxImageBytes,
			Logger:           log,
			Metrics:          prom,
		},
	)

	var shuttingDown atomic.Bool

	// set up routers with the log
	router := httpx.NewRouter(httpx.RouterDeps{
		Env:          cfg.Env,
		ServiceName:  serviceName,
		Log:          log,
		Accounts:     accounts,
		Ping:         store.ping,
		ShuttingDown: shuttingDown.Load,
		Prom:         prom,
		Gatherer:     reg,
		Avatars:      avatars.reader,
		CORSOrigins:  cfg.CORSOrigins,
		MaxBodyBytes: cfg.HTTPMaxBodyBytes,
	})

	// server set up
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      cfg.Upload.Timeout + 15*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// start server using a concurrent go-routine driven anonymous function.

	go func() {
		log.Info("Server starting", "port", cfg.Port, "env", cfg.Env, "store", cfg.AccountStore, "uploads", cfg.Upload.Driver)
		err := srv.ListenAndServe()

		if err != nil && err != http.ErrServerClosed {
			log.Error("server failed", "err", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	log.Info("server shutting down")
	shuttingDown.Store(true)

	shutdownCh := make(chan struct{})

	go func() {
		defer close(shutdownCh)

		ctxTimeOut := 10 * time.Second

		ctx, cancel := config.WithTimeout(ctxTimeOut)

		defer cancel()

		err := srv.Shutdown(ctx)

		if err != nil {
			log.Error("graceful shutdown failed", "err", err)
		}

		if err := shutdownTracer(ctx); err != nil {
			log.Error("tracer shutdown failed", "err", err)
		}
	}()

	select {
	case <-shutdownCh:
		log.Info("shutdown complete")

	case <-time.After(12 * time.Second):
		log.Error("shutdown timed out")
	}
}
