package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/local/videoprompt/internal/ai"
	cfgpkg "github.com/local/videoprompt/internal/config"
	"github.com/local/videoprompt/internal/filetype"
	logpkg "github.com/local/videoprompt/internal/logger"
	"github.com/local/videoprompt/internal/media"
	"github.com/local/videoprompt/internal/metrics"
	"github.com/local/videoprompt/internal/orchestrator"
	"github.com/local/videoprompt/internal/progress"
	"github.com/local/videoprompt/internal/prompt"
	"github.com/local/videoprompt/internal/session"
	"github.com/local/videoprompt/internal/statuscheck"
	"github.com/local/videoprompt/internal/storage"
	"github.com/local/videoprompt/internal/store"
)

func main() {
	cfg := cfgpkg.Load()

	// Init logging
	_ = logpkg.Init(logpkg.Options{
		Level:        cfg.Logging.Level,
		Pretty:       cfg.Logging.Pretty,
		File:         cfg.Logging.File,
		MaxSizeMB:    cfg.Logging.MaxSizeMB,
		MaxBackups:   cfg.Logging.MaxBackups,
		MaxAgeDays:   cfg.Logging.MaxAgeDays,
		Compress:     cfg.Logging.Compress,
		SendToAxiom:  cfg.Axiom.Send && cfg.Axiom.APIKey != "",
		AxiomAPIKey:  cfg.Axiom.APIKey,
		AxiomOrgID:   cfg.Axiom.OrgID,
		AxiomDataset: cfg.Axiom.Dataset,
		AxiomFlush:   cfg.Axiom.FlushInterval,
	})
	defer logpkg.Close()

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Inference client; the key is resolved once here
	client, err := ai.New(ctx, cfg.AI)
	if err != nil {
		log.Fatal().Err(err).Str("engine", cfg.AI.Engine).Msg("failed to init AI client")
	}
	provider := cfg.AI.Provider()
	composer := prompt.New(client, provider.Model)

	// Status mirror (optional)
	var (
		statusStore session.StatusStore
		redisPing   statuscheck.Pinger
	)
	if cfg.Redis.URL != "" {
		rs, err := store.NewRedisStatus(cfg.Redis.URL, cfg.Redis.StatusTTL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init redis status store")
		}
		defer rs.Close()
		statusStore = session.NewStatusAdapter(rs)
		redisPing = rs
	}

	// S3 file source (optional)
	var (
		s3src  orchestrator.ObjectSource
		s3Ping statuscheck.Pinger
	)
	if cfg.S3.Bucket != "" {
		sc, err := storage.NewS3Client(ctx, storage.Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("failed to init S3 client")
		}
		s3src, s3Ping = sc, sc
	}

	encoder := media.NewEncoder(cfg.Upload.MaxBytes)
	sessions := session.NewManager(session.Deps{
		Encoder:   encoder,
		Generator: composer,
		Status:    statusStore,
		Progress: progress.Options{
			Interval: cfg.Progress.Tick,
			Ceiling:  cfg.Progress.Ceiling,
			Step:     cfg.Progress.Step,
		},
	}, cfg.Session.IdleTTL)
	go sessions.Run(ctx, cfg.Session.SweepInterval)

	orch := orchestrator.New(orchestrator.Dependencies{
		Sessions: sessions,
		Encoder:  encoder,
		Detector: filetype.New(),
		S3:       s3src,
		Status: statuscheck.New(statuscheck.Options{
			Redis:     redisPing,
			S3:        s3Ping,
			Engine:    client.Name(),
			Model:     provider.Model,
			APIKeySet: provider.APIKey != "",
		}),
		BodyLimit: cfg.Upload.BodyLimit,
	})
	mux := http.NewServeMux()
	orch.RegisterRoutes(mux)
	mux.Handle("GET /metrics", metrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.HTTP.Port, Handler: mux}

	go func() {
		log.Info().
			Str("engine", client.Name()).
			Str("model", provider.Model).
			Float64("max_upload_mb", cfg.Upload.MaxUploadMB()).
			Msgf("HTTP server listening on :%s", cfg.HTTP.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("http server error")
		}
	}()

	// Graceful shutdown
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	fmt.Println("shutdown complete")
}
