package main

import (
	"context"
	"flag"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rtnapps/loyalty-gateway/internal/config"
	"github.com/rtnapps/loyalty-gateway/internal/diag"
	"github.com/rtnapps/loyalty-gateway/internal/export"
	"github.com/rtnapps/loyalty-gateway/internal/gateway"
	"github.com/rtnapps/loyalty-gateway/internal/observability"
	"github.com/rtnapps/loyalty-gateway/internal/rules"
	"github.com/rtnapps/loyalty-gateway/internal/store"
)

func main() {
	configPath := flag.String("config", "loyaltyd.toml", "path to gateway config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		observability.InitLogger("loyaltyd", "", "")
		log.Fatal().Err(err).Msg("failed to load config")
	}
	logger := observability.InitLogger("loyaltyd", cfg.LogLevel, cfg.LogFile)
	logger.Info().Str("path", *configPath).Msg("loaded gateway config")

	st, err := store.Open(cfg.DBPath, logger)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer st.Close()

	// Bound counter-table growth before accepting traffic.
	if _, err := st.PruneDailyCounts(time.Now().AddDate(0, 0, -7)); err != nil {
		logger.Warn().Err(err).Msg("daily count prune failed, continuing")
	}

	var recorder *export.Recorder
	if cfg.CSVExportPath != "" {
		recorder, err = export.Open(cfg.CSVExportPath, logger)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to open csv export")
		}
		defer recorder.Close()
	}

	dispatcher := gateway.NewDispatcher(
		rules.NewValidator(st, cfg.DailyTransactionCap, logger),
		rules.NewAgeGate(st, logger),
		rules.NewPlanner(cfg.RewardValue),
		cfg.PromptForLoyalty,
		cfg.AgeVerificationRequired,
		logger,
	)
	svc := gateway.NewService(gateway.ServiceConfig{
		ListenAddr:         cfg.ListenAddr,
		IdleTimeout:        time.Duration(cfg.IdleTimeoutSeconds) * time.Second,
		KeepAlive:          time.Duration(cfg.KeepAliveSeconds) * time.Second,
		MaxBufferBytes:     cfg.MaxBufferBytes,
		TrimToBytes:        cfg.TrimToBytes,
		DuplicateResponses: cfg.DuplicateResponses,
		ReplyToControlOnly: cfg.ReplyToControlOnly,
	}, dispatcher, recorder, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	diagErr := make(chan error, 1)
	if cfg.DiagAddr != "" {
		server := diag.New(cfg.DiagAddr, st, cfg.CorsOrigins)
		go func() {
			diagErr <- server.Serve(ctx)
		}()
		logger.Info().Str("addr", cfg.DiagAddr).Msg("diag endpoint started")
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- svc.Run(ctx)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			log.Fatal().Err(err).Msg("gateway stopped")
		}
	case err := <-diagErr:
		if err != nil {
			log.Fatal().Err(err).Msg("diag endpoint stopped")
		}
		if err := <-serveErr; err != nil {
			log.Fatal().Err(err).Msg("gateway stopped")
		}
	}
	logger.Info().Msg("shutdown complete")
}
