package main

import (
	"context"
	"time"

	"github.com/rmxlab/flashdash/internal/config"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func runCheck(cmd *cobra.Command, args []string) {
	setupLogging()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log.Info().Msg("✓ Configuration loaded")
	log.Info().Str("backend", cfg.Backend.URL).Msg("Probing backend...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client := ws.New(cfg.Backend.URL, ws.Options{MaxRetries: 1})
	if err := client.Connect(ctx); err != nil {
		log.Error().Err(err).Msg("✗ Backend not reachable")
		log.Info().Msg("Start the backend or adjust backend.url in the config")
		return
	}
	client.Disconnect()

	log.Info().Msg("✓ Backend reachable")
	log.Info().Msg("System ready! Start the dashboard with: flashdash")
}
