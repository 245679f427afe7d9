package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rmxlab/flashdash/internal/bridge"
	"github.com/rmxlab/flashdash/internal/config"
	"github.com/rmxlab/flashdash/internal/control"
	"github.com/rmxlab/flashdash/internal/history"
	"github.com/rmxlab/flashdash/internal/monitor"
	"github.com/rmxlab/flashdash/internal/state"
	"github.com/rmxlab/flashdash/internal/web"
	"github.com/rmxlab/flashdash/internal/ws"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	cfgFile   string
	debug     bool
)

var rootCmd = &cobra.Command{
	Use:   "flashdash",
	Short: "Flashdash - flashing and NFC-relay dashboard",
	Long: `Flashdash monitors and controls a microcontroller flashing and NFC-relay
workflow: device status, flashing progress, latency metrics and logs, kept
in sync with the backend over a resilient WebSocket connection.`,
	Version: fmt.Sprintf("%s (built: %s)", Version, BuildTime),
	Run:     runApp,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Check backend reachability",
	Long:  "Probe the configured backend endpoint and report the result",
	Run:   runCheck,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.Flags().String("backend", "", "backend WebSocket URL")
	rootCmd.Flags().Int("port", 8090, "web interface port")

	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runApp(cmd *cobra.Command, args []string) {
	setupLogging()

	log.Info().
		Str("version", Version).
		Str("build_time", BuildTime).
		Msg("Starting flashdash")

	cfg, err := config.Load(cfgFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Override config with command-line flags
	if backend, _ := cmd.Flags().GetString("backend"); backend != "" {
		cfg.Backend.URL = backend
	}
	if port, _ := cmd.Flags().GetInt("port"); port != 0 {
		cfg.Web.Port = port
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// State store and backend connection
	store := state.New(state.Options{
		LatencyCapacity: cfg.State.LatencyCapacity,
		LogCapacity:     cfg.State.LogCapacity,
	})

	client := ws.New(cfg.Backend.URL, ws.Options{
		MaxRetries:         cfg.Backend.MaxRetries,
		OnConnectionChange: store.UpdateWebsocketStatus,
	})
	defer client.Disconnect()

	bridge.New(store).Attach(client)
	ctrl := control.New(client, store)

	// Optional SQLite history sink
	if cfg.History.Enabled {
		rec, err := history.Open(cfg.History.Path)
		if err != nil {
			log.Error().Err(err).Msg("Failed to open history database")
		} else {
			rec.Attach(store)
			defer rec.Close()
		}
	}

	// Host metrics
	monitor.New(store, cfg.Monitoring.UpdateInterval, cfg.Monitoring.CPUSmoothingSamples).Start(ctx)

	// Initial backend connection; unexpected drops reconnect automatically
	store.AddLog("info", "Dashboard starting", "main")
	if err := client.Connect(ctx); err != nil {
		log.Warn().Err(err).Msg("Backend unavailable, dashboard starts offline")
		store.AddLog("warning", "Backend unavailable at startup", "main")
	}

	server := web.NewServer(cfg, store, ctrl)

	log.Info().
		Str("address", fmt.Sprintf("http://%s:%d", cfg.Web.Host, cfg.Web.Port)).
		Str("backend", cfg.Backend.URL).
		Msg("Starting web interface...")

	go func() {
		if err := server.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Web server error")
		}
	}()

	<-sigChan
	log.Info().Msg("Shutting down gracefully...")
	cancel()
}

func setupLogging() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	}
}
