package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Cocoseas/lambosync/admin"
	"github.com/Cocoseas/lambosync/cache"
	"github.com/Cocoseas/lambosync/cfg"
	"github.com/Cocoseas/lambosync/invalidate"
	"github.com/Cocoseas/lambosync/rpc"
	"github.com/Cocoseas/lambosync/telemetry"
	"github.com/Cocoseas/lambosync/wallet"
)

func main() {
	flag.Parse()

	if err := cfg.Load(*cfg.ConfigPathFlag); err != nil {
		panic(err)
	}
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("client_id", cfg.Config.ClientID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Msg("lambosync - wallet daemon cache synchronizer")
	telemetry.InitializeTelemetry()

	// Connect to the daemon transport
	client, err := rpc.Connect(rpc.ClientConfig{
		NatsURL:          cfg.Config.Daemon.NatsURL,
		Origin:           cfg.Config.Daemon.OriginService,
		ClientID:         cfg.Config.ClientID,
		CallTimeout:      time.Duration(cfg.Config.Daemon.CallTimeoutMS) * time.Millisecond,
		CompressionLevel: cfg.Config.Compression.Level,
		CompressionMin:   cfg.Config.Compression.MinSizeBytes,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to daemon")
		return
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := client.Register(ctx, cfg.Config.Daemon.WalletService); err != nil {
		log.Warn().Err(err).Msg("Service registration failed, pushes may not be routed")
	}
	cancel()

	// Build the query cache
	store, err := cache.NewStore(client, cache.StoreConfig{
		RetentionSize: cfg.Config.Cache.RetentionSize,
		Retention:     time.Duration(cfg.Config.Cache.RetentionSeconds) * time.Second,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create cache store")
		return
	}

	var dedupe *invalidate.DedupeFilter
	if cfg.Config.Sync.DedupeEnabled {
		dedupe = invalidate.NewDedupeFilter(cfg.Config.Sync.DedupeCapacity)
	}

	// Register wallet queries with their push bindings
	set, err := wallet.Register(store, client, wallet.Config{
		Service:          cfg.Config.Daemon.WalletService,
		SubscribeTimeout: time.Duration(cfg.Config.Daemon.SubscribeTimeoutMS) * time.Millisecond,
		Dedupe:           dedupe,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to register wallet queries")
		return
	}

	// Warm the always-on queries
	warmCtx, warmCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if _, err := set.SyncStatus.Initiate(warmCtx, nil, cache.InitiateOptions{Subscribe: true}); err != nil {
		log.Warn().Err(err).Msg("Failed to initiate sync status query")
	}
	if _, err := set.Wallets.Initiate(warmCtx, nil, cache.InitiateOptions{Subscribe: true}); err != nil {
		log.Warn().Err(err).Msg("Failed to initiate wallet list query")
	}
	warmCancel()

	// Serve the read API and metrics
	var httpServer *http.Server
	if cfg.Config.Admin.Enabled {
		mux := http.NewServeMux()
		admin.RegisterRoutes(mux, admin.NewHandlers(store))

		addr := fmt.Sprintf("%s:%d", cfg.Config.Admin.BindAddress, cfg.Config.Admin.Port)
		httpServer = &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Info().Str("addr", addr).Msg("Starting HTTP server")
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("HTTP server failed")
			}
		}()
	}

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutting down")

	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = httpServer.Shutdown(shutdownCtx)
		shutdownCancel()
	}
}
