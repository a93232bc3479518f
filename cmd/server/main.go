package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/windfall/shadowing/internal/archive"
	"github.com/windfall/shadowing/internal/cache"
	"github.com/windfall/shadowing/internal/client"
	"github.com/windfall/shadowing/internal/config"
	"github.com/windfall/shadowing/internal/handler/http"
	"github.com/windfall/shadowing/internal/handler/ws"
	"github.com/windfall/shadowing/internal/logger"
	"github.com/windfall/shadowing/internal/player"
	"github.com/windfall/shadowing/internal/recorder"
	"github.com/windfall/shadowing/internal/server"
	"github.com/windfall/shadowing/internal/session"
	"github.com/windfall/shadowing/internal/view"
)

const sweepInterval = time.Minute

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.LogFormat)
	log.Info().Str("env", cfg.Environment).Str("api", cfg.APIBase()).Msg("Starting shadowing")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Backend API and query cache
	api := client.NewBackendClient(cfg.APIBase(), cfg.APITimeout)

	queries, err := cache.New(cache.Options{MaxEntries: cfg.CacheMaxCost, Retry: cfg.QueryRetry}, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize query cache")
	}
	defer queries.Close()

	// Initialize invalidation bus (Redis first, Pub/Sub otherwise)
	var bus cache.Bus
	var redisClient *client.RedisClient
	var pubsubClient *client.PubSubClient
	if cfg.RedisURL != "" {
		redisClient, err = client.NewRedisClient(cfg.RedisURL, cfg.RedisChannel)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Redis client")
		} else {
			bus = redisClient
			log.Info().Str("channel", cfg.RedisChannel).Msg("Redis invalidation bus initialized")
		}
	}
	if bus == nil && cfg.PubSubEnabled() {
		pubsubClient, err = client.NewPubSubClient(ctx, cfg.PubSubProjectID, cfg.PubSubTopicID)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Pub/Sub client")
		} else {
			bus = pubsubClient.WithSubscription(cfg.PubSubSubscriptionID)
			log.Info().Str("topic", cfg.PubSubTopicID).Msg("Pub/Sub invalidation bus initialized")
		}
	}
	if bus == nil {
		log.Warn().Msg("No invalidation bus configured, cache stays local")
	}

	// Initialize recording archive (Cloudflare R2 first, GCS otherwise)
	var store archive.ObjectStore
	var storageClient *client.StorageClient
	if cfg.R2Enabled() {
		cloudflareClient, err := client.NewCloudflareClient(ctx,
			cfg.CloudflareAccessKeyID,
			cfg.CloudflareSecretKey,
			cfg.CloudflareR2Endpoint,
			cfg.CloudflareBucketName,
			cfg.CloudflarePublicURL,
		)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize Cloudflare client")
		} else {
			store = cloudflareClient
			log.Info().Msg("Cloudflare R2 archive initialized")
		}
	}
	if store == nil && cfg.GCSArchiveBucket != "" {
		storageClient, err = client.NewStorageClient(ctx, cfg.GCSArchiveBucket)
		if err != nil {
			log.Error().Err(err).Msg("Failed to initialize GCS client")
		} else {
			store = storageClient
			log.Info().Str("bucket", cfg.GCSArchiveBucket).Msg("GCS archive initialized")
		}
	}
	if store == nil {
		log.Warn().Msg("Archive configuration missing, recordings are not archived")
	}
	archiver := archive.New(store, log)

	// Practice sessions
	sessions := session.NewRegistry(func(opts view.PracticeOptions, source recorder.Source) *view.PracticeView {
		return view.NewPracticeView(view.PracticeDeps{
			API:     api,
			Queries: queries,
			Engines: func(duration float64) player.EngineFactory {
				return player.ClockEngineFactory(duration, player.DefaultTick)
			},
			Source:  source,
			Archive: archiver,
			Log:     log,
		}, opts)
	}, cfg.SessionTTL, log)

	// Initialize handlers
	healthHandler := http.NewHealthHandler(sessions.Len)
	handlers := server.Handlers{
		Health:   healthHandler,
		Library:  http.NewLibraryHandler(log, view.NewMaterialList(api, queries, log)),
		Imports:  http.NewImportHandler(log, view.NewYouTubeImport(api, queries, log), view.NewPDFImport(api, queries, log), cfg.UploadMaxBytes),
		Sessions: http.NewSessionHandler(log, sessions, cfg.UploadMaxBytes),
		Segments: http.NewSegmentHandler(log, api, api, queries),
	}

	hub := server.NewWebSocketHub(sessions, ws.NewHandler(log), cfg.CORSAllowedOrigins, log)

	// Tell connected browsers to reload the library when it changes.
	unsubscribe := queries.Subscribe(cache.KeyMaterials, func(key string) {
		message, _ := json.Marshal(map[string]string{"type": "library.invalidated", "key": key})
		hub.Broadcast(message)
	})
	defer unsubscribe()

	// Initialize HTTP server
	httpServer := server.NewHTTPServer(cfg, log, server.NewRouter(cfg, log, handlers, hub))

	// Start background workers
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		sessions.Run(gctx, sweepInterval)
		return nil
	})
	if bus != nil {
		g.Go(func() error {
			if err := queries.Attach(gctx, bus); err != nil && gctx.Err() == nil {
				log.Error().Err(err).Msg("Invalidation bus stopped")
			}
			return nil
		})
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			log.Error().Err(err).Msg("HTTP server error")
			cancel()
		}
	}()

	log.Info().
		Str("http_addr", cfg.HTTPAddress()).
		Msg("Servers started")

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info().Msg("Shutdown signal received")
	case <-ctx.Done():
		log.Info().Msg("Context cancelled")
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down servers...")
	healthHandler.SetReady(false)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	cancel()
	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Background worker error")
	}
	archiver.Wait()

	// Close clients
	if redisClient != nil {
		redisClient.Close()
	}
	if pubsubClient != nil {
		pubsubClient.Close()
	}
	if storageClient != nil {
		storageClient.Close()
	}

	log.Info().Msg("Server stopped")
}
