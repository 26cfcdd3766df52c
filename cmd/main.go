package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/lmittmann/tint"
	"github.com/robfig/cron/v3"

	"github.com/phoenix-network/phoenix-pipeline/api"
	"github.com/phoenix-network/phoenix-pipeline/coingecko"
	"github.com/phoenix-network/phoenix-pipeline/config"
	"github.com/phoenix-network/phoenix-pipeline/database"
	"github.com/phoenix-network/phoenix-pipeline/output"
	"github.com/phoenix-network/phoenix-pipeline/pipeline"
	"github.com/phoenix-network/phoenix-pipeline/state"
	"github.com/phoenix-network/phoenix-pipeline/subgraph"
	"github.com/phoenix-network/phoenix-pipeline/transform"
)

// Version will be set at build time
var Version = "development"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	// create a new logger
	Logger := slog.New(tint.NewHandler(os.Stderr, &tint.Options{Level: level}))
	slog.SetDefault(Logger)

	Logger.Info("Starting phoenix-pipeline ("+Version+")",
		"Go Version", runtime.Version(),
		"Operating System", runtime.GOOS,
		"Architecture", runtime.GOARCH)

	swaps, err := subgraph.NewClient(subgraph.ClientOpts{
		Endpoint:       cfg.SubgraphURL,
		Timeout:        time.Duration(cfg.SubgraphTimeout) * time.Second,
		WindowMinutes:  cfg.SubgraphWindowMins,
		BatchSize:      cfg.SubgraphBatchSize,
		MaxResults:     cfg.SubgraphMaxResults,
		MaxRetries:     cfg.MaxRetries,
		RetryBaseDelay: time.Duration(cfg.RetryBaseDelay) * time.Second,
		RetryMaxDelay:  time.Duration(cfg.RetryMaxDelay) * time.Second,
		Logger:         Logger.With("component", "subgraph"),
	})
	if err != nil {
		log.Fatalf("failed to create subgraph client: %v", err)
	}
	defer swaps.Close()

	var shared coingecko.PriceCache
	if cfg.RedisAddr != "" {
		redisCache := coingecko.NewRedisCache(coingecko.RedisCacheOpts{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			TTL:      time.Duration(cfg.RedisPriceTTL) * time.Second,
		})
		defer redisCache.Close()
		shared = redisCache
		Logger.Info("using redis price cache", "addr", cfg.RedisAddr)
	}

	tokens := transform.DefaultTokenTable()

	prices, err := coingecko.NewClient(coingecko.ClientOpts{
		APIURL:            cfg.CoingeckoAPIURL,
		APIKey:            cfg.CoingeckoAPIKey,
		Timeout:           time.Duration(cfg.CoingeckoTimeout) * time.Second,
		MaxRequestsPerMin: cfg.CoingeckoMaxPerMin,
		MaxRetries:        cfg.MaxRetries,
		RetryBaseDelay:    time.Duration(cfg.RetryBaseDelay) * time.Second,
		RetryMaxDelay:     time.Duration(cfg.RetryMaxDelay) * time.Second,
		Tokens:            tokens,
		SharedCache:       shared,
		Logger:            Logger.With("component", "coingecko"),
	})
	if err != nil {
		log.Fatalf("failed to create coingecko client: %v", err)
	}
	defer prices.Close()

	checkpoint := state.NewStore(state.StoreOpts{
		Path:   cfg.StateFile,
		Logger: Logger.With("component", "state"),
	})

	fileSink, err := output.NewFileSink(output.FileSinkOpts{
		Dir:    cfg.OutputDir,
		Logger: Logger.With("component", "file-sink"),
	})
	if err != nil {
		log.Fatalf("failed to create file sink: %v", err)
	}
	sinks := []output.Sink{fileSink}

	// Create context that will be canceled on SIGINT or SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *database.Database
	if cfg.DatabaseURI != "" {
		db, err = database.NewDatabase(database.DatabaseOpts{
			URI:          cfg.DatabaseURI,
			DatabaseName: cfg.DatabaseName,
			Logger:       Logger.With("component", "database"),
		})
		if err != nil {
			log.Fatalf("failed to connect to database: %v", err)
		}
		defer db.Close(context.Background())

		if err := db.CreateIndexes(ctx); err != nil {
			log.Fatalf("failed to create database indexes: %v", err)
		}

		sinks = append(sinks, output.NewMongoSink(db))
	}

	pipe, err := pipeline.NewPipeline(pipeline.PipelineOpts{
		Swaps:      swaps,
		Prices:     prices,
		Checkpoint: checkpoint,
		Sinks:      sinks,
		Tokens:     tokens,
		MaxPairs:   cfg.MaxPairs,
		Logger:     Logger,
	})
	if err != nil {
		log.Fatalf("failed to create pipeline: %v", err)
	}

	// start api server
	if cfg.APIEnabled {
		if db == nil {
			log.Fatal("API_ENABLED requires DATABASE_URI to be set")
		}
		server, err := api.NewServer(api.ServerOpts{
			Logger:     Logger.With("component", "api-server"),
			DB:         db,
			Port:       cfg.APIPort,
			Checkpoint: checkpoint,
			Stage:      pipe.Stage,
		})
		if err != nil {
			log.Fatalf("failed to create api server: %v", err)
		}
		go server.StartServer()
	}

	// Handle OS signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	if cfg.RunSchedule == "" {
		// Run once and exit
		go func() {
			_, err := pipe.Run(ctx)
			errChan <- err
		}()
	} else {
		go func() {
			errChan <- runScheduled(ctx, pipe, cfg.RunSchedule, Logger)
		}()
	}

	// Wait for either error or signal
	select {
	case err := <-errChan:
		if err != nil {
			log.Fatalf("pipeline error: %v", err)
		}
	case sig := <-sigChan:
		fmt.Printf("\nReceived signal: %v\n", sig)
		fmt.Println("Shutting down gracefully...")
		cancel() // This will trigger shutdown via context

		// Wait for pipeline to finish
		if err := <-errChan; err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	}
}

// runScheduled runs the pipeline on a cron schedule until the context
// is canceled. A tick that fires while the previous run is still in
// flight is skipped, runs never overlap.
func runScheduled(ctx context.Context, pipe *pipeline.Pipeline, schedule string, logger *slog.Logger) error {
	var running atomic.Bool

	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if !running.CompareAndSwap(false, true) {
			logger.Warn("previous run still in progress, skipping scheduled run")
			return
		}
		defer running.Store(false)

		if _, err := pipe.Run(ctx); err != nil {
			logger.Error("scheduled run failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid run schedule %q: %w", schedule, err)
	}

	logger.Info("running on schedule", "schedule", schedule)
	c.Start()
	<-ctx.Done()

	stopCtx := c.Stop()
	<-stopCtx.Done()
	return nil
}
