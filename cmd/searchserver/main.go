package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics/collector"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/analytics/store"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/consumer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/publisher"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfidf-search/pkg/redis"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)
	if err := run(cfg); err != nil {
		slog.Error("search server failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New(nil)
	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(shutdownCtx)
		}()
	}

	stopWords, err := tokenizer.NewStopWords(cfg.Search.StopWords...)
	if err != nil {
		return fmt.Errorf("building stop words: %w", err)
	}
	defaultMode, err := search.ParseMode(cfg.Search.DefaultMode)
	if err != nil {
		return err
	}
	srv := search.New(stopWords, search.Config{
		MaxResults: cfg.Search.MaxResults,
		Epsilon:    cfg.Search.RelevanceEpsilon,
		Shards:     cfg.Search.AccumulatorShards,
		Workers:    cfg.Search.Workers,
	}).WithMetrics(m)
	slog.Info("index ready",
		"stop_words", stopWords.Len(),
		"default_mode", defaultMode,
		"accumulator_shards", cfg.Search.AccumulatorShards,
	)

	checker := health.NewChecker()
	checker.Register("index", func(context.Context) health.ComponentHealth {
		if err := srv.CheckConsistency(); err != nil {
			return health.ComponentHealth{Status: health.StatusDown, Message: err.Error()}
		}
		return health.ComponentHealth{Status: health.StatusUp, Message: strconv.Itoa(srv.DocumentCount()) + " documents"}
	})

	var queryCache *cache.QueryCache
	if cfg.Redis.Enabled {
		redisClient, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, search caching disabled", "error", err)
		} else {
			defer redisClient.Close()
			queryCache = cache.New(srv, redisClient, cache.Config{TTL: cfg.Redis.CacheTTL}).WithMetrics(m)
			checker.Register("redis", health.Ping(redisClient.Ping, health.StatusDegraded))
			slog.Info("search cache enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}

	var searcher analytics.Searcher = srv
	if queryCache != nil {
		searcher = queryCache
	}
	queue := analytics.NewRequestQueue(searcher, cfg.Analytics.RequestWindow).WithGauge(m.NoResultRequests)
	aggregator := analytics.NewAggregator()

	var tracker handler.Tracker = aggregator
	var journal handler.Journal
	if cfg.Kafka.Enabled {
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents)
		defer producer.Close()
		batcher := collector.NewBatchCollector(producer, cfg.Analytics.BatchSize, cfg.Analytics.FlushInterval)
		batcher.Start(ctx)
		defer func() {
			stop()
			batcher.Close()
		}()
		tracker = batcher

		analyticsConsumer := kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.AnalyticsEvents, aggregator.HandleEvent,
			kafka.WithGroup(cfg.Kafka.ConsumerGroup+"-analytics"))
		go func() {
			if err := analyticsConsumer.Start(ctx); err != nil {
				slog.Error("analytics consumer error", "error", err)
			}
		}()

		// The index lives in memory only. Writes are appended to the document
		// topic and every start replays the whole topic under a group of its
		// own, so the instance id doubles as the command origin.
		instanceID := uuid.NewString()
		docProducer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents)
		defer docProducer.Close()
		journal = publisher.New(docProducer, instanceID)

		docTracker := tracker
		trackApplied := func(cmd consumer.DocumentCommand) {
			event := analytics.DocumentEvent{
				Type:       analytics.EventDocumentAdded,
				DocumentID: cmd.ID,
				Timestamp:  time.Now().UTC(),
			}
			if cmd.Action == consumer.ActionRemove {
				event.Type = analytics.EventDocumentRemoved
				event.Mode = cmd.Mode
			}
			docTracker.Track(cmd.Key(), event)
		}
		replayGroup := cfg.Kafka.ConsumerGroup + "-replay-" + instanceID
		docConsumer := consumer.New(kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.DocumentEvents,
			consumer.HandleMessage(srv, m, consumer.WithOrigin(instanceID, trackApplied)),
			kafka.FromBeginning(), kafka.WithGroup(replayGroup)))
		go func() {
			if err := docConsumer.Start(ctx); err != nil {
				slog.Error("document consumer error", "error", err)
			}
		}()
		slog.Info("kafka enabled",
			"document_topic", cfg.Kafka.Topics.DocumentEvents,
			"analytics_topic", cfg.Kafka.Topics.AnalyticsEvents,
		)
	}

	analyticsHandler := analytics.NewHandler(queue, aggregator)
	if cfg.Postgres.Enabled {
		db, err := postgres.New(cfg.Postgres)
		if err != nil {
			return fmt.Errorf("connecting to postgres: %w", err)
		}
		defer db.Close()
		snapshots := store.New(db, store.DefaultRetain)
		if err := snapshots.EnsureSchema(ctx); err != nil {
			return err
		}
		snapshots.StartPeriodicSave(ctx, analyticsHandler.Report, cfg.Analytics.SnapshotInterval)
		checker.Register("postgres", health.Ping(db.Ping, health.StatusDegraded))
	}

	h := handler.New(srv, queue, queryCache, tracker, analyticsHandler, handler.Options{
		DefaultMode:     defaultMode,
		MaxBatchQueries: cfg.Search.MaxBatchQueries,
		BatchWorkers:    cfg.Search.BatchWorkers,
		Journal:         journal,
	})

	mux := http.NewServeMux()
	h.Register(mux)
	mux.HandleFunc("GET /api/v1/analytics", analyticsHandler.Stats)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())

	var chain http.Handler = mux
	chain = middleware.Timeout(cfg.Server.RequestTimeout)(chain)
	if cfg.Server.RateLimit > 0 {
		limiter := ratelimit.New(cfg.Server.RateLimit, time.Minute)
		limiter.StartCleanup(ctx, 5*time.Minute)
		chain = middleware.RateLimit(limiter)(chain)
	}
	if len(cfg.Server.CORSOrigins) > 0 {
		chain = middleware.CORS(cfg.Server.CORSOrigins, 86400)(chain)
	}
	chain = middleware.Metrics(m)(chain)
	chain = middleware.RequestID(chain)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      chain,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		<-ctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
	}()

	slog.Info("search server listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("search server stopped")
	return nil
}
