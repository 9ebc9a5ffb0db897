package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"hyperflow/config"
	"hyperflow/logger"
	"hyperflow/models"
	"hyperflow/notifier"
	"hyperflow/portfolio"
	"hyperflow/processor"
	"hyperflow/reader/hyperliquid"
	"hyperflow/registry"
	"hyperflow/store"
	"hyperflow/supervisor"
	"hyperflow/writer"
)

func main() {
	log := logger.GetLogger()

	// Load environment variables from .env if present
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Error loading .env file")
	}

	configPath := flag.String("config", "config/config.yml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	if err := log.Configure(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output, cfg.Logging.MaxAge); err != nil {
		log.WithError(err).Error("Failed to configure logger")
		os.Exit(1)
	}

	log.WithFields(logger.Fields{
		"service":     cfg.Hyperflow.Name,
		"version":     cfg.Hyperflow.Version,
		"environment": config.Environment(),
	}).Info("starting hyperflow")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Metrics.CloudWatch {
		logger.InitCloudWatch(cfg.Metrics.Region, cfg.Metrics.Namespace)
		logger.StartReport(ctx, log, 30*time.Second)
	}

	sink, s3Sink, err := buildSink(cfg)
	if err != nil {
		log.WithError(err).Error("failed to create fill sink")
		os.Exit(1)
	}
	if s3Sink != nil {
		if err := s3Sink.Start(ctx); err != nil {
			log.WithError(err).Error("failed to start s3 sink")
			os.Exit(1)
		}
	}

	st := store.New(
		cfg.Buffers.MaxTrades,
		cfg.Buffers.MaxCandles,
		cfg.Buffers.MaxFills,
		cfg.Buffers.MaxBooks,
	)
	tracker := portfolio.NewTracker()

	dispatcher := processor.NewDispatcher(st, tracker, sink)
	if err := dispatcher.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start dispatcher")
		os.Exit(1)
	}

	alerts := notifier.New(cfg.Notifier.WebhookURL)

	sup := supervisor.New(
		supervisor.Config{
			LivenessWindow: cfg.Supervisor.LivenessWindow,
			BackoffBase:    cfg.Supervisor.BackoffBase,
			BackoffCap:     cfg.Supervisor.BackoffCap,
		},
		hyperliquid.Factory(cfg),
		registry.New(),
		dispatcher,
		alerts,
		subscriptionsFromConfig(cfg),
	)
	if err := sup.Start(ctx); err != nil {
		log.WithError(err).Error("failed to start supervisor")
		os.Exit(1)
	}

	go statusLoop(ctx, st, tracker)

	log.Info("all components started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	log.WithFields(logger.Fields{"signal": sig.String()}).Info("shutdown signal received")

	log.Info("starting graceful shutdown")
	cancel()

	sup.Stop()
	dispatcher.Stop()
	if s3Sink != nil {
		s3Sink.Stop()
	}

	log.Info("shutdown complete")
}

// buildSink picks the fill sink: postgres when configured, then S3, then
// the per-account JSONL file fallback. The S3 sink is returned separately
// because it has a worker lifecycle to manage.
func buildSink(cfg *config.Config) (writer.FillSink, *writer.S3Sink, error) {
	if cfg.Storage.Postgres.Enabled {
		sink, err := writer.NewPostgresSink(cfg.Storage.Postgres.DSN)
		if err != nil {
			return nil, nil, err
		}
		return sink, nil, nil
	}
	if cfg.Storage.S3.Enabled {
		sink, err := writer.NewS3Sink(cfg)
		if err != nil {
			return nil, nil, err
		}
		return sink, sink, nil
	}
	return writer.NewFileSink(cfg.Storage.FillsDir), nil, nil
}

// statusLoop periodically logs the derived state for operators: top of
// book, realized PnL, and unrealized PnL marked against current mids.
func statusLoop(ctx context.Context, st *store.Store, tracker *portfolio.Tracker) {
	log := logger.GetLogger().WithComponent("status")
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			marks := make(map[string]float64)
			for coin := range st.Mids() {
				if px, ok := st.Mid(coin); ok {
					marks[coin] = px
				}
			}
			unrealized, _ := tracker.TotalAndIndividualUnrealizedPnl(marks)

			log.WithFields(logger.Fields{
				"best_bid":       st.BestBid(),
				"best_ask":       st.BestAsk(),
				"realized_pnl":   tracker.TotalRealizedPnl(),
				"unrealized_pnl": unrealized,
			}).Info("status")

			log.LogMetric("status", "RealizedPnl", tracker.TotalRealizedPnl(), "gauge", nil)
			log.LogMetric("status", "UnrealizedPnl", unrealized, "gauge", nil)
			log.LogMetric("status", "BestBid", st.BestBid(), "gauge", nil)
			log.LogMetric("status", "BestAsk", st.BestAsk(), "gauge", nil)
		}
	}
}

func subscriptionsFromConfig(cfg *config.Config) []models.Subscription {
	var subs []models.Subscription
	if cfg.Subscriptions.AllMids {
		subs = append(subs, models.AllMids())
	}
	for _, coin := range cfg.Subscriptions.Trades {
		subs = append(subs, models.Trades(coin))
	}
	for _, coin := range cfg.Subscriptions.L2Books {
		subs = append(subs, models.L2BookSub(coin))
	}
	for _, c := range cfg.Subscriptions.Candles {
		subs = append(subs, models.CandleSub(c.Coin, c.Interval))
	}
	if cfg.Subscriptions.UserFills {
		subs = append(subs, models.UserFillsSub(cfg.Venue.Account))
	}
	return subs
}
