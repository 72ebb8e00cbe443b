// Package main runs the launchpad server: token creation, curve quoting,
// trade settlement, market data (candles, ticks, USD reference rate), and
// the post-graduation release flow, behind one HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"launchpad/internal/candles"
	"launchpad/internal/chain"
	"launchpad/internal/graduation"
	"launchpad/internal/observability"
	"launchpad/internal/oracle"
	"launchpad/internal/storage"
	chstore "launchpad/internal/storage/clickhouse"
	"launchpad/internal/storage/memory"
	"launchpad/internal/storage/migrations"
	pgstore "launchpad/internal/storage/postgres"
	"launchpad/internal/trading"
	"launchpad/internal/venue"
)

// stores holds every storage implementation the server wires.
type stores struct {
	assets  storage.AssetStore
	trades  storage.TradeStore
	candles storage.CandleStore
	ticks   storage.TickStore
	rates   storage.RateStore
}

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("RPC_ENDPOINT"), "execution layer RPC HTTP endpoint")
	wsEndpoint := flag.String("ws-endpoint", os.Getenv("WS_ENDPOINT"), "execution layer WebSocket endpoint")
	venueEndpoint := flag.String("venue-endpoint", os.Getenv("VENUE_ENDPOINT"), "venue service endpoint for graduation")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "use in-memory storage instead of PostgreSQL/ClickHouse")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API listen address")
	confirmTimeout := flag.Duration("confirm-timeout", trading.DefaultConfirmTimeout, "settlement confirmation timeout")
	oracleRefresh := flag.String("oracle-refresh", "@every 30s", "cron spec for reference rate refresh")
	heartbeat := flag.String("heartbeat", "@every 1m", "cron spec for candle heartbeats")
	logLevel := flag.String("log-level", "info", "log level: debug, info, warn, error")

	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(*logLevel); err == nil {
		logger.SetLevel(level)
	}

	if *rpcEndpoint == "" {
		logger.Fatal("--rpc-endpoint is required")
	}
	if !*useMemory && (*postgresDSN == "" || *clickhouseDSN == "") {
		logger.Fatal("--postgres-dsn and --clickhouse-dsn are required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory)
	if err != nil {
		logger.Fatalf("create stores: %v", err)
	}
	defer cleanup()

	// Market data plumbing.
	priceOracle := oracle.New(logger, []oracle.Source{
		oracle.NewCoinGeckoSource(os.Getenv("COINGECKO_URL")),
		oracle.NewJupiterSource(os.Getenv("JUPITER_URL")),
	}, oracle.WithRateStore(st.rates))

	aggregator := candles.New(st.candles, priceOracle, logger)

	// Trading core.
	client := chain.NewHTTPClient(*rpcEndpoint)
	service := trading.New(st.assets, st.trades, client, logger,
		trading.WithAggregator(aggregator),
		trading.WithTicks(st.ticks),
		trading.WithRates(priceOracle),
		trading.WithConfirmTimeout(*confirmTimeout))

	// Graduation flow, wired only when a venue service is configured.
	var controller *graduation.Controller
	if *venueEndpoint != "" {
		venueClient := venue.NewClient(*venueEndpoint)
		controller = graduation.New(st.assets, venueClient, venueClient, logger)
	} else {
		logger.Warn("no --venue-endpoint configured, graduation endpoints disabled")
	}

	// Scheduled jobs: oracle refresh and candle heartbeats.
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(*oracleRefresh, func() {
		err := priceOracle.Refresh(ctx)
		snap, _ := priceOracle.Rate(ctx)
		observability.RecordOracleRefresh(snap.Rate, err)
		if err != nil {
			logger.WithError(err).Warn("scheduled oracle refresh failed")
		}
	}); err != nil {
		logger.Fatalf("schedule oracle refresh: %v", err)
	}
	if _, err := scheduler.AddFunc(*heartbeat, func() {
		runHeartbeats(ctx, st.assets, aggregator, logger)
	}); err != nil {
		logger.Fatalf("schedule heartbeats: %v", err)
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Log watcher reconciles settlements whose recording was skipped.
	if *wsEndpoint != "" {
		watcher, err := chain.NewWatcher(ctx, *wsEndpoint, nil)
		if err != nil {
			logger.Fatalf("start log watcher: %v", err)
		}
		defer watcher.Close()
		go runReconciler(ctx, watcher, service, logger)
	} else {
		logger.Warn("no --ws-endpoint configured, watcher reconciliation disabled")
	}

	api := newAPI(service, aggregator, controller, logger)
	httpServer := &http.Server{
		Addr:    *httpAddr,
		Handler: api.routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", *httpAddr).Info("http server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.WithField("signal", sig.String()).Info("shutting down")
	case err := <-errCh:
		logger.WithError(err).Error("http server failed")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("http shutdown incomplete")
	}

	logger.Info("shutdown complete")
}

// createStores builds the storage layer. Postgres carries assets, trades,
// and candles; ClickHouse archives ticks and rate history.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool) (*stores, func(), error) {
	if useMemory {
		trades := memory.NewTradeStore()
		return &stores{
			assets:  memory.NewAssetStore(trades),
			trades:  trades,
			candles: memory.NewCandleStore(),
			ticks:   memory.NewTickStore(),
			rates:   memory.NewRateStore(),
		}, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	chConn, err := migrations.RunClickhouseMigrations(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
	}

	st := &stores{
		assets:  pgstore.NewAssetStore(pool),
		trades:  pgstore.NewTradeStore(pool),
		candles: pgstore.NewCandleStore(pool),
		ticks:   chstore.NewTickStore(chConn),
		rates:   chstore.NewRateStore(chConn),
	}
	cleanup := func() {
		chConn.Close()
		pool.Close()
	}
	return st, cleanup, nil
}

// runHeartbeats refreshes USD legs of open candle buckets for every asset.
func runHeartbeats(ctx context.Context, assets storage.AssetStore, aggregator *candles.Aggregator, logger *logrus.Logger) {
	list, err := assets.List(ctx, 0)
	if err != nil {
		logger.WithError(err).Warn("heartbeat: list assets")
		return
	}
	for _, asset := range list {
		if err := aggregator.Heartbeat(ctx, asset.Mint); err != nil {
			logger.WithError(err).WithField("mint", asset.Mint).Warn("heartbeat failed")
		}
	}
	observability.RecordHeartbeat()
}

// runReconciler feeds watcher notifications through the settlement
// recording path.
func runReconciler(ctx context.Context, watcher *chain.Watcher, service *trading.Service, logger *logrus.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case note, ok := <-watcher.Notifications():
			if !ok {
				return
			}
			observability.DefaultMetrics.WatcherEvents.Inc()
			if err := service.Reconcile(ctx, &note); err != nil {
				logger.WithError(err).WithField("signature", note.Signature).Warn("reconciliation failed")
			}
		}
	}
}
