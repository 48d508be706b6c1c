package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/redis/go-redis/v9"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/dhan"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather/india"
	"github.com/harshtodi-pixel/get-stocks-data/internal/notify"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
	"github.com/harshtodi-pixel/get-stocks-data/internal/util"
)

// app wires the stores, upstream clients, and gatherers for one run.
type app struct {
	cfg      *config.Config
	cal      *util.TradingCalendar
	store    *store.ParquetStore
	dhan     *dhan.Client
	resolver *india.Resolver
	runner   *gather.Runner
	fetcher  *gather.Fetcher
	closers  []func() error
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, store: store.NewParquetStore(cfg.Storage.DataDir)}

	a.cal = util.NewTradingCalendar(cfg.Holidays...)
	a.runner = gather.NewRunner(gather.NewRangePlanner(a.cal), a.store)

	// One limiter for every call this process makes.
	limiter := util.NewIntervalLimiter(cfg.Fetch.CallDelay)
	f := gather.NewFetcher(cfg.Spot.WindowDays, limiter)
	f.CallTimeout = cfg.Fetch.CallTimeout
	f.MaxAttempts = cfg.Fetch.MaxAttempts
	f.BaseBackoff = cfg.Fetch.BaseBackoff
	f.RateLimitAttempts = cfg.Fetch.RateLimitAttempts
	f.RateLimitBackoff = cfg.Fetch.RateLimitBackoff
	f.MaxRows = cfg.Fetch.MaxRows
	a.fetcher = f

	a.dhan = dhan.NewClient(cfg.Dhan.BaseURL, cfg.Dhan.AccessToken, cfg.Dhan.Timeout)
	a.resolver = india.NewResolver(a.dhan, cfg.Dhan.InstrumentListURL, cfg.IndexMatch)

	locker, err := a.newLocker(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.runner.Locker = locker

	runs, err := openRunStore(cfg)
	if err != nil {
		slog.Warn("run history disabled", "err", err)
	} else {
		a.runner.Runs = runs
		a.closers = append(a.closers, runs.Close)
	}

	if len(cfg.Notify.KafkaBrokers) > 0 {
		p := notify.NewProducer(cfg.Notify.KafkaBrokers, cfg.Notify.KafkaTopic)
		a.runner.Notifier = p
		a.closers = append(a.closers, p.Close)
		slog.Info("publishing dataset events", "brokers", cfg.Notify.KafkaBrokers, "topic", cfg.Notify.KafkaTopic)
	} else {
		a.runner.Notifier = notify.Noop{}
	}
	return a, nil
}

func (a *app) newLocker(ctx context.Context) (store.Locker, error) {
	if a.cfg.Lock.RedisAddr == "" {
		return store.NewFileLocker(a.cfg.Storage.DataDir, a.cfg.Lock.TTL), nil
	}
	client := redis.NewClient(&redis.Options{Addr: a.cfg.Lock.RedisAddr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to lock redis %s: %w", a.cfg.Lock.RedisAddr, err)
	}
	a.closers = append(a.closers, client.Close)
	return store.NewRedisLocker(client, tool+":lock:", a.cfg.Lock.TTL), nil
}

func openRunStore(cfg *config.Config) (*store.SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		return nil, fmt.Errorf("creating sqlite dir: %w", err)
	}
	return store.NewSQLiteStore(cfg.Storage.SQLitePath)
}

// gatherers builds the gatherer of every category up front, so a missing
// credential fails the run before any dataset is touched.
func (a *app) gatherers(categories []domain.Category) ([]gather.Gatherer, error) {
	out := make([]gather.Gatherer, 0, len(categories))
	for _, c := range categories {
		g, err := a.gatherer(c)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", c, err)
		}
		out = append(out, g)
	}
	return out, nil
}

// gatherer builds the gatherer for one dataset.
func (a *app) gatherer(c domain.Category) (gather.Gatherer, error) {
	needDhan := c != domain.CategoryStocks || a.cfg.Stocks.Provider == "dhan"
	if needDhan && a.cfg.Dhan.AccessToken == "" {
		return nil, errors.New("DHAN_ACCESS_TOKEN is not set")
	}

	switch c {
	case domain.CategorySpot:
		return india.NewSpotGatherer(a.cfg.Spot, a.dhan, a.resolver, a.store, a.runner, a.fetcher), nil
	case domain.CategoryOptions:
		return india.NewOptionsGatherer(a.cfg.Options, a.dhan, a.resolver, a.store, a.store, a.runner, a.fetcher), nil
	case domain.CategoryStocks:
		if a.cfg.Stocks.Provider == "alpaca" {
			src := india.NewAlpacaSource(a.cfg.Alpaca.APIKey, a.cfg.Alpaca.APISecret, a.cfg.Alpaca.DataURL, a.cfg.Alpaca.Feed)
			return india.NewStocksGatherer(a.cfg.Stocks, src, nil, a.store, a.runner, a.fetcher), nil
		}
		return india.NewStocksGatherer(a.cfg.Stocks, a.dhan, a.resolver, a.store, a.runner, a.fetcher), nil
	}
	return nil, fmt.Errorf("unknown dataset %q", c)
}

// Close releases every resource opened by newApp.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			slog.Warn("closing", "err", err)
		}
	}
}
