package india

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
)

var _ gather.Gatherer = (*StocksGatherer)(nil)

// StocksGatherer keeps one minute-bar dataset per configured equity up to
// date. Symbols are processed by up to MaxWorkers goroutines that all share
// the fetcher's limiter.
type StocksGatherer struct {
	cfg      config.StocksConfig
	source   BarSource
	resolver *Resolver // nil when the source takes plain symbols
	store    store.BarStore
	runner   *gather.Runner
	fetcher  *gather.Fetcher
	log      *slog.Logger
}

// NewStocksGatherer creates a StocksGatherer. A nil resolver skips security
// id resolution and passes symbols through, as the Alpaca source expects.
func NewStocksGatherer(cfg config.StocksConfig, src BarSource, res *Resolver, s store.BarStore, rn *gather.Runner, f *gather.Fetcher) *StocksGatherer {
	return &StocksGatherer{
		cfg:      cfg,
		source:   src,
		resolver: res,
		store:    s,
		runner:   rn,
		fetcher:  f.WithWindowDays(cfg.WindowDays),
		log:      slog.Default().With("gatherer", "stocks"),
	}
}

// Name returns the gatherer identifier.
func (g *StocksGatherer) Name() string { return string(domain.CategoryStocks) }

// Run updates every configured symbol. Summaries keep the configured symbol
// order regardless of which worker finished first.
func (g *StocksGatherer) Run(ctx context.Context) ([]gather.Summary, error) {
	start, err := config.StartDate(g.cfg.StartDate, domain.IST)
	if err != nil {
		return nil, fmt.Errorf("parsing stocks start date: %w", err)
	}

	ids, missing, err := g.resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("resolving stock symbols: %w", err)
	}
	if len(missing) > 0 {
		g.log.Warn("symbols not in scrip master", "count", len(missing), "symbols", missing)
	}

	summaries := make([]gather.Summary, len(g.cfg.Symbols))
	jobCh := make(chan int, len(g.cfg.Symbols))
	for i, sym := range g.cfg.Symbols {
		if _, ok := ids[sym]; !ok {
			summaries[i] = gather.Skip(StockDataset(sym), fmt.Errorf("%s: security id not found", sym))
			continue
		}
		jobCh <- i
	}
	close(jobCh)

	var (
		wg       sync.WaitGroup
		done     atomic.Int64
		failed   atomic.Int64
		runStart = time.Now()
		total    = len(jobCh)
	)

	workers := max(min(g.cfg.MaxWorkers, total), 1)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobCh {
				if ctx.Err() != nil {
					return
				}

				sym := g.cfg.Symbols[i]
				inst := domain.Instrument{
					Symbol:         sym,
					SecurityID:     ids[sym],
					Segment:        g.cfg.Segment,
					InstrumentType: "EQUITY",
					Category:       domain.CategoryStocks,
					StartDate:      start,
				}
				sum := gather.Run(ctx, g.runner, StockDataset(sym), start, barSource(g.fetcher, g.source, inst), g.store.MergeBars)
				summaries[i] = sum

				n := done.Add(1)
				if !sum.OK() {
					failed.Add(1)
				}
				g.log.Info("symbol done",
					"symbol", sym,
					"progress", fmt.Sprintf("%d/%d", n, total),
					"added", sum.RowsAdded,
					"elapsed", time.Since(runStart).Round(time.Second),
				)
			}
		}()
	}
	wg.Wait()

	g.log.Info("complete",
		"symbols", done.Load(),
		"failed", failed.Load(),
		"unresolved", len(missing),
		"elapsed", time.Since(runStart).Round(time.Second),
	)

	// Symbols never reached because of cancellation have no summary.
	out := summaries[:0]
	for _, s := range summaries {
		if s.Dataset.Symbol != "" {
			out = append(out, s)
		}
	}
	return out, ctx.Err()
}

// resolve returns a security id per symbol. Without a resolver every symbol
// maps to itself.
func (g *StocksGatherer) resolve(ctx context.Context) (map[string]string, []string, error) {
	if g.resolver == nil {
		ids := make(map[string]string, len(g.cfg.Symbols))
		for _, sym := range g.cfg.Symbols {
			ids[sym] = sym
		}
		return ids, nil, nil
	}
	return g.resolver.Stocks(ctx, g.cfg.Exchange, g.cfg.Symbols)
}
