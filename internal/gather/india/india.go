// Package india implements the gatherers for Indian market datasets: index
// spot series, rolling index options, and equities. Each gatherer resolves
// its instruments and hands them to the generic gather.Runner.
package india

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"sync"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/dhan"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
)

// ---------------------------------------------------------------------------
// Upstream sources
// ---------------------------------------------------------------------------

// BarSource returns 1-minute bars of one instrument within a range.
type BarSource interface {
	Intraday(ctx context.Context, inst domain.Instrument, r domain.DateRange) ([]domain.Bar, error)
}

// OptionSource returns 1-minute candles of one rolling option series.
type OptionSource interface {
	RollingOption(ctx context.Context, q dhan.OptionQuery, r domain.DateRange) ([]domain.OptionQuote, error)
}

var (
	_ BarSource    = (*dhan.Client)(nil)
	_ OptionSource = (*dhan.Client)(nil)
)

// barSource adapts a BarSource for one instrument to the runner.
func barSource(f *gather.Fetcher, src BarSource, inst domain.Instrument) gather.Source[domain.Bar] {
	return func(ctx context.Context, r domain.DateRange) iter.Seq[gather.Batch[domain.Bar]] {
		return gather.Fetch(ctx, f, r, func(ctx context.Context, w domain.DateRange) ([]domain.Bar, error) {
			return src.Intraday(ctx, inst, w)
		})
	}
}

// ---------------------------------------------------------------------------
// Datasets
// ---------------------------------------------------------------------------

// SpotDataset is spot/<short>/<SHORT>_1m.parquet.
func SpotDataset(shortName string) domain.Dataset {
	return domain.Dataset{Category: domain.CategorySpot, Dir: shortName, Symbol: strings.ToUpper(shortName)}
}

// OptionsDataset is options/<short>/<SHORT>_OPTIONS_1m.parquet.
func OptionsDataset(shortName string) domain.Dataset {
	return domain.Dataset{Category: domain.CategoryOptions, Dir: shortName, Symbol: strings.ToUpper(shortName) + "_OPTIONS"}
}

// StockDataset is stocks/<SYMBOL>/<SYMBOL>_1m.parquet.
func StockDataset(symbol string) domain.Dataset {
	sym := strings.ToUpper(symbol)
	return domain.Dataset{Category: domain.CategoryStocks, Dir: sym, Symbol: sym}
}

// ---------------------------------------------------------------------------
// Resolver
// ---------------------------------------------------------------------------

// ScripLoader downloads the scrip master.
type ScripLoader interface {
	LoadScripMaster(ctx context.Context, url string) (*dhan.ScripMaster, error)
}

// Resolver maps configured names to Dhan security ids. The scrip master is
// downloaded at most once per process, and only when an id is not pinned in
// config.
type Resolver struct {
	loader ScripLoader
	url    string
	rules  map[string]config.IndexMatchRule

	once   sync.Once
	master *dhan.ScripMaster
	err    error
}

// NewResolver creates a Resolver.
func NewResolver(loader ScripLoader, url string, rules map[string]config.IndexMatchRule) *Resolver {
	return &Resolver{loader: loader, url: url, rules: rules}
}

// Master returns the scrip master, loading it on first use.
func (r *Resolver) Master(ctx context.Context) (*dhan.ScripMaster, error) {
	r.once.Do(func() {
		r.master, r.err = r.loader.LoadScripMaster(ctx, r.url)
	})
	return r.master, r.err
}

// Index returns the security id of the named index. A pinned id wins.
func (r *Resolver) Index(ctx context.Context, name, pinned string) (string, error) {
	if pinned != "" {
		return pinned, nil
	}
	rule, ok := r.rules[name]
	if !ok {
		return "", fmt.Errorf("no index_match rule for %s", name)
	}
	m, err := r.Master(ctx)
	if err != nil {
		return "", err
	}
	return m.ResolveIndex(name, dhan.MatchRule{
		Preferred: rule.Preferred,
		Fallback:  rule.Fallback,
		Exclude:   rule.Exclude,
		Exchange:  rule.Exchange,
	})
}

// Stocks resolves equity symbols on exchange. Unresolved symbols are
// returned in input order.
func (r *Resolver) Stocks(ctx context.Context, exchange string, symbols []string) (map[string]string, []string, error) {
	m, err := r.Master(ctx)
	if err != nil {
		return nil, nil, err
	}
	ids, missing := m.ResolveStocks(exchange, symbols)
	return ids, missing, nil
}
