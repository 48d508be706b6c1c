package india

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
)

var _ gather.Gatherer = (*SpotGatherer)(nil)

// SpotGatherer keeps the configured index spot series up to date.
type SpotGatherer struct {
	cfg      config.SpotConfig
	source   BarSource
	resolver *Resolver
	store    store.BarStore
	runner   *gather.Runner
	fetcher  *gather.Fetcher
	log      *slog.Logger
}

// NewSpotGatherer creates a SpotGatherer. The fetcher is copied with the
// dataset's window size and keeps sharing its limiter.
func NewSpotGatherer(cfg config.SpotConfig, src BarSource, res *Resolver, s store.BarStore, rn *gather.Runner, f *gather.Fetcher) *SpotGatherer {
	return &SpotGatherer{
		cfg:      cfg,
		source:   src,
		resolver: res,
		store:    s,
		runner:   rn,
		fetcher:  f.WithWindowDays(cfg.WindowDays),
		log:      slog.Default().With("gatherer", "spot"),
	}
}

// Name returns the gatherer identifier.
func (g *SpotGatherer) Name() string { return string(domain.CategorySpot) }

// Run updates every configured index in order.
func (g *SpotGatherer) Run(ctx context.Context) ([]gather.Summary, error) {
	start, err := config.StartDate(g.cfg.StartDate, domain.IST)
	if err != nil {
		return nil, fmt.Errorf("parsing spot start date: %w", err)
	}

	var summaries []gather.Summary
	for _, idx := range g.cfg.Indices {
		if ctx.Err() != nil {
			break
		}
		ds := SpotDataset(idx.ShortName)

		sid, err := g.resolver.Index(ctx, idx.Name, idx.SecurityID)
		if err != nil {
			g.log.Error("resolving index", "index", idx.Name, "err", err)
			summaries = append(summaries, gather.Skip(ds, err))
			continue
		}

		inst := domain.Instrument{
			Symbol:         idx.Name,
			SecurityID:     sid,
			Segment:        g.cfg.Segment,
			InstrumentType: "INDEX",
			Category:       domain.CategorySpot,
			StartDate:      start,
		}
		g.log.Info("updating", "index", idx.Name, "security_id", sid)
		summaries = append(summaries,
			gather.Run(ctx, g.runner, ds, start, barSource(g.fetcher, g.source, inst), g.store.MergeBars))
	}
	return summaries, ctx.Err()
}
