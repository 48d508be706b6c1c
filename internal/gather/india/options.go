package india

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/dhan"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/enrich"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
)

var _ gather.Gatherer = (*OptionsGatherer)(nil)

// OptionsGatherer keeps the rolling options chain of each configured
// underlying up to date. Every window fans out one call per expiry flag,
// expiry code, strike bucket, and side. A window is merged only when every
// call either succeeded or was permanently rejected; rejected contracts are
// counted as skipped.
type OptionsGatherer struct {
	cfg      config.OptionsConfig
	source   OptionSource
	resolver *Resolver
	spot     store.BarStore
	options  store.OptionStore
	runner   *gather.Runner
	fetcher  *gather.Fetcher
	log      *slog.Logger
}

// NewOptionsGatherer creates an OptionsGatherer. Spot prices are read from
// the stored spot dataset of each underlying.
func NewOptionsGatherer(cfg config.OptionsConfig, src OptionSource, res *Resolver, spot store.BarStore, options store.OptionStore, rn *gather.Runner, f *gather.Fetcher) *OptionsGatherer {
	return &OptionsGatherer{
		cfg:      cfg,
		source:   src,
		resolver: res,
		spot:     spot,
		options:  options,
		runner:   rn,
		fetcher:  f.WithWindowDays(cfg.WindowDays),
		log:      slog.Default().With("gatherer", "options"),
	}
}

// Name returns the gatherer identifier.
func (g *OptionsGatherer) Name() string { return string(domain.CategoryOptions) }

// Run updates every configured underlying in order.
func (g *OptionsGatherer) Run(ctx context.Context) ([]gather.Summary, error) {
	start, err := config.StartDate(g.cfg.StartDate, domain.IST)
	if err != nil {
		return nil, fmt.Errorf("parsing options start date: %w", err)
	}
	t := enrich.Thresholds{ATMBand: g.cfg.Moneyness.ATMBand, DeepBand: g.cfg.Moneyness.DeepBand}
	if err := t.Validate(); err != nil {
		return nil, fmt.Errorf("moneyness thresholds: %w", err)
	}

	var summaries []gather.Summary
	for _, u := range g.cfg.Underlyings {
		if ctx.Err() != nil {
			break
		}
		ds := OptionsDataset(u.ShortName)

		sid, err := g.resolver.Index(ctx, u.MatchName, u.SecurityID)
		if err != nil {
			g.log.Error("resolving underlying", "underlying", u.Name, "err", err)
			summaries = append(summaries, gather.Skip(ds, err))
			continue
		}

		inst := domain.Instrument{
			Symbol:         u.Name,
			SecurityID:     sid,
			Segment:        u.Segment,
			InstrumentType: "OPTIDX",
			Category:       domain.CategoryOptions,
			StartDate:      start,
		}
		g.log.Info("updating", "underlying", u.Name, "security_id", sid, "calls_per_window", len(g.queries(inst)))
		summaries = append(summaries,
			gather.Run(ctx, g.runner, ds, start, g.chainSource(inst, u, t), g.options.MergeOptions))
	}
	return summaries, ctx.Err()
}

// queries lists the fan-out of one window.
func (g *OptionsGatherer) queries(inst domain.Instrument) []dhan.OptionQuery {
	var qs []dhan.OptionQuery
	for _, flag := range g.cfg.ExpiryFlags {
		for _, code := range g.cfg.ExpiryCodes {
			for off := -g.cfg.StrikeRange; off <= g.cfg.StrikeRange; off++ {
				for _, side := range []domain.OptionType{domain.OptionCall, domain.OptionPut} {
					qs = append(qs, dhan.OptionQuery{
						Underlying: inst,
						ExpiryType: domain.ExpiryType(flag),
						ExpiryCode: code,
						Offset:     off,
						Side:       side,
					})
				}
			}
		}
	}
	return qs
}

// chainSource yields one enriched batch per window.
func (g *OptionsGatherer) chainSource(inst domain.Instrument, u config.UnderlyingConfig, t enrich.Thresholds) gather.Source[domain.OptionBar] {
	spotDS := SpotDataset(u.ShortName)

	return func(ctx context.Context, r domain.DateRange) iter.Seq[gather.Batch[domain.OptionBar]] {
		return func(yield func(gather.Batch[domain.OptionBar]) bool) {
			bars, err := g.spot.ReadBars(ctx, spotDS)
			if err != nil {
				yield(gather.Batch[domain.OptionBar]{Range: r, Err: fmt.Errorf("reading spot %s: %w", spotDS, err)})
				return
			}
			series := enrich.NewSpotSeries(bars, g.cfg.SpotTolerance)
			if series.Len() == 0 && !g.cfg.SpotFallback {
				g.log.Warn("no stored spot and fallback disabled; every quote will be skipped", "spot", spotDS.String())
			}

			for _, w := range g.fetcher.Windows(r) {
				b := g.window(ctx, inst, u, t, series, w)
				if !yield(b) || b.Err != nil {
					return
				}
			}
		}
	}
}

func (g *OptionsGatherer) window(ctx context.Context, inst domain.Instrument, u config.UnderlyingConfig, t enrich.Thresholds, series *enrich.SpotSeries, w domain.DateRange) gather.Batch[domain.OptionBar] {
	var quotes []domain.OptionQuote
	var rejected int
	for _, q := range g.queries(inst) {
		if err := ctx.Err(); err != nil {
			return gather.Batch[domain.OptionBar]{Range: w, Err: err}
		}
		rows, err := gather.Do(ctx, g.fetcher, w, func(ctx context.Context, r domain.DateRange) ([]domain.OptionQuote, error) {
			return g.source.RollingOption(ctx, q, r)
		})
		if err != nil && permanent(err) {
			// Retrying later cannot help, so the rest of the chain goes ahead.
			g.log.Warn("contract skipped", "underlying", u.Name, "query", q.String(), "range", w.String(), "err", err)
			rejected++
			continue
		}
		if err != nil {
			return gather.Batch[domain.OptionBar]{Range: w, Err: fmt.Errorf("%s: %w", q, err)}
		}
		quotes = append(quotes, rows...)
	}

	if g.cfg.SpotFallback {
		if n := series.FillMissing(quotes); n > 0 {
			g.log.Debug("spot filled from quotes", "underlying", u.Name, "points", n)
		}
	}

	res, err := enrich.Enrich(quotes, series, u.StrikeStep, t)
	if err != nil {
		return gather.Batch[domain.OptionBar]{Range: w, Err: err}
	}
	if len(res.Issues) > 0 {
		first := res.Issues[0]
		g.log.Warn("quotes skipped",
			"underlying", u.Name,
			"range", w.String(),
			"no_spot", res.SkippedNoSpot(),
			"off_ladder", res.SkippedOffLadder(),
			"first", first.Err,
		)
	}
	return gather.Batch[domain.OptionBar]{Range: w, Rows: res.Rows, Skipped: len(res.Issues) + rejected}
}

// permanent reports whether a contract's call failed in a way no later run
// would fix. Exhausted retries and auth failures do not qualify.
func permanent(err error) bool {
	return errors.Is(err, domain.ErrRequestRejected) || errors.Is(err, dhan.ErrMalformedResponse)
}
