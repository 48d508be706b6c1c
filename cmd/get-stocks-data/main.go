package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"

	"github.com/harshtodi-pixel/get-stocks-data/internal/config"
	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather"
	"github.com/harshtodi-pixel/get-stocks-data/internal/gather/india"
	"github.com/harshtodi-pixel/get-stocks-data/internal/store"
	"github.com/harshtodi-pixel/get-stocks-data/internal/util"
)

const tool = "get-stocks-data"

func main() {
	// A missing .env is fine; real environment variables still apply.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cmd := &cli.Command{
		Name:  tool,
		Usage: "Incrementally collect 1-minute Indian market data into Parquet",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to the YAML config file",
				Value:   "config/get-stocks-data.yaml",
				Sources: cli.EnvVars("GSD_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "override logging.level (debug, info, warn, error)",
			},
		},
		Commands: []*cli.Command{
			datasetCommand("all", "update spot, then options, then stocks", domain.Categories...),
			datasetCommand("spot", "update index spot series", domain.CategorySpot),
			datasetCommand("options", "update rolling index options", domain.CategoryOptions),
			datasetCommand("stocks", "update equities", domain.CategoryStocks),
			{
				Name:  "history",
				Usage: "list recent instrument runs",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "number of runs to show"},
				},
				Action: historyAction,
			},
			{
				Name:      "status",
				Usage:     "show the stored coverage of each configured dataset",
				ArgsUsage: "[spot|options|stocks ...]",
				Action:    statusAction,
			},
		},
	}

	if err := cmd.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func datasetCommand(name, usage string, categories ...domain.Category) *cli.Command {
	return &cli.Command{
		Name:  name,
		Usage: usage,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return runDatasets(ctx, cmd, categories)
		},
	}
}

// loadConfig reads the config and installs the default logger, writing to
// stdout and, when logging.dir is set, a dated log file.
func loadConfig(cmd *cli.Command) (*config.Config, func(), error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, nil, fmt.Errorf("loading config: %w", err)
	}
	if lvl := cmd.String("log-level"); lvl != "" {
		cfg.Logging.Level = lvl
	}

	var w io.Writer = os.Stdout
	cleanup := func() {}
	if cfg.Logging.Dir != "" {
		f, err := util.OpenLogFile(cfg.Logging.Dir, tool, time.Now())
		if err != nil {
			return nil, nil, err
		}
		w = io.MultiWriter(os.Stdout, f)
		cleanup = func() { f.Close() }
	}
	util.SetDefault(util.NewLogger(cfg.Logging.Level, cfg.Logging.Format, w))
	return cfg, cleanup, nil
}

func runDatasets(ctx context.Context, cmd *cli.Command, categories []domain.Category) error {
	cfg, cleanup, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	gatherers, err := a.gatherers(categories)
	if err != nil {
		return err
	}

	runStart := time.Now()
	if a.cal.IsMarketOpen(runStart) {
		slog.Warn("market is open; today's session will be stored up to the current minute")
	}

	var all []gather.Summary
	var fatal []string
	for _, g := range gatherers {
		if ctx.Err() != nil {
			break
		}

		slog.Info("dataset starting", "dataset", g.Name())
		sums, err := g.Run(ctx)
		all = append(all, sums...)
		if err != nil {
			slog.Error("dataset failed", "dataset", g.Name(), "err", err)
			fatal = append(fatal, fmt.Sprintf("%s: %v", g.Name(), err))
		}
	}

	fmt.Println()
	for _, s := range all {
		fmt.Println(s.String())
	}
	slog.Info("run complete", "instruments", len(all), "elapsed", time.Since(runStart).Round(time.Second))

	if ctx.Err() != nil {
		return cli.Exit("interrupted", 130)
	}
	if len(fatal) > 0 || gather.AnyFailed(all) {
		return cli.Exit("one or more instruments failed", 1)
	}
	return nil
}

func historyAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	runs, err := openRunStore(cfg)
	if err != nil {
		return err
	}
	defer runs.Close()

	records, err := runs.ListRuns(ctx, int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("listing runs: %w", err)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tDATASET\tSTATUS\tWINDOWS\tADDED\tSKIPPED\tTOOK\tERROR")
	for _, r := range records {
		status := "ok"
		if r.Failed() {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\t%s\n",
			r.StartedAt.In(domain.IST).Format(time.DateTime),
			r.Dataset,
			status,
			r.Windows,
			r.RowsAdded,
			r.Skipped,
			r.FinishedAt.Sub(r.StartedAt).Round(time.Second),
			r.Error,
		)
	}
	return tw.Flush()
}

func statusAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	categories := domain.Categories
	if cmd.Args().Len() > 0 {
		categories = nil
		for _, arg := range cmd.Args().Slice() {
			c, err := domain.ParseCategory(arg)
			if err != nil {
				return cli.Exit(err.Error(), 2)
			}
			categories = append(categories, c)
		}
	}

	ps := store.NewParquetStore(cfg.Storage.DataDir)
	tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATASET\tSYMBOL\tTHROUGH\tPATH")
	for _, ds := range configuredDatasets(cfg, categories) {
		through := "-"
		last, err := ps.LastTimestamp(ctx, ds)
		if err != nil {
			through = "unreadable: " + err.Error()
		} else if !last.IsZero() {
			through = last.In(domain.IST).Format(time.DateTime)
		}
		symbol, err := ps.Symbol(ds)
		if err != nil {
			symbol = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", ds, symbol, through, ps.Path(ds))
	}
	return tw.Flush()
}

// configuredDatasets lists the dataset files the config would produce.
func configuredDatasets(cfg *config.Config, categories []domain.Category) []domain.Dataset {
	var out []domain.Dataset
	for _, c := range categories {
		switch c {
		case domain.CategorySpot:
			for _, ix := range cfg.Spot.Indices {
				out = append(out, india.SpotDataset(ix.ShortName))
			}
		case domain.CategoryOptions:
			for _, u := range cfg.Options.Underlyings {
				out = append(out, india.OptionsDataset(u.ShortName))
			}
		case domain.CategoryStocks:
			for _, sym := range cfg.Stocks.Symbols {
				out = append(out, india.StockDataset(sym))
			}
		}
	}
	return out
}
