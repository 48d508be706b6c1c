// Package domain defines the core data types shared across the collector:
// bars, option quotes, instruments, datasets, and date ranges.
package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// IST is India Standard Time (UTC+5:30). A fixed zone is used so the
// collector does not depend on the host's tzdata.
var IST = time.FixedZone("IST", 5*60*60+30*60)

// ---------------------------------------------------------------------------
// Categories and enums
// ---------------------------------------------------------------------------

// Category identifies one of the configured datasets.
type Category string

const (
	CategorySpot    Category = "spot"
	CategoryOptions Category = "options"
	CategoryStocks  Category = "stocks"
)

// Categories lists all datasets in the order an "all" run processes them.
var Categories = []Category{CategorySpot, CategoryOptions, CategoryStocks}

// ParseCategory converts a CLI or config string into a Category.
func ParseCategory(s string) (Category, error) {
	switch c := Category(strings.ToLower(strings.TrimSpace(s))); c {
	case CategorySpot, CategoryOptions, CategoryStocks:
		return c, nil
	}
	return "", fmt.Errorf("unknown dataset %q", s)
}

// OptionType is the option side as labelled by the exchange.
type OptionType string

const (
	OptionCall OptionType = "CE"
	OptionPut  OptionType = "PE"
)

// ExpiryType distinguishes weekly from monthly contract series.
type ExpiryType string

const (
	ExpiryWeek  ExpiryType = "WEEK"
	ExpiryMonth ExpiryType = "MONTH"
)

// Moneyness is a discrete classification of a strike relative to ATM.
type Moneyness string

const (
	MoneynessDeepITM Moneyness = "DEEP_ITM"
	MoneynessITM     Moneyness = "ITM"
	MoneynessATM     Moneyness = "ATM"
	MoneynessOTM     Moneyness = "OTM"
	MoneynessDeepOTM Moneyness = "DEEP_OTM"
)

// ---------------------------------------------------------------------------
// Market data
// ---------------------------------------------------------------------------

// Bar is one OHLCV candle. OpenInterest and IV are only populated for
// derivatives.
type Bar struct {
	Timestamp    time.Time
	Open         float64
	High         float64
	Low          float64
	Close        float64
	Volume       int64
	OpenInterest int64
	IV           float64
}

// UnixTime returns the bar's timestamp in epoch seconds.
func (b Bar) UnixTime() int64 { return b.Timestamp.Unix() }

// OptionQuote is a raw option candle as returned by the upstream, before
// enrichment. ReportedSpot is the underlying price the upstream sent with the
// quote; zero when absent.
type OptionQuote struct {
	Bar
	Underlying   string
	OptionType   OptionType
	ExpiryType   ExpiryType
	ExpiryCode   int
	Strike       float64
	ReportedSpot float64
}

// OptionBar is an enriched option candle.
type OptionBar struct {
	OptionQuote
	Spot         float64
	ATMStrike    float64
	StrikeOffset int
	Moneyness    Moneyness
}

// ---------------------------------------------------------------------------
// Instruments and datasets
// ---------------------------------------------------------------------------

// Instrument describes one upstream security to collect.
type Instrument struct {
	Symbol         string
	SecurityID     string
	Segment        string // e.g. IDX_I, NSE_EQ, NSE_FNO
	InstrumentType string // e.g. INDEX, EQUITY, OPTIDX
	Category       Category
	StartDate      time.Time
}

// Dataset identifies one persisted table. The file lives at
// <category>/<dir>/<SYMBOL>_1m.parquet under the data directory.
type Dataset struct {
	Category Category
	Dir      string
	Symbol   string
}

// RelPath returns the dataset's path relative to the data directory.
func (d Dataset) RelPath() string {
	return filepath.Join(string(d.Category), d.Dir, strings.ToUpper(d.Symbol)+"_1m.parquet")
}

// String returns a short identifier used in logs and summaries.
func (d Dataset) String() string {
	return string(d.Category) + "/" + strings.ToUpper(d.Symbol)
}

// ---------------------------------------------------------------------------
// Ranges
// ---------------------------------------------------------------------------

// DateRange is the half-open time interval [Start, End).
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Empty reports whether the range contains no instants.
func (r DateRange) Empty() bool { return !r.Start.Before(r.End) }

// Contains reports whether t lies in [Start, End).
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && t.Before(r.End)
}

// Duration returns the length of the range.
func (r DateRange) Duration() time.Duration { return r.End.Sub(r.Start) }

func (r DateRange) String() string {
	const layout = "2006-01-02 15:04:05"
	return "[" + r.Start.In(IST).Format(layout) + ", " + r.End.In(IST).Format(layout) + ")"
}

// FetchPlan is an ordered set of non-overlapping ranges still to be fetched.
type FetchPlan []DateRange

// Empty reports whether there is nothing to fetch.
func (p FetchPlan) Empty() bool { return len(p) == 0 }
