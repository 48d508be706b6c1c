package domain

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func TestTypesExist(t *testing.T) {
	bar := Bar{}
	if !bar.Timestamp.IsZero() {
		t.Error("expected zero Timestamp for zero-value Bar")
	}
	if bar.Open != 0 || bar.High != 0 || bar.Low != 0 || bar.Close != 0 {
		t.Error("expected zero OHLC values for zero-value Bar")
	}
	if bar.Volume != 0 || bar.OpenInterest != 0 || bar.IV != 0 {
		t.Error("expected zero Volume/OpenInterest/IV for zero-value Bar")
	}

	q := OptionQuote{Underlying: "NIFTY", OptionType: OptionCall, ExpiryType: ExpiryWeek, ExpiryCode: 1, Strike: 20000}
	ob := OptionBar{OptionQuote: q, ATMStrike: 20000, Moneyness: MoneynessATM}
	if ob.Underlying != "NIFTY" || ob.Strike != 20000 {
		t.Errorf("embedded quote fields not promoted: %+v", ob)
	}

	if OptionCall != "CE" || OptionPut != "PE" {
		t.Error("OptionType constants have unexpected values")
	}
	if ExpiryWeek != "WEEK" || ExpiryMonth != "MONTH" {
		t.Error("ExpiryType constants have unexpected values")
	}
}

func TestParseCategory(t *testing.T) {
	for _, s := range []string{"spot", "OPTIONS", " stocks "} {
		if _, err := ParseCategory(s); err != nil {
			t.Errorf("ParseCategory(%q) returned error: %v", s, err)
		}
	}
	if _, err := ParseCategory("futures"); err == nil {
		t.Error("ParseCategory(futures) should fail")
	}
}

func TestDatasetRelPath(t *testing.T) {
	ds := Dataset{Category: CategoryStocks, Dir: "RELIANCE", Symbol: "reliance"}
	want := filepath.Join("stocks", "RELIANCE", "RELIANCE_1m.parquet")
	if got := ds.RelPath(); got != want {
		t.Errorf("RelPath() = %q, want %q", got, want)
	}

	opt := Dataset{Category: CategoryOptions, Dir: "nifty", Symbol: "NIFTY_OPTIONS"}
	want = filepath.Join("options", "nifty", "NIFTY_OPTIONS_1m.parquet")
	if got := opt.RelPath(); got != want {
		t.Errorf("RelPath() = %q, want %q", got, want)
	}
}

func TestDateRange(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, IST)
	r := DateRange{Start: start, End: start.AddDate(0, 0, 1)}

	if r.Empty() {
		t.Error("one-day range should not be empty")
	}
	if !r.Contains(start) {
		t.Error("range should contain its start")
	}
	if r.Contains(r.End) {
		t.Error("range should not contain its end")
	}
	if got := r.Duration(); got != 24*time.Hour {
		t.Errorf("Duration() = %v, want 24h", got)
	}
	if !(DateRange{Start: start, End: start}).Empty() {
		t.Error("zero-length range should be empty")
	}
}

func TestFetchExhaustedErrorUnwrap(t *testing.T) {
	err := fmt.Errorf("NIFTY: %w", &FetchExhaustedError{Attempts: 3, Err: ErrRateLimited})

	var fe *FetchExhaustedError
	if !errors.As(err, &fe) {
		t.Fatal("errors.As should find FetchExhaustedError")
	}
	if fe.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", fe.Attempts)
	}
	if !errors.Is(err, ErrRateLimited) {
		t.Error("FetchExhaustedError should unwrap to its cause")
	}
}
