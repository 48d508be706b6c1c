// Package enrich derives ATM strike, strike offset, and moneyness for raw
// option quotes against an explicit underlying spot series.
package enrich

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

var half = decimal.NewFromFloat(0.5)

// Thresholds are the moneyness bands, measured in strike steps from ATM.
// An offset with |offset| <= ATMBand is ATM. When DeepBand is positive,
// |offset| >= DeepBand is DEEP_ITM or DEEP_OTM.
type Thresholds struct {
	ATMBand  int
	DeepBand int
}

// Validate rejects bands that would leave an offset unlabelled or
// ambiguous.
func (t Thresholds) Validate() error {
	if t.ATMBand < 0 {
		return fmt.Errorf("atm band %d is negative", t.ATMBand)
	}
	if t.DeepBand != 0 && t.DeepBand <= t.ATMBand {
		return fmt.Errorf("deep band %d must exceed atm band %d", t.DeepBand, t.ATMBand)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Spot series
// ---------------------------------------------------------------------------

// SpotSeries maps bar timestamps to the underlying's price. A lookup with no
// exact match falls back to the latest earlier point within tolerance.
type SpotSeries struct {
	byTS      map[int64]float64
	sorted    []int64
	tolerance time.Duration
}

// NewSpotSeries builds a series from the close of each spot bar.
func NewSpotSeries(bars []domain.Bar, tolerance time.Duration) *SpotSeries {
	s := &SpotSeries{byTS: make(map[int64]float64, len(bars)), tolerance: tolerance}
	for _, b := range bars {
		s.byTS[b.UnixTime()] = b.Close
	}
	s.reindex()
	return s
}

func (s *SpotSeries) reindex() {
	s.sorted = s.sorted[:0]
	for ts := range s.byTS {
		s.sorted = append(s.sorted, ts)
	}
	slices.Sort(s.sorted)
}

// Len returns the number of points in the series.
func (s *SpotSeries) Len() int { return len(s.byTS) }

// At returns the spot price at ts.
func (s *SpotSeries) At(ts time.Time) (float64, bool) {
	sec := ts.Unix()
	if v, ok := s.byTS[sec]; ok {
		return v, true
	}
	if s.tolerance <= 0 {
		return 0, false
	}
	i, _ := slices.BinarySearch(s.sorted, sec)
	if i == 0 {
		return 0, false
	}
	prev := s.sorted[i-1]
	if time.Duration(sec-prev)*time.Second > s.tolerance {
		return 0, false
	}
	return s.byTS[prev], true
}

// FillMissing adds the upstream-reported spot of each quote whose timestamp
// the series lacks. It returns how many points were added.
func (s *SpotSeries) FillMissing(quotes []domain.OptionQuote) int {
	added := 0
	for _, q := range quotes {
		if q.ReportedSpot <= 0 {
			continue
		}
		ts := q.UnixTime()
		if _, ok := s.byTS[ts]; ok {
			continue
		}
		s.byTS[ts] = q.ReportedSpot
		added++
	}
	if added > 0 {
		s.reindex()
	}
	return added
}

// ---------------------------------------------------------------------------
// Derivations
// ---------------------------------------------------------------------------

// ATMStrike snaps spot to the nearest multiple of increment, rounding ties
// up: floor(spot/increment + 0.5) * increment.
func ATMStrike(spot float64, increment int) float64 {
	inc := decimal.NewFromInt(int64(increment))
	atm := decimal.NewFromFloat(spot).Div(inc).Add(half).Floor().Mul(inc)
	f, _ := atm.Float64()
	return f
}

// StrikeOffset returns (strike - atm) / increment. A strike that is not a
// whole number of steps from atm yields domain.ErrStrikeOffLadder.
func StrikeOffset(strike, atm float64, increment int) (int, error) {
	inc := decimal.NewFromInt(int64(increment))
	diff := decimal.NewFromFloat(strike).Sub(decimal.NewFromFloat(atm))
	if !diff.Mod(inc).IsZero() {
		return 0, fmt.Errorf("strike %v is %v from atm %v with step %d: %w",
			strike, diff, atm, increment, domain.ErrStrikeOffLadder)
	}
	return int(diff.Div(inc).IntPart()), nil
}

// Classify labels an offset for the given option side. Calls are in the
// money below ATM, puts above.
func Classify(offset int, typ domain.OptionType, t Thresholds) domain.Moneyness {
	abs := offset
	if abs < 0 {
		abs = -abs
	}
	if abs <= t.ATMBand {
		return domain.MoneynessATM
	}

	itm := (typ == domain.OptionCall && offset < 0) || (typ == domain.OptionPut && offset > 0)
	deep := t.DeepBand > 0 && abs >= t.DeepBand
	switch {
	case itm && deep:
		return domain.MoneynessDeepITM
	case itm:
		return domain.MoneynessITM
	case deep:
		return domain.MoneynessDeepOTM
	default:
		return domain.MoneynessOTM
	}
}

// ---------------------------------------------------------------------------
// Enrich
// ---------------------------------------------------------------------------

// Issue records a quote dropped during enrichment.
type Issue struct {
	Index int // position in the input
	Quote domain.OptionQuote
	Err   error
}

// Result is the output of Enrich. Rows keep the input order of the quotes
// that survived.
type Result struct {
	Rows   []domain.OptionBar
	Issues []Issue
}

// SkippedNoSpot counts quotes dropped for lack of a spot price.
func (r Result) SkippedNoSpot() int { return r.count(domain.ErrSpotMissing) }

// SkippedOffLadder counts quotes dropped because their strike was off the
// ladder.
func (r Result) SkippedOffLadder() int { return r.count(domain.ErrStrikeOffLadder) }

func (r Result) count(target error) int {
	n := 0
	for _, is := range r.Issues {
		if errors.Is(is.Err, target) {
			n++
		}
	}
	return n
}

// Enrich derives atm strike, strike offset, and moneyness for every quote.
// Quotes without spot or with an off-ladder strike are dropped and reported
// in Result.Issues; the rest of the batch is unaffected. An error is
// returned only for invalid parameters.
func Enrich(quotes []domain.OptionQuote, spot *SpotSeries, increment int, t Thresholds) (Result, error) {
	if increment <= 0 {
		return Result{}, fmt.Errorf("strike increment %d must be positive", increment)
	}
	if err := t.Validate(); err != nil {
		return Result{}, err
	}

	res := Result{Rows: make([]domain.OptionBar, 0, len(quotes))}
	for i, q := range quotes {
		price, ok := spot.At(q.Timestamp)
		if !ok {
			res.Issues = append(res.Issues, Issue{Index: i, Quote: q,
				Err: fmt.Errorf("%s %s: %w", q.Underlying, q.Timestamp.Format(time.DateTime), domain.ErrSpotMissing)})
			continue
		}

		atm := ATMStrike(price, increment)
		offset, err := StrikeOffset(q.Strike, atm, increment)
		if err != nil {
			res.Issues = append(res.Issues, Issue{Index: i, Quote: q, Err: err})
			continue
		}

		res.Rows = append(res.Rows, domain.OptionBar{
			OptionQuote:  q,
			Spot:         price,
			ATMStrike:    atm,
			StrikeOffset: offset,
			Moneyness:    Classify(offset, q.OptionType, t),
		})
	}
	return res, nil
}
