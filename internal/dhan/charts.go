package dhan

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

const (
	intradayPath = "/charts/intraday"
	rollingPath  = "/charts/rollingoption"

	dateTimeLayout = "2006-01-02 15:04:05"
	dateLayout     = "2006-01-02"
)

// --- Intraday ---

type intradayRequest struct {
	SecurityID      string `json:"securityId"`
	ExchangeSegment string `json:"exchangeSegment"`
	Instrument      string `json:"instrument"`
	Interval        string `json:"interval"`
	OI              bool   `json:"oi"`
	FromDate        string `json:"fromDate"`
	ToDate          string `json:"toDate"`
}

// Intraday fetches 1-minute candles for inst within r. The request covers
// [r.Start, r.End-1s] in IST.
func (c *Client) Intraday(ctx context.Context, inst domain.Instrument, r domain.DateRange) ([]domain.Bar, error) {
	req := intradayRequest{
		SecurityID:      inst.SecurityID,
		ExchangeSegment: inst.Segment,
		Instrument:      inst.InstrumentType,
		Interval:        "1",
		FromDate:        r.Start.In(domain.IST).Format(dateTimeLayout),
		ToDate:          r.End.Add(-time.Second).In(domain.IST).Format(dateTimeLayout),
	}

	var resp series
	if err := c.post(ctx, intradayPath, req, &resp); err != nil {
		return nil, fmt.Errorf("intraday %s %s: %w", inst.Symbol, r, err)
	}
	bars, err := resp.bars()
	if err != nil {
		return nil, fmt.Errorf("intraday %s %s: %w", inst.Symbol, r, err)
	}
	return bars, nil
}

// --- Rolling options ---

// OptionQuery selects one rolling option series: an underlying, an expiry
// (flag and code), a strike bucket relative to ATM, and a side.
type OptionQuery struct {
	Underlying domain.Instrument
	ExpiryType domain.ExpiryType
	ExpiryCode int
	Offset     int // strike bucket, 0 = ATM
	Side       domain.OptionType
}

func (q OptionQuery) String() string {
	return fmt.Sprintf("%s %s/%d %s %s", q.Underlying.Symbol, q.ExpiryType, q.ExpiryCode, Bucket(q.Offset), q.Side)
}

// Bucket renders a strike offset the way the rolling API expects it:
// "ATM", "ATM+3", "ATM-7".
func Bucket(offset int) string {
	switch {
	case offset == 0:
		return "ATM"
	case offset > 0:
		return "ATM+" + strconv.Itoa(offset)
	default:
		return "ATM" + strconv.Itoa(offset)
	}
}

type rollingRequest struct {
	ExchangeSegment string   `json:"exchangeSegment"`
	Interval        string   `json:"interval"`
	SecurityID      string   `json:"securityId"`
	Instrument      string   `json:"instrument"`
	ExpiryFlag      string   `json:"expiryFlag"`
	ExpiryCode      int      `json:"expiryCode"`
	Strike          string   `json:"strike"`
	DrvOptionType   string   `json:"drvOptionType"`
	RequiredData    []string `json:"requiredData"`
	FromDate        string   `json:"fromDate"`
	ToDate          string   `json:"toDate"`
}

type rollingResponse struct {
	Data struct {
		CE *series `json:"ce"`
		PE *series `json:"pe"`
	} `json:"data"`
}

var requiredData = []string{"open", "high", "low", "close", "volume", "oi", "iv", "strike", "spot"}

// RollingOption fetches 1-minute candles for one rolling option series
// within r. The API takes whole dates, so the request is widened to cover r
// and callers filter to the exact range.
func (c *Client) RollingOption(ctx context.Context, q OptionQuery, r domain.DateRange) ([]domain.OptionQuote, error) {
	side := "CALL"
	if q.Side == domain.OptionPut {
		side = "PUT"
	}

	from := r.Start.In(domain.IST)
	to := r.End.In(domain.IST)
	if to.Hour() != 0 || to.Minute() != 0 || to.Second() != 0 {
		to = to.AddDate(0, 0, 1)
	}

	req := rollingRequest{
		ExchangeSegment: q.Underlying.Segment,
		Interval:        "1",
		SecurityID:      q.Underlying.SecurityID,
		Instrument:      "OPTIDX",
		ExpiryFlag:      string(q.ExpiryType),
		ExpiryCode:      q.ExpiryCode,
		Strike:          Bucket(q.Offset),
		DrvOptionType:   side,
		RequiredData:    requiredData,
		FromDate:        from.Format(dateLayout),
		ToDate:          to.Format(dateLayout),
	}

	var resp rollingResponse
	if err := c.post(ctx, rollingPath, req, &resp); err != nil {
		return nil, fmt.Errorf("rolling %s %s: %w", q, r, err)
	}

	s := resp.Data.CE
	if q.Side == domain.OptionPut {
		s = resp.Data.PE
	}
	if s == nil || len(s.Timestamp) == 0 {
		return nil, nil
	}
	if len(s.Strike) != len(s.Timestamp) {
		return nil, fmt.Errorf("rolling %s %s: %w: ts=%d strike=%d",
			q, r, ErrMalformedResponse, len(s.Timestamp), len(s.Strike))
	}

	bars, err := s.bars()
	if err != nil {
		return nil, fmt.Errorf("rolling %s %s: %w", q, r, err)
	}

	quotes := make([]domain.OptionQuote, len(bars))
	for i, b := range bars {
		quotes[i] = domain.OptionQuote{
			Bar:          b,
			Underlying:   q.Underlying.Symbol,
			OptionType:   q.Side,
			ExpiryType:   q.ExpiryType,
			ExpiryCode:   q.ExpiryCode,
			Strike:       s.Strike[i],
			ReportedSpot: at(s.Spot, i),
		}
	}
	return quotes, nil
}
