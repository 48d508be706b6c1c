package india

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/alpacahq/alpaca-trade-api-go/v3/alpaca"
	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

var _ BarSource = (*AlpacaSource)(nil)

// AlpacaSource serves minute bars from the Alpaca market-data API. It is an
// alternative stocks provider; instruments are looked up by symbol, so it
// needs its own stocks.symbols list of symbols Alpaca carries.
type AlpacaSource struct {
	client *marketdata.Client
	feed   string
}

// NewAlpacaSource creates an AlpacaSource. An empty dataURL uses the SDK
// default endpoint.
func NewAlpacaSource(apiKey, apiSecret, dataURL, feed string) *AlpacaSource {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "sip"
	}
	return &AlpacaSource{client: marketdata.NewClient(opts), feed: feed}
}

// Intraday fetches 1-minute bars for inst within r. The SDK pages through
// results itself and does not take a context, so cancellation is only
// observed before the call.
func (s *AlpacaSource) Intraday(ctx context.Context, inst domain.Instrument, r domain.DateRange) ([]domain.Bar, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	abars, err := s.client.GetBars(inst.Symbol, marketdata.GetBarsRequest{
		TimeFrame: marketdata.OneMin,
		Start:     r.Start,
		End:       r.End,
		Feed:      marketdata.Feed(s.feed),
	})
	if err != nil {
		return nil, classifyAlpacaError(inst.Symbol, err)
	}
	return convertAlpacaBars(abars), nil
}

// classifyAlpacaError maps an SDK error onto the upstream sentinels. Client
// errors such as an unknown symbol or bad credentials stay unclassified so
// they are not retried.
func classifyAlpacaError(symbol string, err error) error {
	var apiErr *alpaca.APIError
	if !errors.As(err, &apiErr) {
		return fmt.Errorf("GetBars %s: %v: %w", symbol, err, domain.ErrTransient)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("GetBars %s: %v: %w", symbol, err, domain.ErrRateLimited)
	case apiErr.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf("GetBars %s: %v: %w", symbol, err, domain.ErrTransient)
	}
	return fmt.Errorf("GetBars %s: %w", symbol, err)
}

func convertAlpacaBars(abars []marketdata.Bar) []domain.Bar {
	bars := make([]domain.Bar, 0, len(abars))
	for _, ab := range abars {
		bars = append(bars, domain.Bar{
			Timestamp: ab.Timestamp.In(domain.IST),
			Open:      ab.Open,
			High:      ab.High,
			Low:       ab.Low,
			Close:     ab.Close,
			Volume:    int64(ab.Volume),
		})
	}
	return bars
}
