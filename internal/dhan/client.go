// Package dhan is a minimal client for the Dhan v2 charts API and its
// scrip master. Errors are classified into the domain's upstream sentinels
// so callers can decide whether to back off, retry, or split a request.
package dhan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// ErrUnauthorized is returned when the access token is missing or rejected.
// It is never retried.
var ErrUnauthorized = errors.New("dhan: unauthorized")

// ErrMalformedResponse is returned when a payload's arrays disagree in
// length.
var ErrMalformedResponse = errors.New("dhan: misaligned response arrays")

// errNoData marks Dhan's "no data" responses, which are valid empty results.
var errNoData = errors.New("dhan: no data")

// APIError is a non-2xx response from Dhan. Kind is one of the domain
// upstream sentinels (or ErrUnauthorized) and is what errors.Is matches.
type APIError struct {
	Status  int
	Code    string
	Message string
	Kind    error
}

func (e *APIError) Error() string {
	return fmt.Sprintf("dhan: HTTP %d %s: %s", e.Status, e.Code, e.Message)
}

func (e *APIError) Unwrap() error { return e.Kind }

// --- Client ---

// Client issues authenticated POSTs against the Dhan v2 API.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *slog.Logger
}

// NewClient creates a Client. timeout bounds each HTTP exchange.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
		log:     slog.Default().With("client", "dhan"),
	}
}

// errorBody is Dhan's structured error payload.
type errorBody struct {
	ErrorType    string `json:"errorType"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// post sends payload as JSON to path and decodes the response into out.
// A "no data" response leaves out untouched and returns nil.
func (c *Client) post(ctx context.Context, path string, payload, out any) error {
	if c.token == "" {
		return fmt.Errorf("DHAN_ACCESS_TOKEN is not set: %w", ErrUnauthorized)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("access-token", c.token)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("dhan %s: %w: %v", path, domain.ErrTransient, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dhan %s: reading body: %w: %v", path, domain.ErrTransient, err)
	}

	if resp.StatusCode/100 != 2 {
		err := classify(resp.StatusCode, data)
		if errors.Is(err, errNoData) {
			c.log.Debug("no data", "path", path)
			return nil
		}
		return err
	}

	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("dhan %s: decoding response: %w: %v", path, domain.ErrTransient, err)
	}
	return nil
}

// classify maps an HTTP status and Dhan error body onto an error kind.
func classify(status int, data []byte) error {
	var eb errorBody
	_ = json.Unmarshal(data, &eb)
	apiErr := &APIError{Status: status, Code: eb.ErrorCode, Message: strings.TrimSpace(eb.ErrorMessage)}
	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(data))
	}

	switch {
	case (eb.ErrorCode == "DH-905" || eb.ErrorCode == "DH-907") &&
		strings.Contains(strings.ToLower(eb.ErrorMessage), "no data"):
		return errNoData
	case status == http.StatusTooManyRequests || eb.ErrorCode == "DH-904":
		apiErr.Kind = domain.ErrRateLimited
	case status == http.StatusUnauthorized || status == http.StatusForbidden || eb.ErrorCode == "DH-901":
		apiErr.Kind = ErrUnauthorized
	case status >= 500:
		apiErr.Kind = domain.ErrTransient
	default:
		// 400 and the remaining 4xx: the request itself is unacceptable.
		apiErr.Kind = domain.ErrRequestRejected
	}
	return apiErr
}

// --- Response helpers ---

// series holds Dhan's parallel-array candle payload. Numbers may arrive as
// floats even for integer columns.
type series struct {
	Timestamp []float64 `json:"timestamp"`
	Open      []float64 `json:"open"`
	High      []float64 `json:"high"`
	Low       []float64 `json:"low"`
	Close     []float64 `json:"close"`
	Volume    []float64 `json:"volume"`
	OI        []float64 `json:"oi"`
	IV        []float64 `json:"iv"`
	Strike    []float64 `json:"strike"`
	Spot      []float64 `json:"spot"`
}

// bars converts the OHLC columns into bars. Volume, OI, and IV may be
// shorter than the timestamps and are padded with zero.
func (s *series) bars() ([]domain.Bar, error) {
	n := len(s.Timestamp)
	if len(s.Open) != n || len(s.High) != n || len(s.Low) != n || len(s.Close) != n {
		return nil, fmt.Errorf("%w: ts=%d open=%d high=%d low=%d close=%d",
			ErrMalformedResponse, n, len(s.Open), len(s.High), len(s.Low), len(s.Close))
	}

	out := make([]domain.Bar, n)
	for i := range n {
		out[i] = domain.Bar{
			Timestamp:    time.Unix(int64(s.Timestamp[i]), 0).In(domain.IST),
			Open:         s.Open[i],
			High:         s.High[i],
			Low:          s.Low[i],
			Close:        s.Close[i],
			Volume:       int64(at(s.Volume, i)),
			OpenInterest: int64(at(s.OI, i)),
			IV:           at(s.IV, i),
		}
	}
	return out, nil
}

func at(xs []float64, i int) float64 {
	if i < len(xs) {
		return xs[i]
	}
	return 0
}
