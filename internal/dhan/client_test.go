package dhan

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

var (
	nifty = domain.Instrument{Symbol: "NIFTY", SecurityID: "13", Segment: "IDX_I", InstrumentType: "INDEX"}
	day   = domain.DateRange{
		Start: time.Date(2025, 1, 2, 0, 0, 0, 0, domain.IST),
		End:   time.Date(2025, 1, 3, 0, 0, 0, 0, domain.IST),
	}
)

func newTestServer(t *testing.T, handler func(w http.ResponseWriter, body map[string]any)) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "tok", r.Header.Get("access-token"))
		body := map[string]any{}
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		body["_path"] = r.URL.Path
		handler(w, body)
	}))
	t.Cleanup(srv.Close)
	return NewClient(srv.URL, "tok", 5*time.Second)
}

func TestIntraday(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, intradayPath, body["_path"])
		assert.Equal(t, "13", body["securityId"])
		assert.Equal(t, "IDX_I", body["exchangeSegment"])
		assert.Equal(t, "INDEX", body["instrument"])
		assert.Equal(t, "1", body["interval"])
		assert.Equal(t, "2025-01-02 00:00:00", body["fromDate"])
		assert.Equal(t, "2025-01-02 23:59:59", body["toDate"])

		// Index volume arrives empty and is padded.
		io.WriteString(w, `{"timestamp":[1735789500,1735789560],"open":[1,2],"high":[3,4],"low":[0.5,1.5],"close":[2,3],"volume":[]}`)
	})

	bars, err := c.Intraday(context.Background(), nifty, day)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, int64(1735789500), bars[0].UnixTime())
	assert.Equal(t, "09:15", bars[0].Timestamp.Format("15:04"))
	assert.Equal(t, 3.0, bars[1].Close)
	assert.Equal(t, int64(0), bars[1].Volume)
}

func TestIntradayMisaligned(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ map[string]any) {
		io.WriteString(w, `{"timestamp":[1,2],"open":[1],"high":[1,2],"low":[1,2],"close":[1,2]}`)
	})
	_, err := c.Intraday(context.Background(), nifty, day)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"no data 905", 400, `{"errorCode":"DH-905","errorMessage":"No data present"}`, nil},
		{"no data 907", 400, `{"errorCode":"DH-907","errorMessage":"no data found"}`, nil},
		{"rejected", 400, `{"errorCode":"DH-905","errorMessage":"Invalid date range"}`, domain.ErrRequestRejected},
		{"rate limited 429", 429, ``, domain.ErrRateLimited},
		{"rate limited code", 400, `{"errorCode":"DH-904","errorMessage":"Too many requests"}`, domain.ErrRateLimited},
		{"server error", 502, `bad gateway`, domain.ErrTransient},
		{"unauthorized", 401, `{"errorCode":"DH-901","errorMessage":"Invalid token"}`, ErrUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestServer(t, func(w http.ResponseWriter, _ map[string]any) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			})
			bars, err := c.Intraday(context.Background(), nifty, day)
			if tt.want == nil {
				require.NoError(t, err)
				assert.Empty(t, bars)
				return
			}
			assert.ErrorIs(t, err, tt.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tt.status, apiErr.Status)
		})
	}
}

func TestMissingToken(t *testing.T) {
	c := NewClient("http://127.0.0.1:0", "", time.Second)
	_, err := c.Intraday(context.Background(), nifty, day)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestNetworkErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	c := NewClient(url, "tok", time.Second)
	_, err := c.Intraday(context.Background(), nifty, day)
	assert.ErrorIs(t, err, domain.ErrTransient)
}

func TestBucket(t *testing.T) {
	assert.Equal(t, "ATM", Bucket(0))
	assert.Equal(t, "ATM+3", Bucket(3))
	assert.Equal(t, "ATM-7", Bucket(-7))
}

func TestRollingOption(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, rollingPath, body["_path"])
		assert.Equal(t, "NSE_FNO", body["exchangeSegment"])
		assert.Equal(t, "OPTIDX", body["instrument"])
		assert.Equal(t, "MONTH", body["expiryFlag"])
		assert.Equal(t, float64(2), body["expiryCode"])
		assert.Equal(t, "ATM-2", body["strike"])
		assert.Equal(t, "PUT", body["drvOptionType"])
		assert.Equal(t, "2025-01-02", body["fromDate"])
		assert.Equal(t, "2025-01-03", body["toDate"])

		io.WriteString(w, `{"data":{"ce":null,"pe":{
			"timestamp":[1735789500],"open":[10],"high":[12],"low":[9],"close":[11],
			"volume":[1500],"oi":[30000],"iv":[14.2],"strike":[19900],"spot":[19985.5]}}}`)
	})

	q := OptionQuery{
		Underlying: domain.Instrument{Symbol: "NIFTY", SecurityID: "13", Segment: "NSE_FNO"},
		ExpiryType: domain.ExpiryMonth,
		ExpiryCode: 2,
		Offset:     -2,
		Side:       domain.OptionPut,
	}
	quotes, err := c.RollingOption(context.Background(), q, day)
	require.NoError(t, err)
	require.Len(t, quotes, 1)

	got := quotes[0]
	assert.Equal(t, "NIFTY", got.Underlying)
	assert.Equal(t, domain.OptionPut, got.OptionType)
	assert.Equal(t, domain.ExpiryMonth, got.ExpiryType)
	assert.Equal(t, 2, got.ExpiryCode)
	assert.Equal(t, 19900.0, got.Strike)
	assert.Equal(t, 19985.5, got.ReportedSpot)
	assert.Equal(t, int64(30000), got.OpenInterest)
	assert.Equal(t, 14.2, got.IV)
	assert.Equal(t, int64(1500), got.Volume)
}

func TestRollingOptionPartialDayWidensToDate(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, body map[string]any) {
		assert.Equal(t, "2025-01-02", body["fromDate"])
		assert.Equal(t, "2025-01-03", body["toDate"])
		io.WriteString(w, `{"data":{"ce":{"timestamp":[]}}}`)
	})
	r := domain.DateRange{Start: day.Start.Add(10 * time.Hour), End: day.Start.Add(15 * time.Hour)}
	quotes, err := c.RollingOption(context.Background(), OptionQuery{Side: domain.OptionCall}, r)
	require.NoError(t, err)
	assert.Empty(t, quotes)
}

func TestRollingOptionMissingStrikes(t *testing.T) {
	c := newTestServer(t, func(w http.ResponseWriter, _ map[string]any) {
		io.WriteString(w, `{"data":{"ce":{"timestamp":[1,2],"open":[1,1],"high":[1,1],"low":[1,1],"close":[1,1],"strike":[100]}}}`)
	})
	_, err := c.RollingOption(context.Background(), OptionQuery{Side: domain.OptionCall}, day)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

const scripCSV = "\ufeffEXCH_ID,SEGMENT,SECURITY_ID,INSTRUMENT_TYPE,SYMBOL_NAME,DISPLAY_NAME,SERIES\n" +
	"NSE,I,25,INDEX,BANKNIFTY,Nifty Bank,\n" +
	"NSE,I,13,INDEX,NIFTY,Nifty 50,\n" +
	"BSE,I,99,INDEX,NIFTY,Nifty 50 BSE,\n" +
	"NSE,I,27,INDEX,FINNIFTY,Nifty Fin Service,\n" +
	"BSE,I,51,INDEX,SENSEX,S&P BSE SENSEX,\n" +
	"BSE,I,52,INDEX,MIDCAP,S&P BSE MIDCAP SENSEX,\n" +
	"NSE,E,2885,EQUITY,RELIANCE,Reliance Industries,EQ\n" +
	"NSE,E,9999,EQUITY,TCS,TCS BE,BE\n" +
	"NSE,E,11536,EQUITY,TCS,Tata Consultancy,EQ\n" +
	"BSE,E,500325,EQUITY,RELIANCE,Reliance Industries,A\n"

func TestScripMasterResolve(t *testing.T) {
	m, err := ParseScripMaster(strings.NewReader(scripCSV))
	require.NoError(t, err)
	assert.Equal(t, 10, m.Len())

	sid, err := m.ResolveIndex("NIFTY_50", MatchRule{
		Preferred: []string{"NIFTY 50"},
		Fallback:  []string{"NIFTY"},
		Exclude:   []string{"BANK", "FIN", "MIDCAP", "NEXT 50", "IT"},
		Exchange:  "NSE",
	})
	require.NoError(t, err)
	assert.Equal(t, "13", sid)

	sid, err = m.ResolveIndex("SENSEX", MatchRule{
		Preferred: []string{"S&P BSE SENSEX", "SENSEX"},
		Exclude:   []string{"MIDCAP", "SMALLCAP"},
		Exchange:  "BSE",
	})
	require.NoError(t, err)
	assert.Equal(t, "51", sid)

	_, err = m.ResolveIndex("VIX", MatchRule{Preferred: []string{"VIX"}})
	assert.Error(t, err)

	ids, missing := m.ResolveStocks("NSE", []string{"RELIANCE", "TCS", "NOPE"})
	assert.Equal(t, map[string]string{"RELIANCE": "2885", "TCS": "11536"}, ids)
	assert.Equal(t, []string{"NOPE"}, missing)
}

func TestLoadScripMaster(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, scripCSV)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	m, err := c.LoadScripMaster(context.Background(), srv.URL+"/api-scrip-master-detailed.csv")
	require.NoError(t, err)
	assert.Equal(t, 10, m.Len())
	assert.Equal(t, 1, calls)
}

func TestLoadScripMasterNotFound(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", time.Second)
	_, err := c.LoadScripMaster(context.Background(), srv.URL)
	assert.Error(t, err)
	assert.Equal(t, 1, calls, "4xx is not retried")
}
