package dhan

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/harshtodi-pixel/get-stocks-data/internal/util"
)

// --- Scrip master ---

// ScripMaster is Dhan's detailed instrument list, one map per CSV row keyed
// by trimmed column header.
type ScripMaster struct {
	rows []map[string]string
}

// Len returns the number of instrument rows.
func (m *ScripMaster) Len() int { return len(m.rows) }

// LoadScripMaster downloads and parses the scrip master CSV at url,
// retrying transient failures.
func (c *Client) LoadScripMaster(ctx context.Context, url string) (*ScripMaster, error) {
	var m *ScripMaster
	err := util.Retry(ctx, 3, 5*time.Second, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		// The CSV is tens of megabytes; the API timeout is too short for it.
		resp, err := (&http.Client{}).Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			err := fmt.Errorf("scrip master: HTTP %d", resp.StatusCode)
			if resp.StatusCode/100 == 4 {
				return backoff.Permanent(err)
			}
			return err
		}
		m, err = ParseScripMaster(resp.Body)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("loading scrip master: %w", err)
	}
	c.log.Info("scrip master loaded", "rows", m.Len())
	return m, nil
}

// ParseScripMaster reads a scrip master CSV.
func ParseScripMaster(r io.Reader) (*ScripMaster, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	cols := make([]string, len(header))
	for i, h := range header {
		cols[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}

	m := &ScripMaster{}
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		row := make(map[string]string, len(cols))
		for i, v := range rec {
			if i < len(cols) {
				row[cols[i]] = strings.TrimSpace(v)
			}
		}
		m.rows = append(m.rows, row)
	}
	return m, nil
}

// field returns the first non-empty value among the given column aliases.
func field(row map[string]string, names ...string) string {
	for _, n := range names {
		if v := row[n]; v != "" {
			return v
		}
	}
	return ""
}

func securityID(row map[string]string) string {
	return field(row, "SEM_SMST_SECURITY_ID", "SecurityID", "SECURITY_ID")
}

// --- Index resolution ---

// MatchRule selects an index row by keywords. Preferred and Fallback match
// against "SYMBOL_NAME DISPLAY_NAME"; any Exclude keyword disqualifies.
type MatchRule struct {
	Preferred []string
	Fallback  []string
	Exclude   []string
	Exchange  string
}

func matchesKeywords(text string, includes, excludes []string) bool {
	upper := strings.ToUpper(text)
	if len(includes) > 0 && !slices.ContainsFunc(includes, func(k string) bool {
		return strings.Contains(upper, strings.ToUpper(k))
	}) {
		return false
	}
	return !slices.ContainsFunc(excludes, func(k string) bool {
		return strings.Contains(upper, strings.ToUpper(k))
	})
}

// ResolveIndex returns the security id of the best INDEX row for name. A
// preferred keyword match scores 2, a fallback match 1, and a row on the
// rule's exchange scores one more. Ties keep the earliest row.
func (m *ScripMaster) ResolveIndex(name string, rule MatchRule) (string, error) {
	best, bestScore := "", -1
	for _, row := range m.rows {
		if !strings.EqualFold(field(row, "INSTRUMENT_TYPE", "InstrumentType"), "INDEX") {
			continue
		}
		combined := strings.TrimSpace(field(row, "SYMBOL_NAME", "SymbolName") + " " + field(row, "DISPLAY_NAME", "DisplayName"))
		if combined == "" {
			continue
		}

		var score int
		switch {
		case matchesKeywords(combined, rule.Preferred, rule.Exclude):
			score = 2
		case len(rule.Fallback) > 0 && matchesKeywords(combined, rule.Fallback, rule.Exclude):
			score = 1
		default:
			continue
		}
		if rule.Exchange != "" && strings.EqualFold(field(row, "EXCH_ID", "ExchangeId"), rule.Exchange) {
			score++
		}

		sid := securityID(row)
		if sid != "" && score > bestScore {
			best, bestScore = sid, score
		}
	}
	if best == "" {
		return "", fmt.Errorf("no index instrument matches %s", name)
	}
	return best, nil
}

// --- Equity resolution ---

var equityTypes = []string{"EQUITY", "ES", "EQ"}

// ResolveStocks maps symbols to security ids among equity rows on exchange,
// preferring the EQ series when a symbol is listed more than once. It
// returns the resolved ids and the symbols that were not found, in input
// order.
func (m *ScripMaster) ResolveStocks(exchange string, symbols []string) (map[string]string, []string) {
	type entry struct {
		sid string
		eq  bool
	}
	bySymbol := make(map[string]entry)
	for _, row := range m.rows {
		if !strings.EqualFold(row["EXCH_ID"], exchange) {
			continue
		}
		if !slices.Contains(equityTypes, strings.ToUpper(row["INSTRUMENT_TYPE"])) {
			continue
		}
		sym := row["SYMBOL_NAME"]
		sid := securityID(row)
		if sym == "" || sid == "" {
			continue
		}

		eq := strings.EqualFold(field(row, "SERIES", "SEM_SERIES"), "EQ")
		if cur, ok := bySymbol[sym]; ok && (cur.eq || !eq) {
			continue
		}
		bySymbol[sym] = entry{sid: sid, eq: eq}
	}

	ids := make(map[string]string, len(symbols))
	var missing []string
	for _, sym := range symbols {
		if e, ok := bySymbol[sym]; ok {
			ids[sym] = e.sid
		} else {
			missing = append(missing, sym)
		}
	}
	return ids, missing
}
