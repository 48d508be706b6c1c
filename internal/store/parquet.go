package store

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// Compile-time interface checks.
var _ BarStore = (*ParquetStore)(nil)
var _ OptionStore = (*ParquetStore)(nil)

// ParquetStore implements BarStore and OptionStore using one Parquet file per
// dataset on disk. Writes replace the file atomically.
type ParquetStore struct {
	DataDir string
}

// NewParquetStore creates a new ParquetStore rooted at the given data directory.
func NewParquetStore(dataDir string) *ParquetStore {
	return &ParquetStore{DataDir: dataDir}
}

// ---------------------------------------------------------------------------
// Parquet record types (on-disk schema)
// ---------------------------------------------------------------------------

// BarRecord is the Parquet schema for minute bars. ts is epoch seconds and
// datetime the same instant rendered in IST.
type BarRecord struct {
	Timestamp int64   `parquet:"ts"`
	Datetime  string  `parquet:"datetime,snappy"`
	Open      float64 `parquet:"open,snappy"`
	High      float64 `parquet:"high,snappy"`
	Low       float64 `parquet:"low,snappy"`
	Close     float64 `parquet:"close,snappy"`
	Volume    int64   `parquet:"volume,snappy"`
}

// OptionRecord is the Parquet schema for enriched option bars.
type OptionRecord struct {
	Timestamp    int64   `parquet:"ts"`
	Datetime     string  `parquet:"datetime,snappy"`
	Underlying   string  `parquet:"underlying,snappy,dict"`
	OptionType   string  `parquet:"option_type,snappy,dict"`
	ExpiryType   string  `parquet:"expiry_type,snappy,dict"`
	ExpiryCode   int32   `parquet:"expiry_code,snappy"`
	ATMStrike    float64 `parquet:"atm_strike,snappy"`
	StrikeOffset int32   `parquet:"strike_offset,snappy"`
	Moneyness    string  `parquet:"moneyness,snappy,dict"`
	Strike       float64 `parquet:"strike,snappy"`
	Spot         float64 `parquet:"spot,snappy"`
	Open         float64 `parquet:"open,snappy"`
	High         float64 `parquet:"high,snappy"`
	Low          float64 `parquet:"low,snappy"`
	Close        float64 `parquet:"close,snappy"`
	Volume       int64   `parquet:"volume,snappy"`
	OI           int64   `parquet:"oi,snappy"`
	IV           float64 `parquet:"iv,snappy"`
}

// optionKey identifies one option row within a dataset.
type optionKey struct {
	ts         int64
	underlying string
	optionType string
	expiryType string
	expiryCode int32
	strike     float64
}

func (r OptionRecord) key() optionKey {
	return optionKey{r.Timestamp, r.Underlying, r.OptionType, r.ExpiryType, r.ExpiryCode, r.Strike}
}

// ---------------------------------------------------------------------------
// BarStore implementation
// ---------------------------------------------------------------------------

// MergeBars merges bars into the dataset file at:
//
//	<DataDir>/<category>/<dir>/<SYMBOL>_1m.parquet
func (s *ParquetStore) MergeBars(ctx context.Context, ds domain.Dataset, bars []domain.Bar) (int, error) {
	if len(bars) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path := s.Path(ds)
	existing, err := readParquetFile[BarRecord](path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	incoming := make([]BarRecord, len(bars))
	for i, b := range bars {
		incoming[i] = toBarRecord(b)
	}

	merged, added := mergeRecords(existing, incoming,
		func(r BarRecord) int64 { return r.Timestamp },
		func(a, b BarRecord) int { return cmp.Compare(a.Timestamp, b.Timestamp) },
	)
	if added == 0 && slices.Equal(merged, existing) {
		return 0, nil
	}
	if err := writeParquetFile(path, merged, ds.Symbol); err != nil {
		return 0, err
	}
	return added, nil
}

// ReadBars reads every bar of the dataset. A missing file yields no bars.
func (s *ParquetStore) ReadBars(_ context.Context, ds domain.Dataset) ([]domain.Bar, error) {
	records, err := readParquetFile[BarRecord](s.Path(ds))
	if err != nil {
		return nil, err
	}
	bars := make([]domain.Bar, len(records))
	for i, r := range records {
		bars[i] = domain.Bar{
			Timestamp: time.Unix(r.Timestamp, 0).In(domain.IST),
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    r.Volume,
		}
	}
	return bars, nil
}

// LastTimestamp returns the max ts of the dataset, or the zero time when the
// file does not exist or holds no rows. The file may be a bar or an option
// table; only the ts column is consulted.
func (s *ParquetStore) LastTimestamp(_ context.Context, ds domain.Dataset) (time.Time, error) {
	type tsOnly struct {
		Timestamp int64 `parquet:"ts"`
	}
	records, err := readParquetFile[tsOnly](s.Path(ds))
	if err != nil {
		return time.Time{}, err
	}
	if len(records) == 0 {
		return time.Time{}, nil
	}
	maxTS := records[0].Timestamp
	for _, r := range records[1:] {
		maxTS = max(maxTS, r.Timestamp)
	}
	return time.Unix(maxTS, 0).In(domain.IST), nil
}

// ---------------------------------------------------------------------------
// OptionStore implementation
// ---------------------------------------------------------------------------

// MergeOptions merges enriched option rows into the dataset file. Rows with
// equal timestamps are ordered by the remaining key columns.
func (s *ParquetStore) MergeOptions(ctx context.Context, ds domain.Dataset, rows []domain.OptionBar) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	path := s.Path(ds)
	existing, err := readParquetFile[OptionRecord](path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	incoming := make([]OptionRecord, len(rows))
	for i, r := range rows {
		incoming[i] = toOptionRecord(r)
	}

	merged, added := mergeRecords(existing, incoming, OptionRecord.key, compareOptionRecords)
	if added == 0 && slices.Equal(merged, existing) {
		return 0, nil
	}
	if err := writeParquetFile(path, merged, ds.Symbol); err != nil {
		return 0, err
	}
	return added, nil
}

// ReadOptions reads every option row of the dataset.
func (s *ParquetStore) ReadOptions(_ context.Context, ds domain.Dataset) ([]domain.OptionBar, error) {
	records, err := readParquetFile[OptionRecord](s.Path(ds))
	if err != nil {
		return nil, err
	}
	out := make([]domain.OptionBar, len(records))
	for i, r := range records {
		out[i] = domain.OptionBar{
			OptionQuote: domain.OptionQuote{
				Bar: domain.Bar{
					Timestamp:    time.Unix(r.Timestamp, 0).In(domain.IST),
					Open:         r.Open,
					High:         r.High,
					Low:          r.Low,
					Close:        r.Close,
					Volume:       r.Volume,
					OpenInterest: r.OI,
					IV:           r.IV,
				},
				Underlying: r.Underlying,
				OptionType: domain.OptionType(r.OptionType),
				ExpiryType: domain.ExpiryType(r.ExpiryType),
				ExpiryCode: int(r.ExpiryCode),
				Strike:     r.Strike,
			},
			Spot:         r.Spot,
			ATMStrike:    r.ATMStrike,
			StrikeOffset: int(r.StrikeOffset),
			Moneyness:    domain.Moneyness(r.Moneyness),
		}
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Path helpers
// ---------------------------------------------------------------------------

// Path returns the filesystem path of a dataset file.
// Layout: <dataDir>/<category>/<dir>/<SYMBOL>_1m.parquet
func (s *ParquetStore) Path(ds domain.Dataset) string {
	return filepath.Join(s.DataDir, ds.RelPath())
}

// Symbol returns the symbol recorded in a dataset file's key/value metadata.
func (s *ParquetStore) Symbol(ds domain.Dataset) (string, error) {
	f, err := os.Open(s.Path(ds))
	if err != nil {
		return "", err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", err
	}
	pf, err := parquet.OpenFile(f, info.Size())
	if err != nil {
		return "", err
	}
	v, _ := pf.Lookup(metaSymbol)
	return v, nil
}

// ---------------------------------------------------------------------------
// Record conversion
// ---------------------------------------------------------------------------

const metaSymbol = "symbol"

func formatDatetime(t time.Time) string {
	return t.In(domain.IST).Format(time.RFC3339)
}

func toBarRecord(b domain.Bar) BarRecord {
	return BarRecord{
		Timestamp: b.UnixTime(),
		Datetime:  formatDatetime(b.Timestamp),
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Volume:    b.Volume,
	}
}

func toOptionRecord(o domain.OptionBar) OptionRecord {
	return OptionRecord{
		Timestamp:    o.UnixTime(),
		Datetime:     formatDatetime(o.Timestamp),
		Underlying:   o.Underlying,
		OptionType:   string(o.OptionType),
		ExpiryType:   string(o.ExpiryType),
		ExpiryCode:   int32(o.ExpiryCode),
		ATMStrike:    o.ATMStrike,
		StrikeOffset: int32(o.StrikeOffset),
		Moneyness:    string(o.Moneyness),
		Strike:       o.Strike,
		Spot:         o.Spot,
		Open:         o.Open,
		High:         o.High,
		Low:          o.Low,
		Close:        o.Close,
		Volume:       o.Volume,
		OI:           o.OpenInterest,
		IV:           o.IV,
	}
}

func compareOptionRecords(a, b OptionRecord) int {
	return cmp.Or(
		cmp.Compare(a.Timestamp, b.Timestamp),
		strings.Compare(a.Underlying, b.Underlying),
		strings.Compare(a.ExpiryType, b.ExpiryType),
		cmp.Compare(a.ExpiryCode, b.ExpiryCode),
		cmp.Compare(a.Strike, b.Strike),
		strings.Compare(a.OptionType, b.OptionType),
	)
}

// ---------------------------------------------------------------------------
// Merge
// ---------------------------------------------------------------------------

// mergeRecords overlays incoming on existing by key: an incoming row replaces
// the stored row with the same key, otherwise it is appended. The result is
// stable-sorted with compare. It returns the merged rows and how many keys
// were new.
func mergeRecords[R any, K comparable](existing, incoming []R, key func(R) K, compare func(a, b R) int) ([]R, int) {
	merged := make([]R, len(existing), len(existing)+len(incoming))
	copy(merged, existing)

	index := make(map[K]int, len(existing)+len(incoming))
	for i, r := range merged {
		index[key(r)] = i
	}

	added := 0
	for _, r := range incoming {
		k := key(r)
		if i, ok := index[k]; ok {
			merged[i] = r
			continue
		}
		index[k] = len(merged)
		merged = append(merged, r)
		added++
	}

	slices.SortStableFunc(merged, compare)
	return merged, added
}

// ---------------------------------------------------------------------------
// Parquet file helpers
// ---------------------------------------------------------------------------

// rename and syncDir are swapped in tests to observe the swap.
var (
	rename  = os.Rename
	syncDir = fsyncDir
)

// fsyncDir flushes dir's entries so a completed rename survives a crash.
func fsyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// writeParquetFile writes records to a temp file beside path, syncs it, and
// renames it over path, then syncs the directory. On a failure before the
// rename the previous file is left in place.
func writeParquetFile[T any](path string, records []T, symbol string) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &domain.StorageWriteError{Path: path, Err: err}
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return &domain.StorageWriteError{Path: path, Err: err}
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
			err = &domain.StorageWriteError{Path: path, Err: err}
		}
	}()

	if err = parquet.Write(tmp, records,
		parquet.KeyValueMetadata(metaSymbol, strings.ToUpper(symbol)),
	); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return err
	}
	if err = tmp.Close(); err != nil {
		return err
	}
	if err = rename(tmp.Name(), path); err != nil {
		return err
	}
	return syncDir(dir)
}

// readParquetFile reads every row of path. A missing file is an empty table;
// any other read error is returned so a damaged file is never overwritten.
func readParquetFile[T any](path string) ([]T, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, err
	}
	return rows, nil
}
