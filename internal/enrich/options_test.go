package enrich

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

var t0 = time.Date(2025, 1, 2, 9, 15, 0, 0, domain.IST)

func TestATMStrike(t *testing.T) {
	tests := []struct {
		spot float64
		inc  int
		want float64
	}{
		{19980, 50, 20000},
		{19960, 50, 19950},
		{19975, 50, 20000}, // tie rounds up
		{19974.99, 50, 19950},
		{20000, 50, 20000},
		{81234.5, 100, 81200},
		{81250, 100, 81300},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ATMStrike(tt.spot, tt.inc), "spot=%v inc=%d", tt.spot, tt.inc)
	}
}

func TestStrikeOffset(t *testing.T) {
	off, err := StrikeOffset(20100, 20000, 50)
	require.NoError(t, err)
	assert.Equal(t, 2, off)

	off, err = StrikeOffset(19850, 20000, 50)
	require.NoError(t, err)
	assert.Equal(t, -3, off)

	_, err = StrikeOffset(20125, 20000, 50)
	assert.ErrorIs(t, err, domain.ErrStrikeOffLadder)
}

func TestClassifyTotal(t *testing.T) {
	th := Thresholds{ATMBand: 0, DeepBand: 5}
	valid := map[domain.Moneyness]bool{
		domain.MoneynessDeepITM: true, domain.MoneynessITM: true, domain.MoneynessATM: true,
		domain.MoneynessOTM: true, domain.MoneynessDeepOTM: true,
	}

	for off := -10; off <= 10; off++ {
		call := Classify(off, domain.OptionCall, th)
		put := Classify(off, domain.OptionPut, th)
		assert.True(t, valid[call], "call offset %d -> %q", off, call)
		assert.True(t, valid[put], "put offset %d -> %q", off, put)

		// Mirror image: a call at -k is labelled like a put at +k.
		assert.Equal(t, call, Classify(-off, domain.OptionPut, th), "offset %d", off)
	}

	assert.Equal(t, domain.MoneynessATM, Classify(0, domain.OptionCall, th))
	assert.Equal(t, domain.MoneynessITM, Classify(-1, domain.OptionCall, th))
	assert.Equal(t, domain.MoneynessOTM, Classify(-1, domain.OptionPut, th))
	assert.Equal(t, domain.MoneynessDeepITM, Classify(5, domain.OptionPut, th))
	assert.Equal(t, domain.MoneynessDeepOTM, Classify(7, domain.OptionCall, th))
	assert.Equal(t, domain.MoneynessOTM, Classify(4, domain.OptionCall, th))
}

func TestClassifyBands(t *testing.T) {
	wide := Thresholds{ATMBand: 1}
	assert.Equal(t, domain.MoneynessATM, Classify(1, domain.OptionCall, wide))
	assert.Equal(t, domain.MoneynessATM, Classify(-1, domain.OptionPut, wide))
	// No deep band: never DEEP_*.
	assert.Equal(t, domain.MoneynessITM, Classify(-10, domain.OptionCall, wide))
	assert.Equal(t, domain.MoneynessOTM, Classify(-10, domain.OptionPut, wide))
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, Thresholds{ATMBand: 0, DeepBand: 5}.Validate())
	assert.NoError(t, Thresholds{ATMBand: 2}.Validate())
	assert.Error(t, Thresholds{ATMBand: -1}.Validate())
	assert.Error(t, Thresholds{ATMBand: 3, DeepBand: 3}.Validate())
}

func quote(ts time.Time, typ domain.OptionType, strike float64) domain.OptionQuote {
	return domain.OptionQuote{
		Bar:        domain.Bar{Timestamp: ts, Close: 100},
		Underlying: "NIFTY",
		OptionType: typ,
		ExpiryType: domain.ExpiryWeek,
		ExpiryCode: 1,
		Strike:     strike,
	}
}

func TestEnrich(t *testing.T) {
	spot := NewSpotSeries([]domain.Bar{
		{Timestamp: t0, Close: 19980},
		{Timestamp: t0.Add(time.Minute), Close: 19960},
	}, 0)

	quotes := []domain.OptionQuote{
		quote(t0.Add(time.Minute), domain.OptionPut, 20050), // 19950 ATM, +2
		quote(t0, domain.OptionCall, 20100),                 // 20000 ATM, +2
		quote(t0.Add(2*time.Minute), domain.OptionCall, 20000),
		quote(t0, domain.OptionCall, 20125),
		quote(t0, domain.OptionPut, 19900),
	}

	res, err := Enrich(quotes, spot, 50, Thresholds{DeepBand: 5})
	require.NoError(t, err)

	require.Len(t, res.Rows, 3)
	assert.Equal(t, 19950.0, res.Rows[0].ATMStrike)
	assert.Equal(t, 2, res.Rows[0].StrikeOffset)
	assert.Equal(t, domain.MoneynessITM, res.Rows[0].Moneyness)
	assert.Equal(t, 19960.0, res.Rows[0].Spot)

	assert.Equal(t, 20000.0, res.Rows[1].ATMStrike)
	assert.Equal(t, 2, res.Rows[1].StrikeOffset)
	assert.Equal(t, domain.MoneynessOTM, res.Rows[1].Moneyness)

	assert.Equal(t, -2, res.Rows[2].StrikeOffset)
	assert.Equal(t, domain.MoneynessOTM, res.Rows[2].Moneyness)

	require.Len(t, res.Issues, 2)
	assert.Equal(t, 2, res.Issues[0].Index)
	assert.ErrorIs(t, res.Issues[0].Err, domain.ErrSpotMissing)
	assert.Equal(t, 3, res.Issues[1].Index)
	assert.ErrorIs(t, res.Issues[1].Err, domain.ErrStrikeOffLadder)
	assert.Equal(t, 1, res.SkippedNoSpot())
	assert.Equal(t, 1, res.SkippedOffLadder())
}

func TestEnrichDeterministic(t *testing.T) {
	spot := NewSpotSeries([]domain.Bar{{Timestamp: t0, Close: 19975}}, 0)
	quotes := []domain.OptionQuote{quote(t0, domain.OptionCall, 20000), quote(t0, domain.OptionPut, 19800)}

	a, err := Enrich(quotes, spot, 50, Thresholds{DeepBand: 5})
	require.NoError(t, err)
	b, err := Enrich(quotes, spot, 50, Thresholds{DeepBand: 5})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestEnrichInvalidParams(t *testing.T) {
	spot := NewSpotSeries(nil, 0)
	_, err := Enrich(nil, spot, 0, Thresholds{})
	assert.Error(t, err)
	_, err = Enrich(nil, spot, 50, Thresholds{ATMBand: 2, DeepBand: 1})
	assert.Error(t, err)
}

func TestSpotSeriesTolerance(t *testing.T) {
	s := NewSpotSeries([]domain.Bar{{Timestamp: t0, Close: 100}}, 2*time.Minute)

	v, ok := s.At(t0.Add(90 * time.Second))
	assert.True(t, ok)
	assert.Equal(t, 100.0, v)

	_, ok = s.At(t0.Add(3 * time.Minute))
	assert.False(t, ok)
	_, ok = s.At(t0.Add(-time.Minute))
	assert.False(t, ok)
}

func TestSpotSeriesFillMissing(t *testing.T) {
	s := NewSpotSeries([]domain.Bar{{Timestamp: t0, Close: 100}}, 0)

	q1 := quote(t0, domain.OptionCall, 100)
	q1.ReportedSpot = 999 // stored spot wins
	q2 := quote(t0.Add(time.Minute), domain.OptionCall, 100)
	q2.ReportedSpot = 101
	q3 := quote(t0.Add(2*time.Minute), domain.OptionCall, 100)

	assert.Equal(t, 1, s.FillMissing([]domain.OptionQuote{q1, q2, q3}))
	assert.Equal(t, 2, s.Len())

	v, _ := s.At(t0)
	assert.Equal(t, 100.0, v)
	v, ok := s.At(t0.Add(time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 101.0, v)
}
