package util

import (
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
)

// TradingCalendar provides market-hours awareness for the Indian cash and
// derivatives session (NSE/BSE, 09:15-15:30 IST, Monday to Friday).
type TradingCalendar struct {
	loc      *time.Location
	open     time.Duration // offset from midnight
	close    time.Duration
	holidays map[string]struct{} // YYYY-MM-DD
}

// NewTradingCalendar creates a TradingCalendar for the IST session. holidays
// are exchange holidays formatted YYYY-MM-DD.
func NewTradingCalendar(holidays ...string) *TradingCalendar {
	tc := &TradingCalendar{
		loc:      domain.IST,
		open:     9*time.Hour + 15*time.Minute,
		close:    15*time.Hour + 30*time.Minute,
		holidays: make(map[string]struct{}, len(holidays)),
	}
	for _, h := range holidays {
		tc.holidays[h] = struct{}{}
	}
	return tc
}

// Location returns the calendar's time zone.
func (tc *TradingCalendar) Location() *time.Location { return tc.loc }

// Day returns midnight of t's calendar day in the exchange zone.
func (tc *TradingCalendar) Day(t time.Time) time.Time {
	t = t.In(tc.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, tc.loc)
}

// IsTradingDay reports whether the exchange trades on t's calendar day.
func (tc *TradingCalendar) IsTradingDay(t time.Time) bool {
	t = t.In(tc.loc)
	if wd := t.Weekday(); wd == time.Saturday || wd == time.Sunday {
		return false
	}
	_, holiday := tc.holidays[t.Format("2006-01-02")]
	return !holiday
}

// SessionClose returns the close of the session on t's calendar day.
func (tc *TradingCalendar) SessionClose(t time.Time) time.Time {
	return tc.Day(t).Add(tc.close)
}

// LastBarStart returns the start time of the final bar of the session on
// t's calendar day for bars of the given interval.
func (tc *TradingCalendar) LastBarStart(t time.Time, interval time.Duration) time.Time {
	return tc.SessionClose(t).Add(-interval)
}

// IsMarketOpen returns whether the market is open at time t.
func (tc *TradingCalendar) IsMarketOpen(t time.Time) bool {
	if !tc.IsTradingDay(t) {
		return false
	}
	day := tc.Day(t)
	return !t.Before(day.Add(tc.open)) && t.Before(day.Add(tc.close))
}

// NextOpen returns the next market open time at or after t.
func (tc *TradingCalendar) NextOpen(t time.Time) time.Time {
	day := tc.Day(t)
	for i := 0; i < 15; i++ {
		open := day.Add(tc.open)
		if tc.IsTradingDay(day) && !open.Before(t) {
			return open
		}
		day = day.AddDate(0, 0, 1)
	}
	return time.Time{}
}

// LastSessionDay returns midnight of the most recent trading day on or
// before t's calendar day.
func (tc *TradingCalendar) LastSessionDay(t time.Time) time.Time {
	day := tc.Day(t)
	for i := 0; i < 15; i++ {
		if tc.IsTradingDay(day) {
			return day
		}
		day = day.AddDate(0, 0, -1)
	}
	return day
}
