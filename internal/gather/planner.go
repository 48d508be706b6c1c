package gather

import (
	"fmt"
	"time"

	"github.com/harshtodi-pixel/get-stocks-data/internal/domain"
	"github.com/harshtodi-pixel/get-stocks-data/internal/util"
)

// RangePlanner decides which part of an instrument's history still needs to
// be fetched. The stored table's max timestamp is its only state.
type RangePlanner struct {
	Calendar *util.TradingCalendar
	Interval time.Duration // bar interval
}

// NewRangePlanner creates a RangePlanner for 1-minute bars.
func NewRangePlanner(cal *util.TradingCalendar) RangePlanner {
	return RangePlanner{Calendar: cal, Interval: time.Minute}
}

// Plan returns the ranges to fetch so that the stored data covers
// [intendedStart, end of the latest session). existingMax is the zero time
// when nothing is stored. The last stored bar is never refetched.
func (p RangePlanner) Plan(intendedStart, now, existingMax time.Time) (domain.FetchPlan, error) {
	session := p.sessionDay(now)
	horizon := session.AddDate(0, 0, 1)

	if existingMax.IsZero() {
		r := domain.DateRange{Start: intendedStart, End: horizon}
		if r.Empty() {
			return nil, nil
		}
		return domain.FetchPlan{r}, nil
	}

	if existingMax.After(now) {
		return nil, fmt.Errorf("stored max %s is after now %s: %w",
			existingMax.In(domain.IST).Format(time.DateTime), now.In(domain.IST).Format(time.DateTime),
			domain.ErrPlanningInconsistency)
	}

	lastBar := p.Calendar.LastBarStart(session, p.Interval)
	if !existingMax.Before(lastBar) {
		return nil, nil
	}

	return domain.FetchPlan{{Start: existingMax.Add(time.Second), End: horizon}}, nil
}

// sessionDay returns the most recent trading day whose session has opened
// by now. Before the open, that is the previous trading day.
func (p RangePlanner) sessionDay(now time.Time) time.Time {
	today := p.Calendar.Day(now)
	if p.Calendar.IsTradingDay(today) && p.Calendar.Day(p.Calendar.NextOpen(now)).Equal(today) {
		return p.Calendar.LastSessionDay(today.AddDate(0, 0, -1))
	}
	return p.Calendar.LastSessionDay(now)
}
