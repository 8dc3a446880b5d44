package savings

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPeriod is returned for an unknown reporting period
var ErrInvalidPeriod = errors.New("invalid period")

// Reporting periods
const (
	PeriodDay     = "day"
	PeriodWeek    = "week"
	PeriodMonth   = "month"
	PeriodQuarter = "quarter"
	PeriodYear    = "year"
)

// Window returns the inclusive [start, end] range of a period ending on ref's day.
// end is the last instant of ref's day; start is midnight of ref's day moved
// back by the period length. A "day" window covers ref's day alone.
func Window(period string, ref time.Time) (time.Time, time.Time, error) {
	y, m, d := ref.Date()
	loc := ref.Location()
	end := time.Date(y, m, d, 23, 59, 59, int(time.Second-time.Nanosecond), loc)
	start := time.Date(y, m, d, 0, 0, 0, 0, loc)

	switch period {
	case PeriodDay:
	case PeriodWeek:
		start = start.AddDate(0, 0, -7)
	case PeriodMonth:
		start = start.AddDate(0, -1, 0)
	case PeriodQuarter:
		start = start.AddDate(0, -3, 0)
	case PeriodYear:
		start = start.AddDate(-1, 0, 0)
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, period)
	}
	return start, end, nil
}
