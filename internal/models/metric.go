package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-date format used for metric keys.
const DateLayout = "2006-01-02"

// DailyMetric is one day of sending activity for a sub-account. It is unique
// per (SubAccountID, Date).
type DailyMetric struct {
	SubAccountID string `json:"-"`
	Date         string `json:"date"`
	Sent         int64  `json:"sent"`
	Opens        int64  `json:"opens"`
	Replies      int64  `json:"replies"`
	Bounces      int64  `json:"bounces"`
}

// Validate checks the date format and that counters are non-negative.
func (m *DailyMetric) Validate() error {
	if m == nil {
		return errors.New("metric is nil")
	}
	if m.SubAccountID == "" {
		return errors.New("sub-account id is required")
	}
	if _, err := time.Parse(DateLayout, m.Date); err != nil {
		return errors.New("date must be YYYY-MM-DD")
	}
	if m.Sent < 0 || m.Opens < 0 || m.Replies < 0 || m.Bounces < 0 {
		return errors.New("counters must be non-negative")
	}
	return nil
}

// Add accumulates o into m. The date is left untouched.
func (m *DailyMetric) Add(o DailyMetric) {
	m.Sent += o.Sent
	m.Opens += o.Opens
	m.Replies += o.Replies
	m.Bounces += o.Bounces
}

// OpenRate returns opens as a percentage of sent.
func (m DailyMetric) OpenRate() float64 { return Rate(m.Opens, m.Sent) }

// ReplyRate returns replies as a percentage of sent.
func (m DailyMetric) ReplyRate() float64 { return Rate(m.Replies, m.Sent) }

// BounceRate returns bounces as a percentage of sent.
func (m DailyMetric) BounceRate() float64 { return Rate(m.Bounces, m.Sent) }

var hundred = decimal.NewFromInt(100)

// Rate returns 100*num/den rounded half away from zero to one decimal place.
// A zero denominator yields 0.
func Rate(num, den int64) float64 {
	if den == 0 {
		return 0
	}
	pct := decimal.NewFromInt(num).Mul(hundred).Div(decimal.NewFromInt(den)).Round(1)
	f, _ := pct.Float64()
	return f
}

// DateRange is an inclusive window of calendar dates.
type DateRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// LastNDays returns the inclusive window of n calendar days ending on the
// date of now (UTC).
func LastNDays(now time.Time, n int) DateRange {
	if n < 1 {
		n = 1
	}
	end := truncateDay(now.UTC())
	return DateRange{Start: end.AddDate(0, 0, -(n - 1)), End: end}
}

// MonthToDate returns the range from the first of the current UTC month to
// today.
func MonthToDate(now time.Time) DateRange {
	end := truncateDay(now.UTC())
	return DateRange{Start: time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, time.UTC), End: end}
}

// NewDateRange parses two YYYY-MM-DD strings into a range.
func NewDateRange(start, end string) (DateRange, error) {
	s, err := time.Parse(DateLayout, start)
	if err != nil {
		return DateRange{}, errors.New("start date must be YYYY-MM-DD")
	}
	e, err := time.Parse(DateLayout, end)
	if err != nil {
		return DateRange{}, errors.New("end date must be YYYY-MM-DD")
	}
	if e.Before(s) {
		return DateRange{}, errors.New("end date is before start date")
	}
	return DateRange{Start: s, End: e}, nil
}

// StartDate returns the first day formatted as YYYY-MM-DD.
func (r DateRange) StartDate() string { return r.Start.Format(DateLayout) }

// EndDate returns the last day formatted as YYYY-MM-DD.
func (r DateRange) EndDate() string { return r.End.Format(DateLayout) }

// Contains reports whether the YYYY-MM-DD date lies inside the range.
// String comparison is valid because the layout is fixed-width.
func (r DateRange) Contains(date string) bool {
	return date >= r.StartDate() && date <= r.EndDate()
}

// Days returns the number of calendar days covered.
func (r DateRange) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
