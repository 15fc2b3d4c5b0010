package models

import (
	"errors"
	"time"
)

// Report statuses.
const (
	ReportGenerating = "generating"
	ReportReady      = "ready"
	ReportFailed     = "failed"
)

// Report formats.
const (
	FormatCSV  = "csv"
	FormatXLSX = "xlsx"
)

// ReportTotals is the snapshot computed when a report is generated.
type ReportTotals struct {
	Sent       int64   `json:"sent"`
	Opens      int64   `json:"opens"`
	Replies    int64   `json:"replies"`
	Bounces    int64   `json:"bounces"`
	OpenRate   float64 `json:"openRate"`
	ReplyRate  float64 `json:"replyRate"`
	BounceRate float64 `json:"bounceRate"`
	Days       int     `json:"days"`
}

// Report is a generated export of daily metrics for a date range.
type Report struct {
	ID            string        `json:"reportId"`
	TenantID      string        `json:"-"`
	Name          string        `json:"name"`
	Type          string        `json:"reportType"`
	StartDate     string        `json:"startDate"`
	EndDate       string        `json:"endDate"`
	SubAccountIDs []string      `json:"subAccountIds"`
	Format        string        `json:"format"`
	Status        string        `json:"status"`
	Totals        *ReportTotals `json:"totals,omitempty"`
	Error         string        `json:"error,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	ReadyAt       *time.Time    `json:"readyAt,omitempty"`
}

// Range returns the report window.
func (r *Report) Range() (DateRange, error) {
	return NewDateRange(r.StartDate, r.EndDate)
}

// Validate checks required fields.
func (r *Report) Validate() error {
	if r == nil {
		return errors.New("report is nil")
	}
	if r.ID == "" || r.TenantID == "" {
		return errors.New("id and tenant id are required")
	}
	if r.Format != FormatCSV && r.Format != FormatXLSX {
		return errors.New("format must be csv or xlsx")
	}
	if _, err := r.Range(); err != nil {
		return err
	}
	return nil
}

// Schedule frequencies.
const (
	FrequencyWeekly  = "weekly"
	FrequencyMonthly = "monthly"
)

// ScheduledReport is a recurring report definition. Delivery is handled
// outside this service.
type ScheduledReport struct {
	ID         string    `json:"id"`
	TenantID   string    `json:"-"`
	ReportType string    `json:"reportType"`
	Frequency  string    `json:"frequency"`
	DayOfMonth int       `json:"dayOfMonth,omitempty"`
	Recipients []string  `json:"recipients"`
	Format     string    `json:"format"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Validate checks frequency, day of month and recipients.
func (s *ScheduledReport) Validate() error {
	if s == nil {
		return errors.New("schedule is nil")
	}
	switch s.Frequency {
	case FrequencyWeekly:
	case FrequencyMonthly:
		if s.DayOfMonth < 1 || s.DayOfMonth > 28 {
			return errors.New("dayOfMonth must be between 1 and 28")
		}
	default:
		return errors.New("frequency must be weekly or monthly")
	}
	if len(s.Recipients) == 0 {
		return errors.New("at least one recipient is required")
	}
	if s.Format != FormatCSV && s.Format != FormatXLSX {
		return errors.New("format must be csv or xlsx")
	}
	return nil
}
