package portal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/partner-portal/internal/metrics"
	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/radiusdt/partner-portal/internal/report"
	"github.com/radiusdt/partner-portal/internal/storage"
	"go.uber.org/zap"
)

// JobPublisher hands report generation to a background worker.
type JobPublisher interface {
	PublishReportJob(ctx context.Context, reportID string) error
}

// ReportNotifier is told when a report reaches a final status.
type ReportNotifier interface {
	ReportFinished(ctx context.Context, rep *models.Report)
}

// DateRangeInput is a client-supplied YYYY-MM-DD window.
type DateRangeInput struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// GenerateReportInput describes a report to build. DateRange wins over Days.
type GenerateReportInput struct {
	Name          string          `json:"name"`
	ReportType    string          `json:"reportType"`
	DateRange     *DateRangeInput `json:"dateRange"`
	Days          int             `json:"days"`
	SubAccountIDs []string        `json:"subAccountIds"`
	Format        string          `json:"format"`
}

// ScheduleReportInput describes a recurring report.
type ScheduleReportInput struct {
	ReportType string   `json:"reportType"`
	Frequency  string   `json:"frequency"`
	DayOfMonth int      `json:"dayOfMonth"`
	Recipients []string `json:"recipients"`
	Format     string   `json:"format"`
}

// Download is a rendered report file.
type Download struct {
	FileName    string
	ContentType string
	Body        []byte
}

// ReportService creates, generates and renders reports.
type ReportService struct {
	reports   storage.ReportRepo
	schedules storage.ScheduleRepo
	subs      storage.SubAccountRepo
	reporting *ReportingService
	publisher JobPublisher
	notifier  ReportNotifier
	metrics   *metrics.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

// NewReportService creates a ReportService. With a nil publisher reports are
// generated inline.
func NewReportService(reports storage.ReportRepo, schedules storage.ScheduleRepo, subs storage.SubAccountRepo, reporting *ReportingService, publisher JobPublisher, m *metrics.Metrics, logger *zap.Logger) *ReportService {
	return &ReportService{
		reports:   reports,
		schedules: schedules,
		subs:      subs,
		reporting: reporting,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
		now:       time.Now,
	}
}

// SetNotifier registers n to hear about finished reports.
func (s *ReportService) SetNotifier(n ReportNotifier) {
	s.notifier = n
}

func normalizeFormat(f string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(f)) {
	case "", models.FormatCSV:
		return models.FormatCSV, nil
	case models.FormatXLSX, "excel":
		return models.FormatXLSX, nil
	}
	return "", validationError("format must be csv or xlsx")
}

// Generate records a new report and either queues or builds it.
func (s *ReportService) Generate(ctx context.Context, tenantID string, in GenerateReportInput) (*models.Report, error) {
	format, err := normalizeFormat(in.Format)
	if err != nil {
		return nil, err
	}

	var r models.DateRange
	if in.DateRange != nil {
		r, err = models.NewDateRange(in.DateRange.Start, in.DateRange.End)
		if err != nil {
			return nil, validationError("%v", err)
		}
		if r.Days() > MaxWindowDays {
			return nil, validationError("date range must not exceed %d days", MaxWindowDays)
		}
	} else {
		r = models.LastNDays(s.now(), ClampDays(in.Days))
	}

	ids := dedupe(in.SubAccountIDs)
	for _, id := range ids {
		if _, err := s.subs.GetForTenant(ctx, tenantID, id); err != nil {
			return nil, storageError(err, "get sub-account")
		}
	}

	reportType := strings.TrimSpace(in.ReportType)
	if reportType == "" {
		reportType = "performance"
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = fmt.Sprintf("%s %s to %s", reportType, r.StartDate(), r.EndDate())
	}

	rep := &models.Report{
		ID:            "rpt_" + uuid.NewString(),
		TenantID:      tenantID,
		Name:          name,
		Type:          reportType,
		StartDate:     r.StartDate(),
		EndDate:       r.EndDate(),
		SubAccountIDs: ids,
		Format:        format,
		Status:        models.ReportGenerating,
		CreatedAt:     s.now().UTC(),
	}
	if err := rep.Validate(); err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.reports.Create(ctx, rep); err != nil {
		return nil, storageError(err, "create report")
	}

	if s.publisher != nil {
		err := s.publisher.PublishReportJob(ctx, rep.ID)
		if err == nil {
			s.logger.Info("report queued", zap.String("tenant_id", tenantID), zap.String("report_id", rep.ID))
			return rep, nil
		}
		s.logger.Warn("report queue unavailable, generating inline", zap.String("report_id", rep.ID), zap.Error(err))
	}

	if err := s.Process(ctx, rep.ID); err != nil {
		return nil, err
	}
	return s.Get(ctx, tenantID, rep.ID)
}

// Process computes the snapshot totals for a generating report and marks it
// ready, or failed when its window or sub-accounts are invalid. Other errors
// are returned so the job can be retried. Finished reports are left alone.
func (s *ReportService) Process(ctx context.Context, reportID string) error {
	rep, err := s.reports.GetByID(ctx, reportID)
	if errors.Is(err, storage.ErrNotFound) {
		s.logger.Warn("report job for unknown report", zap.String("report_id", reportID))
		return nil
	}
	if err != nil {
		return storageError(err, "get report")
	}
	if rep.Status != models.ReportGenerating {
		return nil
	}

	rows, err := s.rows(ctx, rep)
	if err != nil && !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrValidation) {
		return err
	}
	now := s.now().UTC()
	if err != nil {
		rep.Status = models.ReportFailed
		rep.Error = err.Error()
	} else {
		t := Totals(rows)
		rep.Totals = &models.ReportTotals{
			Sent:       t.Sent,
			Opens:      t.Opens,
			Replies:    t.Replies,
			Bounces:    t.Bounces,
			OpenRate:   t.OpenRate(),
			ReplyRate:  t.ReplyRate(),
			BounceRate: t.BounceRate(),
			Days:       len(rows),
		}
		rep.Status = models.ReportReady
		rep.ReadyAt = &now
	}

	if err := s.reports.Update(ctx, rep); err != nil {
		return storageError(err, "update report")
	}

	s.metrics.RecordReport(rep.Format, rep.Status)
	s.logger.Info("report processed",
		zap.String("tenant_id", rep.TenantID),
		zap.String("report_id", rep.ID),
		zap.String("status", rep.Status),
	)
	if s.notifier != nil {
		s.notifier.ReportFinished(ctx, rep)
	}
	return nil
}

// rows resolves the report's sub-accounts and returns its merged series.
func (s *ReportService) rows(ctx context.Context, rep *models.Report) ([]models.DailyMetric, error) {
	r, err := rep.Range()
	if err != nil {
		return nil, validationError("%v", err)
	}

	var subs []*models.SubAccount
	if len(rep.SubAccountIDs) == 0 {
		subs, err = s.subs.ListByTenant(ctx, rep.TenantID)
		if err != nil {
			return nil, storageError(err, "list sub-accounts")
		}
	} else {
		for _, id := range rep.SubAccountIDs {
			sub, err := s.subs.GetForTenant(ctx, rep.TenantID, id)
			if err != nil {
				return nil, storageError(err, "get sub-account "+id)
			}
			subs = append(subs, sub)
		}
	}
	return s.reporting.Series(ctx, subs, r), nil
}

// Get returns one of the tenant's reports.
func (s *ReportService) Get(ctx context.Context, tenantID, id string) (*models.Report, error) {
	rep, err := s.reports.GetForTenant(ctx, tenantID, id)
	if err != nil {
		return nil, storageError(err, "get report")
	}
	return rep, nil
}

// List returns the tenant's reports, newest first.
func (s *ReportService) List(ctx context.Context, tenantID string) ([]*models.Report, error) {
	list, err := s.reports.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list reports")
	}
	return list, nil
}

// Download renders a ready report in its format.
func (s *ReportService) Download(ctx context.Context, tenantID, id string) (*Download, error) {
	rep, err := s.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if rep.Status != models.ReportReady {
		return nil, fmt.Errorf("report %s is %s: %w", rep.ID, rep.Status, ErrReportNotReady)
	}

	rows, err := s.rows(ctx, rep)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := report.Render(&buf, rep, rows); err != nil {
		return nil, fmt.Errorf("failed to render report: %w", err)
	}
	return &Download{
		FileName:    report.FileName(rep),
		ContentType: report.ContentType(rep.Format),
		Body:        buf.Bytes(),
	}, nil
}

// Schedule stores a recurring report definition.
func (s *ReportService) Schedule(ctx context.Context, tenantID string, in ScheduleReportInput) (*models.ScheduledReport, error) {
	format, err := normalizeFormat(in.Format)
	if err != nil {
		return nil, err
	}

	recipients := make([]string, 0, len(in.Recipients))
	for _, r := range dedupe(in.Recipients) {
		if !strings.Contains(r, "@") {
			return nil, validationError("invalid recipient %q", r)
		}
		recipients = append(recipients, r)
	}

	sched := &models.ScheduledReport{
		ID:         "sched_" + uuid.NewString(),
		TenantID:   tenantID,
		ReportType: strings.TrimSpace(in.ReportType),
		Frequency:  strings.ToLower(strings.TrimSpace(in.Frequency)),
		DayOfMonth: in.DayOfMonth,
		Recipients: recipients,
		Format:     format,
		CreatedAt:  s.now().UTC(),
	}
	if sched.ReportType == "" {
		sched.ReportType = "performance"
	}
	if sched.Frequency == models.FrequencyWeekly {
		sched.DayOfMonth = 0
	}
	if err := sched.Validate(); err != nil {
		return nil, validationError("%v", err)
	}
	if err := s.schedules.Create(ctx, sched); err != nil {
		return nil, storageError(err, "create schedule")
	}
	return sched, nil
}

// ListSchedules returns the tenant's scheduled reports.
func (s *ReportService) ListSchedules(ctx context.Context, tenantID string) ([]*models.ScheduledReport, error) {
	list, err := s.schedules.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, storageError(err, "list schedules")
	}
	return list, nil
}

// dedupe trims, drops blanks and removes duplicates, sorting the result.
func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
