package portal

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/radiusdt/partner-portal/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	ids []string
	err error
}

func (p *fakePublisher) PublishReportJob(ctx context.Context, reportID string) error {
	if p.err != nil {
		return p.err
	}
	p.ids = append(p.ids, reportID)
	return nil
}

type fakeNotifier struct {
	statuses []string
}

func (n *fakeNotifier) ReportFinished(ctx context.Context, rep *models.Report) {
	n.statuses = append(n.statuses, rep.ID+":"+rep.Status)
}

func twoDays() *DateRangeInput {
	return &DateRangeInput{Start: "2026-02-01", End: "2026-02-02"}
}

func TestReportGenerateInline(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.reports.Generate(ctx, "tenant_a", GenerateReportInput{DateRange: twoDays()})
	require.NoError(t, err)
	assert.Equal(t, models.ReportReady, rep.Status)
	assert.Equal(t, models.FormatCSV, rep.Format)
	assert.Equal(t, "performance", rep.Type)
	assert.Equal(t, "performance 2026-02-01 to 2026-02-02", rep.Name)
	assert.True(t, strings.HasPrefix(rep.ID, "rpt_"))
	require.NotNil(t, rep.ReadyAt)
	require.NotNil(t, rep.Totals)
	assert.Equal(t, int64(1020), rep.Totals.Sent)
	assert.Equal(t, 52.5, rep.Totals.OpenRate)
	assert.Equal(t, 2, rep.Totals.Days)

	dl, err := f.reports.Download(ctx, "tenant_a", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, "report-"+rep.ID+".csv", dl.FileName)
	body := string(dl.Body)
	assert.Contains(t, body, "2026-02-01,500,260,45,5")
	assert.Contains(t, body, "Total,1020,535,93,11,52.5,9.1,1.1")

	list, err := f.reports.List(ctx, "tenant_a")
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, err = f.reports.Get(ctx, "tenant_b", rep.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = f.reports.Download(ctx, "tenant_b", rep.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReportGenerateXLSX(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep, err := f.reports.Generate(ctx, "tenant_a", GenerateReportInput{
		Name:          "Acme monthly",
		Days:          7,
		SubAccountIDs: []string{"sub_a1", " sub_a1 "},
		Format:        "excel",
	})
	require.NoError(t, err)
	assert.Equal(t, models.FormatXLSX, rep.Format)
	assert.Equal(t, []string{"sub_a1"}, rep.SubAccountIDs)
	assert.Equal(t, "2026-01-27", rep.StartDate)
	assert.Equal(t, "2026-02-02", rep.EndDate)

	dl, err := f.reports.Download(ctx, "tenant_a", rep.ID)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(dl.FileName, ".xlsx"))
	assert.NotEmpty(t, dl.Body)
}

func TestReportGenerateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	cases := []struct {
		name string
		in   GenerateReportInput
		want error
	}{
		{"bad format", GenerateReportInput{Format: "pdf"}, ErrValidation},
		{"reversed range", GenerateReportInput{DateRange: &DateRangeInput{Start: "2026-02-02", End: "2026-02-01"}}, ErrValidation},
		{"malformed date", GenerateReportInput{DateRange: &DateRangeInput{Start: "02/01/2026", End: "2026-02-01"}}, ErrValidation},
		{"too long", GenerateReportInput{DateRange: &DateRangeInput{Start: "2024-01-01", End: "2026-02-01"}}, ErrValidation},
		{"foreign sub-account", GenerateReportInput{SubAccountIDs: []string{"sub_b1"}}, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.reports.Generate(ctx, "tenant_a", tc.in)
			assert.ErrorIs(t, err, tc.want)
		})
	}

	list, err := f.reports.List(ctx, "tenant_a")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestReportQueued(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	pub := &fakePublisher{}
	f.reports.publisher = pub

	rep, err := f.reports.Generate(ctx, "tenant_a", GenerateReportInput{DateRange: twoDays()})
	require.NoError(t, err)
	assert.Equal(t, models.ReportGenerating, rep.Status)
	assert.Equal(t, []string{rep.ID}, pub.ids)

	_, err = f.reports.Download(ctx, "tenant_a", rep.ID)
	assert.ErrorIs(t, err, ErrReportNotReady)

	require.NoError(t, f.reports.Process(ctx, rep.ID))
	got, err := f.reports.Get(ctx, "tenant_a", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportReady, got.Status)
	readyAt := got.ReadyAt

	// Redelivery of the same job leaves the report untouched.
	require.NoError(t, f.reports.Process(ctx, rep.ID))
	got, err = f.reports.Get(ctx, "tenant_a", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, readyAt, got.ReadyAt)

	assert.NoError(t, f.reports.Process(ctx, "rpt_unknown"))
}

func TestReportProcessNotifiesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	notifier := &fakeNotifier{}
	f.reports.publisher = &fakePublisher{}
	f.reports.SetNotifier(notifier)

	rep, err := f.reports.Generate(ctx, "tenant_a", GenerateReportInput{DateRange: twoDays()})
	require.NoError(t, err)
	assert.Empty(t, notifier.statuses)

	require.NoError(t, f.reports.Process(ctx, rep.ID))
	require.NoError(t, f.reports.Process(ctx, rep.ID))
	assert.Equal(t, []string{rep.ID + ":" + models.ReportReady}, notifier.statuses)
}

func TestReportQueueFallback(t *testing.T) {
	f := newFixture(t)
	f.reports.publisher = &fakePublisher{err: errors.New("broker down")}

	rep, err := f.reports.Generate(context.Background(), "tenant_a", GenerateReportInput{DateRange: twoDays()})
	require.NoError(t, err)
	assert.Equal(t, models.ReportReady, rep.Status)
}

func TestReportProcessMarksFailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	rep := &models.Report{
		ID:            "rpt_bad",
		TenantID:      "tenant_a",
		Name:          "bad",
		Type:          "performance",
		StartDate:     "2026-02-01",
		EndDate:       "2026-02-02",
		SubAccountIDs: []string{"sub_b1"},
		Format:        models.FormatCSV,
		Status:        models.ReportGenerating,
		CreatedAt:     fixedNow,
	}
	require.NoError(t, f.store.Reports.Create(ctx, rep))

	require.NoError(t, f.reports.Process(ctx, rep.ID))
	got, err := f.reports.Get(ctx, "tenant_a", rep.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ReportFailed, got.Status)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, got.Totals)
}

func TestReportSchedule(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sched, err := f.reports.Schedule(ctx, "tenant_a", ScheduleReportInput{
		Frequency:  "Monthly",
		DayOfMonth: 1,
		Recipients: []string{"b@x.com", "a@x.com", "b@x.com"},
	})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(sched.ID, "sched_"))
	assert.Equal(t, models.FrequencyMonthly, sched.Frequency)
	assert.Equal(t, []string{"a@x.com", "b@x.com"}, sched.Recipients)
	assert.Equal(t, "performance", sched.ReportType)
	assert.Equal(t, models.FormatCSV, sched.Format)

	weekly, err := f.reports.Schedule(ctx, "tenant_a", ScheduleReportInput{
		Frequency:  "weekly",
		DayOfMonth: 15,
		Recipients: []string{"a@x.com"},
		Format:     "xlsx",
	})
	require.NoError(t, err)
	assert.Zero(t, weekly.DayOfMonth)

	bad := []ScheduleReportInput{
		{Frequency: "monthly", DayOfMonth: 0, Recipients: []string{"a@x.com"}},
		{Frequency: "monthly", DayOfMonth: 31, Recipients: []string{"a@x.com"}},
		{Frequency: "daily", Recipients: []string{"a@x.com"}},
		{Frequency: "weekly"},
		{Frequency: "weekly", Recipients: []string{"not-an-email"}},
	}
	for _, in := range bad {
		_, err := f.reports.Schedule(ctx, "tenant_a", in)
		assert.ErrorIs(t, err, ErrValidation, "%+v", in)
	}

	list, err := f.reports.ListSchedules(ctx, "tenant_a")
	require.NoError(t, err)
	assert.Len(t, list, 2)

	list, err = f.reports.ListSchedules(ctx, "tenant_b")
	require.NoError(t, err)
	assert.Empty(t, list)
}
