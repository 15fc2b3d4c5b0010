package storage

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/radiusdt/partner-portal/internal/models"
)

// PostgresReportRepo implements ReportRepo using PostgreSQL.
type PostgresReportRepo struct {
	db DB
}

func NewPostgresReportRepo(db DB) *PostgresReportRepo {
	return &PostgresReportRepo{db: db}
}

const reportColumns = `id, tenant_id, name, report_type, start_date::text, end_date::text,
	sub_account_ids, format, status, totals, error, created_at, ready_at`

func scanReport(row pgx.Row) (*models.Report, error) {
	var rep models.Report
	var totalsJSON []byte
	if err := row.Scan(
		&rep.ID, &rep.TenantID, &rep.Name, &rep.Type, &rep.StartDate, &rep.EndDate,
		&rep.SubAccountIDs, &rep.Format, &rep.Status, &totalsJSON, &rep.Error, &rep.CreatedAt, &rep.ReadyAt,
	); err != nil {
		return nil, err
	}
	if len(totalsJSON) > 0 {
		var t models.ReportTotals
		if err := json.Unmarshal(totalsJSON, &t); err != nil {
			return nil, fmt.Errorf("failed to parse report totals: %w", err)
		}
		rep.Totals = &t
	}
	if rep.SubAccountIDs == nil {
		rep.SubAccountIDs = []string{}
	}
	return &rep, nil
}

// totalsParam encodes totals for a nullable jsonb column.
func totalsParam(t *models.ReportTotals) (*string, error) {
	if t == nil {
		return nil, nil
	}
	b, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

func (r *PostgresReportRepo) Create(ctx context.Context, rep *models.Report) error {
	totals, err := totalsParam(rep.Totals)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO reports (id, tenant_id, name, report_type, start_date, end_date,
			sub_account_ids, format, status, totals, error, created_at, ready_at)
		VALUES ($1, $2, $3, $4, $5::date, $6::date, $7, $8, $9, $10::jsonb, $11, $12, $13)
	`, rep.ID, rep.TenantID, rep.Name, rep.Type, rep.StartDate, rep.EndDate,
		rep.SubAccountIDs, rep.Format, rep.Status, totals, rep.Error, rep.CreatedAt, rep.ReadyAt)
	return mapError(err, "create report")
}

func (r *PostgresReportRepo) GetForTenant(ctx context.Context, tenantID, id string) (*models.Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `
		SELECT `+reportColumns+` FROM reports WHERE id = $1 AND tenant_id = $2
	`, id, tenantID))
	if err != nil {
		return nil, mapError(err, "get report")
	}
	return rep, nil
}

func (r *PostgresReportRepo) GetByID(ctx context.Context, id string) (*models.Report, error) {
	rep, err := scanReport(r.db.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id))
	if err != nil {
		return nil, mapError(err, "get report")
	}
	return rep, nil
}

func (r *PostgresReportRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.Report, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+reportColumns+` FROM reports WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, mapError(err, "list reports")
	}
	defer rows.Close()

	res := make([]*models.Report, 0)
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, rep)
	}
	return res, rows.Err()
}

func (r *PostgresReportRepo) Update(ctx context.Context, rep *models.Report) error {
	totals, err := totalsParam(rep.Totals)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE reports SET status = $2, totals = $3::jsonb, error = $4, ready_at = $5
		WHERE id = $1
	`, rep.ID, rep.Status, totals, rep.Error, rep.ReadyAt)
	return requireRow(tag, err, "update report")
}

// PostgresScheduleRepo implements ScheduleRepo using PostgreSQL.
type PostgresScheduleRepo struct {
	db DB
}

func NewPostgresScheduleRepo(db DB) *PostgresScheduleRepo {
	return &PostgresScheduleRepo{db: db}
}

func (r *PostgresScheduleRepo) Create(ctx context.Context, s *models.ScheduledReport) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO scheduled_reports (id, tenant_id, report_type, frequency, day_of_month,
			recipients, format, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, s.ID, s.TenantID, s.ReportType, s.Frequency, s.DayOfMonth, s.Recipients, s.Format, s.CreatedAt)
	return mapError(err, "create scheduled report")
}

func (r *PostgresScheduleRepo) ListByTenant(ctx context.Context, tenantID string) ([]*models.ScheduledReport, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, tenant_id, report_type, frequency, day_of_month, recipients, format, created_at
		FROM scheduled_reports WHERE tenant_id = $1 ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, mapError(err, "list scheduled reports")
	}
	defer rows.Close()

	res := make([]*models.ScheduledReport, 0)
	for rows.Next() {
		var s models.ScheduledReport
		if err := rows.Scan(&s.ID, &s.TenantID, &s.ReportType, &s.Frequency, &s.DayOfMonth,
			&s.Recipients, &s.Format, &s.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, &s)
	}
	return res, rows.Err()
}
