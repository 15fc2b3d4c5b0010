package storage

import (
	"context"
	"fmt"

	"github.com/radiusdt/partner-portal/internal/models"
)

// PostgresMetricRepo implements MetricRepo using PostgreSQL.
type PostgresMetricRepo struct {
	db DB
}

func NewPostgresMetricRepo(db DB) *PostgresMetricRepo {
	return &PostgresMetricRepo{db: db}
}

func (r *PostgresMetricRepo) Range(ctx context.Context, subAccountID string, dr models.DateRange) ([]models.DailyMetric, error) {
	rows, err := r.db.Query(ctx, `
		SELECT sub_account_id, metric_date::text, sent, opens, replies, bounces
		FROM daily_metrics
		WHERE sub_account_id = $1 AND metric_date BETWEEN $2::date AND $3::date
		ORDER BY metric_date
	`, subAccountID, dr.StartDate(), dr.EndDate())
	if err != nil {
		return nil, mapError(err, "query daily metrics")
	}
	defer rows.Close()

	res := make([]models.DailyMetric, 0)
	for rows.Next() {
		var m models.DailyMetric
		if err := rows.Scan(&m.SubAccountID, &m.Date, &m.Sent, &m.Opens, &m.Replies, &m.Bounces); err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

// Upsert writes all rows in one transaction.
func (r *PostgresMetricRepo) Upsert(ctx context.Context, rows []models.DailyMetric) error {
	if len(rows) == 0 {
		return nil
	}
	for i := range rows {
		if err := rows[i].Validate(); err != nil {
			return err
		}
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range rows {
		_, err := tx.Exec(ctx, `
			INSERT INTO daily_metrics (sub_account_id, metric_date, sent, opens, replies, bounces)
			VALUES ($1, $2::date, $3, $4, $5, $6)
			ON CONFLICT (sub_account_id, metric_date) DO UPDATE SET
				sent = EXCLUDED.sent,
				opens = EXCLUDED.opens,
				replies = EXCLUDED.replies,
				bounces = EXCLUDED.bounces
		`, m.SubAccountID, m.Date, m.Sent, m.Opens, m.Replies, m.Bounces)
		if err != nil {
			return fmt.Errorf("failed to upsert daily metric: %w", err)
		}
	}

	return tx.Commit(ctx)
}
