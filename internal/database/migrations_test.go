package database

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMigrationsAreOrdered(t *testing.T) {
	for i, m := range Migrations {
		assert.Equal(t, i+1, m.Version, "migration %s", m.Name)
		assert.NotEmpty(t, m.SQL)
	}
}

func TestMigrateFromScratch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(0))

	for _, m := range Migrations {
		mock.ExpectBegin()
		mock.ExpectExec("CREATE TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
		mock.ExpectExec("INSERT INTO schema_migrations").
			WithArgs(m.Version, m.Name).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectCommit()
	}

	version, err := Migrate(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateUpToDate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(len(Migrations)))

	version, err := Migrate(context.Background(), mock, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, len(Migrations), version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateStopsOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS schema_migrations").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectQuery("SELECT COALESCE").
		WillReturnRows(pgxmock.NewRows([]string{"max"}).AddRow(len(Migrations) - 1))

	last := Migrations[len(Migrations)-1]
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TABLE").WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	version, err := Migrate(context.Background(), mock, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), last.Name)
	assert.Equal(t, len(Migrations)-1, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}
