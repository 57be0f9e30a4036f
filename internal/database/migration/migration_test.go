package migration

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docvault/internal/logger"
)

func logLines(buf *bytes.Buffer) []string {
	return strings.Split(strings.TrimSpace(buf.String()), "\n")
}

func TestEnsureMigrated_FreshDatabase(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	for _, step := range steps {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(step.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(recordApplied)).WithArgs(step.Name).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, EnsureMigrated(context.Background(), db, log, "pg.internal"))
	assert.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, `"event":"db_migration_success"`)
	assert.Contains(t, out, `"db_host":"pg.internal"`)
	assert.Contains(t, out, `"component":"database"`)
	assert.Len(t, logLines(&buf), len(steps)+2)
}

func TestEnsureMigrated_UpToDate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", time.UTC)

	rows := sqlmock.NewRows([]string{"name"})
	for _, step := range steps {
		rows.AddRow(step.Name)
	}
	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).WillReturnRows(rows)

	require.NoError(t, EnsureMigrated(context.Background(), db, log, "pg.internal"))
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.Contains(t, buf.String(), `"event":"db_migration_skip"`)
}

func TestEnsureMigrated_ResumesAfterPartialRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow(steps[0].Name).AddRow(steps[1].Name))
	for _, step := range steps[2:] {
		mock.ExpectBegin()
		mock.ExpectExec(regexp.QuoteMeta(step.SQL)).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectExec(regexp.QuoteMeta(recordApplied)).WithArgs(step.Name).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()
	}

	require.NoError(t, EnsureMigrated(context.Background(), db, logger.NewWithWriter(&bytes.Buffer{}, "info", time.UTC), "h"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEnsureMigrated_StepFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var buf bytes.Buffer
	log := logger.NewWithWriter(&buf, "info", time.UTC)

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta(selectApplied)).WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(steps[0].SQL)).WillReturnError(errors.New("permission denied"))
	mock.ExpectRollback()

	err = EnsureMigrated(context.Background(), db, log, "h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), steps[0].Name)
	assert.NoError(t, mock.ExpectationsWereMet())

	out := buf.String()
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"migration_step":"`+steps[0].Name+`"`)
}

func TestEnsureMigrated_LedgerFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS schema_migrations")).WillReturnError(errors.New("connection refused"))

	err = EnsureMigrated(context.Background(), db, logger.NewWithWriter(&bytes.Buffer{}, "info", time.UTC), "h")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration ledger")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSteps_ChainConstraints(t *testing.T) {
	var all strings.Builder
	for _, s := range steps {
		all.WriteString(s.SQL)
	}
	ddl := all.String()

	assert.Contains(t, ddl, "(uploaded_by, base_file_name, version)")
	assert.Contains(t, ddl, "(uploaded_by, base_file_name) WHERE is_latest_version")
	assert.Contains(t, ddl, "(access_level = 'protected') = (access_pin IS NOT NULL)")
}
