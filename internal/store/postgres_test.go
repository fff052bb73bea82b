package store

import (
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
)

func TestAttendanceQuery(t *testing.T) {
	from := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	query, args := attendanceQuery(attendance.AttendanceFilter{
		StudentID: "CS101",
		Date:      "2026-03-02",
		From:      from,
		Limit:     10,
		Offset:    5,
	})

	assert.Contains(t, query, "WHERE student_id = $1 AND date = $2 AND check_in_time >= $3")
	assert.Contains(t, query, "ORDER BY check_in_time DESC LIMIT $4 OFFSET $5")
	assert.Equal(t, []any{"CS101", "2026-03-02", from, 10, 5}, args)
}

func TestAttendanceQueryNoFilters(t *testing.T) {
	query, args := attendanceQuery(attendance.AttendanceFilter{})
	assert.NotContains(t, query, "WHERE")
	assert.Equal(t, []any{50, 0}, args)
}

func TestPgErr(t *testing.T) {
	require.NoError(t, pgErr("op", nil))
	require.ErrorIs(t, pgErr("op", sql.ErrNoRows), attendance.ErrNotFound)
	require.ErrorIs(t, pgErr("op", &pgconn.PgError{Code: "23505"}), attendance.ErrDuplicateKey)

	err := pgErr("insert attendance", &pgconn.PgError{Code: "23514", Message: "check constraint"})
	require.ErrorIs(t, err, attendance.ErrStorage)

	var se *attendance.StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "insert attendance", se.Op)
}

func TestAttendanceQueryUnbounded(t *testing.T) {
	query, args := attendanceQuery(attendance.AttendanceFilter{StudentID: "CS101", Date: "2026-03-02", Limit: attendance.NoLimit})
	assert.NotContains(t, query, "LIMIT")
	assert.Contains(t, query, "ORDER BY check_in_time DESC OFFSET $3")
	assert.Equal(t, []any{"CS101", "2026-03-02", 0}, args)
}
