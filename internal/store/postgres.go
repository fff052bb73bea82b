package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"faceattend/internal/attendance"
)

const uniqueViolation = "23505"

// PostgresRepository persists attendance data in Postgres.
type PostgresRepository struct {
	db  *sql.DB
	now func() time.Time
}

// NewPostgresRepository creates a repo.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const studentColumns = `id, student_id, name, course, face_descriptor, registered_at, is_active, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanStudent(row scanner) (attendance.Student, error) {
	var (
		s          attendance.Student
		descriptor []byte
	)
	if err := row.Scan(&s.ID, &s.StudentID, &s.Name, &s.Course, &descriptor, &s.RegisteredAt, &s.IsActive, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return attendance.Student{}, err
	}
	if err := json.Unmarshal(descriptor, &s.FaceDescriptor); err != nil {
		return attendance.Student{}, fmt.Errorf("decode face_descriptor: %w", err)
	}
	return s, nil
}

func (r *PostgresRepository) CreateStudent(ctx context.Context, s attendance.Student) (attendance.Student, error) {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	descriptor, err := json.Marshal(s.FaceDescriptor)
	if err != nil {
		return attendance.Student{}, attendance.Wrap("insert student", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, s.ID, s.StudentID, s.Name, s.Course, descriptor, s.RegisteredAt, s.IsActive, s.CreatedAt, s.UpdatedAt)
	if err != nil {
		return attendance.Student{}, pgErr("insert student", err)
	}
	return s, nil
}

func (r *PostgresRepository) GetStudent(ctx context.Context, studentID string) (attendance.Student, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+studentColumns+` FROM students WHERE student_id = $1`, studentID)
	s, err := scanStudent(row)
	if err != nil {
		return attendance.Student{}, pgErr("get student", err)
	}
	return s, nil
}

func (r *PostgresRepository) FindStudents(ctx context.Context, f attendance.StudentFilter) ([]attendance.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students`
	args := []any{}
	clauses := []string{}
	if f.Course != "" {
		args = append(args, f.Course)
		clauses = append(clauses, "course = $"+strconv.Itoa(len(args)))
	}
	if f.Active != nil {
		args = append(args, *f.Active)
		clauses = append(clauses, "is_active = $"+strconv.Itoa(len(args)))
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY student_id"
	query, args = pageClause(query, args, f.Limit, f.Offset)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgErr("find students", err)
	}
	defer rows.Close()
	res := []attendance.Student{}
	for rows.Next() {
		s, err := scanStudent(rows)
		if err != nil {
			return nil, pgErr("find students", err)
		}
		res = append(res, s)
	}
	return res, pgErr("find students", rows.Err())
}

func (r *PostgresRepository) UpdateStudent(ctx context.Context, studentID string, u attendance.StudentUpdate) (attendance.Student, error) {
	args := []any{studentID, r.now()}
	sets := []string{"updated_at = $2"}
	if u.Name != nil {
		args = append(args, *u.Name)
		sets = append(sets, "name = $"+strconv.Itoa(len(args)))
	}
	if u.Course != nil {
		args = append(args, *u.Course)
		sets = append(sets, "course = $"+strconv.Itoa(len(args)))
	}
	if u.FaceDescriptor != nil {
		descriptor, err := json.Marshal(u.FaceDescriptor)
		if err != nil {
			return attendance.Student{}, attendance.Wrap("update student", err)
		}
		args = append(args, descriptor)
		sets = append(sets, "face_descriptor = $"+strconv.Itoa(len(args)))
	}
	if u.IsActive != nil {
		args = append(args, *u.IsActive)
		sets = append(sets, "is_active = $"+strconv.Itoa(len(args)))
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE students SET `+strings.Join(sets, ", ")+`
		WHERE student_id = $1
		RETURNING `+studentColumns, args...)
	s, err := scanStudent(row)
	if err != nil {
		return attendance.Student{}, pgErr("update student", err)
	}
	return s, nil
}

const attendanceColumns = `id, student_id, name, course, check_in_time, date, confidence, created_at, updated_at`

func scanAttendance(row scanner) (attendance.Attendance, error) {
	var a attendance.Attendance
	err := row.Scan(&a.ID, &a.StudentID, &a.Name, &a.Course, &a.CheckInTime, &a.Date, &a.Confidence, &a.CreatedAt, &a.UpdatedAt)
	return a, err
}

func (r *PostgresRepository) CreateAttendance(ctx context.Context, a attendance.Attendance) (attendance.Attendance, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO attendances (`+attendanceColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
	`, a.ID, a.StudentID, a.Name, a.Course, a.CheckInTime, a.Date, a.Confidence, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return attendance.Attendance{}, pgErr("insert attendance", err)
	}
	return a, nil
}

func (r *PostgresRepository) GetAttendance(ctx context.Context, id string) (attendance.Attendance, error) {
	if _, err := uuid.Parse(id); err != nil {
		return attendance.Attendance{}, attendance.ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+attendanceColumns+` FROM attendances WHERE id = $1`, id)
	a, err := scanAttendance(row)
	if err != nil {
		return attendance.Attendance{}, pgErr("get attendance", err)
	}
	return a, nil
}

func (r *PostgresRepository) FindAttendance(ctx context.Context, f attendance.AttendanceFilter) ([]attendance.Attendance, error) {
	query, args := attendanceQuery(f)
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, pgErr("find attendance", err)
	}
	defer rows.Close()
	res := []attendance.Attendance{}
	for rows.Next() {
		a, err := scanAttendance(rows)
		if err != nil {
			return nil, pgErr("find attendance", err)
		}
		res = append(res, a)
	}
	return res, pgErr("find attendance", rows.Err())
}

func attendanceQuery(f attendance.AttendanceFilter) (string, []any) {
	query := `SELECT ` + attendanceColumns + ` FROM attendances`
	args := []any{}
	clauses := []string{}
	add := func(clause string, v any) {
		args = append(args, v)
		clauses = append(clauses, clause+" $"+strconv.Itoa(len(args)))
	}
	if f.StudentID != "" {
		add("student_id =", f.StudentID)
	}
	if f.Date != "" {
		add("date =", f.Date)
	}
	if f.Course != "" {
		add("course =", f.Course)
	}
	if !f.From.IsZero() {
		add("check_in_time >=", f.From)
	}
	if !f.To.IsZero() {
		add("check_in_time <", f.To)
	}
	if len(clauses) > 0 {
		query += " WHERE " + strings.Join(clauses, " AND ")
	}
	query += " ORDER BY check_in_time DESC"
	return pageClause(query, args, f.Limit, f.Offset)
}

// pageClause appends LIMIT/OFFSET placeholders. An unbounded page has no
// LIMIT.
func pageClause(query string, args []any, limit, offset int) (string, []any) {
	limit, offset = attendance.ClampPage(limit, offset)
	if limit > 0 {
		args = append(args, limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	args = append(args, offset)
	query += " OFFSET $" + strconv.Itoa(len(args))
	return query, args
}


func pgErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return attendance.ErrNotFound
	}
	var pg *pgconn.PgError
	if errors.As(err, &pg) && pg.Code == uniqueViolation {
		return attendance.ErrDuplicateKey
	}
	return attendance.Wrap(op, err)
}
