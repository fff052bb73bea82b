package attendance

import "context"

// Repository is the storage contract for both record types. Implementations
// must report uniqueness violations as ErrDuplicateKey, missing records as
// ErrNotFound and any other engine failure wrapped in a *StorageError.
//
// Attendance is append-only, so there is no update or delete for it.
type Repository interface {
	CreateStudent(ctx context.Context, s Student) (Student, error)
	GetStudent(ctx context.Context, studentID string) (Student, error)
	FindStudents(ctx context.Context, f StudentFilter) ([]Student, error)
	UpdateStudent(ctx context.Context, studentID string, u StudentUpdate) (Student, error)

	CreateAttendance(ctx context.Context, a Attendance) (Attendance, error)
	GetAttendance(ctx context.Context, id string) (Attendance, error)
	FindAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error)
}

const (
	defaultLimit = 50
	maxLimit     = 1000
)

// NoLimit as a filter Limit asks for every matching record.
const NoLimit = -1

// ClampPage normalizes limit/offset the same way for every backend. A zero
// limit means the default page size; NoLimit comes back as 0, meaning
// unbounded.
func ClampPage(limit, offset int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit == NoLimit {
		return 0, offset
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
