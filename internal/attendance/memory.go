package attendance

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Memory is a Repository kept in process memory. It enforces the same
// uniqueness rules as the database backends.
type Memory struct {
	mu         sync.RWMutex
	onePerDay  bool
	students   map[string]Student
	attendance []Attendance
	now        func() time.Time
}

// NewMemory creates an empty in-memory repository. When onePerDay is set,
// a second record for the same (studentId, date) is a duplicate key.
func NewMemory(onePerDay bool) *Memory {
	return &Memory{
		onePerDay: onePerDay,
		students:  make(map[string]Student),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) CreateStudent(ctx context.Context, s Student) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, Wrap("create student", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.students[s.StudentID]; ok {
		return Student{}, ErrDuplicateKey
	}
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	s = s.clone()
	m.students[s.StudentID] = s
	return s.clone(), nil
}

func (m *Memory) GetStudent(ctx context.Context, studentID string) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, Wrap("get student", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.students[studentID]
	if !ok {
		return Student{}, ErrNotFound
	}
	return s.clone(), nil
}

func (m *Memory) FindStudents(ctx context.Context, f StudentFilter) ([]Student, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("find students", err)
	}
	m.mu.RLock()
	res := make([]Student, 0, len(m.students))
	for _, s := range m.students {
		if f.Course != "" && s.Course != f.Course {
			continue
		}
		if f.Active != nil && s.IsActive != *f.Active {
			continue
		}
		res = append(res, s.clone())
	}
	m.mu.RUnlock()

	sort.Slice(res, func(i, j int) bool { return res[i].StudentID < res[j].StudentID })
	return page(res, f.Limit, f.Offset), nil
}

func (m *Memory) UpdateStudent(ctx context.Context, studentID string, u StudentUpdate) (Student, error) {
	if err := ctx.Err(); err != nil {
		return Student{}, Wrap("update student", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.students[studentID]
	if !ok {
		return Student{}, ErrNotFound
	}
	s.Apply(u, m.now())
	m.students[studentID] = s
	return s.clone(), nil
}

func (m *Memory) CreateAttendance(ctx context.Context, a Attendance) (Attendance, error) {
	if err := ctx.Err(); err != nil {
		return Attendance{}, Wrap("create attendance", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onePerDay {
		for _, existing := range m.attendance {
			if existing.StudentID == a.StudentID && existing.Date == a.Date {
				return Attendance{}, ErrDuplicateKey
			}
		}
	}
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	m.attendance = append(m.attendance, a)
	return a, nil
}

func (m *Memory) GetAttendance(ctx context.Context, id string) (Attendance, error) {
	if err := ctx.Err(); err != nil {
		return Attendance{}, Wrap("get attendance", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, a := range m.attendance {
		if a.ID == id {
			return a, nil
		}
	}
	return Attendance{}, ErrNotFound
}

func (m *Memory) FindAttendance(ctx context.Context, f AttendanceFilter) ([]Attendance, error) {
	if err := ctx.Err(); err != nil {
		return nil, Wrap("find attendance", err)
	}
	m.mu.RLock()
	res := make([]Attendance, 0)
	for _, a := range m.attendance {
		if f.StudentID != "" && a.StudentID != f.StudentID {
			continue
		}
		if f.Date != "" && a.Date != f.Date {
			continue
		}
		if f.Course != "" && a.Course != f.Course {
			continue
		}
		if !f.From.IsZero() && a.CheckInTime.Before(f.From) {
			continue
		}
		if !f.To.IsZero() && !a.CheckInTime.Before(f.To) {
			continue
		}
		res = append(res, a)
	}
	m.mu.RUnlock()

	sort.SliceStable(res, func(i, j int) bool { return res[i].CheckInTime.After(res[j].CheckInTime) })
	return page(res, f.Limit, f.Offset), nil
}

// clone detaches the descriptor from the caller's slice.
func (s Student) clone() Student {
	if s.FaceDescriptor != nil {
		s.FaceDescriptor = append([]float64(nil), s.FaceDescriptor...)
	}
	return s
}

func page[T any](items []T, limit, offset int) []T {
	limit, offset = ClampPage(limit, offset)
	if offset >= len(items) {
		return []T{}
	}
	end := offset + limit
	if limit == 0 || end > len(items) {
		end = len(items)
	}
	return items[offset:end]
}
