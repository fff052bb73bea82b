package attendance

import (
	"context"
	"strings"
	"time"
)

// CheckInInput is what a caller supplies after a successful face match.
type CheckInInput struct {
	StudentID  string  `json:"studentId"`
	Confidence float64 `json:"confidence"`
	Date       string  `json:"date,omitempty"`
}

// Options tunes Service behaviour.
type Options struct {
	// OneCheckInPerDay rejects a second check-in for the same student and day.
	OneCheckInPerDay bool
	// Location is the zone used to derive day keys. Nil means time.Local.
	Location *time.Location
	// Now overrides the clock.
	Now func() time.Time
}

// Service coordinates registration and check-ins on top of a Repository.
type Service struct {
	repo Repository
	opts Options
}

// NewService creates a service backed by a repository.
func NewService(repo Repository, opts Options) *Service {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Service{repo: repo, opts: opts}
}

// RegisterStudent normalizes, validates and stores a new Student. New
// students are always active.
func (s *Service) RegisterStudent(ctx context.Context, st Student) (Student, error) {
	st.Normalize()
	st.IsActive = true
	if err := ValidateStudent(st); err != nil {
		return Student{}, err
	}
	st.ApplyDefaults(s.opts.Now())
	return s.repo.CreateStudent(ctx, st)
}

// Student returns one student by identifier.
func (s *Service) Student(ctx context.Context, studentID string) (Student, error) {
	id := NormalizeStudentID(studentID)
	if id == "" {
		return Student{}, &ValidationError{Fields: []FieldError{{Field: "studentId", Rule: "required"}}}
	}
	return s.repo.GetStudent(ctx, id)
}

// Students lists students matching the filter.
func (s *Service) Students(ctx context.Context, f StudentFilter) ([]Student, error) {
	f.Course = strings.TrimSpace(f.Course)
	return s.repo.FindStudents(ctx, f)
}

// UpdateStudent changes name, course, descriptor or the active flag.
func (s *Service) UpdateStudent(ctx context.Context, studentID string, u StudentUpdate) (Student, error) {
	id := NormalizeStudentID(studentID)
	var fields []FieldError
	if id == "" {
		fields = append(fields, FieldError{Field: "studentId", Rule: "required"})
	}
	if u.Name != nil {
		name := strings.TrimSpace(*u.Name)
		if name == "" {
			fields = append(fields, FieldError{Field: "name", Rule: "required"})
		}
		u.Name = &name
	}
	if u.Course != nil {
		course := strings.TrimSpace(*u.Course)
		if course == "" {
			fields = append(fields, FieldError{Field: "course", Rule: "required"})
		}
		u.Course = &course
	}
	if u.FaceDescriptor != nil && len(u.FaceDescriptor) == 0 {
		fields = append(fields, FieldError{Field: "faceDescriptor", Rule: "min=1"})
	}
	if u.Empty() {
		fields = append(fields, FieldError{Field: "update", Rule: "required"})
	}
	if len(fields) > 0 {
		return Student{}, &ValidationError{Fields: fields}
	}
	return s.repo.UpdateStudent(ctx, id, u)
}

// CheckIn records a check-in for an enrolled, active student. Name and
// course are copied from the Student record at this moment.
func (s *Service) CheckIn(ctx context.Context, in CheckInInput) (Attendance, error) {
	st, err := s.Student(ctx, in.StudentID)
	if err != nil {
		return Attendance{}, err
	}
	if !st.IsActive {
		return Attendance{}, ErrInactive
	}

	now := s.opts.Now()
	rec := Attendance{
		StudentID:  st.StudentID,
		Name:       st.Name,
		Course:     st.Course,
		Date:       in.Date,
		Confidence: in.Confidence,
	}
	rec.Normalize()
	rec.ApplyDefaults(now, s.opts.Location)
	if err := ValidateAttendance(rec); err != nil {
		return Attendance{}, err
	}

	if s.opts.OneCheckInPerDay {
		done, err := s.CheckedIn(ctx, rec.StudentID, rec.Date)
		if err != nil {
			return Attendance{}, err
		}
		if done {
			return Attendance{}, ErrDuplicateKey
		}
	}
	return s.repo.CreateAttendance(ctx, rec)
}

// CheckedIn reports whether the student has a record for the given day.
// An empty date means today.
func (s *Service) CheckedIn(ctx context.Context, studentID, date string) (bool, error) {
	if date == "" {
		date = s.Today()
	}
	recs, err := s.repo.FindAttendance(ctx, AttendanceFilter{
		StudentID: NormalizeStudentID(studentID),
		Date:      date,
		Limit:     1,
	})
	if err != nil {
		return false, err
	}
	return len(recs) > 0, nil
}

// Today returns the current day key.
func (s *Service) Today() string {
	return DayKey(s.opts.Now(), s.opts.Location)
}

// Attendance returns one attendance record by its id.
func (s *Service) Attendance(ctx context.Context, id string) (Attendance, error) {
	if strings.TrimSpace(id) == "" {
		return Attendance{}, ErrNotFound
	}
	return s.repo.GetAttendance(ctx, id)
}

// History lists attendance records matching the filter, newest first. A
// query for one student on one day returns every record unless Limit is set.
func (s *Service) History(ctx context.Context, f AttendanceFilter) ([]Attendance, error) {
	f.StudentID = NormalizeStudentID(f.StudentID)
	f.Date = strings.TrimSpace(f.Date)
	if f.StudentID != "" && f.Date != "" && f.Limit == 0 {
		f.Limit = NoLimit
	}
	f.Course = strings.TrimSpace(f.Course)
	if !f.From.IsZero() && !f.To.IsZero() && f.To.Before(f.From) {
		return nil, &ValidationError{Fields: []FieldError{{Field: "to", Rule: "gtefield=from"}}}
	}
	return s.repo.FindAttendance(ctx, f)
}
