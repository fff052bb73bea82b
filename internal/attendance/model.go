package attendance

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day key format stored in Attendance.Date.
const DateLayout = "2006-01-02"

// Student represents one enrolled individual.
type Student struct {
	ID             string    `json:"id"`
	StudentID      string    `json:"studentId" validate:"required"`
	Name           string    `json:"name" validate:"required"`
	Course         string    `json:"course" validate:"required"`
	FaceDescriptor []float64 `json:"faceDescriptor" validate:"required,min=1"`
	RegisteredAt   time.Time `json:"registeredAt"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

// Attendance represents one check-in event. Name and Course are copies taken
// at check-in time.
type Attendance struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Course      string    `json:"course" validate:"required"`
	CheckInTime time.Time `json:"checkInTime"`
	Date        string    `json:"date" validate:"required"`
	Confidence  float64   `json:"confidence" validate:"gte=0,lte=100"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// StudentUpdate lists the mutable Student fields. Nil fields are left alone.
type StudentUpdate struct {
	Name           *string   `json:"name,omitempty"`
	Course         *string   `json:"course,omitempty"`
	FaceDescriptor []float64 `json:"faceDescriptor,omitempty"`
	IsActive       *bool     `json:"isActive,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u StudentUpdate) Empty() bool {
	return u.Name == nil && u.Course == nil && u.FaceDescriptor == nil && u.IsActive == nil
}

// StudentFilter selects students. Zero values match everything.
type StudentFilter struct {
	Course string
	Active *bool
	Limit  int
	Offset int
}

// AttendanceFilter selects attendance records. Zero values match everything.
type AttendanceFilter struct {
	StudentID string
	Date      string
	Course    string
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}

// NormalizeStudentID trims and uppercases a student identifier.
func NormalizeStudentID(id string) string {
	return strings.ToUpper(strings.TrimSpace(id))
}

// Normalize applies the trimming and case rules of the Student shape.
func (s *Student) Normalize() {
	s.StudentID = NormalizeStudentID(s.StudentID)
	s.Name = strings.TrimSpace(s.Name)
	s.Course = strings.TrimSpace(s.Course)
}

// ApplyDefaults fills registeredAt, isActive and the bookkeeping timestamps
// for a record about to be inserted.
func (s *Student) ApplyDefaults(now time.Time) {
	if s.RegisteredAt.IsZero() {
		s.RegisteredAt = now
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
}

// Apply merges an update into the record.
func (s *Student) Apply(u StudentUpdate, now time.Time) {
	if u.Name != nil {
		s.Name = *u.Name
	}
	if u.Course != nil {
		s.Course = *u.Course
	}
	if u.FaceDescriptor != nil {
		s.FaceDescriptor = append([]float64(nil), u.FaceDescriptor...)
	}
	if u.IsActive != nil {
		s.IsActive = *u.IsActive
	}
	s.Normalize()
	s.UpdatedAt = now
}

// Normalize trims the identifier fields of an Attendance record.
func (a *Attendance) Normalize() {
	a.StudentID = NormalizeStudentID(a.StudentID)
	a.Name = strings.TrimSpace(a.Name)
	a.Course = strings.TrimSpace(a.Course)
	a.Date = strings.TrimSpace(a.Date)
}

// ApplyDefaults fills checkInTime, the day key and the bookkeeping timestamps.
func (a *Attendance) ApplyDefaults(now time.Time, loc *time.Location) {
	if a.CheckInTime.IsZero() {
		a.CheckInTime = now
	}
	if a.Date == "" {
		a.Date = DayKey(a.CheckInTime, loc)
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
}

// DayKey formats t as a calendar-day key in loc.
func DayKey(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.Local
	}
	return t.In(loc).Format(DateLayout)
}
