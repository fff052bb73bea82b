package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"faceattend/internal/attendance"
	"faceattend/internal/store"
)

type fixedState store.State

func (s fixedState) State() store.State { return store.State(s) }

var testNow = time.Date(2026, 3, 2, 9, 30, 0, 0, time.UTC)

func newTestRouter(t *testing.T, repo attendance.Repository, state store.State, onePerDay bool) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	svc := attendance.NewService(repo, attendance.Options{
		OneCheckInPerDay: onePerDay,
		Location:         time.UTC,
		Now:              func() time.Time { return testNow },
	})
	r := gin.New()
	New(svc, fixedState(state), nil, zerolog.Nop()).Register(r.Group("/api"))
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), dst))
}

const adaJSON = `{"studentId":" cs101 ","name":"Ada Lovelace","course":"CS","faceDescriptor":[0.1,0.2,0.3]}`

func TestRegisterStudent(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)

	w := do(r, http.MethodPost, "/api/students", adaJSON)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var st attendance.Student
	decode(t, w, &st)
	assert.Equal(t, "CS101", st.StudentID)
	assert.True(t, st.IsActive)

	w = do(r, http.MethodPost, "/api/students", `{"studentId":"CS101","name":"Other","course":"CS","faceDescriptor":[1]}`)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestRegisterStudentValidation(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)

	w := do(r, http.MethodPost, "/api/students", `{"studentId":"CS102","name":"","course":"CS","faceDescriptor":[]}`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body struct {
		Fields []attendance.FieldError `json:"fields"`
	}
	decode(t, w, &body)
	assert.NotEmpty(t, body.Fields)

	w = do(r, http.MethodPost, "/api/students", `{"studentId":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegisterStudentForm(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)

	req := httptest.NewRequest(http.MethodPost, "/api/students",
		strings.NewReader("studentId=cs200&name=Grace&course=Math&faceDescriptor=0.5&faceDescriptor=0.25"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var st attendance.Student
	decode(t, w, &st)
	assert.Equal(t, "CS200", st.StudentID)
	assert.Equal(t, []float64{0.5, 0.25}, st.FaceDescriptor)
}

func TestCheckIn(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)

	w := do(r, http.MethodPost, "/api/attendance", `{"studentId":"cs101","confidence":92.5}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var rec attendance.Attendance
	decode(t, w, &rec)
	assert.Equal(t, "CS101", rec.StudentID)
	assert.Equal(t, "Ada Lovelace", rec.Name)
	assert.Equal(t, "CS", rec.Course)
	assert.Equal(t, "2026-03-02", rec.Date)
	assert.Equal(t, 92.5, rec.Confidence)

	w = do(r, http.MethodGet, "/api/attendance/"+rec.ID, "")
	require.Equal(t, http.StatusOK, w.Code)

	w = do(r, http.MethodGet, "/api/attendance/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/attendance", `{"studentId":"NOPE","confidence":50}`)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":101}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckInInactiveStudent(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)

	w := do(r, http.MethodPatch, "/api/students/cs101", `{"isActive":false}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":80}`)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = do(r, http.MethodGet, "/api/students/descriptors", "")
	require.Equal(t, http.StatusOK, w.Code)
	var out []descriptor
	decode(t, w, &out)
	assert.Empty(t, out)
}

func TestCheckInOncePerDay(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(true), store.StateReady, true)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":80}`).Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":80}`).Code)
}

func TestCheckedInToday(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)

	var body struct {
		StudentID string `json:"studentId"`
		Date      string `json:"date"`
		CheckedIn bool   `json:"checkedIn"`
	}
	w := do(r, http.MethodGet, "/api/attendance/today?studentId=cs101", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &body)
	assert.False(t, body.CheckedIn)
	assert.Equal(t, "2026-03-02", body.Date)

	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":70}`).Code)
	w = do(r, http.MethodGet, "/api/attendance/today?studentId=cs101", "")
	decode(t, w, &body)
	assert.True(t, body.CheckedIn)
	assert.Equal(t, "CS101", body.StudentID)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/attendance/today", "").Code)
}

func TestListAttendance(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)
	for _, d := range []string{"2026-03-01", "2026-03-02", "2026-03-02"} {
		require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/attendance", `{"studentId":"CS101","confidence":70,"date":"`+d+`"}`).Code)
	}

	var recs []attendance.Attendance
	w := do(r, http.MethodGet, "/api/attendance?studentId=cs101&date=2026-03-02", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &recs)
	assert.Len(t, recs, 2)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/attendance?from=yesterday", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/attendance?from=2026-03-02&to=2026-03-01", "").Code)
}

func TestListStudents(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", adaJSON).Code)
	require.Equal(t, http.StatusCreated, do(r, http.MethodPost, "/api/students", `{"studentId":"M1","name":"Emmy","course":"Math","faceDescriptor":[1]}`).Code)

	var students []attendance.Student
	w := do(r, http.MethodGet, "/api/students?course=Math", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &students)
	require.Len(t, students, 1)
	assert.Equal(t, "M1", students[0].StudentID)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/students?active=maybe", "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/students/m1", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/students/zz", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPatch, "/api/students/m1", `{}`).Code)
}

func TestNotReadyStore(t *testing.T) {
	conn := store.NewConnector(zerolog.Nop(), store.Options{URI: "memory://"})
	r := newTestRouter(t, conn, conn.State(), false)

	w := do(r, http.MethodPost, "/api/students", adaJSON)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "starting up")

	w = do(r, http.MethodGet, "/api/healthz", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"db":"connecting"`)
}

func TestHealthzReady(t *testing.T) {
	r := newTestRouter(t, attendance.NewMemory(false), store.StateReady, false)

	w := do(r, http.MethodGet, "/api/healthz", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok","db":"ready"}`, w.Body.String())
}

func TestListDescriptorsReturnsEveryActiveStudent(t *testing.T) {
	repo := attendance.NewMemory(false)
	r := newTestRouter(t, repo, store.StateReady, false)
	for i := 0; i < 1005; i++ {
		_, err := repo.CreateStudent(context.Background(), attendance.Student{
			StudentID:      fmt.Sprintf("S%04d", i),
			Name:           "Student",
			Course:         "CS",
			FaceDescriptor: []float64{float64(i)},
			IsActive:       true,
		})
		require.NoError(t, err)
	}

	var out []descriptor
	w := do(r, http.MethodGet, "/api/students/descriptors", "")
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &out)
	assert.Len(t, out, 1005)

	w = do(r, http.MethodGet, "/api/students/descriptors?limit=10&offset=1000", "")
	decode(t, w, &out)
	assert.Len(t, out, 5)

	var students []attendance.Student
	w = do(r, http.MethodGet, "/api/students?limit=-1", "")
	decode(t, w, &students)
	assert.Len(t, students, 50)
}
