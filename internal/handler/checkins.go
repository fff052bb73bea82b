package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
)

type checkInRequest struct {
	StudentID  string  `json:"studentId" form:"studentId"`
	Confidence float64 `json:"confidence" form:"confidence"`
	Date       string  `json:"date" form:"date"`
}

// CheckIn records attendance for the student the external matcher selected.
func (h *Handler) CheckIn(c *gin.Context) {
	var req checkInRequest
	if !bind(c, &req) {
		return
	}
	rec, err := h.svc.CheckIn(c.Request.Context(), attendance.CheckInInput{
		StudentID:  req.StudentID,
		Confidence: req.Confidence,
		Date:       req.Date,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info().
		Str("studentId", rec.StudentID).
		Str("date", rec.Date).
		Float64("confidence", rec.Confidence).
		Msg("check-in recorded")
	c.JSON(http.StatusCreated, rec)
}

func (h *Handler) ListAttendance(c *gin.Context) {
	limit, offset := pageParams(c)
	f := attendance.AttendanceFilter{
		StudentID: c.Query("studentId"),
		Date:      c.Query("date"),
		Course:    c.Query("course"),
		Limit:     limit,
		Offset:    offset,
	}
	var ok bool
	if f.From, ok = parseTime(c, "from"); !ok {
		return
	}
	if f.To, ok = parseTime(c, "to"); !ok {
		return
	}
	records, err := h.svc.History(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, records)
}

// CheckedInToday answers whether a student already has a record for today
// (or for ?date=).
func (h *Handler) CheckedInToday(c *gin.Context) {
	studentID := c.Query("studentId")
	if studentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "studentId is required"})
		return
	}
	date := c.DefaultQuery("date", h.svc.Today())
	done, err := h.svc.CheckedIn(c.Request.Context(), studentID, date)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"studentId": attendance.NormalizeStudentID(studentID),
		"date":      date,
		"checkedIn": done,
	})
}

func (h *Handler) GetAttendance(c *gin.Context) {
	rec, err := h.svc.Attendance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// parseTime reads an RFC 3339 timestamp or a YYYY-MM-DD day from the query.
func parseTime(c *gin.Context, key string) (time.Time, bool) {
	v := c.Query(key)
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, true
	}
	if t, err := time.Parse(attendance.DateLayout, v); err == nil {
		return t, true
	}
	c.JSON(http.StatusBadRequest, gin.H{"error": key + " must be RFC 3339 or YYYY-MM-DD"})
	return time.Time{}, false
}
