package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"faceattend/internal/attendance"
)

type registerRequest struct {
	StudentID      string    `json:"studentId" form:"studentId"`
	Name           string    `json:"name" form:"name"`
	Course         string    `json:"course" form:"course"`
	FaceDescriptor []float64 `json:"faceDescriptor" form:"faceDescriptor"`
}

// RegisterStudent enrolls a student with a face descriptor computed by the
// client-side matcher.
func (h *Handler) RegisterStudent(c *gin.Context) {
	var req registerRequest
	if !bind(c, &req) {
		return
	}
	st, err := h.svc.RegisterStudent(c.Request.Context(), attendance.Student{
		StudentID:      req.StudentID,
		Name:           req.Name,
		Course:         req.Course,
		FaceDescriptor: req.FaceDescriptor,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	h.logger.Info().Str("studentId", st.StudentID).Msg("student registered")
	c.JSON(http.StatusCreated, st)
}

func (h *Handler) ListStudents(c *gin.Context) {
	limit, offset := pageParams(c)
	f := attendance.StudentFilter{
		Course: c.Query("course"),
		Limit:  limit,
		Offset: offset,
	}
	if v := c.Query("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "active must be a boolean"})
			return
		}
		f.Active = &active
	}
	students, err := h.svc.Students(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, students)
}

type descriptor struct {
	StudentID      string    `json:"studentId"`
	Name           string    `json:"name"`
	Course         string    `json:"course"`
	FaceDescriptor []float64 `json:"faceDescriptor"`
}

// ListDescriptors returns every active student's descriptor so the external
// matcher can compare a live capture against the enrolled set. ?limit= and
// ?offset= page through it instead.
func (h *Handler) ListDescriptors(c *gin.Context) {
	active := true
	limit, offset := pageParams(c)
	if c.Query("limit") == "" {
		limit = attendance.NoLimit
	}
	students, err := h.svc.Students(c.Request.Context(), attendance.StudentFilter{
		Active: &active,
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	out := make([]descriptor, 0, len(students))
	for _, s := range students {
		out = append(out, descriptor{
			StudentID:      s.StudentID,
			Name:           s.Name,
			Course:         s.Course,
			FaceDescriptor: s.FaceDescriptor,
		})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetStudent(c *gin.Context) {
	st, err := h.svc.Student(c.Request.Context(), c.Param("studentId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

func (h *Handler) UpdateStudent(c *gin.Context) {
	var req attendance.StudentUpdate
	if !bind(c, &req) {
		return
	}
	st, err := h.svc.UpdateStudent(c.Request.Context(), c.Param("studentId"), req)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
