package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"faceattend/internal/attendance"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/store"
)

// Readiness exposes the database connection state.
type Readiness interface {
	State() store.State
}

type Handler struct {
	svc    *attendance.Service
	db     Readiness
	redis  *store.Redis // nil if Redis is not configured
	logger zerolog.Logger
}

func New(svc *attendance.Service, db Readiness, redis *store.Redis, logger zerolog.Logger) *Handler {
	return &Handler{svc: svc, db: db, redis: redis, logger: logger}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r gin.IRouter) {
	r.GET("/healthz", h.Healthz)

	r.POST("/students", h.RegisterStudent)
	r.GET("/students", h.ListStudents)
	r.GET("/students/descriptors", h.ListDescriptors)
	r.GET("/students/:studentId", h.GetStudent)
	r.PATCH("/students/:studentId", h.UpdateStudent)

	r.POST("/attendance", h.CheckIn)
	r.GET("/attendance", h.ListAttendance)
	r.GET("/attendance/today", h.CheckedInToday)
	r.GET("/attendance/:id", h.GetAttendance)
}

// ---------- Health ----------

func (h *Handler) Healthz(c *gin.Context) {
	state := h.db.State()
	status := http.StatusOK
	if state != store.StateReady {
		status = http.StatusServiceUnavailable
	}
	body := gin.H{"status": "ok", "db": state.String()}
	if state != store.StateReady {
		body["status"] = "degraded"
	}
	if h.redis != nil {
		body["redis"] = h.redis.Healthy(c.Request.Context())
	}
	c.JSON(status, body)
}

// ---------- Errors ----------

// fail maps a domain error onto an HTTP status and writes {"error": ...}.
func (h *Handler) fail(c *gin.Context, err error) {
	var verr *attendance.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields})
	case errors.Is(err, attendance.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, attendance.ErrDuplicateKey):
		c.JSON(http.StatusConflict, gin.H{"error": "already exists"})
	case errors.Is(err, attendance.ErrInactive):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.Is(err, attendance.ErrNotReady), errors.Is(err, attendance.ErrUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		h.logger.Error().Err(err).Str("path", c.FullPath()).Msg("storage error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage error"})
	}
}

// bind decodes a JSON or URL-encoded body into dst and writes the error
// response itself when decoding fails.
func bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBind(dst); err != nil {
		if httpmiddleware.IsBodyTooLarge(err) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "request body too large"})
			return false
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

// pageParams reads ?limit= and ?offset=. A missing or non-positive limit
// leaves the page size to the repository.
func pageParams(c *gin.Context) (int, int) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	if limit < 0 {
		limit = 0
	}
	offset, _ := strconv.Atoi(c.Query("offset"))
	return limit, offset
}
