package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"faceattend/internal/attendance"
	"faceattend/internal/config"
	"faceattend/internal/handler"
	"faceattend/internal/httpmiddleware"
	"faceattend/internal/store"
)

// Deps are the collaborators the router is built from.
type Deps struct {
	Config  config.App
	Logger  zerolog.Logger
	Service *attendance.Service
	Store   handler.Readiness
	Redis   *store.Redis
	// Limiter throttles requests per client IP. Nil disables rate limiting.
	Limiter httpmiddleware.Limiter
	// Registry receives the HTTP and storage collectors. Nil creates one.
	Registry *prometheus.Registry
}

// NewRouter assembles the middleware chain, static file serving and the
// /api routes.
func NewRouter(d Deps) *gin.Engine {
	reg := d.Registry
	if reg == nil {
		reg = prometheus.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	}
	reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "storage_ready",
		Help: "1 when the database connection is ready, 0 otherwise.",
	}, func() float64 {
		if d.Store.State() == store.StateReady {
			return 1
		}
		return 0
	}))
	metrics := httpmiddleware.NewMetrics(reg)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(httpmiddleware.RequestID())
	r.Use(httpmiddleware.RequestLogger(d.Logger, "/metrics", "/api/healthz"))
	r.Use(metrics.Handler())
	r.Use(httpmiddleware.CORS(d.Config.AllowedOrigins()))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Logger))
	}
	r.Use(httpmiddleware.BodyLimit(d.Config.BodyLimitBytes()))
	r.Use(httpmiddleware.Static(d.Config.StaticDir))

	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	handler.New(d.Service, d.Store, d.Redis, d.Logger).Register(api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})
	return r
}
