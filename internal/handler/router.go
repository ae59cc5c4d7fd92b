// Package handler exposes the attendance services over HTTP.
package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"schoolattend/internal/attendance"
	"schoolattend/internal/auth"
	"schoolattend/internal/domain"
	"schoolattend/internal/httpmiddleware"
	"schoolattend/internal/metrics"
	"schoolattend/internal/roster"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// Deps are the collaborators of the router.
type Deps struct {
	Roster     *roster.Service
	Attendance *attendance.Service
	Auth       *auth.Service
	Log        *zap.Logger

	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer

	// Limiter is optional; nil disables rate limiting.
	Limiter     httpmiddleware.Limiter
	CORSOrigins []string
	AccessLog   bool
	Health      map[string]HealthCheck
}

// NewRouter builds the gin engine with middleware and every route.
func NewRouter(d Deps) *gin.Engine {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	if d.AccessLog {
		r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
			SkipPaths: []string{"/healthz", "/metrics"},
		}))
	}
	r.Use(httpmiddleware.RequestID(d.Log))
	r.Use(httpmiddleware.Metrics(d.Metrics))
	r.Use(httpmiddleware.CORS(d.CORSOrigins))
	r.Use(httpmiddleware.SecurityHeaders())
	if d.Limiter != nil {
		r.Use(httpmiddleware.RateLimit(d.Limiter, d.Log))
	}

	if d.Gatherer != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{})))
	}
	r.GET("/healthz", healthz(d.Health))
	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, apiErr(domain.CodeNotFound, "route not found"))
	})

	RegisterRoutes(r.Group("/api"), d)
	return r
}

// RegisterRoutes mounts the API on g.
func RegisterRoutes(g *gin.RouterGroup, d Deps) {
	ah := &authHandler{svc: d.Auth}
	ch := &classHandler{svc: d.Roster}
	sh := &studentHandler{svc: d.Roster}
	th := &attendanceHandler{svc: d.Attendance}

	g.POST("/auth/login", ah.login)
	g.POST("/auth/refresh", ah.refresh)

	authed := g.Group("", auth.Authenticate(d.Auth.Issuer()))
	authed.GET("/auth/me", ah.me)

	admin := authed.Group("", auth.RequireRole(domain.RoleAdmin))
	staff := authed.Group("", auth.RequireRole(domain.RoleAdmin, domain.RoleTeacher))

	admin.POST("/auth/register", ah.register)

	// classes
	staff.GET("/classes", ch.list)
	staff.GET("/classes/:id", ch.get)
	staff.GET("/classes/:id/students", ch.students)
	admin.POST("/classes", ch.create)
	admin.PUT("/classes/:id", ch.update)
	admin.DELETE("/classes/:id", ch.remove)

	// students
	staff.GET("/students", sh.list)
	staff.GET("/students/class/:classId", sh.list)
	staff.GET("/students/:id", sh.get)
	admin.POST("/students", sh.create)
	admin.PUT("/students/:id", sh.update)
	admin.DELETE("/students/:id", sh.remove)

	// attendance
	staff.GET("/attendance", th.list)
	staff.POST("/attendance", th.mark)
	staff.DELETE("/attendance/:id", th.remove)
	staff.GET("/attendance/summary/:classId/:date", th.summary)
	staff.GET("/attendance/report", th.report)
}

func healthz(checks map[string]HealthCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		results := gin.H{}
		for name, check := range checks {
			ok := check(ctx) == nil
			results[name] = ok
			if !ok {
				status = http.StatusServiceUnavailable
			}
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": results})
	}
}
