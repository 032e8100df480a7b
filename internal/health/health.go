package health

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Pinger is an optional dependency checked on readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// ConnectionChecker reports a long-lived connection's state
type ConnectionChecker interface {
	IsConnected() bool
}

// Checker tracks readiness and probes the service's dependencies
type Checker struct {
	db        *gorm.DB
	cache     Pinger
	events    ConnectionChecker
	ready     atomic.Bool
	startTime time.Time
	version   string
}

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_service_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "billing_service_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	dbConnectionStatus = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "billing_service_db_connection_status",
		Help: "Database connection status (1 = connected, 0 = disconnected)",
	})

	serviceInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "billing_service_info",
			Help: "Service information",
		},
		[]string{"version"},
	)

	billingOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "billing_service_operations_total",
			Help: "Total number of billing operations by outcome",
		},
		[]string{"operation", "status"},
	)

	scheduledPlanChanges = promauto.NewCounter(prometheus.CounterOpts{
		Name: "billing_service_scheduled_plan_changes_applied_total",
		Help: "Total number of scheduled plan changes applied by the scheduler",
	})
)

// NewChecker creates a health checker. cache and events may be nil.
func NewChecker(db *gorm.DB, cache Pinger, events ConnectionChecker, version string) *Checker {
	hc := &Checker{
		db:        db,
		cache:     cache,
		events:    events,
		startTime: time.Now(),
		version:   version,
	}
	serviceInfo.WithLabelValues(version).Set(1)
	return hc
}

// SetReady marks the service as ready to receive traffic
func (h *Checker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the service is ready
func (h *Checker) IsReady() bool {
	return h.ready.Load()
}

// CheckDatabase verifies database connectivity
func (h *Checker) CheckDatabase(ctx context.Context) error {
	sqlDB, err := h.db.DB()
	if err != nil {
		dbConnectionStatus.Set(0)
		return err
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		dbConnectionStatus.Set(0)
		return err
	}
	dbConnectionStatus.Set(1)
	return nil
}

func (h *Checker) dependencies(ctx context.Context) gin.H {
	deps := gin.H{"database": "connected"}
	if err := h.CheckDatabase(ctx); err != nil {
		deps["database"] = "disconnected"
	}
	if h.cache != nil {
		deps["cache"] = "connected"
		if err := h.cache.Ping(ctx); err != nil {
			deps["cache"] = "disconnected"
		}
	}
	if h.events != nil {
		deps["events"] = "connected"
		if !h.events.IsConnected() {
			deps["events"] = "disconnected"
		}
	}
	return deps
}

// LivezHandler answers liveness probes
func (h *Checker) LivezHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// ReadyzHandler returns 200 only when the database is reachable.
// Cache and event bus outages degrade but do not fail readiness.
func (h *Checker) ReadyzHandler(c *gin.Context) {
	if !h.IsReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "service not initialized",
		})
		return
	}

	if err := h.CheckDatabase(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not_ready",
			"reason": "database unavailable",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ready",
		"dependencies": h.dependencies(c.Request.Context()),
	})
}

// HealthHandler reports uptime and dependency state
func (h *Checker) HealthHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "healthy",
		"service":      "billing-service",
		"version":      h.version,
		"uptime":       time.Since(h.startTime).String(),
		"dependencies": h.dependencies(c.Request.Context()),
	})
}

// MetricsHandler exposes the Prometheus registry
func MetricsHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// MetricsMiddleware records HTTP request metrics
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}

		c.Next()

		switch path {
		case "/livez", "/readyz", "/health", "/metrics":
			return
		}
		statusStr := http.StatusText(c.Writer.Status())
		if statusStr == "" {
			statusStr = "unknown"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, path, statusStr).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// RecordOperation counts a billing operation by outcome
func RecordOperation(operation string, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	billingOperations.WithLabelValues(operation, status).Inc()
}

// RecordScheduledPlanChanges counts plan changes applied by the scheduler
func RecordScheduledPlanChanges(n int) {
	if n > 0 {
		scheduledPlanChanges.Add(float64(n))
	}
}
