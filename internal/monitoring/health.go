// Package monitoring aggregates component health checks behind the
// HTTP health endpoints.
package monitoring

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-telegram/bot"

	"github.com/pawpoint/pawpoint/internal/cache"
	"github.com/pawpoint/pawpoint/internal/database"
)

// HealthStatus represents the overall health status
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// ComponentHealth represents the health of a single component
type ComponentHealth struct {
	Status      HealthStatus `json:"status"`
	Message     string       `json:"message,omitempty"`
	Latency     *int64       `json:"latency_ms,omitempty"`
	LastChecked time.Time    `json:"last_checked"`
	Details     interface{}  `json:"details,omitempty"`
}

// HealthResponse represents the complete health check response
type HealthResponse struct {
	Status     HealthStatus               `json:"status"`
	Service    string                     `json:"service"`
	Version    string                     `json:"version"`
	Timestamp  time.Time                  `json:"timestamp"`
	Uptime     time.Duration              `json:"uptime"`
	Components map[string]ComponentHealth `json:"components"`
	System     SystemInfo                 `json:"system"`
}

// SystemInfo represents process-level information
type SystemInfo struct {
	MemoryUsage MemoryInfo `json:"memory"`
	Goroutines  int        `json:"goroutines"`
	CPUCount    int        `json:"cpu_count"`
	GoVersion   string     `json:"go_version"`
}

// MemoryInfo represents memory usage information
type MemoryInfo struct {
	Allocated     uint64  `json:"allocated_bytes"`
	TotalAlloc    uint64  `json:"total_alloc_bytes"`
	Sys           uint64  `json:"sys_bytes"`
	NumGC         uint32  `json:"num_gc"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// HealthChecker runs registered component checks and caches the
// results for checkInterval between runs.
type HealthChecker struct {
	mu            sync.RWMutex
	startTime     time.Time
	service       string
	version       string
	components    map[string]ComponentHealth
	checkFuncs    map[string]func() ComponentHealth
	lastCheck     time.Time
	checkInterval time.Duration
}

// NewHealthChecker creates a new health checker
func NewHealthChecker(service, version string) *HealthChecker {
	return &HealthChecker{
		startTime:     time.Now(),
		service:       service,
		version:       version,
		components:    make(map[string]ComponentHealth),
		checkFuncs:    make(map[string]func() ComponentHealth),
		checkInterval: 30 * time.Second,
	}
}

// RegisterDatabaseCheck registers a Postgres health check
func (hc *HealthChecker) RegisterDatabaseCheck(name string, db *database.DB) {
	hc.RegisterCustomCheck(name, func() ComponentHealth {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := db.Health(ctx)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     fmt.Sprintf("Database connection failed: %v", err),
				Latency:     &latency,
				LastChecked: time.Now(),
			}
		}

		stats := db.Stats()
		details := map[string]interface{}{
			"open_connections": stats.OpenConnections,
			"in_use":           stats.InUse,
			"idle":             stats.Idle,
			"wait_count":       stats.WaitCount,
			"wait_duration":    stats.WaitDuration.String(),
		}

		status := HealthStatusHealthy
		if latency > 1000 {
			status = HealthStatusDegraded
		}

		return ComponentHealth{
			Status:      status,
			Message:     "Database connection successful",
			Latency:     &latency,
			LastChecked: time.Now(),
			Details:     details,
		}
	})
}

// RegisterRedisCheck registers a Redis health check
func (hc *HealthChecker) RegisterRedisCheck(name string, redis *cache.RedisService) {
	hc.RegisterCustomCheck(name, func() ComponentHealth {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		healthy := redis.HealthCheck(ctx)
		latency := time.Since(start).Milliseconds()

		if !healthy {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     "Redis connection failed",
				Latency:     &latency,
				LastChecked: time.Now(),
			}
		}

		status := HealthStatusHealthy
		if latency > 500 {
			status = HealthStatusDegraded
		}

		return ComponentHealth{
			Status:      status,
			Message:     "Redis connection successful",
			Latency:     &latency,
			LastChecked: time.Now(),
		}
	})
}

// RegisterTelegramBotCheck registers a Telegram API health check
func (hc *HealthChecker) RegisterTelegramBotCheck(name string, botAPI *bot.Bot) {
	hc.RegisterCustomCheck(name, func() ComponentHealth {
		start := time.Now()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		botInfo, err := botAPI.GetMe(ctx)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     fmt.Sprintf("Telegram API connection failed: %v", err),
				Latency:     &latency,
				LastChecked: time.Now(),
			}
		}

		status := HealthStatusHealthy
		if latency > 2000 {
			status = HealthStatusDegraded
		}

		return ComponentHealth{
			Status:      status,
			Message:     "Telegram bot connection successful",
			Latency:     &latency,
			LastChecked: time.Now(),
			Details: map[string]interface{}{
				"bot_username": botInfo.Username,
				"bot_id":       botInfo.ID,
			},
		}
	})
}

// RegisterHTTPServiceCheck registers an upstream HTTP health check.
// Used for the Overpass status endpoint.
func (hc *HealthChecker) RegisterHTTPServiceCheck(name, url string, timeout time.Duration, expectedStatus int) {
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	if expectedStatus == 0 {
		expectedStatus = http.StatusOK
	}

	client := &http.Client{Timeout: timeout}

	hc.RegisterCustomCheck(name, func() ComponentHealth {
		start := time.Now()
		resp, err := client.Get(url)
		latency := time.Since(start).Milliseconds()

		if err != nil {
			return ComponentHealth{
				Status:      HealthStatusUnhealthy,
				Message:     fmt.Sprintf("HTTP service check failed: %v", err),
				Latency:     &latency,
				LastChecked: time.Now(),
				Details:     map[string]interface{}{"url": url},
			}
		}
		defer resp.Body.Close()

		status := HealthStatusHealthy
		message := "HTTP service is healthy"
		if resp.StatusCode != expectedStatus {
			status = HealthStatusUnhealthy
			message = fmt.Sprintf("Unexpected status code: %d (expected %d)", resp.StatusCode, expectedStatus)
		} else if latency > 5000 {
			status = HealthStatusDegraded
			message = "HTTP service is slow"
		}

		return ComponentHealth{
			Status:      status,
			Message:     message,
			Latency:     &latency,
			LastChecked: time.Now(),
			Details: map[string]interface{}{
				"url":         url,
				"status_code": resp.StatusCode,
			},
		}
	})
}

// RegisterCustomCheck registers a custom health check function
func (hc *HealthChecker) RegisterCustomCheck(name string, checkFunc func() ComponentHealth) {
	hc.mu.Lock()
	defer hc.mu.Unlock()
	hc.checkFuncs[name] = checkFunc
}

// RunChecks executes all registered health checks
func (hc *HealthChecker) RunChecks() {
	hc.mu.RLock()
	funcs := make(map[string]func() ComponentHealth, len(hc.checkFuncs))
	for name, f := range hc.checkFuncs {
		funcs[name] = f
	}
	hc.mu.RUnlock()

	// Checks run without the lock held; a slow upstream must not block
	// concurrent health reads.
	results := make(map[string]ComponentHealth, len(funcs))
	for name, f := range funcs {
		results[name] = f()
	}

	hc.mu.Lock()
	for name, result := range results {
		hc.components[name] = result
	}
	hc.lastCheck = time.Now()
	hc.mu.Unlock()
}

// GetHealth returns the current health status, re-running checks when
// the cached results are older than the check interval.
func (hc *HealthChecker) GetHealth() HealthResponse {
	hc.mu.RLock()
	stale := time.Since(hc.lastCheck) > hc.checkInterval
	hc.mu.RUnlock()
	if stale {
		hc.RunChecks()
	}

	hc.mu.RLock()
	defer hc.mu.RUnlock()

	overallStatus := HealthStatusHealthy
	components := make(map[string]ComponentHealth, len(hc.components))
	for name, component := range hc.components {
		components[name] = component
		if component.Status == HealthStatusUnhealthy {
			overallStatus = HealthStatusUnhealthy
		} else if component.Status == HealthStatusDegraded && overallStatus == HealthStatusHealthy {
			overallStatus = HealthStatusDegraded
		}
	}

	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	return HealthResponse{
		Status:     overallStatus,
		Service:    hc.service,
		Version:    hc.version,
		Timestamp:  time.Now(),
		Uptime:     time.Since(hc.startTime),
		Components: components,
		System: SystemInfo{
			MemoryUsage: MemoryInfo{
				Allocated:     memStats.Alloc,
				TotalAlloc:    memStats.TotalAlloc,
				Sys:           memStats.Sys,
				NumGC:         memStats.NumGC,
				GCCPUFraction: memStats.GCCPUFraction,
			},
			Goroutines: runtime.NumGoroutine(),
			CPUCount:   runtime.NumCPU(),
			GoVersion:  runtime.Version(),
		},
	}
}

// HealthHandler returns a Gin handler for the full health report.
// Degraded still answers 200; only unhealthy returns 503.
func (hc *HealthChecker) HealthHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth()

		statusCode := http.StatusOK
		if health.Status == HealthStatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}

		c.JSON(statusCode, health)
	}
}

// ReadinessHandler returns a simple readiness check
func (hc *HealthChecker) ReadinessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		health := hc.GetHealth()

		if health.Status == HealthStatusUnhealthy {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"message": "Service is unhealthy",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":  "ready",
			"message": "Service is ready to accept traffic",
		})
	}
}

// LivenessHandler returns a simple liveness check
func (hc *HealthChecker) LivenessHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "alive",
			"uptime":    time.Since(hc.startTime).String(),
			"timestamp": time.Now(),
		})
	}
}
