package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pawpoint/pawpoint/internal/monitoring"
)

func checkerWith(status monitoring.HealthStatus) *monitoring.HealthChecker {
	hc := monitoring.NewHealthChecker("pawpoint-bot", "test")
	hc.RegisterCustomCheck("stub", func() monitoring.ComponentHealth {
		return monitoring.ComponentHealth{
			Status:      status,
			LastChecked: time.Now(),
		}
	})
	return hc
}

func doRequest(router *gin.Engine, method, path string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestHealthEndpoint(t *testing.T) {
	gin.SetMode(gin.TestMode)
	noopWebhook := func(c *gin.Context) { c.Status(http.StatusOK) }

	t.Run("healthy components answer 200", func(t *testing.T) {
		router := newRouter(noopWebhook, checkerWith(monitoring.HealthStatusHealthy))

		w := doRequest(router, "GET", "/health")
		require.Equal(t, http.StatusOK, w.Code)

		var response monitoring.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, monitoring.HealthStatusHealthy, response.Status)
		assert.Equal(t, "pawpoint-bot", response.Service)
		assert.Contains(t, response.Components, "stub")
	})

	t.Run("degraded still answers 200", func(t *testing.T) {
		router := newRouter(noopWebhook, checkerWith(monitoring.HealthStatusDegraded))

		w := doRequest(router, "GET", "/health")
		require.Equal(t, http.StatusOK, w.Code)

		var response monitoring.HealthResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
		assert.Equal(t, monitoring.HealthStatusDegraded, response.Status)
	})

	t.Run("unhealthy answers 503", func(t *testing.T) {
		router := newRouter(noopWebhook, checkerWith(monitoring.HealthStatusUnhealthy))

		w := doRequest(router, "GET", "/health")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("readiness follows overall status", func(t *testing.T) {
		router := newRouter(noopWebhook, checkerWith(monitoring.HealthStatusHealthy))
		assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/health/ready").Code)

		router = newRouter(noopWebhook, checkerWith(monitoring.HealthStatusUnhealthy))
		assert.Equal(t, http.StatusServiceUnavailable, doRequest(router, "GET", "/health/ready").Code)
	})

	t.Run("liveness always answers 200", func(t *testing.T) {
		router := newRouter(noopWebhook, checkerWith(monitoring.HealthStatusUnhealthy))
		assert.Equal(t, http.StatusOK, doRequest(router, "GET", "/health/live").Code)
	})
}

func TestWebhookRouting(t *testing.T) {
	gin.SetMode(gin.TestMode)

	called := false
	router := newRouter(func(c *gin.Context) {
		called = true
		c.Status(http.StatusOK)
	}, checkerWith(monitoring.HealthStatusHealthy))

	w := doRequest(router, "POST", "/webhook")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, called)

	// Only POST is routed.
	assert.Equal(t, http.StatusNotFound, doRequest(router, "GET", "/webhook").Code)
}
