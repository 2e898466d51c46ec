package handlers

import (
	"net/http"
	"time"

	"github.com/upb/api-gateway/utils"
	"go.uber.org/zap"
)

// Version is reported by the status endpoint; overridden at build time
var Version = "0.1.0"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// ReadinessSource is what the readiness check inspects
type ReadinessSource interface {
	KeyLoaded() bool
	UpstreamCount() int
}

// HealthCheck returns a simple liveness handler
func HealthCheck() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// ReadinessCheck reports ready once a signing key is loaded and at least one
// upstream is configured.
func ReadinessCheck(src ReadinessSource, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := make(map[string]string)
		ready := true

		if src.KeyLoaded() {
			checks["signing_key"] = "loaded"
		} else {
			checks["signing_key"] = "missing"
			ready = false
		}

		if src.UpstreamCount() > 0 {
			checks["upstreams"] = "configured"
		} else {
			checks["upstreams"] = "none_configured"
			ready = false
		}

		response := HealthResponse{
			Status:    "ready",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Checks:    checks,
		}

		if !ready {
			response.Status = "not_ready"
			logger.Warn("readiness check failed", zap.Any("checks", checks))
			_ = utils.WriteServiceUnavailable(w, response)
			return
		}
		_ = utils.WriteOK(w, response)
	}
}

// StatusHandler returns application status information
func StatusHandler(environment string, upstreams func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_ = utils.WriteOK(w, map[string]interface{}{
			"version":     Version,
			"environment": environment,
			"upstreams":   upstreams(),
		})
	}
}
