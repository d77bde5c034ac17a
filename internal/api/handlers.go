package api

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"campaign-generator/backend/internal/session"
)

// Handler contains HTTP handlers for the campaign service REST surface.
type Handler struct {
	registry *session.Registry
}

// NewHandler creates a new Handler with required dependencies
func NewHandler(registry *session.Registry) *Handler {
	return &Handler{registry: registry}
}

// ServiceInfo describes the service for the root endpoint.
type ServiceInfo struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Docs    string `json:"docs"`
}

// HandleRoot returns basic service identification.
func (h *Handler) HandleRoot(w http.ResponseWriter, r *http.Request) {
	info := ServiceInfo{
		Message: "Campaign Generator API",
		Version: "1.0.0",
		Docs:    "/health",
	}
	writeJSON(w, http.StatusOK, info)
}

// HealthStatus represents the health check response
type HealthStatus struct {
	Status         string            `json:"status"`
	Timestamp      time.Time         `json:"timestamp"`
	Service        string            `json:"service"`
	Version        string            `json:"version"`
	ActiveSessions int               `json:"active_sessions"`
	Components     map[string]string `json:"components"`
}

// HandleHealth returns basic health status (always returns 200 OK)
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := HealthStatus{
		Status:         "ok",
		Timestamp:      time.Now(),
		Service:        "campaign-generator",
		Version:        "1.0.0",
		ActiveSessions: h.registry.Len(),
		Components: map[string]string{
			"websocket": "ok",
			"workflow":  "ok",
		},
	}
	writeJSON(w, http.StatusOK, status)
}

// SessionStatus reports whether a client id currently holds a live session.
type SessionStatus struct {
	ClientID string `json:"client_id"`
	Status   string `json:"status"`
}

// HandleSession reports the live-session status for a client id.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/sessions/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "Bad Request", "client id is required")
		return
	}
	if _, err := h.registry.Get(id); err != nil {
		writeError(w, http.StatusNotFound, "Not Found", "no active session for this client id")
		return
	}
	writeJSON(w, http.StatusOK, SessionStatus{ClientID: id, Status: "active"})
}

// writeJSON writes a JSON response with the given status code
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log error but can't change response at this point
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail"`
	Instance string `json:"instance,omitempty"`
}

// writeError writes an RFC 7807 Problem Details JSON error response
func writeError(w http.ResponseWriter, status int, title, detail string) {
	problem := ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	}
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(problem)
}
