package handlers

import (
	"net/http"
	"time"

	"github.com/eshaffer321/ledger-balancer/internal/api/dto"
)

// HealthHandler handles health check requests.
type HealthHandler struct {
	*Base
	started time.Time
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{Base: &Base{}, started: time.Now()}
}

// ServeHTTP handles the health check request.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	response := dto.NewHealthResponse()
	response.Uptime = time.Since(h.started).Round(time.Second).String()
	h.WriteJSON(w, http.StatusOK, response)
}
