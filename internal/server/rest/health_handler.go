package rest

import (
	"context"
	"net/http"
	"time"

	"github.com/dmitrijs2005/paygate/internal/dbx"
	"github.com/dmitrijs2005/paygate/internal/timex"
)

type HealthHandler struct {
	store dbx.Store
	clock timex.Clock
}

func NewHealthHandler(store dbx.Store) *HealthHandler {
	return &HealthHandler{store: store}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type deepHealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Services  map[string]string `json:"services"`
}

// Deep pings the database. A failed ping degrades the status but still
// answers 200 so monitoring can read the body.
func (h *HealthHandler) Deep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	resp := deepHealthResponse{
		Status:    "ok",
		Timestamp: h.clock.Now().UTC(),
		Services:  map[string]string{"database": "connected"},
	}
	if err := h.store.PingContext(ctx); err != nil {
		resp.Status = "degraded"
		resp.Services["database"] = "disconnected"
	}

	writeJSON(w, http.StatusOK, resp)
}
