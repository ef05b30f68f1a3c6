package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/store"
)

type DashboardHandler struct {
	dashboard *store.DashboardStore
	logger    *slog.Logger
}

func NewDashboardHandler(ds *store.DashboardStore, logger *slog.Logger) *DashboardHandler {
	return &DashboardHandler{dashboard: ds, logger: logger}
}

func (h *DashboardHandler) Developer(w http.ResponseWriter, r *http.Request) {
	stats, err := h.dashboard.Developer(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to load dashboard", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load dashboard")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
