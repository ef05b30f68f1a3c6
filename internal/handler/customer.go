package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	"github.com/dukerupert/cloudlicensepro/internal/websocket"
)

type CustomerHandler struct {
	customers *store.CustomerStore
	notifier
	logger *slog.Logger
}

func NewCustomerHandler(cs *store.CustomerStore, hub *websocket.Hub, logger *slog.Logger) *CustomerHandler {
	return &CustomerHandler{customers: cs, notifier: notifier{hub: hub}, logger: logger}
}

type customerRequest struct {
	Name  string `json:"name" validate:"max=200"`
	Email string `json:"email" validate:"required,email"`
}

func (h *CustomerHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if !bind(w, r, &req) {
		return
	}

	devID := auth.UserID(r.Context())
	existing, err := h.customers.GetByEmail(r.Context(), devID, req.Email)
	if err != nil {
		h.logger.Error("failed to look up customer", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create customer")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "a customer with that email already exists")
		return
	}

	c, err := h.customers.Create(r.Context(), devID, strings.TrimSpace(req.Name), req.Email)
	if err != nil {
		h.logger.Error("failed to create customer", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create customer")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "customer", "created", c.ID, nil))
	writeJSON(w, http.StatusCreated, c)
}

func (h *CustomerHandler) List(w http.ResponseWriter, r *http.Request) {
	customers, err := h.customers.ListByDeveloper(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to list customers", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list customers")
		return
	}
	writeJSON(w, http.StatusOK, customers)
}
