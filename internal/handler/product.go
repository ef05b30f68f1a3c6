package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	"github.com/dukerupert/cloudlicensepro/internal/websocket"
)

type ProductHandler struct {
	products *store.ProductStore
	notifier
	logger *slog.Logger
}

func NewProductHandler(ps *store.ProductStore, hub *websocket.Hub, logger *slog.Logger) *ProductHandler {
	return &ProductHandler{products: ps, notifier: notifier{hub: hub}, logger: logger}
}

type productRequest struct {
	Name                string `json:"name" validate:"required,max=200"`
	Description         string `json:"description" validate:"max=2000"`
	PriceCents          int64  `json:"price_cents" validate:"gte=0"`
	LicenseType         string `json:"license_type" validate:"omitempty,oneof=single floating concurrent Trial Subscription Lifetime"`
	DefaultDurationDays *int   `json:"default_duration_days" validate:"omitempty,gt=0"`
	MaxActivations      *int   `json:"max_activations" validate:"omitempty,gt=0"`
}

func (req productRequest) product(developerID string) *model.Product {
	return &model.Product{
		DeveloperID:         developerID,
		Name:                strings.TrimSpace(req.Name),
		Description:         req.Description,
		PriceCents:          req.PriceCents,
		LicenseType:         req.LicenseType,
		DefaultDurationDays: req.DefaultDurationDays,
		MaxActivations:      req.MaxActivations,
	}
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !bind(w, r, &req) {
		return
	}

	devID := auth.UserID(r.Context())
	p, err := h.products.Create(r.Context(), req.product(devID))
	if err != nil {
		h.logger.Error("failed to create product", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create product")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "product", "created", p.ID, nil))
	writeJSON(w, http.StatusCreated, p)
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListByDeveloper(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to list products", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

// Catalog lists every developer's products for resellers choosing what to
// list.
func (h *ProductHandler) Catalog(w http.ResponseWriter, r *http.Request) {
	products, err := h.products.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list catalog", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list products")
		return
	}
	writeJSON(w, http.StatusOK, products)
}

func (h *ProductHandler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.products.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to get product", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get product")
		return
	}
	if p == nil || (p.DeveloperID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req productRequest
	if !bind(w, r, &req) {
		return
	}

	devID := auth.UserID(r.Context())
	p := req.product(devID)
	p.ID = chi.URLParam(r, "id")
	if p.LicenseType == "" {
		p.LicenseType = model.TypeSingle
	}

	updated, err := h.products.Update(r.Context(), p)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update product", "id", p.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update product")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "product", "updated", p.ID, nil))
	writeJSON(w, http.StatusOK, updated)
}

func (h *ProductHandler) Delete(w http.ResponseWriter, r *http.Request) {
	devID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	err := h.products.Delete(r.Context(), devID, id)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete product", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete product")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "product", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}
