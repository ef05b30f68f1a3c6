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

// ResellerHandler serves the reseller marketplace: listings, inventory
// purchases and key sales.
type ResellerHandler struct {
	resellers *store.ResellerStore
	keys      *store.CustomerKeyStore
	products  *store.ProductStore
	notifier
	logger *slog.Logger
}

func NewResellerHandler(rs *store.ResellerStore, ks *store.CustomerKeyStore, ps *store.ProductStore, hub *websocket.Hub, logger *slog.Logger) *ResellerHandler {
	return &ResellerHandler{
		resellers: rs,
		keys:      ks,
		products:  ps,
		notifier:  notifier{hub: hub},
		logger:    logger,
	}
}

type resellerRequest struct {
	UserID          string `json:"user_id" validate:"required"`
	Name            string `json:"name" validate:"required,max=200"`
	Email           string `json:"email" validate:"required,email"`
	DiscountPercent int    `json:"discount_percent" validate:"gte=0,lte=100"`
}

// Register creates a reseller profile for a user. Admin only.
func (h *ResellerHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req resellerRequest
	if !bind(w, r, &req) {
		return
	}

	existing, err := h.resellers.GetByUserID(r.Context(), req.UserID)
	if err != nil {
		h.logger.Error("failed to look up reseller", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reseller")
		return
	}
	if existing != nil {
		writeError(w, http.StatusConflict, "user already has a reseller profile")
		return
	}

	res, err := h.resellers.Create(r.Context(), req.UserID, strings.TrimSpace(req.Name), req.Email, req.DiscountPercent)
	if err != nil {
		h.logger.Error("failed to create reseller", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create reseller")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// current loads the caller's reseller profile, writing a 403 when the user
// has none.
func (h *ResellerHandler) current(w http.ResponseWriter, r *http.Request) (*model.Reseller, bool) {
	res, err := h.resellers.GetByUserID(r.Context(), auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("failed to get reseller", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load reseller profile")
		return nil, false
	}
	if res == nil {
		writeError(w, http.StatusForbidden, "no reseller profile for this account")
		return nil, false
	}
	return res, true
}

type profileResponse struct {
	*model.Reseller
	Summary *model.SalesSummary `json:"summary"`
}

func (h *ResellerHandler) Profile(w http.ResponseWriter, r *http.Request) {
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	sum, err := h.resellers.Summary(r.Context(), res.ID)
	if err != nil {
		h.logger.Error("failed to summarize reseller", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load reseller profile")
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Reseller: res, Summary: sum})
}

type listingRequest struct {
	ProductID     string `json:"product_id" validate:"required"`
	MarkupPercent int    `json:"markup_percent" validate:"gte=0,lte=1000"`
}

func (h *ResellerHandler) CreateListing(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if !bind(w, r, &req) {
		return
	}
	res, ok := h.current(w, r)
	if !ok {
		return
	}

	listing, err := h.resellers.CreateListing(r.Context(), res.ID, req.ProductID, req.MarkupPercent)
	if errors.Is(err, store.ErrDuplicateListing) {
		writeError(w, http.StatusConflict, "product already listed")
		return
	}
	if err != nil {
		h.logger.Error("failed to create listing", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create listing")
		return
	}
	if listing == nil {
		writeError(w, http.StatusBadRequest, "unknown product")
		return
	}

	h.broadcast(websocket.NewMessage(res.UserID, "listing", "created", listing.ID, nil))
	writeJSON(w, http.StatusCreated, listing)
}

func (h *ResellerHandler) ListListings(w http.ResponseWriter, r *http.Request) {
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	listings, err := h.resellers.ListListings(r.Context(), res.ID)
	if err != nil {
		h.logger.Error("failed to list listings", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}
	writeJSON(w, http.StatusOK, listings)
}

type purchaseRequest struct {
	Quantity int `json:"quantity" validate:"required,gt=0,lte=10000"`
}

// Purchase adds keys to a listing's pool at the wholesale price.
func (h *ResellerHandler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !bind(w, r, &req) {
		return
	}
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	listingID := chi.URLParam(r, "id")

	p, err := h.resellers.PurchaseInventory(r.Context(), res.ID, listingID, req.Quantity)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to purchase inventory", "listing_id", listingID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to purchase inventory")
		return
	}
	if p == nil {
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	h.broadcast(websocket.NewMessage(res.UserID, "listing", "restocked", listingID,
		map[string]any{"quantity": p.Quantity}))
	writeJSON(w, http.StatusCreated, p)
}

type sellRequest struct {
	CustomerEmail string `json:"customer_email" validate:"required,email"`
}

// Sell issues one key from a listing's pool to a customer.
func (h *ResellerHandler) Sell(w http.ResponseWriter, r *http.Request) {
	var req sellRequest
	if !bind(w, r, &req) {
		return
	}
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	listingID := chi.URLParam(r, "id")

	key, err := h.keys.SellKey(r.Context(), res.ID, listingID, req.CustomerEmail)
	switch {
	case errors.Is(err, store.ErrNotOwner):
		writeError(w, http.StatusNotFound, "listing not found")
		return
	case errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, "no keys left in stock")
		return
	case err != nil:
		h.logger.Error("failed to sell key", "listing_id", listingID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to sell key")
		return
	case key == nil:
		writeError(w, http.StatusNotFound, "listing not found")
		return
	}

	h.broadcast(websocket.NewMessage(res.UserID, "customer_key", "created", key.ID, nil))
	writeJSON(w, http.StatusCreated, key)
}

func (h *ResellerHandler) ListKeys(w http.ResponseWriter, r *http.Request) {
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	keys, err := h.keys.ListByReseller(r.Context(), res.ID)
	if err != nil {
		h.logger.Error("failed to list customer keys", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list keys")
		return
	}
	writeJSON(w, http.StatusOK, keys)
}

func (h *ResellerHandler) UpdateKeyStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !bind(w, r, &req) {
		return
	}
	res, ok := h.current(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")

	key, err := h.keys.UpdateStatus(r.Context(), res.ID, id, req.Status)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "key not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update key status", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update key")
		return
	}

	h.broadcast(websocket.NewMessage(res.UserID, "customer_key", "updated", id, map[string]any{"status": req.Status}))
	writeJSON(w, http.StatusOK, key)
}
