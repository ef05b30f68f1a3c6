package handler

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/cloudlicensepro/internal/auth"
	"github.com/dukerupert/cloudlicensepro/internal/export"
	"github.com/dukerupert/cloudlicensepro/internal/model"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	"github.com/dukerupert/cloudlicensepro/internal/websocket"
)

// LicenseHandler serves a developer's license management endpoints.
type LicenseHandler struct {
	licenses  *store.LicenseStore
	products  *store.ProductStore
	customers *store.CustomerStore
	notifier
	logger *slog.Logger
}

func NewLicenseHandler(ls *store.LicenseStore, ps *store.ProductStore, cs *store.CustomerStore, hub *websocket.Hub, logger *slog.Logger) *LicenseHandler {
	return &LicenseHandler{
		licenses:  ls,
		products:  ps,
		customers: cs,
		notifier:  notifier{hub: hub},
		logger:    logger,
	}
}

type issueRequest struct {
	ProductID      string     `json:"product_id" validate:"required"`
	Key            string     `json:"license_key" validate:"omitempty,min=8,max=100"`
	CustomerID     string     `json:"customer_id"`
	CustomerName   string     `json:"customer_name" validate:"max=200"`
	CustomerEmail  string     `json:"customer_email" validate:"omitempty,email"`
	Status         string     `json:"status" validate:"omitempty,oneof=active inactive expired revoked"`
	Type           string     `json:"license_type" validate:"omitempty,oneof=single floating concurrent Trial Subscription Lifetime"`
	ExpiresAt      *time.Time `json:"expires_at"`
	DurationDays   *int       `json:"duration_days" validate:"omitempty,gt=0"`
	MaxActivations *int       `json:"max_activations" validate:"omitempty,gt=0"`
}

// Issue handles POST /api/licenses. Type, expiry and activation limit
// default to the product's settings.
func (h *LicenseHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !bind(w, r, &req) {
		return
	}
	ctx := r.Context()
	devID := auth.UserID(ctx)

	product, err := h.products.GetByID(ctx, req.ProductID)
	if err != nil {
		h.logger.Error("failed to get product", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue license")
		return
	}
	if product == nil || product.DeveloperID != devID {
		writeError(w, http.StatusBadRequest, "unknown product")
		return
	}

	lic := &model.License{
		Key:            req.Key,
		ProductID:      product.ID,
		DeveloperID:    devID,
		Status:         req.Status,
		Type:           req.Type,
		ExpiresAt:      req.ExpiresAt,
		MaxActivations: req.MaxActivations,
	}
	if lic.Type == "" {
		lic.Type = product.LicenseType
	}
	if lic.MaxActivations == nil {
		lic.MaxActivations = product.MaxActivations
	}
	if lic.ExpiresAt == nil {
		days := req.DurationDays
		if days == nil {
			days = product.DefaultDurationDays
		}
		if days != nil {
			exp := time.Now().UTC().AddDate(0, 0, *days)
			lic.ExpiresAt = &exp
		}
	}

	switch {
	case req.CustomerID != "":
		c, err := h.customers.GetByID(ctx, req.CustomerID)
		if err != nil {
			h.logger.Error("failed to get customer", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to issue license")
			return
		}
		if c == nil || c.DeveloperID != devID {
			writeError(w, http.StatusBadRequest, "unknown customer")
			return
		}
		lic.CustomerID = &c.ID
	case req.CustomerEmail != "":
		c, err := h.customers.FindOrCreate(ctx, devID, strings.TrimSpace(req.CustomerName), req.CustomerEmail)
		if err != nil {
			h.logger.Error("failed to find or create customer", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to issue license")
			return
		}
		lic.CustomerID = &c.ID
	}

	created, err := h.licenses.Create(ctx, lic)
	if errors.Is(err, store.ErrDuplicateKey) {
		writeError(w, http.StatusConflict, "license key already exists")
		return
	}
	if err != nil {
		h.logger.Error("failed to create license", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to issue license")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "license", "created", created.ID, nil))
	writeJSON(w, http.StatusCreated, created)
}

func filterFromQuery(r *http.Request) (model.LicenseFilter, error) {
	q := r.URL.Query()
	f := model.LicenseFilter{
		DeveloperID: auth.UserID(r.Context()),
		ProductID:   q.Get("product_id"),
		Status:      q.Get("status"),
		Search:      q.Get("search"),
	}
	if f.Status != "" && !model.ValidStatus(f.Status) {
		return f, fmt.Errorf("unknown status %q", f.Status)
	}
	return f, nil
}

// List handles GET /api/licenses?status=&product_id=&search=&page=&size=.
func (h *LicenseHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	page := model.Page{
		Number: queryInt(r, "page", 1),
		Size:   queryInt(r, "size", store.DefaultPageSize),
	}

	result, err := h.licenses.List(r.Context(), f, page)
	if err != nil {
		h.logger.Error("failed to list licenses", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list licenses")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// owned loads the license named in the URL, writing a 404 when it does not
// exist or belongs to another developer.
func (h *LicenseHandler) owned(w http.ResponseWriter, r *http.Request) (*model.License, bool) {
	lic, err := h.licenses.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.logger.Error("failed to get license", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get license")
		return nil, false
	}
	if lic == nil || (lic.DeveloperID != auth.UserID(r.Context()) && !auth.IsAdmin(r.Context())) {
		writeError(w, http.StatusNotFound, "license not found")
		return nil, false
	}
	return lic, true
}

type licenseDetail struct {
	*model.License
	Activations []model.Activation `json:"activations"`
}

func (h *LicenseHandler) Get(w http.ResponseWriter, r *http.Request) {
	lic, ok := h.owned(w, r)
	if !ok {
		return
	}
	acts, err := h.licenses.ListActivations(r.Context(), lic.ID)
	if err != nil {
		h.logger.Error("failed to list activations", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get license")
		return
	}
	writeJSON(w, http.StatusOK, licenseDetail{License: lic, Activations: acts})
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive expired revoked"`
}

func (h *LicenseHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if !bind(w, r, &req) {
		return
	}
	devID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	lic, err := h.licenses.UpdateStatus(r.Context(), devID, id, req.Status)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "license not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to update license status", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update license")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "license", "updated", id, map[string]any{"status": req.Status}))
	writeJSON(w, http.StatusOK, lic)
}

type bulkStatusRequest struct {
	IDs    []string `json:"ids" validate:"required,min=1,max=500,dive,required"`
	Status string   `json:"status" validate:"required,oneof=active inactive expired revoked"`
}

func (h *LicenseHandler) BulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	var req bulkStatusRequest
	if !bind(w, r, &req) {
		return
	}
	devID := auth.UserID(r.Context())

	n, err := h.licenses.BulkUpdateStatus(r.Context(), devID, req.IDs, req.Status)
	if err != nil {
		h.logger.Error("failed to bulk update licenses", "count", len(req.IDs), "error", err)
		writeError(w, http.StatusInternalServerError, "failed to update licenses")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "license", "bulk_updated", "", map[string]any{
		"status":  req.Status,
		"updated": n,
	}))
	writeJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (h *LicenseHandler) Delete(w http.ResponseWriter, r *http.Request) {
	devID := auth.UserID(r.Context())
	id := chi.URLParam(r, "id")

	err := h.licenses.Delete(r.Context(), devID, id)
	if errors.Is(err, store.ErrNotOwner) {
		writeError(w, http.StatusNotFound, "license not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to delete license", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete license")
		return
	}

	h.broadcast(websocket.NewMessage(devID, "license", "deleted", id, nil))
	w.WriteHeader(http.StatusNoContent)
}

type machineRequest struct {
	MachineID string `json:"machine_id" validate:"required,max=200"`
}

// Activate records a machine against a license on the developer's behalf.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req machineRequest
	if !bind(w, r, &req) {
		return
	}
	lic, ok := h.owned(w, r)
	if !ok {
		return
	}

	act, err := h.licenses.AddActivation(r.Context(), lic.ID, strings.TrimSpace(req.MachineID))
	if errors.Is(err, store.ErrActivationLimit) {
		writeError(w, http.StatusConflict, "activation limit reached")
		return
	}
	if err != nil {
		h.logger.Error("failed to add activation", "id", lic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to activate license")
		return
	}
	if act == nil {
		writeError(w, http.StatusNotFound, "license not found")
		return
	}

	h.broadcast(websocket.NewMessage(lic.DeveloperID, "activation", "created", act.ID,
		map[string]any{"license_id": lic.ID, "machine_id": act.MachineID}))
	writeJSON(w, http.StatusOK, act)
}

func (h *LicenseHandler) Deactivate(w http.ResponseWriter, r *http.Request) {
	lic, ok := h.owned(w, r)
	if !ok {
		return
	}
	machine := chi.URLParam(r, "machine")
	if err := h.licenses.DeleteActivation(r.Context(), lic.ID, machine); err != nil {
		h.logger.Error("failed to delete activation", "id", lic.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to deactivate machine")
		return
	}

	h.broadcast(websocket.NewMessage(lic.DeveloperID, "activation", "deleted", lic.ID,
		map[string]any{"machine_id": machine}))
	w.WriteHeader(http.StatusNoContent)
}

// ExportPassphraseHeader carries an optional passphrase that seals the
// export. It is a header so it stays out of access logs.
const ExportPassphraseHeader = "X-Export-Passphrase"

// Export handles GET /api/licenses/export?format=csv|xlsx with the same
// filters as List.
func (h *LicenseHandler) Export(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	format := r.URL.Query().Get("format")
	if format == "" {
		format = export.FormatCSV
	}
	if format != export.FormatCSV && format != export.FormatXLSX {
		writeError(w, http.StatusBadRequest, "format must be csv or xlsx")
		return
	}

	licenses, err := h.licenses.ListAll(r.Context(), f)
	if err != nil {
		h.logger.Error("failed to list licenses for export", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export licenses")
		return
	}

	passphrase := r.Header.Get(ExportPassphraseHeader)
	data, contentType, err := export.Render(format, licenses, passphrase)
	if err != nil {
		h.logger.Error("failed to render export", "format", format, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to export licenses")
		return
	}

	filename := fmt.Sprintf("licenses-%s.%s", time.Now().UTC().Format("20060102"), format)
	if passphrase != "" {
		filename += ".sealed"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, filename))
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}
