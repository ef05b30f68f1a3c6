package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dukerupert/cloudlicensepro/internal/licensecheck"
	"github.com/dukerupert/cloudlicensepro/internal/metrics"
	"github.com/dukerupert/cloudlicensepro/internal/store"
	"github.com/dukerupert/cloudlicensepro/internal/websocket"
)

// ValidateHandler serves the public key validation and activation
// endpoints.
type ValidateHandler struct {
	validator *licensecheck.Validator
	licenses  *store.LicenseStore
	metrics   *metrics.Metrics
	timeout   time.Duration
	notifier
	logger *slog.Logger
}

func NewValidateHandler(v *licensecheck.Validator, ls *store.LicenseStore, m *metrics.Metrics, timeout time.Duration, hub *websocket.Hub, logger *slog.Logger) *ValidateHandler {
	return &ValidateHandler{
		validator: v,
		licenses:  ls,
		metrics:   m,
		timeout:   timeout,
		notifier:  notifier{hub: hub},
		logger:    logger,
	}
}

type validateRequest struct {
	Key       string `json:"key"`
	ProductID string `json:"product_id"`
}

func (h *ValidateHandler) run(ctx context.Context, key, productID string) licensecheck.Result {
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	start := time.Now()
	res := h.validator.Validate(ctx, key, licensecheck.ResolveOptions{ProductID: productID})
	if h.metrics != nil {
		outcome := "valid"
		if !res.Valid {
			outcome = string(res.Kind)
		}
		h.metrics.ObserveValidation(outcome, res.Source, time.Since(start))
	}
	return res
}

// resultStatus is 200 for every decided outcome. Backend failures are 503
// so remote callers can tell "invalid" from "could not check".
func resultStatus(res licensecheck.Result) int {
	if res.Kind == licensecheck.KindBackendFailure {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Validate handles POST /api/licenses/validate.
func (h *ValidateHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if !bind(w, r, &req) {
		return
	}
	res := h.run(r.Context(), req.Key, strings.TrimSpace(req.ProductID))
	writeJSON(w, resultStatus(res), res)
}

// Display handles GET /api/licenses/validate/{key}.
func (h *ValidateHandler) Display(w http.ResponseWriter, r *http.Request) {
	res := h.run(r.Context(), chi.URLParam(r, "key"), r.URL.Query().Get("product_id"))
	writeJSON(w, resultStatus(res), licensecheck.FormatResult(res))
}

type activateRequest struct {
	Key       string `json:"key" validate:"required"`
	ProductID string `json:"product_id"`
	MachineID string `json:"machine_id" validate:"required,max=200"`
}

// Activate handles POST /api/licenses/activate. The key must validate and
// refer to a direct license; the machine then takes an activation slot.
func (h *ValidateHandler) Activate(w http.ResponseWriter, r *http.Request) {
	var req activateRequest
	if !bind(w, r, &req) {
		return
	}

	res := h.run(r.Context(), req.Key, strings.TrimSpace(req.ProductID))
	if !res.Valid {
		writeJSON(w, resultStatus(res), res)
		return
	}
	if res.Source != licensecheck.SourceLicenses {
		writeError(w, http.StatusBadRequest, "activations are not tracked for reseller keys")
		return
	}

	licenseID := res.Details.RecordID
	act, err := h.licenses.AddActivation(r.Context(), licenseID, strings.TrimSpace(req.MachineID))
	if errors.Is(err, store.ErrActivationLimit) {
		writeError(w, http.StatusConflict, "activation limit reached")
		return
	}
	if err != nil {
		h.logger.Error("failed to add activation", "license_id", licenseID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to activate license")
		return
	}
	if act == nil {
		writeError(w, http.StatusNotFound, "license not found")
		return
	}

	if lic, err := h.licenses.GetByID(r.Context(), licenseID); err == nil && lic != nil {
		h.broadcast(websocket.NewMessage(lic.DeveloperID, "activation", "created", act.ID,
			map[string]any{"license_id": licenseID, "machine_id": act.MachineID}))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"license":    res,
		"activation": act,
	})
}
