package billing

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/billbook-app/billbook/internal/format"
	"github.com/billbook-app/billbook/internal/platform/httpx"
	"github.com/billbook-app/billbook/internal/shared"
)

// FinalizeObserver is notified after each successful finalization.
type FinalizeObserver interface {
	BillFinalized()
}

// Handler serves the billing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	observer FinalizeObserver
}

// NewHandler builds a Handler. observer may be nil.
func NewHandler(logger *slog.Logger, service *Service, observer FinalizeObserver) *Handler {
	return &Handler{logger: logger, service: service, observer: observer}
}

// MountRoutes registers billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/parties/{partyID}/unbilled-challans", h.unbilledForParty)
	r.Post("/bills", h.finalize)
	r.Get("/bills/{id}", h.getBill)
}

func (h *Handler) unbilledForParty(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	if businessID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Business", "business identity is required")
		return
	}

	list, err := h.service.UnbilledForParty(r.Context(), businessID, chi.URLParam(r, "partyID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": list})
}

func (h *Handler) finalize(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	if businessID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Business", "business identity is required")
		return
	}

	var req FinalizeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.BusinessID = businessID

	result, err := h.service.Finalize(r.Context(), req)
	if err != nil {
		h.logger.Warn("finalize bill failed",
			slog.String("party_id", req.PartyID),
			slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.observer != nil {
		h.observer.BillFinalized()
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type billView struct {
	Bill
	SubtotalDisplay string `json:"subtotal_display"`
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	bill, err := h.service.GetBill(r.Context(), chi.URLParam(r, "id"), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, billView{
		Bill:            *bill,
		SubtotalDisplay: format.INR(bill.Subtotal),
	})
}
