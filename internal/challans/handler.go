package challans

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/billbook-app/billbook/internal/fiscal"
	"github.com/billbook-app/billbook/internal/platform/httpx"
	"github.com/billbook-app/billbook/internal/shared"
)

// Handler serves the challan endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers challan routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/challans", h.listChallans)
	r.Post("/challans", h.createChallan)
	r.Get("/challans/{id}", h.getChallan)
	r.Put("/challans/{id}", h.updateChallan)
}

type challanView struct {
	Challan
	DisplayNo string `json:"display_no,omitempty"`
}

func newChallanView(ch Challan) challanView {
	view := challanView{Challan: ch}
	if ch.ChallanNo != nil {
		if issued, err := strconv.ParseInt(*ch.ChallanNo, 10, 64); err == nil {
			view.DisplayNo = fiscal.ChallanDisplayNumber(ch.YearKey, issued)
		}
	}
	return view
}

func (h *Handler) createChallan(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	if businessID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Business", "business identity is required")
		return
	}

	var req CreateChallanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.BusinessID = businessID

	ch, err := h.service.CreateChallan(r.Context(), req)
	if err != nil {
		h.logger.Warn("create challan failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newChallanView(*ch))
}

func (h *Handler) updateChallan(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	if businessID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Business", "business identity is required")
		return
	}

	var req UpdateChallanRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.ID = chi.URLParam(r, "id")
	req.BusinessID = businessID

	ch, err := h.service.UpdateChallan(r.Context(), req)
	if err != nil {
		h.logger.Warn("update challan failed", slog.String("challan_id", req.ID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newChallanView(*ch))
}

func (h *Handler) getChallan(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	ch, err := h.service.GetChallan(r.Context(), chi.URLParam(r, "id"), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newChallanView(*ch))
}

func (h *Handler) listChallans(w http.ResponseWriter, r *http.Request) {
	businessID := shared.BusinessIDFromContext(r.Context())
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	challans, total, err := h.service.ListChallans(r.Context(), businessID, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	views := make([]challanView, 0, len(challans))
	for _, ch := range challans {
		views = append(views, newChallanView(ch))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"items": views,
		"total": total,
	})
}
