package masterdata

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/billbook-app/billbook/internal/platform/httpx"
	"github.com/billbook-app/billbook/internal/shared"
)

// Handler serves the party and material endpoints.
type Handler struct {
	logger   *slog.Logger
	repo     *Repository
	validate *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo, validate: validator.New()}
}

// MountRoutes registers master data routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/parties", h.listParties)
	r.Post("/parties", h.createParty)
	r.Get("/parties/{id}", h.getParty)
	r.Put("/parties/{id}", h.updateParty)
	r.Post("/parties/{id}/toggle-active", h.togglePartyActive)

	r.Get("/materials", h.listMaterials)
	r.Post("/materials", h.createMaterial)
	r.Get("/materials/{id}", h.getMaterial)
	r.Put("/materials/{id}", h.updateMaterial)
	r.Post("/materials/{id}/toggle-active", h.toggleMaterialActive)
}

func (h *Handler) businessID(w http.ResponseWriter, r *http.Request) (string, bool) {
	businessID := shared.BusinessIDFromContext(r.Context())
	if businessID == "" {
		httpx.Problem(w, http.StatusBadRequest, "Missing Business", "business identity is required")
		return "", false
	}
	return businessID, true
}

func (h *Handler) createParty(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req CreatePartyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.BusinessID = businessID
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}

	id, err := h.repo.CreateParty(r.Context(), Party{BusinessID: businessID, Name: req.Name, Phone: req.Phone, Address: req.Address})
	if err != nil {
		h.logger.Warn("create party failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	party, err := h.repo.GetParty(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, party)
}

func (h *Handler) getParty(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	party, err := h.repo.GetParty(r.Context(), chi.URLParam(r, "id"), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) updateParty(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req UpdatePartyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.repo.UpdateParty(r.Context(), id, businessID, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	party, err := h.repo.GetParty(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) togglePartyActive(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	party, err := h.repo.GetParty(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.SetPartyActive(r.Context(), id, businessID, !party.IsActive); err != nil {
		httpx.RespondError(w, err)
		return
	}
	party.IsActive = !party.IsActive
	httpx.JSON(w, http.StatusOK, party)
}

func (h *Handler) listParties(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	parties, err := h.repo.ListActiveParties(r.Context(), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": parties})
}

func (h *Handler) createMaterial(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req CreateMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	req.BusinessID = businessID
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}

	id, err := h.repo.CreateMaterial(r.Context(), Material{BusinessID: businessID, Name: req.Name, Unit: req.Unit})
	if err != nil {
		h.logger.Warn("create material failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	material, err := h.repo.GetMaterial(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, material)
}

func (h *Handler) getMaterial(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	material, err := h.repo.GetMaterial(r.Context(), chi.URLParam(r, "id"), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) updateMaterial(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	var req UpdateMaterialRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid JSON", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.ProblemCode(w, http.StatusBadRequest, httpx.CodeValidation, "Validation Failed", err.Error())
		return
	}
	id := chi.URLParam(r, "id")
	if err := h.repo.UpdateMaterial(r.Context(), id, businessID, req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	material, err := h.repo.GetMaterial(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) toggleMaterialActive(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	material, err := h.repo.GetMaterial(r.Context(), id, businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.repo.SetMaterialActive(r.Context(), id, businessID, !material.IsActive); err != nil {
		httpx.RespondError(w, err)
		return
	}
	material.IsActive = !material.IsActive
	httpx.JSON(w, http.StatusOK, material)
}

func (h *Handler) listMaterials(w http.ResponseWriter, r *http.Request) {
	businessID, ok := h.businessID(w, r)
	if !ok {
		return
	}
	materials, err := h.repo.ListActiveMaterials(r.Context(), businessID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": materials})
}
