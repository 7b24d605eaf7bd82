package periods

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for fiscal periods.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs periods handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers fiscal period routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{fiscalYearID}", h.handleGet)
	r.Put("/{fiscalYearID}", h.handleUpdate)
	r.Delete("/{fiscalYearID}", h.handleDelete)
	r.Post("/{fiscalYearID}/close", h.handleClose)
}

type fiscalYearRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
}

type fiscalYearResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsClosed  bool   `json:"is_closed"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

func toFiscalYearResponse(fy FiscalYear) fiscalYearResponse {
	resp := fiscalYearResponse{
		ID:        fy.ID,
		Name:      fy.Name,
		StartDate: fy.StartDate.Format(dateLayout),
		EndDate:   fy.EndDate.Format(dateLayout),
		IsClosed:  fy.IsClosed,
	}
	if fy.ClosedAt != nil {
		resp.ClosedAt = fy.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

func (h *Handler) decodeWindow(w http.ResponseWriter, r *http.Request) (fiscalYearRequest, time.Time, time.Time, bool) {
	var req fiscalYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return req, time.Time{}, time.Time{}, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(dateLayout, req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "start_date must be YYYY-MM-DD")
		return req, time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(dateLayout, req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "end_date must be YYYY-MM-DD")
		return req, time.Time{}, time.Time{}, false
	}
	return req, start, end, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	req, start, end, ok := h.decodeWindow(w, r)
	if !ok {
		return
	}
	fy, err := h.service.Create(r.Context(), id, CreateInput{Name: req.Name, StartDate: start, EndDate: end})
	if err != nil {
		h.logger.Error("create fiscal year failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toFiscalYearResponse(fy))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	fyID, err := strconv.ParseInt(chi.URLParam(r, "fiscalYearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid fiscal year id")
		return
	}
	req, start, end, ok := h.decodeWindow(w, r)
	if !ok {
		return
	}
	fy, err := h.service.Update(r.Context(), id, UpdateInput{ID: fyID, Name: req.Name, StartDate: start, EndDate: end})
	if err != nil {
		h.logger.Error("update fiscal year failed", slog.Int64("fiscal_year_id", fyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFiscalYearResponse(fy))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	fyID, err := strconv.ParseInt(chi.URLParam(r, "fiscalYearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid fiscal year id")
		return
	}
	if err := h.service.Delete(r.Context(), id, fyID); err != nil {
		h.logger.Error("delete fiscal year failed", slog.Int64("fiscal_year_id", fyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	fyID, err := strconv.ParseInt(chi.URLParam(r, "fiscalYearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid fiscal year id")
		return
	}
	fy, err := h.service.Close(r.Context(), id, fyID)
	if err != nil {
		h.logger.Error("close fiscal year failed", slog.Int64("fiscal_year_id", fyID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFiscalYearResponse(fy))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	fyID, err := strconv.ParseInt(chi.URLParam(r, "fiscalYearID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid fiscal year id")
		return
	}
	fy, err := h.service.Get(r.Context(), id, fyID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toFiscalYearResponse(fy))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	list, err := h.service.List(r.Context(), id)
	if err != nil {
		h.logger.Error("list fiscal years failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]fiscalYearResponse, 0, len(list))
	for _, fy := range list {
		out = append(out, toFiscalYearResponse(fy))
	}
	httpx.JSON(w, http.StatusOK, out)
}
