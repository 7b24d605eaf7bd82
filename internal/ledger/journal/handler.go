package journal

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for the journal ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs journal handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{entryID}", h.handleGet)
	r.Put("/{entryID}", h.handleUpdate)
	r.Delete("/{entryID}", h.handleDelete)
	r.Post("/{entryID}/post", h.handlePost)
	r.Post("/{entryID}/void", h.handleVoid)
	r.Post("/{entryID}/reverse", h.handleReverse)
}

type lineRequest struct {
	AccountID  int64  `json:"account_id" validate:"required"`
	Debit      string `json:"debit"`
	Credit     string `json:"credit"`
	CostCenter string `json:"cost_center"`
	Memo       string `json:"memo"`
}

type referenceRequest struct {
	Kind string `json:"kind" validate:"required"`
	ID   int64  `json:"id" validate:"required"`
}

type entryRequest struct {
	Number    string            `json:"number" validate:"required,max=64"`
	Date      string            `json:"date" validate:"required"`
	Reference *referenceRequest `json:"reference"`
	Memo      string            `json:"memo"`
	Lines     []lineRequest     `json:"lines" validate:"required,min=1,dive"`
}

type voidRequest struct {
	Reason string `json:"reason"`
}

type reverseRequest struct {
	Memo string `json:"memo"`
}

type lineResponse struct {
	ID          int64  `json:"id"`
	AccountID   int64  `json:"account_id"`
	AccountCode string `json:"account_code"`
	AccountName string `json:"account_name"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	CostCenter  string `json:"cost_center,omitempty"`
	Memo        string `json:"memo,omitempty"`
}

type entryResponse struct {
	ID        int64             `json:"id"`
	Number    string            `json:"number"`
	Date      string            `json:"date"`
	Reference *referenceRequest `json:"reference,omitempty"`
	Memo      string            `json:"memo,omitempty"`
	Status    string            `json:"status"`
	PostedBy  *int64            `json:"posted_by,omitempty"`
	PostedAt  string            `json:"posted_at,omitempty"`
	Lines     []lineResponse    `json:"lines"`
}

func toEntryResponse(e Entry) entryResponse {
	resp := entryResponse{
		ID:       e.ID,
		Number:   e.Number,
		Date:     e.Date.Format(dateLayout),
		Memo:     e.Memo,
		Status:   string(e.Status),
		PostedBy: e.PostedBy,
		Lines:    make([]lineResponse, 0, len(e.Lines)),
	}
	if e.Reference != nil {
		resp.Reference = &referenceRequest{Kind: string(e.Reference.Kind), ID: e.Reference.ID}
	}
	if e.PostedAt != nil {
		resp.PostedAt = e.PostedAt.Format(time.RFC3339)
	}
	for _, l := range e.Lines {
		resp.Lines = append(resp.Lines, lineResponse{
			ID:          l.ID,
			AccountID:   l.AccountID,
			AccountCode: l.AccountCode,
			AccountName: l.AccountName,
			Debit:       l.Debit.StringFixed(2),
			Credit:      l.Credit.StringFixed(2),
			CostCenter:  l.CostCenter,
			Memo:        l.Memo,
		})
	}
	return resp
}

func (h *Handler) decodeEntry(w http.ResponseWriter, r *http.Request) (entryRequest, time.Time, []LineInput, *shared.DocumentRef, bool) {
	var req entryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return req, time.Time{}, nil, nil, false
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return req, time.Time{}, nil, nil, false
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return req, time.Time{}, nil, nil, false
	}
	lines := make([]LineInput, 0, len(req.Lines))
	for i, l := range req.Lines {
		debit, credit := decimal.Zero, decimal.Zero
		if l.Debit != "" {
			if debit, err = decimal.NewFromString(l.Debit); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
					"line "+strconv.Itoa(i+1)+": debit is not a valid amount")
				return req, time.Time{}, nil, nil, false
			}
		}
		if l.Credit != "" {
			if credit, err = decimal.NewFromString(l.Credit); err != nil {
				httpx.Problem(w, http.StatusBadRequest, "Validation Failed",
					"line "+strconv.Itoa(i+1)+": credit is not a valid amount")
				return req, time.Time{}, nil, nil, false
			}
		}
		lines = append(lines, LineInput{
			AccountID:  l.AccountID,
			Debit:      debit,
			Credit:     credit,
			CostCenter: l.CostCenter,
			Memo:       l.Memo,
		})
	}
	var ref *shared.DocumentRef
	if req.Reference != nil {
		ref = &shared.DocumentRef{Kind: shared.DocumentKind(req.Reference.Kind), ID: req.Reference.ID}
	}
	return req, date, lines, ref, true
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	req, date, lines, ref, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Create(r.Context(), id, CreateInput{
		Number:    req.Number,
		Date:      date,
		Reference: ref,
		Memo:      req.Memo,
		Lines:     lines,
	})
	if err != nil {
		h.logger.Error("create journal entry failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	req, date, lines, ref, ok := h.decodeEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.service.Update(r.Context(), id, UpdateInput{
		EntryID:   entryID,
		Number:    req.Number,
		Date:      date,
		Reference: ref,
		Memo:      req.Memo,
		Lines:     lines,
	})
	if err != nil {
		h.logger.Error("update journal entry failed", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	if err := h.service.Delete(r.Context(), id, entryID); err != nil {
		h.logger.Error("delete journal entry failed", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handlePost(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	entry, err := h.service.Post(r.Context(), id, entryID)
	if err != nil {
		h.logger.Error("post journal entry failed", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	entry, err := h.service.Void(r.Context(), id, entryID, req.Reason)
	if err != nil {
		h.logger.Error("void journal entry failed", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleReverse(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	entry, err := h.service.Reverse(r.Context(), id, entryID, req.Memo)
	if err != nil {
		h.logger.Error("reverse journal entry failed", slog.Int64("entry_id", entryID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	entryID, err := strconv.ParseInt(chi.URLParam(r, "entryID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid entry id")
		return
	}
	entry, err := h.service.Get(r.Context(), id, entryID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryResponse(entry))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	list, err := h.service.List(r.Context(), id)
	if err != nil {
		h.logger.Error("list journal entries failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(list))
	for _, e := range list {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}
