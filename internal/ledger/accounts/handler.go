package accounts

import (
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

// Handler wires HTTP endpoints for the account directory.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs accounts handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{accountID}", h.handleGet)
	r.Put("/{accountID}", h.handleUpdate)
	r.Delete("/{accountID}", h.handleDelete)
	r.Get("/{accountID}/balance", h.handleBalance)
}

type createAccountRequest struct {
	Code           string `json:"code" validate:"required,max=32"`
	Name           string `json:"name" validate:"required,max=255"`
	Type           string `json:"type" validate:"required"`
	ParentID       *int64 `json:"parent_id"`
	OpeningBalance string `json:"opening_balance"`
}

type updateAccountRequest struct {
	Code     string `json:"code" validate:"required,max=32"`
	Name     string `json:"name" validate:"required,max=255"`
	ParentID *int64 `json:"parent_id"`
	IsActive bool   `json:"is_active"`
}

type accountResponse struct {
	ID             int64  `json:"id"`
	Code           string `json:"code"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	ParentID       *int64 `json:"parent_id,omitempty"`
	OpeningBalance string `json:"opening_balance"`
	CurrentBalance string `json:"current_balance"`
	IsActive       bool   `json:"is_active"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:             a.ID,
		Code:           a.Code,
		Name:           a.Name,
		Type:           string(a.Type),
		ParentID:       a.ParentID,
		OpeningBalance: a.OpeningBalance.StringFixed(2),
		CurrentBalance: a.CurrentBalance.StringFixed(2),
		IsActive:       a.IsActive,
	}
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	opening := decimal.Zero
	if req.OpeningBalance != "" {
		var err error
		if opening, err = decimal.NewFromString(req.OpeningBalance); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "opening_balance is not a valid amount")
			return
		}
	}
	account, err := h.service.Create(r.Context(), id, CreateInput{
		Code:           req.Code,
		Name:           req.Name,
		Type:           AccountType(req.Type),
		ParentID:       req.ParentID,
		OpeningBalance: opening,
	})
	if err != nil {
		h.logger.Error("create account failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	var req updateAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	account, err := h.service.Update(r.Context(), id, UpdateInput{
		ID:       accountID,
		Code:     req.Code,
		Name:     req.Name,
		ParentID: req.ParentID,
		IsActive: req.IsActive,
	})
	if err != nil {
		h.logger.Error("update account failed", slog.Int64("account_id", accountID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	if err := h.service.Delete(r.Context(), id, accountID); err != nil {
		h.logger.Error("delete account failed", slog.Int64("account_id", accountID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), id, accountID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	list, err := h.service.List(r.Context(), id)
	if err != nil {
		h.logger.Error("list accounts failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]accountResponse, 0, len(list))
	for _, a := range list {
		out = append(out, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	accountID, err := pathID(r, "accountID")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid account id")
		return
	}
	var asOf *time.Time
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be YYYY-MM-DD")
			return
		}
		asOf = &t
	}
	balance, err := h.service.Balance(r.Context(), id, accountID, asOf)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"balance": balance.StringFixed(2)})
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}
