package stock

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

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for the stock ledger.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers stock ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handleMovement)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/adjustments", h.handleAdjustment)
	r.Get("/card", h.handleStockCard)
	r.Get("/balance", h.handleBalance)
	r.Get("/valuation", h.handleValuation)
}

type movementRequest struct {
	ProductID   int64             `json:"product_id" validate:"required"`
	WarehouseID *int64            `json:"warehouse_id"`
	Type        string            `json:"type" validate:"required"`
	Quantity    string            `json:"quantity" validate:"required"`
	UnitCost    string            `json:"unit_cost"`
	Batch       string            `json:"batch"`
	Lot         string            `json:"lot"`
	Serial      string            `json:"serial"`
	ExpiryDate  string            `json:"expiry_date"`
	Reference   *referenceRequest `json:"reference"`
	Note        string            `json:"note"`
	OccurredAt  string            `json:"occurred_at"`
}

type referenceRequest struct {
	Kind string `json:"kind" validate:"required"`
	ID   int64  `json:"id" validate:"required"`
}

type transferRequest struct {
	ProductID     int64  `json:"product_id" validate:"required"`
	FromWarehouse int64  `json:"from_warehouse" validate:"required"`
	ToWarehouse   int64  `json:"to_warehouse" validate:"required"`
	Quantity      string `json:"quantity" validate:"required"`
	Note          string `json:"note"`
	OccurredAt    string `json:"occurred_at"`
}

type adjustmentRequest struct {
	ProductID   int64  `json:"product_id" validate:"required"`
	WarehouseID *int64 `json:"warehouse_id"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitCost    string `json:"unit_cost"`
	Reason      string `json:"reason"`
	OccurredAt  string `json:"occurred_at"`
}

type entryResponse struct {
	ID             int64             `json:"id"`
	ProductID      int64             `json:"product_id"`
	WarehouseID    *int64            `json:"warehouse_id,omitempty"`
	Type           string            `json:"type"`
	Quantity       string            `json:"quantity"`
	UnitCost       string            `json:"unit_cost"`
	TotalCost      string            `json:"total_cost"`
	Batch          string            `json:"batch,omitempty"`
	Lot            string            `json:"lot,omitempty"`
	Serial         string            `json:"serial,omitempty"`
	Reference      *referenceRequest `json:"reference,omitempty"`
	RunningBalance string            `json:"running_balance"`
	Note           string            `json:"note,omitempty"`
	OccurredAt     string            `json:"occurred_at"`
}

func toEntryResponse(e Entry) entryResponse {
	resp := entryResponse{
		ID:             e.ID,
		ProductID:      e.ProductID,
		WarehouseID:    e.WarehouseID,
		Type:           string(e.Type),
		Quantity:       e.Quantity.String(),
		UnitCost:       e.UnitCost.String(),
		TotalCost:      e.TotalCost.String(),
		Batch:          e.Batch,
		Lot:            e.Lot,
		Serial:         e.Serial,
		RunningBalance: e.RunningBalance.String(),
		Note:           e.Note,
		OccurredAt:     e.OccurredAt.Format(time.RFC3339),
	}
	if e.Reference != nil {
		resp.Reference = &referenceRequest{Kind: string(e.Reference.Kind), ID: e.Reference.ID}
	}
	return resp
}

func parseAmount(raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(raw)
}

func parseOccurredAt(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := parseAmount(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity is not a valid amount")
		return
	}
	unitCost, err := parseAmount(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost is not a valid amount")
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339")
		return
	}
	var expiry *time.Time
	if req.ExpiryDate != "" {
		t, err := time.Parse(dateLayout, req.ExpiryDate)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "expiry_date must be YYYY-MM-DD")
			return
		}
		expiry = &t
	}
	var ref *shared.DocumentRef
	if req.Reference != nil {
		ref = &shared.DocumentRef{Kind: shared.DocumentKind(req.Reference.Kind), ID: req.Reference.ID}
	}
	entry, err := h.service.RecordMovement(r.Context(), id, MovementInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Type:        MovementType(req.Type),
		Quantity:    qty,
		UnitCost:    unitCost,
		Batch:       req.Batch,
		Lot:         req.Lot,
		Serial:      req.Serial,
		ExpiryDate:  expiry,
		Reference:   ref,
		Note:        req.Note,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		h.logger.Error("record movement failed", slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := parseAmount(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity is not a valid amount")
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339")
		return
	}
	out, in, err := h.service.Transfer(r.Context(), id, TransferInput{
		ProductID:     req.ProductID,
		FromWarehouse: req.FromWarehouse,
		ToWarehouse:   req.ToWarehouse,
		Quantity:      qty,
		Note:          req.Note,
		OccurredAt:    occurredAt,
	})
	if err != nil {
		h.logger.Error("transfer failed", slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, map[string]entryResponse{
		"outbound": toEntryResponse(out),
		"inbound":  toEntryResponse(in),
	})
}

func (h *Handler) handleAdjustment(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed JSON body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	qty, err := parseAmount(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "quantity is not a valid amount")
		return
	}
	unitCost, err := parseAmount(req.UnitCost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unit_cost is not a valid amount")
		return
	}
	occurredAt, err := parseOccurredAt(req.OccurredAt)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "occurred_at must be RFC3339")
		return
	}
	entry, err := h.service.Adjust(r.Context(), id, AdjustmentInput{
		ProductID:   req.ProductID,
		WarehouseID: req.WarehouseID,
		Quantity:    qty,
		UnitCost:    unitCost,
		Reason:      req.Reason,
		OccurredAt:  occurredAt,
	})
	if err != nil {
		h.logger.Error("adjustment failed", slog.Int64("product_id", req.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryResponse(entry))
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	filter, ok := h.parseScopeQuery(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse(dateLayout, raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
			return
		}
		filter.To = t.Add(24*time.Hour - time.Nanosecond)
	}
	filter.Limit = 500
	entries, err := h.service.StockCard(r.Context(), id, filter)
	if err != nil {
		h.logger.Error("stock card failed", slog.Int64("product_id", filter.ProductID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, toEntryResponse(e))
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	filter, ok := h.parseScopeQuery(w, r)
	if !ok {
		return
	}
	qty, err := h.service.CurrentBalance(r.Context(), id, filter.ProductID, filter.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"quantity": qty.String()})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	filter, ok := h.parseScopeQuery(w, r)
	if !ok {
		return
	}
	value, err := h.service.Valuation(r.Context(), id, filter.ProductID, filter.WarehouseID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"value": value.Round(2).String()})
}

func (h *Handler) parseScopeQuery(w http.ResponseWriter, r *http.Request) (EntryFilter, bool) {
	var filter EntryFilter
	q := r.URL.Query()
	productID, err := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if err != nil || productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "product_id is required")
		return filter, false
	}
	filter.ProductID = productID
	if raw := q.Get("warehouse_id"); raw != "" {
		warehouseID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "invalid warehouse_id")
			return filter, false
		}
		filter.WarehouseID = &warehouseID
	}
	return filter, true
}
