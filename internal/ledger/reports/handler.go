package reports

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

const dateLayout = "2006-01-02"

// Handler wires HTTP endpoints for financial reports.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs reports handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/profit-and-loss", h.handleProfitAndLoss)
	r.Get("/balance-sheet", h.handleBalanceSheet)
}

type trialBalanceAccountDTO struct {
	Code    string `json:"code"`
	Name    string `json:"name"`
	Opening string `json:"opening"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
	Closing string `json:"closing"`
}

type trialBalanceGroupDTO struct {
	Key      string                   `json:"key"`
	Accounts []trialBalanceAccountDTO `json:"accounts"`
	Debit    string                   `json:"debit"`
	Credit   string                   `json:"credit"`
}

type trialBalanceDTO struct {
	Groups             []trialBalanceGroupDTO `json:"groups"`
	TotalDebit         string                 `json:"total_debit"`
	TotalCredit        string                 `json:"total_credit"`
	TotalClosingDebit  string                 `json:"total_closing_debit"`
	TotalClosingCredit string                 `json:"total_closing_credit"`
	IsBalanced         bool                   `json:"is_balanced"`
}

type reportLineDTO struct {
	Code   string `json:"code"`
	Name   string `json:"name"`
	Amount string `json:"amount"`
}

type reportSectionDTO struct {
	Lines []reportLineDTO `json:"lines"`
	Total string          `json:"total"`
}

func toSectionDTO(s ReportSection) reportSectionDTO {
	out := reportSectionDTO{Lines: make([]reportLineDTO, 0, len(s.Lines)), Total: s.Total.StringFixed(2)}
	for _, l := range s.Lines {
		out.Lines = append(out.Lines, reportLineDTO{Code: l.Code, Name: l.Name, Amount: l.Amount.StringFixed(2)})
	}
	return out
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	tb, err := h.service.TrialBalance(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("trial balance failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	dto := trialBalanceDTO{
		Groups:             make([]trialBalanceGroupDTO, 0, len(tb.Groups)),
		TotalDebit:         tb.TotalDebit.StringFixed(2),
		TotalCredit:        tb.TotalCredit.StringFixed(2),
		TotalClosingDebit:  tb.TotalClosingDebit.StringFixed(2),
		TotalClosingCredit: tb.TotalClosingCredit.StringFixed(2),
		IsBalanced:         tb.IsBalanced,
	}
	for _, g := range tb.Groups {
		group := trialBalanceGroupDTO{
			Key:      g.Key,
			Accounts: make([]trialBalanceAccountDTO, 0, len(g.Accounts)),
			Debit:    g.Debit.StringFixed(2),
			Credit:   g.Credit.StringFixed(2),
		}
		for _, a := range g.Accounts {
			group.Accounts = append(group.Accounts, trialBalanceAccountDTO{
				Code:    a.Code,
				Name:    a.Name,
				Opening: a.Opening.StringFixed(2),
				Debit:   a.Debit.StringFixed(2),
				Credit:  a.Credit.StringFixed(2),
				Closing: a.Closing.StringFixed(2),
			})
		}
		dto.Groups = append(dto.Groups, group)
	}
	httpx.JSON(w, http.StatusOK, dto)
}

func (h *Handler) handleProfitAndLoss(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	from, to, ok := parseRange(w, r)
	if !ok {
		return
	}
	pl, err := h.service.ProfitAndLoss(r.Context(), id, from, to)
	if err != nil {
		h.logger.Error("profit and loss failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"revenue":    toSectionDTO(pl.Revenue),
		"expense":    toSectionDTO(pl.Expense),
		"net_income": pl.NetIncome.StringFixed(2),
	})
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	id, ok := shared.IdentityFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "tenant context required")
		return
	}
	asOfRaw := r.URL.Query().Get("as_of")
	if asOfRaw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of is required")
		return
	}
	asOf, err := time.Parse(dateLayout, asOfRaw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "as_of must be YYYY-MM-DD")
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), id, asOf)
	if err != nil {
		h.logger.Error("balance sheet failed", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"assets":            toSectionDTO(bs.Assets),
		"liabilities":       toSectionDTO(bs.Liabilities),
		"equity":            toSectionDTO(bs.Equity),
		"net_income":        bs.NetIncome.StringFixed(2),
		"total_assets":      bs.TotalAssets.StringFixed(2),
		"total_liab_equity": bs.TotalLiabilitiesAndEquity.StringFixed(2),
		"is_balanced":       bs.IsBalanced,
	})
}

func parseRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	fromRaw, toRaw := q.Get("from"), q.Get("to")
	if fromRaw == "" || toRaw == "" {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from and to are required")
		return time.Time{}, time.Time{}, false
	}
	from, err := time.Parse(dateLayout, fromRaw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "from must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	to, err := time.Parse(dateLayout, toRaw)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to must be YYYY-MM-DD")
		return time.Time{}, time.Time{}, false
	}
	if to.Before(from) {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "to precedes from")
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}
