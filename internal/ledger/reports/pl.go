package reports

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// ReportLine is a single account row inside a report section.
type ReportLine struct {
	Code   string
	Name   string
	Amount decimal.Decimal
}

// ReportSection aggregates lines with a total.
type ReportSection struct {
	Lines []ReportLine
	Total decimal.Decimal
}

// ProfitAndLoss nets revenue against expense over a date range.
type ProfitAndLoss struct {
	Revenue   ReportSection
	Expense   ReportSection
	NetIncome decimal.Decimal
}

// BuildProfitAndLoss nets revenue accounts' (credit - debit) against expense
// accounts' (debit - credit). Only movement within the range counts; opening
// balances belong to the balance sheet.
func BuildProfitAndLoss(rows []AccountBalance) ProfitAndLoss {
	pl := ProfitAndLoss{
		Revenue: ReportSection{Total: decimal.Zero},
		Expense: ReportSection{Total: decimal.Zero},
	}
	for _, acc := range rows {
		switch acc.Type {
		case accounts.AccountTypeRevenue, accounts.AccountTypeContraRevenue:
			amount := acc.Credit.Sub(acc.Debit)
			pl.Revenue.Lines = append(pl.Revenue.Lines, ReportLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			pl.Revenue.Total = pl.Revenue.Total.Add(amount)
		case accounts.AccountTypeExpense, accounts.AccountTypeContraExpense:
			amount := acc.Debit.Sub(acc.Credit)
			pl.Expense.Lines = append(pl.Expense.Lines, ReportLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			pl.Expense.Total = pl.Expense.Total.Add(amount)
		}
	}
	pl.NetIncome = pl.Revenue.Total.Sub(pl.Expense.Total)
	return pl
}
