package reports

import (
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// BalanceSheet shows assets against liabilities plus equity as of one date.
// IsBalanced compares decimal-exact; a mismatch is reported, never corrected.
type BalanceSheet struct {
	Assets                    ReportSection
	Liabilities               ReportSection
	Equity                    ReportSection
	NetIncome                 decimal.Decimal
	TotalAssets               decimal.Decimal
	TotalLiabilitiesAndEquity decimal.Decimal
	IsBalanced                bool
}

// BuildBalanceSheet folds account closings into the three sections. Revenue
// and expense balances collapse into a computed net income line inside
// equity, which is what makes the statement balance before a formal year-end
// close.
func BuildBalanceSheet(rows []AccountBalance) BalanceSheet {
	bs := BalanceSheet{
		Assets:      ReportSection{Total: decimal.Zero},
		Liabilities: ReportSection{Total: decimal.Zero},
		Equity:      ReportSection{Total: decimal.Zero},
		NetIncome:   decimal.Zero,
	}
	for _, acc := range rows {
		closing := acc.Closing()
		switch acc.Type {
		case accounts.AccountTypeAsset, accounts.AccountTypeContraAsset:
			amount := closing
			if acc.Type == accounts.AccountTypeContraAsset {
				amount = amount.Neg()
			}
			bs.Assets.Lines = append(bs.Assets.Lines, ReportLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			bs.Assets.Total = bs.Assets.Total.Add(amount)
		case accounts.AccountTypeLiability, accounts.AccountTypeContraLiability:
			amount := closing
			if acc.Type == accounts.AccountTypeContraLiability {
				amount = amount.Neg()
			}
			bs.Liabilities.Lines = append(bs.Liabilities.Lines, ReportLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			bs.Liabilities.Total = bs.Liabilities.Total.Add(amount)
		case accounts.AccountTypeEquity, accounts.AccountTypeContraEquity:
			amount := closing
			if acc.Type == accounts.AccountTypeContraEquity {
				amount = amount.Neg()
			}
			bs.Equity.Lines = append(bs.Equity.Lines, ReportLine{Code: acc.Code, Name: acc.Name, Amount: amount})
			bs.Equity.Total = bs.Equity.Total.Add(amount)
		case accounts.AccountTypeRevenue, accounts.AccountTypeContraRevenue:
			bs.NetIncome = bs.NetIncome.Add(acc.Credit.Sub(acc.Debit)).Add(acc.Opening)
		case accounts.AccountTypeExpense, accounts.AccountTypeContraExpense:
			bs.NetIncome = bs.NetIncome.Sub(acc.Debit.Sub(acc.Credit)).Sub(acc.Opening)
		}
	}
	bs.TotalAssets = bs.Assets.Total
	bs.TotalLiabilitiesAndEquity = bs.Liabilities.Total.Add(bs.Equity.Total).Add(bs.NetIncome)
	bs.IsBalanced = bs.TotalAssets.Equal(bs.TotalLiabilitiesAndEquity)
	return bs
}
