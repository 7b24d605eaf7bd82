package reports

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
)

// AccountBalance models a general ledger account with aggregated movement
// over the report range.
type AccountBalance struct {
	AccountID int64
	Code      string
	Name      string
	Type      accounts.AccountType
	Opening   decimal.Decimal
	Debit     decimal.Decimal
	Credit    decimal.Decimal
}

// Closing computes the closing balance in the account's normal direction.
func (a AccountBalance) Closing() decimal.Decimal {
	if a.Type.DebitNormal() {
		return a.Opening.Add(a.Debit).Sub(a.Credit)
	}
	return a.Opening.Add(a.Credit).Sub(a.Debit)
}

// GroupKey returns a key used for grouping trial balance rows.
func (a AccountBalance) GroupKey() string {
	if idx := strings.Index(a.Code, "."); idx > 0 {
		return a.Code[:idx]
	}
	if len(a.Code) >= 2 {
		return a.Code[:2]
	}
	return a.Code
}

// TrialBalanceAccount represents a row inside a trial balance group.
type TrialBalanceAccount struct {
	Code    string
	Name    string
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
	Closing decimal.Decimal
}

// TrialBalanceGroup aggregates accounts for presentation.
type TrialBalanceGroup struct {
	Key      string
	Accounts []TrialBalanceAccount
	Debit    decimal.Decimal
	Credit   decimal.Decimal
}

// TrialBalance is the final report structure. IsBalanced is a verdict, not a
// correction: an unbalanced ledger is reported as such, never adjusted.
type TrialBalance struct {
	Groups             []TrialBalanceGroup
	TotalDebit         decimal.Decimal
	TotalCredit        decimal.Decimal
	TotalClosingDebit  decimal.Decimal
	TotalClosingCredit decimal.Decimal
	IsBalanced         bool
}

// BuildTrialBalance converts account balances into grouped trial balance data.
// Closing balances of debit-normal accounts must equal those of credit-normal
// accounts, compared decimal-exact.
func BuildTrialBalance(rows []AccountBalance) TrialBalance {
	groups := make(map[string]*TrialBalanceGroup)
	keys := make([]string, 0)
	result := TrialBalance{
		TotalDebit:         decimal.Zero,
		TotalCredit:        decimal.Zero,
		TotalClosingDebit:  decimal.Zero,
		TotalClosingCredit: decimal.Zero,
	}
	for _, acc := range rows {
		key := acc.GroupKey()
		grp, ok := groups[key]
		if !ok {
			grp = &TrialBalanceGroup{Key: key, Debit: decimal.Zero, Credit: decimal.Zero}
			groups[key] = grp
			keys = append(keys, key)
		}
		closing := acc.Closing()
		row := TrialBalanceAccount{
			Code:    acc.Code,
			Name:    acc.Name,
			Opening: acc.Opening,
			Debit:   acc.Debit,
			Credit:  acc.Credit,
			Closing: closing,
		}
		grp.Accounts = append(grp.Accounts, row)
		grp.Debit = grp.Debit.Add(acc.Debit)
		grp.Credit = grp.Credit.Add(acc.Credit)
		result.TotalDebit = result.TotalDebit.Add(acc.Debit)
		result.TotalCredit = result.TotalCredit.Add(acc.Credit)
		if closing.IsPositive() {
			if acc.Type.DebitNormal() {
				result.TotalClosingDebit = result.TotalClosingDebit.Add(closing)
			} else {
				result.TotalClosingCredit = result.TotalClosingCredit.Add(closing)
			}
		}
	}

	sort.Strings(keys)
	for _, key := range keys {
		grp := groups[key]
		sort.Slice(grp.Accounts, func(i, j int) bool {
			return grp.Accounts[i].Code < grp.Accounts[j].Code
		})
		result.Groups = append(result.Groups, *grp)
	}
	result.IsBalanced = result.TotalClosingDebit.Equal(result.TotalClosingCredit)
	return result
}
