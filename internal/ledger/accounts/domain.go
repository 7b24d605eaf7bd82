package accounts

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// AccountType enumerates CoA categories, including contra variants.
type AccountType string

const (
	AccountTypeAsset           AccountType = "ASSET"
	AccountTypeContraAsset     AccountType = "CONTRA_ASSET"
	AccountTypeLiability       AccountType = "LIABILITY"
	AccountTypeContraLiability AccountType = "CONTRA_LIABILITY"
	AccountTypeEquity          AccountType = "EQUITY"
	AccountTypeContraEquity    AccountType = "CONTRA_EQUITY"
	AccountTypeRevenue         AccountType = "REVENUE"
	AccountTypeContraRevenue   AccountType = "CONTRA_REVENUE"
	AccountTypeExpense         AccountType = "EXPENSE"
	AccountTypeContraExpense   AccountType = "CONTRA_EXPENSE"
)

// Valid reports whether the type belongs to the closed set.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeContraAsset,
		AccountTypeLiability, AccountTypeContraLiability,
		AccountTypeEquity, AccountTypeContraEquity,
		AccountTypeRevenue, AccountTypeContraRevenue,
		AccountTypeExpense, AccountTypeContraExpense:
		return true
	}
	return false
}

// DebitNormal reports whether balances of this type increase with debits.
// Contra variants carry the opposite normality of their base type.
func (t AccountType) DebitNormal() bool {
	switch t {
	case AccountTypeAsset, AccountTypeExpense,
		AccountTypeContraLiability, AccountTypeContraEquity, AccountTypeContraRevenue:
		return true
	}
	return false
}

// Account models a chart of accounts node. CurrentBalance is a derived cache
// rebuilt by replaying the journal; the ledger stays authoritative.
type Account struct {
	ID             int64
	TenantID       int64
	Code           string
	Name           string
	Type           AccountType
	ParentID       *int64
	OpeningBalance decimal.Decimal
	CurrentBalance decimal.Decimal
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// maxTreeDepth bounds the parent walk during cycle detection so a corrupt or
// malicious hierarchy cannot loop forever.
const maxTreeDepth = 64

var (
	// ErrAccountNotFound indicates an unknown account id.
	ErrAccountNotFound = shared.NewError(shared.KindNotFound, "accounts: account not found")
	// ErrDuplicateCode indicates the code already exists in the tenant.
	ErrDuplicateCode = shared.NewError(shared.KindConflict, "accounts: account code already exists")
	// ErrTypeMismatch indicates parent and child account types differ.
	ErrTypeMismatch = shared.NewError(shared.KindConflict, "accounts: parent and child must share the same account type")
	// ErrCyclicParent indicates the proposed parent is a descendant of the account.
	ErrCyclicParent = shared.NewError(shared.KindConflict, "accounts: parent assignment would create a cycle")
	// ErrHasChildren blocks deleting an account that other accounts reference as parent.
	ErrHasChildren = shared.NewError(shared.KindConflict, "accounts: account has child accounts")
	// ErrHasLedgerActivity blocks deleting an account referenced by journal lines.
	ErrHasLedgerActivity = shared.NewError(shared.KindConflict, "accounts: account has journal activity")
	// ErrInvalidType indicates a type outside the known set.
	ErrInvalidType = shared.NewError(shared.KindValidation, "accounts: invalid account type")
	// ErrTreeTooDeep indicates the parent chain exceeded the depth cap.
	ErrTreeTooDeep = shared.NewError(shared.KindIntegrity, "accounts: parent chain exceeds maximum depth")
)

// CreateInput groups fields required to create an account.
type CreateInput struct {
	Code           string
	Name           string
	Type           AccountType
	ParentID       *int64
	OpeningBalance decimal.Decimal
}

// Validate checks structural constraints before any persistence.
func (in CreateInput) Validate() error {
	if in.Code == "" {
		return shared.NewError(shared.KindValidation, "accounts: code required")
	}
	if in.Name == "" {
		return shared.NewError(shared.KindValidation, "accounts: name required")
	}
	if !in.Type.Valid() {
		return ErrInvalidType
	}
	return nil
}

// UpdateInput groups mutable account fields.
type UpdateInput struct {
	ID       int64
	Code     string
	Name     string
	ParentID *int64
	IsActive bool
}

// Validate checks structural constraints.
func (in UpdateInput) Validate() error {
	if in.ID == 0 {
		return shared.NewError(shared.KindValidation, "accounts: account id required")
	}
	if in.Code == "" {
		return shared.NewError(shared.KindValidation, "accounts: code required")
	}
	if in.Name == "" {
		return shared.NewError(shared.KindValidation, "accounts: name required")
	}
	return nil
}
