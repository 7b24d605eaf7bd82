package journal

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// amountScale is the fixed decimal scale for monetary amounts.
const amountScale = 2

// Entry captures a double-entry journal record. Once posted the header and
// lines are immutable; voiding flips the status flag and nothing else.
type Entry struct {
	ID        int64
	TenantID  int64
	Number    string
	Date      time.Time
	Reference *shared.DocumentRef
	Memo      string
	Status    Status
	PostedBy  *int64
	PostedAt  *time.Time
	CreatedBy int64
	CreatedAt time.Time
	UpdatedAt time.Time
	Lines     []Line
}

// Line stores a debit or credit amount for an account. Exactly one of the two
// amounts is positive.
type Line struct {
	ID          int64
	EntryID     int64
	AccountID   int64
	AccountCode string
	AccountName string
	Debit       decimal.Decimal
	Credit      decimal.Decimal
	CostCenter  string
	Memo        string
}

var (
	// ErrEntryNotFound indicates an unknown entry id.
	ErrEntryNotFound = shared.NewError(shared.KindNotFound, "journal: entry not found")
	// ErrDuplicateNumber indicates the entry number is taken in the tenant.
	ErrDuplicateNumber = shared.NewError(shared.KindConflict, "journal: entry number already used")
	// ErrNoLines indicates an entry without lines.
	ErrNoLines = shared.NewError(shared.KindValidation, "journal: entry requires at least one line")
	// ErrMissingAccount indicates a line without an account reference.
	ErrMissingAccount = shared.NewError(shared.KindValidation, "journal: line missing account")
	// ErrUnknownAccount indicates a line referencing an account the tenant does not have.
	ErrUnknownAccount = shared.NewError(shared.KindNotFound, "journal: line references unknown account")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = shared.NewError(shared.KindValidation, "journal: amounts must not be negative")
	// ErrBothDebitAndCredit indicates a line with both sides set.
	ErrBothDebitAndCredit = shared.NewError(shared.KindValidation, "journal: line cannot carry both debit and credit")
	// ErrZeroAmount indicates a line with neither side set.
	ErrZeroAmount = shared.NewError(shared.KindValidation, "journal: line must carry a debit or a credit")
	// ErrAmountScale indicates an amount with more than two decimal places.
	ErrAmountScale = shared.NewError(shared.KindValidation, "journal: amounts must have at most two decimal places")
	// ErrUnbalanced indicates total debits differ from total credits.
	ErrUnbalanced = shared.NewError(shared.KindConflict, "journal: entry does not balance")
	// ErrNotEditable blocks edits and deletes outside draft status.
	ErrNotEditable = shared.NewError(shared.KindState, "journal: only draft entries can be edited or deleted")
	// ErrNotPostable blocks posting outside draft status.
	ErrNotPostable = shared.NewError(shared.KindState, "journal: only draft entries can be posted")
	// ErrNotVoidable blocks voiding outside posted status.
	ErrNotVoidable = shared.NewError(shared.KindState, "journal: only posted entries can be voided")
	// ErrNotReversible blocks reversing outside posted status.
	ErrNotReversible = shared.NewError(shared.KindState, "journal: only posted entries can be reversed")
)

// LineInput describes a journal line supplied by a caller.
type LineInput struct {
	AccountID  int64
	Debit      decimal.Decimal
	Credit     decimal.Decimal
	CostCenter string
	Memo       string
}

// CreateInput groups fields required to create a draft entry.
type CreateInput struct {
	Number    string
	Date      time.Time
	Reference *shared.DocumentRef
	Memo      string
	Lines     []LineInput
}

// UpdateInput replaces a draft entry's header fields and lines wholesale.
type UpdateInput struct {
	EntryID   int64
	Number    string
	Date      time.Time
	Reference *shared.DocumentRef
	Memo      string
	Lines     []LineInput
}

// Validate enforces line constraints and the balance invariant before any
// persistence. Comparison is decimal-exact at the fixed scale, never float.
func (in CreateInput) Validate() error {
	if in.Number == "" {
		return shared.NewError(shared.KindValidation, "journal: entry number required")
	}
	if in.Date.IsZero() {
		return shared.NewError(shared.KindValidation, "journal: entry date required")
	}
	if in.Reference != nil {
		if err := in.Reference.Validate(); err != nil {
			return err
		}
	}
	return validateLines(in.Lines)
}

func (in UpdateInput) toCreateInput() CreateInput {
	return CreateInput{Number: in.Number, Date: in.Date, Reference: in.Reference, Memo: in.Memo, Lines: in.Lines}
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	debit, credit := decimal.Zero, decimal.Zero
	for idx, line := range lines {
		if line.AccountID == 0 {
			return fmt.Errorf("%w: line %d", ErrMissingAccount, idx)
		}
		if line.Debit.IsNegative() || line.Credit.IsNegative() {
			return fmt.Errorf("%w: line %d", ErrNegativeAmount, idx)
		}
		if line.Debit.IsPositive() && line.Credit.IsPositive() {
			return fmt.Errorf("%w: line %d", ErrBothDebitAndCredit, idx)
		}
		if line.Debit.IsZero() && line.Credit.IsZero() {
			return fmt.Errorf("%w: line %d", ErrZeroAmount, idx)
		}
		if !line.Debit.Equal(line.Debit.Round(amountScale)) || !line.Credit.Equal(line.Credit.Round(amountScale)) {
			return fmt.Errorf("%w: line %d", ErrAmountScale, idx)
		}
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: total debits (%s) must equal total credits (%s)",
			ErrUnbalanced, debit.StringFixed(amountScale), credit.StringFixed(amountScale))
	}
	return nil
}

// checkStoredBalance re-verifies the stored lines sum before posting.
func checkStoredBalance(lines []Line) error {
	debit, credit := decimal.Zero, decimal.Zero
	for _, line := range lines {
		debit = debit.Add(line.Debit)
		credit = credit.Add(line.Credit)
	}
	if !debit.Equal(credit) {
		return fmt.Errorf("%w: total debits (%s) must equal total credits (%s)",
			ErrUnbalanced, debit.StringFixed(amountScale), credit.StringFixed(amountScale))
	}
	return nil
}
