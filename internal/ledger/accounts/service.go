package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetAccount(ctx context.Context, tenantID, id int64) (Account, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]Account, error)
}

// AuditPort records directory changes for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// BalanceReader resolves an account balance by replaying the journal.
// Implemented by the projection package.
type BalanceReader interface {
	AccountBalance(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, error)
}

// Service coordinates chart of accounts maintenance.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	balances BalanceReader
	now      func() time.Time
}

// NewService constructs the directory service.
func NewService(repo RepositoryPort, audit AuditPort, balances BalanceReader) *Service {
	return &Service{repo: repo, audit: audit, balances: balances, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a new account.
func (s *Service) Create(ctx context.Context, id shared.Identity, input CreateInput) (Account, error) {
	if err := id.Validate(); err != nil {
		return Account{}, err
	}
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var created Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccountByCode(ctx, id.TenantID, input.Code); err == nil {
			return fmt.Errorf("%w: %q", ErrDuplicateCode, input.Code)
		} else if !isNotFound(err) {
			return err
		}
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, id.TenantID, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Type != input.Type {
				return fmt.Errorf("%w: parent is %s, child is %s", ErrTypeMismatch, parent.Type, input.Type)
			}
		}
		acc, err := tx.InsertAccount(ctx, id.TenantID, input)
		if err != nil {
			return err
		}
		created = acc
		return nil
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, id, "account.create", created.ID, map[string]any{"code": created.Code, "type": string(created.Type)})
	return created, nil
}

// Update applies field changes with the same code, type, and parent checks as
// Create, plus cycle detection on the proposed parent.
func (s *Service) Update(ctx context.Context, id shared.Identity, input UpdateInput) (Account, error) {
	if err := id.Validate(); err != nil {
		return Account{}, err
	}
	if err := input.Validate(); err != nil {
		return Account{}, err
	}
	var updated Account
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetAccount(ctx, id.TenantID, input.ID)
		if err != nil {
			return err
		}
		if input.Code != current.Code {
			if other, err := tx.GetAccountByCode(ctx, id.TenantID, input.Code); err == nil && other.ID != current.ID {
				return fmt.Errorf("%w: %q", ErrDuplicateCode, input.Code)
			} else if err != nil && !isNotFound(err) {
				return err
			}
		}
		if input.ParentID != nil {
			parent, err := tx.GetAccount(ctx, id.TenantID, *input.ParentID)
			if err != nil {
				return err
			}
			if parent.Type != current.Type {
				return fmt.Errorf("%w: parent is %s, account is %s", ErrTypeMismatch, parent.Type, current.Type)
			}
			if err := ensureNoCycle(ctx, tx, id.TenantID, current.ID, parent); err != nil {
				return err
			}
		}
		updated, err = tx.UpdateAccount(ctx, id.TenantID, input)
		return err
	})
	if err != nil {
		return Account{}, err
	}
	s.record(ctx, id, "account.update", updated.ID, map[string]any{"code": updated.Code})
	return updated, nil
}

// Delete removes an account that has no children and no journal activity.
func (s *Service) Delete(ctx context.Context, id shared.Identity, accountID int64) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetAccount(ctx, id.TenantID, accountID); err != nil {
			return err
		}
		hasChildren, err := tx.HasChildren(ctx, id.TenantID, accountID)
		if err != nil {
			return err
		}
		if hasChildren {
			return ErrHasChildren
		}
		hasActivity, err := tx.HasJournalActivity(ctx, id.TenantID, accountID)
		if err != nil {
			return err
		}
		if hasActivity {
			return ErrHasLedgerActivity
		}
		return tx.DeleteAccount(ctx, id.TenantID, accountID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, "account.delete", accountID, nil)
	return nil
}

// Get returns a single account.
func (s *Service) Get(ctx context.Context, id shared.Identity, accountID int64) (Account, error) {
	if err := id.Validate(); err != nil {
		return Account{}, err
	}
	return s.repo.GetAccount(ctx, id.TenantID, accountID)
}

// List returns the tenant's chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, id shared.Identity) ([]Account, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListAccounts(ctx, id.TenantID)
}

// Balance delegates to the balance projector. Read only.
func (s *Service) Balance(ctx context.Context, id shared.Identity, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	if err := id.Validate(); err != nil {
		return decimal.Zero, err
	}
	if s.balances == nil {
		return decimal.Zero, shared.NewError(shared.KindUnknown, "accounts: balance reader not configured")
	}
	return s.balances.AccountBalance(ctx, id.TenantID, accountID, asOf)
}

// ensureNoCycle walks parent pointers upward from the candidate parent until
// nil or the target id is found. A self reference counts as a one hop cycle.
func ensureNoCycle(ctx context.Context, tx TxRepository, tenantID, accountID int64, candidate Account) error {
	current := candidate
	for depth := 0; depth < maxTreeDepth; depth++ {
		if current.ID == accountID {
			return ErrCyclicParent
		}
		if current.ParentID == nil {
			return nil
		}
		next, err := tx.GetAccount(ctx, tenantID, *current.ParentID)
		if err != nil {
			return err
		}
		current = next
	}
	return ErrTreeTooDeep
}

func (s *Service) record(ctx context.Context, id shared.Identity, action string, accountID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: id.TenantID,
		ActorID:  id.UserID,
		Action:   action,
		Entity:   "account",
		EntityID: fmt.Sprintf("%d", accountID),
		Meta:     meta,
		At:       s.now(),
	})
}

func isNotFound(err error) bool {
	return shared.KindOf(err) == shared.KindNotFound
}
