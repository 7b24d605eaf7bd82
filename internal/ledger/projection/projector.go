// Package projection derives point-in-time balances by replaying the ledger.
// Replay is the only authority; every cache in the system is rebuilt from it.
package projection

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/ledger/accounts"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// ReadRepository exposes the read-side queries replay needs.
type ReadRepository interface {
	GetAccount(ctx context.Context, tenantID, accountID int64) (accounts.Account, error)
	ListAccounts(ctx context.Context, tenantID int64) ([]accounts.Account, error)
	// SumPostedLines totals debit and credit over posted, non-void lines for
	// the account, optionally bounded by entry date.
	SumPostedLines(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (debit, credit decimal.Decimal, err error)
	// UpdateBalanceCache refreshes the denormalised current_balance column.
	UpdateBalanceCache(ctx context.Context, tenantID, accountID int64, balance decimal.Decimal) error
}

// Projector computes account balances as a pure function of ledger state.
// Repeated invocations over the same ledger always agree.
type Projector struct {
	repo   ReadRepository
	cache  *BalanceCache
	logger *slog.Logger
}

// NewProjector constructs the projector. Cache may be nil.
func NewProjector(repo ReadRepository, cache *BalanceCache, logger *slog.Logger) *Projector {
	return &Projector{repo: repo, cache: cache, logger: logger}
}

// AccountBalance replays posted, non-void journal lines for the account:
// opening + debits - credits for debit-normal types, opening + credits -
// debits for credit-normal types. Historical (as-of) queries bypass the cache.
func (p *Projector) AccountBalance(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	if asOf == nil && p.cache != nil {
		if bal, ok := p.cache.Get(ctx, tenantID, accountID); ok {
			return bal, nil
		}
	}
	bal, err := p.replay(ctx, tenantID, accountID, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if asOf == nil && p.cache != nil {
		p.cache.Set(ctx, tenantID, accountID, bal)
	}
	return bal, nil
}

// Invalidate drops the cached balance for an account, typically on
// JournalEntryPosted or JournalEntryVoided.
func (p *Projector) Invalidate(ctx context.Context, tenantID int64, accountIDs ...int64) {
	if p.cache == nil {
		return
	}
	for _, accountID := range accountIDs {
		p.cache.Delete(ctx, tenantID, accountID)
	}
}

// Rebuild recomputes an account's balance from the ledger and refreshes both
// the Redis cache and the denormalised column on the account row.
func (p *Projector) Rebuild(ctx context.Context, tenantID, accountID int64) (decimal.Decimal, error) {
	bal, err := p.replay(ctx, tenantID, accountID, nil)
	if err != nil {
		return decimal.Zero, err
	}
	if err := p.repo.UpdateBalanceCache(ctx, tenantID, accountID, bal); err != nil {
		return decimal.Zero, err
	}
	if p.cache != nil {
		p.cache.Set(ctx, tenantID, accountID, bal)
	}
	return bal, nil
}

// RebuildAll refreshes every account of a tenant.
func (p *Projector) RebuildAll(ctx context.Context, tenantID int64) error {
	accs, err := p.repo.ListAccounts(ctx, tenantID)
	if err != nil {
		return err
	}
	for _, acc := range accs {
		if _, err := p.Rebuild(ctx, tenantID, acc.ID); err != nil {
			return err
		}
	}
	return nil
}

// Verify replays an account and compares against the cached column. A
// mismatch is an integrity violation and is never silently corrected.
func (p *Projector) Verify(ctx context.Context, tenantID, accountID int64) error {
	acc, err := p.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return err
	}
	replayed, err := p.replay(ctx, tenantID, accountID, nil)
	if err != nil {
		return err
	}
	if !replayed.Equal(acc.CurrentBalance) {
		return shared.Integrityf("projection: account %d cached balance %s diverges from replay %s",
			accountID, acc.CurrentBalance.String(), replayed.String())
	}
	return nil
}

func (p *Projector) replay(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	acc, err := p.repo.GetAccount(ctx, tenantID, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	debit, credit, err := p.repo.SumPostedLines(ctx, tenantID, accountID, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	if acc.Type.DebitNormal() {
		return acc.OpeningBalance.Add(debit).Sub(credit), nil
	}
	return acc.OpeningBalance.Add(credit).Sub(debit), nil
}
