package accounts

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	accounts map[int64]Account
	activity map[int64]bool
	nextID   int64
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		accounts: make(map[int64]Account),
		activity: make(map[int64]bool),
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	acc, ok := r.accounts[id]
	if !ok {
		return Account{}, ErrAccountNotFound
	}
	return acc, nil
}

func (r *memoryRepo) ListAccounts(ctx context.Context, tenantID int64) ([]Account, error) {
	out := make([]Account, 0, len(r.accounts))
	for _, acc := range r.accounts {
		out = append(out, acc)
	}
	return out, nil
}

func (tx *memoryTx) GetAccount(ctx context.Context, tenantID, id int64) (Account, error) {
	return tx.repo.GetAccount(ctx, tenantID, id)
}

func (tx *memoryTx) GetAccountByCode(ctx context.Context, tenantID int64, code string) (Account, error) {
	for _, acc := range tx.repo.accounts {
		if acc.Code == code {
			return acc, nil
		}
	}
	return Account{}, ErrAccountNotFound
}

func (tx *memoryTx) InsertAccount(ctx context.Context, tenantID int64, in CreateInput) (Account, error) {
	tx.repo.nextID++
	acc := Account{
		ID:             tx.repo.nextID,
		TenantID:       tenantID,
		Code:           in.Code,
		Name:           in.Name,
		Type:           in.Type,
		ParentID:       in.ParentID,
		OpeningBalance: in.OpeningBalance,
		CurrentBalance: in.OpeningBalance,
		IsActive:       true,
	}
	tx.repo.accounts[acc.ID] = acc
	return acc, nil
}

func (tx *memoryTx) UpdateAccount(ctx context.Context, tenantID int64, in UpdateInput) (Account, error) {
	acc := tx.repo.accounts[in.ID]
	acc.Code = in.Code
	acc.Name = in.Name
	acc.ParentID = in.ParentID
	acc.IsActive = in.IsActive
	tx.repo.accounts[in.ID] = acc
	return acc, nil
}

func (tx *memoryTx) DeleteAccount(ctx context.Context, tenantID, id int64) error {
	delete(tx.repo.accounts, id)
	return nil
}

func (tx *memoryTx) HasChildren(ctx context.Context, tenantID, id int64) (bool, error) {
	for _, acc := range tx.repo.accounts {
		if acc.ParentID != nil && *acc.ParentID == id {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) HasJournalActivity(ctx context.Context, tenantID, id int64) (bool, error) {
	return tx.repo.activity[id], nil
}

type stubBalances struct {
	balance decimal.Decimal
}

func (b stubBalances) AccountBalance(ctx context.Context, tenantID, accountID int64, asOf *time.Time) (decimal.Decimal, error) {
	return b.balance, nil
}

func testIdentity() shared.Identity {
	return shared.Identity{TenantID: 1, UserID: 7}
}

func assetInput(code string) CreateInput {
	return CreateInput{Code: code, Name: "Cash " + code, Type: AccountTypeAsset}
}

func TestCreateAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	acc, err := svc.Create(context.Background(), testIdentity(), CreateInput{
		Code:           "1100",
		Name:           "Cash",
		Type:           AccountTypeAsset,
		OpeningBalance: decimal.NewFromInt(500),
	})
	require.NoError(t, err)
	require.True(t, acc.IsActive)
	require.True(t, acc.OpeningBalance.Equal(decimal.NewFromInt(500)))
}

func TestCreateRejectsDuplicateCode(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testIdentity(), assetInput("1100"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, testIdentity(), assetInput("1100"))
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestCreateRejectsInvalidType(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), testIdentity(), CreateInput{
		Code: "9999",
		Name: "Mystery",
		Type: "SUSPENSE",
	})
	require.ErrorIs(t, err, ErrInvalidType)
}

func TestCreateRejectsParentTypeMismatch(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	parent, err := svc.Create(ctx, testIdentity(), assetInput("1000"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, testIdentity(), CreateInput{
		Code:     "4100",
		Name:     "Sales",
		Type:     AccountTypeRevenue,
		ParentID: &parent.ID,
	})
	require.ErrorIs(t, err, ErrTypeMismatch)
}

func TestUpdateRejectsSelfParent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	acc, err := svc.Create(ctx, testIdentity(), assetInput("1100"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, testIdentity(), UpdateInput{
		ID:       acc.ID,
		Code:     acc.Code,
		Name:     acc.Name,
		ParentID: &acc.ID,
		IsActive: true,
	})
	require.ErrorIs(t, err, ErrCyclicParent)
}

func TestUpdateRejectsDescendantParent(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	root, err := svc.Create(ctx, testIdentity(), assetInput("1000"))
	require.NoError(t, err)

	childInput := assetInput("1100")
	childInput.ParentID = &root.ID
	child, err := svc.Create(ctx, testIdentity(), childInput)
	require.NoError(t, err)

	grandInput := assetInput("1110")
	grandInput.ParentID = &child.ID
	grand, err := svc.Create(ctx, testIdentity(), grandInput)
	require.NoError(t, err)

	// Re-parenting the root under its own grandchild closes a loop.
	_, err = svc.Update(ctx, testIdentity(), UpdateInput{
		ID:       root.ID,
		Code:     root.Code,
		Name:     root.Name,
		ParentID: &grand.ID,
		IsActive: true,
	})
	require.ErrorIs(t, err, ErrCyclicParent)
}

func TestUpdateRejectsCodeCollision(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testIdentity(), assetInput("1100"))
	require.NoError(t, err)
	other, err := svc.Create(ctx, testIdentity(), assetInput("1200"))
	require.NoError(t, err)

	_, err = svc.Update(ctx, testIdentity(), UpdateInput{
		ID:       other.ID,
		Code:     "1100",
		Name:     other.Name,
		IsActive: true,
	})
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestDeleteGuards(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)
	ctx := context.Background()

	parent, err := svc.Create(ctx, testIdentity(), assetInput("1000"))
	require.NoError(t, err)

	childInput := assetInput("1100")
	childInput.ParentID = &parent.ID
	child, err := svc.Create(ctx, testIdentity(), childInput)
	require.NoError(t, err)

	err = svc.Delete(ctx, testIdentity(), parent.ID)
	require.ErrorIs(t, err, ErrHasChildren)

	repo.activity[child.ID] = true
	err = svc.Delete(ctx, testIdentity(), child.ID)
	require.ErrorIs(t, err, ErrHasLedgerActivity)

	repo.activity[child.ID] = false
	require.NoError(t, svc.Delete(ctx, testIdentity(), child.ID))
	require.NoError(t, svc.Delete(ctx, testIdentity(), parent.ID))
	require.Empty(t, repo.accounts)
}

func TestBalanceDelegatesToReader(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, stubBalances{balance: decimal.NewFromInt(1250)})

	got, err := svc.Balance(context.Background(), testIdentity(), 42, nil)
	require.NoError(t, err)
	require.True(t, got.Equal(decimal.NewFromInt(1250)))
}

func TestBalanceWithoutReader(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil)

	_, err := svc.Balance(context.Background(), testIdentity(), 42, nil)
	require.Error(t, err)
}

func TestAccountTypeNormality(t *testing.T) {
	debitNormal := []AccountType{
		AccountTypeAsset, AccountTypeExpense,
		AccountTypeContraLiability, AccountTypeContraEquity, AccountTypeContraRevenue,
	}
	creditNormal := []AccountType{
		AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue,
		AccountTypeContraAsset, AccountTypeContraExpense,
	}
	for _, at := range debitNormal {
		require.True(t, at.DebitNormal(), "%s", at)
	}
	for _, at := range creditNormal {
		require.False(t, at.DebitNormal(), "%s", at)
	}
	require.False(t, AccountType("SUSPENSE").Valid())
}
