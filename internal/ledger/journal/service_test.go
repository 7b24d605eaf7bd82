package journal

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/ledger/periods"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	entries     map[int64]Entry
	lines       map[int64][]Line
	openPeriods []window
	nextID      int64
}

type window struct {
	id       int64
	from, to time.Time
}

type memoryTx struct {
	repo *memoryRepo
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries: make(map[int64]Entry),
		lines:   make(map[int64][]Line),
		openPeriods: []window{{
			id:   1,
			from: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			to:   time.Date(2026, 12, 31, 0, 0, 0, 0, time.UTC),
		}},
	}
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetEntry(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	entry, ok := r.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	entry.Lines = r.lines[entryID]
	return entry, nil
}

func (r *memoryRepo) ListEntries(ctx context.Context, tenantID int64) ([]Entry, error) {
	out := make([]Entry, 0, len(r.entries))
	for id, entry := range r.entries {
		entry.Lines = r.lines[id]
		out = append(out, entry)
	}
	return out, nil
}

func (tx *memoryTx) NumberTaken(ctx context.Context, tenantID int64, number string, excludeEntryID int64) (bool, error) {
	for _, entry := range tx.repo.entries {
		if entry.Number == number && entry.ID != excludeEntryID {
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTx) MissingAccounts(ctx context.Context, tenantID int64, accountIDs []int64) ([]int64, error) {
	// Accounts 1..100 exist; anything above is unknown.
	var missing []int64
	for _, id := range accountIDs {
		if id > 100 {
			missing = append(missing, id)
		}
	}
	return missing, nil
}

func (tx *memoryTx) FindOpenPeriod(ctx context.Context, tenantID int64, date time.Time, lock bool) (int64, error) {
	for _, w := range tx.repo.openPeriods {
		if !date.Before(w.from) && !date.After(w.to) {
			return w.id, nil
		}
	}
	return 0, periods.ErrNoOpenPeriod
}

func (tx *memoryTx) InsertEntry(ctx context.Context, tenantID, createdBy int64, in CreateInput) (Entry, error) {
	tx.repo.nextID++
	entry := Entry{
		ID:        tx.repo.nextID,
		TenantID:  tenantID,
		Number:    in.Number,
		Date:      in.Date,
		Reference: in.Reference,
		Memo:      in.Memo,
		Status:    StatusDraft,
		CreatedBy: createdBy,
	}
	tx.repo.entries[entry.ID] = entry
	return entry, nil
}

func (tx *memoryTx) InsertLines(ctx context.Context, entryID int64, lines []LineInput) error {
	for _, in := range lines {
		tx.repo.nextID++
		tx.repo.lines[entryID] = append(tx.repo.lines[entryID], Line{
			ID:         tx.repo.nextID,
			EntryID:    entryID,
			AccountID:  in.AccountID,
			Debit:      in.Debit,
			Credit:     in.Credit,
			CostCenter: in.CostCenter,
			Memo:       in.Memo,
		})
	}
	return nil
}

func (tx *memoryTx) GetEntryForUpdate(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	return entry, nil
}

func (tx *memoryTx) GetEntryWithLines(ctx context.Context, tenantID, entryID int64) (Entry, error) {
	entry, ok := tx.repo.entries[entryID]
	if !ok {
		return Entry{}, ErrEntryNotFound
	}
	entry.Lines = tx.repo.lines[entryID]
	return entry, nil
}

func (tx *memoryTx) GetLines(ctx context.Context, entryID int64) ([]Line, error) {
	return tx.repo.lines[entryID], nil
}

func (tx *memoryTx) UpdateEntryHeader(ctx context.Context, tenantID int64, in UpdateInput) error {
	entry := tx.repo.entries[in.EntryID]
	entry.Number = in.Number
	entry.Date = in.Date
	entry.Reference = in.Reference
	entry.Memo = in.Memo
	tx.repo.entries[in.EntryID] = entry
	return nil
}

func (tx *memoryTx) DeleteLines(ctx context.Context, entryID int64) error {
	delete(tx.repo.lines, entryID)
	return nil
}

func (tx *memoryTx) DeleteEntry(ctx context.Context, tenantID, entryID int64) error {
	delete(tx.repo.entries, entryID)
	return nil
}

func (tx *memoryTx) MarkPosted(ctx context.Context, tenantID, entryID, postedBy int64, postedAt time.Time) error {
	entry := tx.repo.entries[entryID]
	entry.Status = StatusPosted
	entry.PostedBy = &postedBy
	entry.PostedAt = &postedAt
	tx.repo.entries[entryID] = entry
	return nil
}

func (tx *memoryTx) MarkVoid(ctx context.Context, tenantID, entryID int64) error {
	entry := tx.repo.entries[entryID]
	entry.Status = StatusVoid
	tx.repo.entries[entryID] = entry
	return nil
}

type recordingSink struct {
	posted []PostedEvent
	voided []VoidedEvent
}

func (s *recordingSink) JournalEntryPosted(ctx context.Context, evt PostedEvent) error {
	s.posted = append(s.posted, evt)
	return nil
}

func (s *recordingSink) JournalEntryVoided(ctx context.Context, evt VoidedEvent) error {
	s.voided = append(s.voided, evt)
	return nil
}

type countingMetrics struct {
	posted int
	voided int
}

func (m *countingMetrics) JournalPosted() { m.posted++ }
func (m *countingMetrics) JournalVoided() { m.voided++ }

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func testIdentity() shared.Identity {
	return shared.Identity{TenantID: 1, UserID: 7}
}

func balancedInput(number string) CreateInput {
	return CreateInput{
		Number: number,
		Date:   time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		Memo:   "office supplies",
		Lines: []LineInput{
			{AccountID: 10, Debit: dec("150.00")},
			{AccountID: 20, Credit: dec("150.00")},
		},
	}
}

func TestCreateDraftEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	entry, err := svc.Create(context.Background(), testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)
	require.Equal(t, StatusDraft, entry.Status)
	require.Equal(t, int64(7), entry.CreatedBy)
	require.Len(t, entry.Lines, 2)
	require.Nil(t, entry.PostedBy)
}

func TestCreateRejectsDuplicateNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	_, err = svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateRejectsUnknownAccount(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	input := balancedInput("JRN-001")
	input.Lines[0].AccountID = 999
	_, err := svc.Create(context.Background(), testIdentity(), input)
	require.ErrorIs(t, err, ErrUnknownAccount)
	require.Empty(t, repo.entries)
}

func TestCreateRequiresOpenPeriod(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	input := balancedInput("JRN-001")
	input.Date = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err := svc.Create(context.Background(), testIdentity(), input)
	require.ErrorIs(t, err, periods.ErrNoOpenPeriod)
	require.Empty(t, repo.entries)
}

func TestPostStampsIdentityAndTimestamp(t *testing.T) {
	repo := newMemoryRepo()
	sink := &recordingSink{}
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, sink, metrics)
	frozen := time.Date(2026, 3, 16, 9, 30, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return frozen })
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	posted, err := svc.Post(ctx, testIdentity(), draft.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPosted, posted.Status)
	require.NotNil(t, posted.PostedBy)
	require.Equal(t, int64(7), *posted.PostedBy)
	require.NotNil(t, posted.PostedAt)
	require.True(t, posted.PostedAt.Equal(frozen))

	require.Equal(t, 1, metrics.posted)
	require.Len(t, sink.posted, 1)
	require.Equal(t, draft.ID, sink.posted[0].EntryID)
	require.ElementsMatch(t, []int64{10, 20}, sink.posted[0].Accounts)
}

func TestPostRejectsNonDraft(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, testIdentity(), draft.ID)
	require.NoError(t, err)

	_, err = svc.Post(ctx, testIdentity(), draft.ID)
	require.ErrorIs(t, err, ErrNotPostable)
}

func TestVoidRequiresPostedStatus(t *testing.T) {
	repo := newMemoryRepo()
	sink := &recordingSink{}
	metrics := &countingMetrics{}
	svc := NewService(repo, nil, sink, metrics)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	_, err = svc.Void(ctx, testIdentity(), draft.ID, "typo")
	require.ErrorIs(t, err, ErrNotVoidable)

	_, err = svc.Post(ctx, testIdentity(), draft.ID)
	require.NoError(t, err)

	voided, err := svc.Void(ctx, testIdentity(), draft.ID, "typo")
	require.NoError(t, err)
	require.Equal(t, StatusVoid, voided.Status)
	require.Len(t, voided.Lines, 2)
	require.Equal(t, 1, metrics.voided)
	require.Len(t, sink.voided, 1)

	// Voiding again is rejected; void is terminal.
	_, err = svc.Void(ctx, testIdentity(), draft.ID, "again")
	require.ErrorIs(t, err, ErrNotVoidable)
}

func TestUpdateRejectsPostedEntry(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, testIdentity(), draft.ID)
	require.NoError(t, err)

	input := balancedInput("JRN-002")
	_, err = svc.Update(ctx, testIdentity(), UpdateInput{
		EntryID: draft.ID,
		Number:  input.Number,
		Date:    input.Date,
		Memo:    input.Memo,
		Lines:   input.Lines,
	})
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestUpdateReplacesLines(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	updated, err := svc.Update(ctx, testIdentity(), UpdateInput{
		EntryID: draft.ID,
		Number:  "JRN-001A",
		Date:    draft.Date,
		Memo:    "corrected",
		Lines: []LineInput{
			{AccountID: 10, Debit: dec("80.00")},
			{AccountID: 30, Debit: dec("20.00")},
			{AccountID: 20, Credit: dec("100.00")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "JRN-001A", updated.Number)
	require.Len(t, updated.Lines, 3)
	require.Len(t, repo.lines[draft.ID], 3)
}

func TestDeleteRemovesDraftOnly(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	require.NoError(t, svc.Delete(ctx, testIdentity(), draft.ID))
	_, err = svc.Get(ctx, testIdentity(), draft.ID)
	require.ErrorIs(t, err, ErrEntryNotFound)

	posted, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-002"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, testIdentity(), posted.ID)
	require.NoError(t, err)

	err = svc.Delete(ctx, testIdentity(), posted.ID)
	require.ErrorIs(t, err, ErrNotEditable)
}

func TestReverseMirrorsPostedEntry(t *testing.T) {
	repo := newMemoryRepo()
	sink := &recordingSink{}
	svc := NewService(repo, nil, sink, nil)
	ctx := context.Background()

	original, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, testIdentity(), original.ID)
	require.NoError(t, err)

	reversal, err := svc.Reverse(ctx, testIdentity(), original.ID, "")
	require.NoError(t, err)
	require.Equal(t, "JRN-001-REV", reversal.Number)
	require.Equal(t, StatusPosted, reversal.Status)
	require.Len(t, reversal.Lines, 2)

	// Debits and credits are swapped line for line.
	require.True(t, reversal.Lines[0].Credit.Equal(dec("150.00")))
	require.True(t, reversal.Lines[0].Debit.IsZero())
	require.True(t, reversal.Lines[1].Debit.Equal(dec("150.00")))
	require.True(t, reversal.Lines[1].Credit.IsZero())

	require.Len(t, sink.posted, 2)
	require.Equal(t, reversal.ID, sink.posted[1].EntryID)
}

func TestReverseRejectsDraftAndVoid(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	draft, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, testIdentity(), draft.ID, "")
	require.ErrorIs(t, err, ErrNotReversible)

	_, err = svc.Post(ctx, testIdentity(), draft.ID)
	require.NoError(t, err)
	_, err = svc.Void(ctx, testIdentity(), draft.ID, "stale")
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, testIdentity(), draft.ID, "")
	require.ErrorIs(t, err, ErrNotReversible)
}

func TestReverseRejectsTakenReversalNumber(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)
	ctx := context.Background()

	original, err := svc.Create(ctx, testIdentity(), balancedInput("JRN-001"))
	require.NoError(t, err)
	_, err = svc.Post(ctx, testIdentity(), original.ID)
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, testIdentity(), original.ID, "")
	require.NoError(t, err)

	_, err = svc.Reverse(ctx, testIdentity(), original.ID, "")
	require.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateRejectsMissingIdentity(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil)

	_, err := svc.Create(context.Background(), shared.Identity{}, balancedInput("JRN-001"))
	require.Error(t, err)
	require.Equal(t, shared.KindValidation, shared.KindOf(err))
}
