package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// RepositoryPort abstracts transactional repository behaviour.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetEntry(ctx context.Context, tenantID, entryID int64) (Entry, error)
	ListEntries(ctx context.Context, tenantID int64) ([]Entry, error)
}

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Metrics counts ledger activity.
type Metrics interface {
	JournalPosted()
	JournalVoided()
}

// Service coordinates the draft/post/void lifecycle of journal entries.
// Every mutation runs inside a single transaction; header and lines succeed
// or fail together.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	sink    EventSink
	metrics Metrics
	now     func() time.Time
}

// NewService constructs the ledger service.
func NewService(repo RepositoryPort, audit AuditPort, sink EventSink, metrics Metrics) *Service {
	return &Service{repo: repo, audit: audit, sink: sink, metrics: metrics, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Create validates and persists a new draft entry with its lines.
func (s *Service) Create(ctx context.Context, id shared.Identity, input CreateInput) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	if err := input.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		taken, err := tx.NumberTaken(ctx, id.TenantID, input.Number, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrDuplicateNumber, input.Number)
		}
		if err := s.checkAccounts(ctx, tx, id.TenantID, input.Lines); err != nil {
			return err
		}
		if _, err := tx.FindOpenPeriod(ctx, id.TenantID, input.Date, false); err != nil {
			return err
		}
		inserted, err := tx.InsertEntry(ctx, id.TenantID, id.UserID, input)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		loaded, err := tx.GetEntryWithLines(ctx, id.TenantID, inserted.ID)
		if err != nil {
			return err
		}
		entry = loaded
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, id, "journal.create", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// Update replaces a draft entry's header and lines wholesale. Posted and void
// entries are immutable.
func (s *Service) Update(ctx context.Context, id shared.Identity, input UpdateInput) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	if input.EntryID == 0 {
		return Entry{}, shared.NewError(shared.KindValidation, "journal: entry id required")
	}
	if err := input.toCreateInput().Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id.TenantID, input.EntryID)
		if err != nil {
			return err
		}
		if !current.Status.Editable() {
			return ErrNotEditable
		}
		taken, err := tx.NumberTaken(ctx, id.TenantID, input.Number, current.ID)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrDuplicateNumber, input.Number)
		}
		if err := s.checkAccounts(ctx, tx, id.TenantID, input.Lines); err != nil {
			return err
		}
		if _, err := tx.FindOpenPeriod(ctx, id.TenantID, input.Date, false); err != nil {
			return err
		}
		if err := tx.UpdateEntryHeader(ctx, id.TenantID, input); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, current.ID); err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, current.ID, input.Lines); err != nil {
			return err
		}
		loaded, err := tx.GetEntryWithLines(ctx, id.TenantID, current.ID)
		if err != nil {
			return err
		}
		entry = loaded
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	s.record(ctx, id, "journal.update", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// Delete removes a draft entry and its lines. The only delete path that
// exists; posted and void entries stay forever.
func (s *Service) Delete(ctx context.Context, id shared.Identity, entryID int64) error {
	if err := id.Validate(); err != nil {
		return err
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id.TenantID, entryID)
		if err != nil {
			return err
		}
		if !current.Status.Editable() {
			return ErrNotEditable
		}
		if err := tx.DeleteLines(ctx, current.ID); err != nil {
			return err
		}
		return tx.DeleteEntry(ctx, id.TenantID, current.ID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, id, "journal.delete", entryID, nil)
	return nil
}

// Post transitions a draft entry to posted. Re-checks balance and the open
// period defensively; stamps poster identity and timestamp.
func (s *Service) Post(ctx context.Context, id shared.Identity, entryID int64) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	postedAt := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id.TenantID, entryID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(StatusPosted) {
			return ErrNotPostable
		}
		lines, err := tx.GetLines(ctx, current.ID)
		if err != nil {
			return err
		}
		if err := checkStoredBalance(lines); err != nil {
			return err
		}
		// Lock the covering fiscal year row so a concurrent close cannot
		// slip between the check and the status flip.
		if _, err := tx.FindOpenPeriod(ctx, id.TenantID, current.Date, true); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, id.TenantID, current.ID, id.UserID, postedAt); err != nil {
			return err
		}
		current.Status = StatusPosted
		current.PostedBy = &id.UserID
		current.PostedAt = &postedAt
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
	if s.sink != nil {
		_ = s.sink.JournalEntryPosted(ctx, PostedEvent{
			TenantID: id.TenantID,
			EntryID:  entry.ID,
			Number:   entry.Number,
			Date:     entry.Date,
			PostedBy: id.UserID,
			PostedAt: postedAt,
			Accounts: lineAccounts(entry.Lines),
		})
	}
	s.record(ctx, id, "journal.post", entry.ID, map[string]any{"number": entry.Number})
	return entry, nil
}

// Void flips a posted entry to void. The entry and its original lines are
// retained unmodified; the projector simply stops counting them.
func (s *Service) Void(ctx context.Context, id shared.Identity, entryID int64, reason string) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	var entry Entry
	voidedAt := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetEntryForUpdate(ctx, id.TenantID, entryID)
		if err != nil {
			return err
		}
		if !current.Status.CanTransition(StatusVoid) {
			return ErrNotVoidable
		}
		lines, err := tx.GetLines(ctx, current.ID)
		if err != nil {
			return err
		}
		if err := tx.MarkVoid(ctx, id.TenantID, current.ID); err != nil {
			return err
		}
		current.Status = StatusVoid
		current.Lines = lines
		entry = current
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalVoided()
	}
	if s.sink != nil {
		_ = s.sink.JournalEntryVoided(ctx, VoidedEvent{
			TenantID: id.TenantID,
			EntryID:  entry.ID,
			Number:   entry.Number,
			VoidedBy: id.UserID,
			VoidedAt: voidedAt,
			Accounts: lineAccounts(entry.Lines),
		})
	}
	s.record(ctx, id, "journal.void", entry.ID, map[string]any{"number": entry.Number, "reason": reason})
	return entry, nil
}

// Reverse creates and posts a mirrored entry against a posted original,
// swapping debits and credits. History is corrected by appending, never by
// mutating.
func (s *Service) Reverse(ctx context.Context, id shared.Identity, entryID int64, memo string) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	var reversal Entry
	postedAt := s.now()
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetEntryWithLines(ctx, id.TenantID, entryID)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return ErrNotReversible
		}
		number := original.Number + "-REV"
		taken, err := tx.NumberTaken(ctx, id.TenantID, number, 0)
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: %q", ErrDuplicateNumber, number)
		}
		if _, err := tx.FindOpenPeriod(ctx, id.TenantID, original.Date, true); err != nil {
			return err
		}
		input := CreateInput{
			Number:    number,
			Date:      original.Date,
			Reference: original.Reference,
			Memo:      reversalMemo(memo, original.Number),
			Lines:     reverseLines(original.Lines),
		}
		inserted, err := tx.InsertEntry(ctx, id.TenantID, id.UserID, input)
		if err != nil {
			return err
		}
		if err := tx.InsertLines(ctx, inserted.ID, input.Lines); err != nil {
			return err
		}
		if err := tx.MarkPosted(ctx, id.TenantID, inserted.ID, id.UserID, postedAt); err != nil {
			return err
		}
		loaded, err := tx.GetEntryWithLines(ctx, id.TenantID, inserted.ID)
		if err != nil {
			return err
		}
		reversal = loaded
		return nil
	})
	if err != nil {
		return Entry{}, err
	}
	if s.metrics != nil {
		s.metrics.JournalPosted()
	}
	if s.sink != nil {
		_ = s.sink.JournalEntryPosted(ctx, PostedEvent{
			TenantID: id.TenantID,
			EntryID:  reversal.ID,
			Number:   reversal.Number,
			Date:     reversal.Date,
			PostedBy: id.UserID,
			PostedAt: postedAt,
			Accounts: lineAccounts(reversal.Lines),
		})
	}
	s.record(ctx, id, "journal.reverse", entryID, map[string]any{"reversal": reversal.Number})
	return reversal, nil
}

// Get returns an entry with lines eager-loaded. Void entries stay queryable
// for audit.
func (s *Service) Get(ctx context.Context, id shared.Identity, entryID int64) (Entry, error) {
	if err := id.Validate(); err != nil {
		return Entry{}, err
	}
	return s.repo.GetEntry(ctx, id.TenantID, entryID)
}

// List returns the tenant's entries, newest first.
func (s *Service) List(ctx context.Context, id shared.Identity) ([]Entry, error) {
	if err := id.Validate(); err != nil {
		return nil, err
	}
	return s.repo.ListEntries(ctx, id.TenantID)
}

func (s *Service) checkAccounts(ctx context.Context, tx TxRepository, tenantID int64, lines []LineInput) error {
	ids := make([]int64, 0, len(lines))
	for _, line := range lines {
		ids = append(ids, line.AccountID)
	}
	missing, err := tx.MissingAccounts(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %v", ErrUnknownAccount, missing)
	}
	return nil
}

func (s *Service) record(ctx context.Context, id shared.Identity, action string, entryID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		TenantID: id.TenantID,
		ActorID:  id.UserID,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: fmt.Sprintf("%d", entryID),
		Meta:     meta,
		At:       s.now(),
	})
}

func reverseLines(lines []Line) []LineInput {
	out := make([]LineInput, 0, len(lines))
	for _, line := range lines {
		out = append(out, LineInput{
			AccountID:  line.AccountID,
			Debit:      line.Credit,
			Credit:     line.Debit,
			CostCenter: line.CostCenter,
			Memo:       line.Memo,
		})
	}
	return out
}

func reversalMemo(memo, number string) string {
	if memo != "" {
		return memo
	}
	return fmt.Sprintf("Reversal of %s", number)
}
