package journal

import (
	"context"
	"time"
)

// PostedEvent announces that an entry became authoritative.
type PostedEvent struct {
	TenantID int64
	EntryID  int64
	Number   string
	Date     time.Time
	PostedBy int64
	PostedAt time.Time
	Accounts []int64
}

// VoidedEvent announces that a posted entry stopped affecting balances.
type VoidedEvent struct {
	TenantID int64
	EntryID  int64
	Number   string
	VoidedBy int64
	VoidedAt time.Time
	Accounts []int64
}

// EventSink receives journal lifecycle events for asynchronous consumers
// (notifications, projection cache invalidation).
type EventSink interface {
	JournalEntryPosted(ctx context.Context, evt PostedEvent) error
	JournalEntryVoided(ctx context.Context, evt VoidedEvent) error
}

func lineAccounts(lines []Line) []int64 {
	seen := make(map[int64]struct{}, len(lines))
	out := make([]int64, 0, len(lines))
	for _, line := range lines {
		if _, ok := seen[line.AccountID]; ok {
			continue
		}
		seen[line.AccountID] = struct{}{}
		out = append(out, line.AccountID)
	}
	return out
}
