package journal

// Status enumerates journal entry lifecycle values.
type Status string

const (
	StatusDraft  Status = "DRAFT"
	StatusPosted Status = "POSTED"
	StatusVoid   Status = "VOID"
)

// transitions is the single place the entry state machine is defined.
// Draft may only become Posted; Posted may only become Void. A draft can
// never be voided and a posted entry can never return to draft.
var transitions = map[Status]map[Status]bool{
	StatusDraft:  {StatusPosted: true},
	StatusPosted: {StatusVoid: true},
}

// CanTransition reports whether moving from s to target is permitted.
func (s Status) CanTransition(target Status) bool {
	return transitions[s][target]
}

// Editable reports whether lines and header fields may still change.
func (s Status) Editable() bool {
	return s == StatusDraft
}

// AffectsBalances reports whether the entry's lines count toward account
// balances. Only posted, non-void entries do.
func (s Status) AffectsBalances() bool {
	return s == StatusPosted
}
