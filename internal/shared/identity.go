package shared

import (
	"context"
)

// Identity carries the tenant and acting user for a mutating operation.
// Core services take it as an explicit parameter; nothing reads it from
// ambient globals.
type Identity struct {
	TenantID int64
	UserID   int64
}

// ErrMissingIdentity indicates the caller did not supply tenant context.
// Classified as validation so the HTTP layer answers 400, not 500.
var ErrMissingIdentity = NewError(KindValidation, "identity: tenant context required")

// Validate checks the identity is usable for tenant-scoped writes.
func (id Identity) Validate() error {
	if id.TenantID == 0 {
		return ErrMissingIdentity
	}
	return nil
}

type identityContextKey struct{}

// ContextWithIdentity stores the identity in context for the HTTP layer.
func ContextWithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext extracts the identity placed by the request middleware.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(Identity)
	return id, ok
}
