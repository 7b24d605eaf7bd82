package shared

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOfWalksWrapChain(t *testing.T) {
	sentinel := NewError(KindConflict, "conflict")
	wrapped := fmt.Errorf("outer: %w", fmt.Errorf("inner: %w", sentinel))

	require.Equal(t, KindConflict, KindOf(wrapped))
	require.True(t, errors.Is(wrapped, sentinel))
}

func TestKindOfUnclassified(t *testing.T) {
	require.Equal(t, KindUnknown, KindOf(errors.New("plain")))
	require.Equal(t, KindUnknown, KindOf(nil))
}

func TestIntegrityf(t *testing.T) {
	err := Integrityf("replay mismatch at account %d", 42)
	require.Equal(t, KindIntegrity, KindOf(err))
	require.Contains(t, err.Error(), "account 42")
}

func TestDocumentRefValidate(t *testing.T) {
	require.NoError(t, DocumentRef{Kind: DocumentKindInvoice, ID: 9}.Validate())

	err := DocumentRef{Kind: "RECEIPT", ID: 9}.Validate()
	require.ErrorIs(t, err, ErrInvalidDocumentKind)

	require.Error(t, DocumentRef{Kind: DocumentKindInvoice}.Validate())
}

func TestIdentityValidate(t *testing.T) {
	require.NoError(t, Identity{TenantID: 1, UserID: 2}.Validate())

	err := Identity{}.Validate()
	require.ErrorIs(t, err, ErrMissingIdentity)
	// Missing tenant context is malformed input, not an internal fault.
	require.Equal(t, KindValidation, KindOf(err))
}
