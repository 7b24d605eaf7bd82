package shared

import (
	"errors"
	"fmt"
)

// DocumentKind enumerates the document types a ledger row may reference.
// A closed set so consumers switching on kind stay exhaustive.
type DocumentKind string

const (
	DocumentKindPurchaseOrder   DocumentKind = "PURCHASE_ORDER"
	DocumentKindSalesOrder      DocumentKind = "SALES_ORDER"
	DocumentKindProductionOrder DocumentKind = "PRODUCTION_ORDER"
	DocumentKindInvoice         DocumentKind = "INVOICE"
	DocumentKindStockEntry      DocumentKind = "STOCK_ENTRY"
	DocumentKindManual          DocumentKind = "MANUAL"
)

// Valid reports whether the kind belongs to the closed set.
func (k DocumentKind) Valid() bool {
	switch k {
	case DocumentKindPurchaseOrder, DocumentKindSalesOrder, DocumentKindProductionOrder,
		DocumentKindInvoice, DocumentKindStockEntry, DocumentKindManual:
		return true
	}
	return false
}

// DocumentRef is a typed reference to the originating document of a ledger row.
type DocumentRef struct {
	Kind DocumentKind
	ID   int64
}

// ErrInvalidDocumentKind indicates a reference outside the known set.
var ErrInvalidDocumentKind = NewError(KindValidation, "reference: unknown document kind")

// Validate checks kind and id.
func (r DocumentRef) Validate() error {
	if !r.Kind.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidDocumentKind, r.Kind)
	}
	if r.ID <= 0 {
		return errors.New("reference: document id required")
	}
	return nil
}

func (r DocumentRef) String() string {
	return fmt.Sprintf("%s:%d", r.Kind, r.ID)
}
