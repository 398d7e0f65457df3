package farm

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidQuantity  = errors.New("quantity must be at least 1")
	ErrNoLotsSelected   = errors.New("no lots selected")
	ErrSecurityNotFound = errors.New("security not found")

	// ErrPriceUnavailable degrades P&L display, it never aborts an operation.
	ErrPriceUnavailable = errors.New("price unavailable")
)

// SelectionCountError reports a sell where the number of selected lots does
// not match the requested quantity. Callers must reject this before the
// ledger is touched.
type SelectionCountError struct {
	Requested int
	Selected  int
}

func (e *SelectionCountError) Error() string {
	return fmt.Sprintf("selected %d lots but requested quantity %d", e.Selected, e.Requested)
}

// ValidateSelection is the caller-side guard for RecordSell.
func ValidateSelection(quantity int, lotIDs []int64) error {
	if quantity < 1 {
		return ErrInvalidQuantity
	}
	if len(lotIDs) == 0 {
		return ErrNoLotsSelected
	}
	if len(lotIDs) != quantity {
		return &SelectionCountError{Requested: quantity, Selected: len(lotIDs)}
	}
	return nil
}
