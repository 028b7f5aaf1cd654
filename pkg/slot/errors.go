package slot

import "errors"

// Sentinel errors returned by slot operations.
//
// Callers should use [errors.Is] to check error types:
//
//	if errors.Is(err, slot.ErrUnbound) {
//	    // attach first
//	}
var (
	// ErrUnbound indicates the slot was never attached to the carrier.
	//
	// Returned by Get, Set and Update. Guard with [Handle.Has] or attach
	// the slot with [Handle.Attach].
	ErrUnbound = errors.New("slot: unbound")

	// ErrAlreadyBound indicates Attach was called twice for the same slot
	// and carrier. The bound value is left untouched.
	ErrAlreadyBound = errors.New("slot: already bound")

	// ErrInvalidCarrier indicates a value that cannot carry slots: nil, a
	// non-reference value, a slice, a func, or a pointer to a zero-size type.
	//
	// Get, Set and Update wrap it together with [ErrUnbound].
	ErrInvalidCarrier = errors.New("slot: invalid carrier")
)
