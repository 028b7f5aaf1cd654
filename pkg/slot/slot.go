package slot

import (
	"fmt"
	"runtime"
)

// slotKey is the identity of one slot. Only its address matters.
type slotKey struct {
	// can't be empty or else pointers won't be distinct
	_ byte
}

// Handle is the capability for one slot. It is the only way to attach,
// read or write that slot on a carrier.
//
// A Handle is safe for concurrent use.
type Handle[V any] struct {
	key *slotKey
	def V
}

// New mints a new slot whose bindings start at def.
//
// Every call returns a distinct slot, even for equal defaults. Reference
// defaults (maps, slices, pointers) are shared by every carrier the slot is
// attached to.
func New[V any](def V) *Handle[V] {
	return &Handle[V]{key: new(slotKey), def: def}
}

// NewNullable mints a new slot of *V whose bindings start at nil.
func NewNullable[V any]() *Handle[*V] {
	return New[*V](nil)
}

// Define attaches h to carrier and returns the same carrier, so attachment
// composes with construction:
//
//	user, err := slot.Define(h, &User{})
//
// On error the zero C is returned.
func Define[C any, V any](h *Handle[V], carrier C) (C, error) {
	err := h.Attach(carrier)
	if err != nil {
		var zero C

		return zero, err
	}

	return carrier, nil
}

// Default returns the value new bindings start with.
func (h *Handle[V]) Default() V {
	return h.def
}

// Has reports whether the slot is attached to carrier.
// Invalid carriers report false.
func (h *Handle[V]) Has(carrier any) bool {
	id, _, err := resolveCarrier(carrier)
	if err != nil {
		return false
	}

	rec := lookupRecord(id)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	_, ok := rec.values[h.key]
	rec.mu.Unlock()

	runtime.KeepAlive(carrier)

	return ok
}

// Get returns the value bound to carrier.
func (h *Handle[V]) Get(carrier any) (V, error) {
	var value V

	err := h.withCell(carrier, func(cell *V) {
		value = *cell
	})
	if err != nil {
		var zero V

		return zero, err
	}

	return value, nil
}

// Set replaces the value bound to carrier and returns value.
// On error the binding is left untouched.
func (h *Handle[V]) Set(carrier any, value V) (V, error) {
	err := h.withCell(carrier, func(cell *V) {
		*cell = value
	})
	if err != nil {
		var zero V

		return zero, err
	}

	return value, nil
}

// Update replaces the value bound to carrier with fn(current) and returns
// the new value. fn runs under the carrier's lock and must not use any slot
// on the same carrier.
func (h *Handle[V]) Update(carrier any, fn func(V) V) (V, error) {
	var value V

	err := h.withCell(carrier, func(cell *V) {
		*cell = fn(*cell)
		value = *cell
	})
	if err != nil {
		var zero V

		return zero, err
	}

	return value, nil
}

// Attach binds the slot to carrier with the default value.
//
// Attaching twice returns [ErrAlreadyBound] and keeps the current value.
func (h *Handle[V]) Attach(carrier any) error {
	id, ptr, err := resolveCarrier(carrier)
	if err != nil {
		return err
	}

	rec := getOrCreateRecord(id, ptr)

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if _, ok := rec.values[h.key]; ok {
		return fmt.Errorf("%w: %s", ErrAlreadyBound, id.typ)
	}

	cell := new(V)
	*cell = h.def
	rec.values[h.key] = cell

	runtime.KeepAlive(carrier)

	return nil
}

// withCell runs fn on the carrier's cell for this slot under the carrier lock.
func (h *Handle[V]) withCell(carrier any, fn func(cell *V)) error {
	id, _, err := resolveCarrier(carrier)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnbound, err)
	}

	rec := lookupRecord(id)
	if rec == nil {
		return fmt.Errorf("%w: %s", ErrUnbound, id.typ)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	cell, ok := rec.values[h.key].(*V)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnbound, id.typ)
	}

	fn(cell)

	runtime.KeepAlive(carrier)

	return nil
}
