// Package slot attaches hidden, strongly typed values to arbitrary objects.
//
// Each call to [New] mints a fresh slot and returns the [Handle] that is
// the only way to reach it. A slot has to be attached to an object (the
// carrier) before it can be read or written on that object, and slots
// minted by different calls never see each other's values, even when they
// share a value type and a default.
//
// # Basic Usage
//
//	secret := slot.New("")
//
//	user, err := slot.Define(secret, &User{Name: "ada"})
//	if err != nil {
//	    // user was nil, not a reference, or already carries the slot
//	}
//
//	_, _ = secret.Set(user, "hunter2")
//	v, _ := secret.Get(user) // "hunter2"
//
//	other := slot.New("")
//	other.Has(user) // false
//
// # Carriers
//
// A carrier is a non-nil pointer to a value with non-zero size, a non-nil
// map or a non-nil channel. Identity is the carrier's address together with
// its dynamic type, so a struct pointer and a pointer to its first field
// are different carriers.
//
// Bindings are stored in a process-wide side table that holds carriers
// weakly: once a carrier is unreachable its bindings are dropped. A bound
// value that references its own carrier keeps the carrier alive.
//
// # Concurrency
//
// All operations are safe for concurrent use. Operations on the same
// carrier are serialized by a per-carrier lock; [Handle.Update] runs its
// function under that lock.
//
// # Error Handling
//
// [Handle.Get], [Handle.Set] and [Handle.Update] return [ErrUnbound] for a
// carrier that was never attached. [Handle.Attach] returns [ErrAlreadyBound]
// when the slot is already on the carrier and [ErrInvalidCarrier] for values
// that cannot carry slots. [Handle.Has] never fails.
package slot
