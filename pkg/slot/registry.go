package slot

import (
	"fmt"
	"reflect"
	"runtime"
	"sync"
	"unsafe"
	"weak"
)

// Registry architecture
//
//  1. carrierRegistry: process-wide map from carrier identity to the
//     carrier's record. Entries are installed with LoadOrStore, replaced with
//     CompareAndSwap when stale and pruned with CompareAndDelete.
//
//  2. carrierRecord.mu: per-carrier guard over the bound values. Held for
//     the duration of a single Has/Get/Set/Update/Attach.
//
//  3. weak reference + cleanup: the record only references its carrier
//     weakly. A runtime cleanup prunes the record after the carrier is
//     collected. Until the cleanup runs, a record whose weak pointer has gone
//     nil is treated as absent, so a new object allocated at the same address
//     never inherits old bindings.
//
// Lock ordering: carrierRecord.mu is never held while touching carrierRegistry.

// carrierRegistry maps carrier identities to their records.
var carrierRegistry sync.Map // map[carrierID]*carrierRecord

// carrierID uniquely identifies a live carrier.
//
// The dynamic type is part of the identity: a struct and its first field
// share an address but are different carriers.
type carrierID struct {
	addr uintptr
	typ  reflect.Type
}

// carrierRecord holds every binding for one carrier.
type carrierRecord struct {
	id carrierID

	// ref goes nil once the carrier is unreachable.
	ref weak.Pointer[byte]

	// mu guards values.
	mu sync.Mutex

	// values maps a slot key to a *V cell owned by that slot's Handle[V].
	values map[*slotKey]any
}

// RegistryStats is a point-in-time view of the carrier registry.
type RegistryStats struct {
	// Carriers is the number of live carriers with at least one record.
	Carriers int

	// Bindings is the number of (slot, carrier) bindings across those carriers.
	Bindings int
}

// Stats returns the number of live carriers and bindings in the registry.
//
// Records of collected carriers are excluded even if their cleanup has not
// run yet.
func Stats() RegistryStats {
	var stats RegistryStats

	carrierRegistry.Range(func(_, val any) bool {
		rec, ok := val.(*carrierRecord)
		if !ok || !rec.alive() {
			return true
		}

		rec.mu.Lock()
		n := len(rec.values)
		rec.mu.Unlock()

		stats.Carriers++
		stats.Bindings += n

		return true
	})

	return stats
}

func (r *carrierRecord) alive() bool {
	return r.ref.Value() != nil
}

// resolveCarrier validates carrier and returns its identity and address.
func resolveCarrier(carrier any) (carrierID, unsafe.Pointer, error) {
	if carrier == nil {
		return carrierID{}, nil, fmt.Errorf("%w: nil", ErrInvalidCarrier)
	}

	v := reflect.ValueOf(carrier)

	switch v.Kind() {
	case reflect.Pointer:
		if v.Type().Elem().Size() == 0 {
			return carrierID{}, nil, fmt.Errorf("%w: %s points to a zero-size type", ErrInvalidCarrier, v.Type())
		}
	case reflect.Map, reflect.Chan:
	default:
		return carrierID{}, nil, fmt.Errorf("%w: %s is not a reference type", ErrInvalidCarrier, v.Type())
	}

	if v.IsNil() {
		return carrierID{}, nil, fmt.Errorf("%w: nil %s", ErrInvalidCarrier, v.Type())
	}

	ptr := v.UnsafePointer()

	return carrierID{addr: uintptr(ptr), typ: v.Type()}, ptr, nil
}

// lookupRecord returns the live record for id, or nil if there is none.
func lookupRecord(id carrierID) *carrierRecord {
	val, ok := carrierRegistry.Load(id)
	if !ok {
		return nil
	}

	rec, ok := val.(*carrierRecord)
	if !ok || !rec.alive() {
		return nil
	}

	return rec
}

// getOrCreateRecord returns the live record for id, installing a new one
// if there is none or the existing one belongs to a collected carrier.
//
// ptr must point to the live carrier identified by id.
func getOrCreateRecord(id carrierID, ptr unsafe.Pointer) *carrierRecord {
	for {
		val, loaded := carrierRegistry.Load(id)
		if loaded {
			rec, ok := val.(*carrierRecord)
			if ok && rec.alive() {
				return rec
			}

			// Stale record of a collected carrier at the same address.
			fresh := newRecord(id, ptr)
			if carrierRegistry.CompareAndSwap(id, val, fresh) {
				watchCarrier(fresh, ptr)

				return fresh
			}

			continue
		}

		fresh := newRecord(id, ptr)

		_, loaded = carrierRegistry.LoadOrStore(id, fresh)
		if !loaded {
			watchCarrier(fresh, ptr)

			return fresh
		}

		// Another goroutine installed a record first, retry the loop.
	}
}

func newRecord(id carrierID, ptr unsafe.Pointer) *carrierRecord {
	return &carrierRecord{
		id:     id,
		ref:    weak.Make((*byte)(ptr)),
		values: make(map[*slotKey]any),
	}
}

// watchCarrier prunes rec from the registry once the carrier at ptr is
// unreachable.
func watchCarrier(rec *carrierRecord, ptr unsafe.Pointer) {
	runtime.AddCleanup((*byte)(ptr), pruneRecord, rec)
}

// pruneRecord removes rec unless it was already replaced.
func pruneRecord(rec *carrierRecord) {
	carrierRegistry.CompareAndDelete(rec.id, rec)
}
