package slot

// Export internal functions and variables for testing.
// This file is only compiled during tests.

// CarrierID exposes the registry identity type to external tests.
type CarrierID = carrierID

// CarrierIdentityForTesting returns the registry identity of carrier.
// The identity does not keep the carrier alive.
func CarrierIdentityForTesting(carrier any) (CarrierID, bool) {
	id, _, err := resolveCarrier(carrier)
	if err != nil {
		return CarrierID{}, false
	}

	return id, true
}

// RecordExistsForTesting reports whether the registry still holds a record
// for id, live or not.
func RecordExistsForTesting(id CarrierID) bool {
	_, exists := carrierRegistry.Load(id)

	return exists
}

// KillRecordForTesting replaces the record of a live carrier with one whose
// weak reference is already cleared, keeping its bindings. This simulates a
// new object reusing the address of a collected carrier before the
// collected carrier's cleanup ran.
func KillRecordForTesting(carrier any) bool {
	id, _, err := resolveCarrier(carrier)
	if err != nil {
		return false
	}

	rec := lookupRecord(id)
	if rec == nil {
		return false
	}

	rec.mu.Lock()
	values := make(map[*slotKey]any, len(rec.values))
	for k, v := range rec.values {
		values[k] = v
	}
	rec.mu.Unlock()

	dead := &carrierRecord{id: id, values: values}

	return carrierRegistry.CompareAndSwap(id, rec, dead)
}
