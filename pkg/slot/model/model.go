// Package model provides a deliberately simple, in-memory model of the
// publicly observable behavior of package slot.
//
// Slots and carriers are plain integer ids and every value is a string. The
// model has no registry, no weak references and no locking, which makes it
// easy to audit. Tests drive the model and real handles with the same
// operations and compare the results.
package model

import (
	"cmp"
	"fmt"
	"slices"

	"github.com/calvinalkan/hiddenslot/pkg/slot"
)

// SlotID identifies a slot created by [State.NewSlot].
type SlotID int

// CarrierID identifies a carrier created by [State.NewCarrier].
type CarrierID int

// Binding is the key of one bound value.
type Binding struct {
	Slot    SlotID
	Carrier CarrierID
}

// Entry is one bound value, as returned by [State.Bindings].
type Entry struct {
	Slot    SlotID
	Carrier CarrierID
	Value   string
}

// State is the complete observable state: slot defaults, the number of
// carriers and every binding.
//
// Ids not handed out by NewSlot or NewCarrier cause a panic; they indicate
// a broken test harness, not a modeled error.
type State struct {
	Defaults []string
	Carriers int
	Bound    map[Binding]string
}

// New returns an empty state.
func New() *State {
	return &State{Bound: make(map[Binding]string)}
}

// NewSlot adds a slot with the given default.
func (s *State) NewSlot(def string) SlotID {
	s.Defaults = append(s.Defaults, def)

	return SlotID(len(s.Defaults) - 1)
}

// NewCarrier adds a carrier with no bindings.
func (s *State) NewCarrier() CarrierID {
	s.Carriers++

	return CarrierID(s.Carriers - 1)
}

// Has reports whether slot is attached to carrier.
func (s *State) Has(slotID SlotID, carrier CarrierID) bool {
	s.mustExist(slotID, carrier)

	_, ok := s.Bound[Binding{Slot: slotID, Carrier: carrier}]

	return ok
}

// Attach binds slot to carrier at the slot default.
func (s *State) Attach(slotID SlotID, carrier CarrierID) error {
	s.mustExist(slotID, carrier)

	key := Binding{Slot: slotID, Carrier: carrier}
	if _, ok := s.Bound[key]; ok {
		return slot.ErrAlreadyBound
	}

	s.Bound[key] = s.Defaults[slotID]

	return nil
}

// Get returns the bound value.
func (s *State) Get(slotID SlotID, carrier CarrierID) (string, error) {
	s.mustExist(slotID, carrier)

	value, ok := s.Bound[Binding{Slot: slotID, Carrier: carrier}]
	if !ok {
		return "", slot.ErrUnbound
	}

	return value, nil
}

// Set replaces the bound value and returns it.
func (s *State) Set(slotID SlotID, carrier CarrierID, value string) (string, error) {
	s.mustExist(slotID, carrier)

	key := Binding{Slot: slotID, Carrier: carrier}
	if _, ok := s.Bound[key]; !ok {
		return "", slot.ErrUnbound
	}

	s.Bound[key] = value

	return value, nil
}

// Append appends suffix to the bound value and returns the result.
// It models Handle.Update with a string concatenation.
func (s *State) Append(slotID SlotID, carrier CarrierID, suffix string) (string, error) {
	current, err := s.Get(slotID, carrier)
	if err != nil {
		return "", err
	}

	return s.Set(slotID, carrier, current+suffix)
}

// Bindings returns every bound value ordered by slot, then carrier.
func (s *State) Bindings() []Entry {
	entries := make([]Entry, 0, len(s.Bound))

	for key, value := range s.Bound {
		entries = append(entries, Entry{Slot: key.Slot, Carrier: key.Carrier, Value: value})
	}

	slices.SortFunc(entries, func(a, b Entry) int {
		return cmp.Or(cmp.Compare(a.Slot, b.Slot), cmp.Compare(a.Carrier, b.Carrier))
	})

	return entries
}

// Clone makes a deep copy so metamorphic tests can fork the exact same state.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}

	clone := &State{
		Carriers: s.Carriers,
		Bound:    make(map[Binding]string, len(s.Bound)),
	}

	if s.Defaults != nil {
		clone.Defaults = slices.Clone(s.Defaults)
	}

	for key, value := range s.Bound {
		clone.Bound[key] = value
	}

	return clone
}

func (s *State) mustExist(slotID SlotID, carrier CarrierID) {
	if slotID < 0 || int(slotID) >= len(s.Defaults) {
		panic(fmt.Sprintf("model: unknown slot %d", slotID))
	}

	if carrier < 0 || int(carrier) >= s.Carriers {
		panic(fmt.Sprintf("model: unknown carrier %d", carrier))
	}
}
