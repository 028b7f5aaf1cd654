package shell

import "errors"

var (
	errUnknownCommand  = errors.New("unknown command")
	errWrongArgs       = errors.New("wrong number of arguments")
	errSlotNotFound    = errors.New("slot not found")
	errSlotExists      = errors.New("slot already exists")
	errCarrierNotFound = errors.New("carrier not found")
	errCarrierExists   = errors.New("carrier already exists")
	errInvalidCount    = errors.New("count must be positive")
)
