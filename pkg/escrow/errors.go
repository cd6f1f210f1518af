package escrow

import "errors"

// Ledger-local errors are terminal for the call that raised them. Callers can
// tell "retry later" (ErrTimelockNotMet) apart from "structurally impossible"
// (ErrInvalidSecret, ErrAlreadyFinalized), which must never be retried.
var (
	ErrValidation       = errors.New("invalid escrow parameters")
	ErrNotFound         = errors.New("escrow not found")
	ErrAlreadyExists    = errors.New("escrow already exists")
	ErrInvalidSecret    = errors.New("secret does not match hashlock")
	ErrTimelockNotMet   = errors.New("timelock not met")
	ErrUnauthorized     = errors.New("caller not authorized")
	ErrAlreadyFinalized = errors.New("escrow already finalized")
)
