package repository

import "errors"

// Sentinel errors returned by settlement-critical repository methods. The
// ledger package maps these onto its caller-facing taxonomy; keeping them
// here lets the money-moving SQL report precisely why a guarded write did
// not happen.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrAccountNotActive  = errors.New("account is not active")
	ErrAlreadySettled    = errors.New("transaction already settled")
)
