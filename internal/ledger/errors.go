package ledger

import "errors"

// Sentinel errors for every lifecycle failure. Handlers map these to HTTP
// statuses; callers compare with errors.Is.
var (
	ErrUnauthorized        = errors.New("caller lacks required role")
	ErrSystemPaused        = errors.New("system is paused")
	ErrUnknownCredit       = errors.New("credit does not exist")
	ErrNonexistentToken    = errors.New("credit has no owner in the live set")
	ErrAlreadyRetired      = errors.New("credit is retired")
	ErrNotOwner            = errors.New("caller is not the credit owner")
	ErrNotTransferable     = errors.New("credit is not transferable")
	ErrNoActiveOffer       = errors.New("no active sale offer for credit")
	ErrInsufficientPayment = errors.New("payment below offer price")
	ErrMalformedBatch      = errors.New("malformed batch mint request")
	ErrNothingToWithdraw   = errors.New("no pending withdrawal balance")
	ErrInvalidAmount       = errors.New("carbon amount must be positive")
	ErrInvalidPrice        = errors.New("price must be positive")
)
