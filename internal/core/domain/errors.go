package domain

import "errors"

var (
	// ErrNotFound means the addressed product variant, movement or order
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidMovement means the movement would violate a ledger
	// invariant (negative resulting quantity, broken before/after sum,
	// unknown movement type).
	ErrInvalidMovement = errors.New("invalid movement")

	// ErrInsufficientStock means a sale or other negative movement asked
	// for more than the variant currently holds.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrAlreadyReversed means the movement was reversed before.
	ErrAlreadyReversed = errors.New("movement already reversed")

	// ErrConcurrencyConflict means a concurrent writer won the race on an
	// absolute-set operation.
	ErrConcurrencyConflict = errors.New("concurrency conflict")

	// ErrDuplicateRequest means a retried submission carried a reference
	// that was already committed.
	ErrDuplicateRequest = errors.New("duplicate request")

	ErrEmptyOrder        = errors.New("order has no items")
	ErrInvalidTransition = errors.New("invalid status transition")
)
