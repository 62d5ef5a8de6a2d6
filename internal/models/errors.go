package models

import "errors"

// Error taxonomy for the order pipeline. Callers classify with errors.Is; the
// HTTP layer maps each sentinel to a status code.
var (
	// ErrValidation covers bad input shapes, unknown payment methods,
	// missing catalog items and client/server total mismatches.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound is returned for lookups of orders or notifications that
	// do not exist.
	ErrNotFound = errors.New("not found")

	// ErrInsufficientStock is returned by the commit-time conditional
	// decrement when any line would drive count_in_stock negative. The
	// whole commit rolls back.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrPaymentInit is returned when phase 1 of the gateway protocol
	// fails; the caller must not proceed to capture.
	ErrPaymentInit = errors.New("payment init failed")

	// ErrPaymentCapture is returned when the gateway definitively rejects
	// a capture.
	ErrPaymentCapture = errors.New("payment capture failed")

	// ErrPaymentOutcomeUnknown is returned when a capture call times out.
	// The capture may have succeeded on the gateway's side, so callers
	// must not treat this as a failure.
	ErrPaymentOutcomeUnknown = errors.New("payment outcome unknown")

	// ErrInvalidTransition is returned for status edges outside the
	// allowed transition table.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrStorage wraps persistence failures that leave no partial state.
	ErrStorage = errors.New("storage failure")
)
