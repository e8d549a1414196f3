package models

import "errors"

// Error taxonomy shared across the booking and payment flows. Services wrap
// these with fmt.Errorf("...: %w", ...) so handlers can map them with
// errors.Is without string matching.
var (
	// ErrValidation covers bad input shape: start >= end, past dates,
	// negative amounts.
	ErrValidation = errors.New("validation failed")

	// ErrSlotTaken means an active reservation already overlaps the window.
	ErrSlotTaken = errors.New("slot already taken")

	// ErrSlotClosed means a closure window intersects the requested slot.
	ErrSlotClosed = errors.New("slot closed")

	// ErrOverPayment means the payment would push the non-failed sum past
	// the reservation's total price.
	ErrOverPayment = errors.New("payment exceeds remaining balance")

	// ErrNothingOwed means the reservation balance is already zero.
	ErrNothingOwed = errors.New("nothing owed on reservation")

	// ErrNotFound covers unknown or unauthorized reservations and unknown
	// gateway tokens. Ownership mismatches surface as not-found so callers
	// cannot probe for other users' reservations.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a status transition loses a race: the
	// source state was no longer valid at commit time.
	ErrConflict = errors.New("conflicting state transition")

	// ErrGatewayUnavailable covers gateway timeouts and non-2xx responses.
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")

	// ErrIntegrity covers signature verification failures and payload
	// mismatches against the initiated transaction.
	ErrIntegrity = errors.New("integrity check failed")

	// ErrPaymentIncomplete means the gateway reports the transaction as not
	// (yet) completed; the ledger is left untouched.
	ErrPaymentIncomplete = errors.New("gateway payment not completed")
)
