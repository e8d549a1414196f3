package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
	"ms-grounds/internal/payment/storage"
	"ms-grounds/internal/utils"
)

// Reservations is the slice of the booking service the ledger needs: the
// priced reservation, and the pending->confirmed transition once the balance
// hits zero.
type Reservations interface {
	GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error)
	ConfirmPaid(ctx context.Context, reservationID string) error
}

type Publisher interface {
	PublishPaymentCompleted(rec *models.PaymentRecord) error
}

// Ledger owns payment records and derives payment status from the running
// balance. RecordPayment serializes per reservation so concurrent partial
// payments can't both read a stale balance and jointly overpay; the lock is
// scoped to one reservation, never global.
type Ledger struct {
	store    storage.Store
	bookings Reservations
	kafka    Publisher
	logger   *logger.Logger

	// one mutex per in-flight reservation id
	locks sync.Map
}

func NewLedger(store storage.Store, bookings Reservations, kafka Publisher, log *logger.Logger) *Ledger {
	return &Ledger{
		store:    store,
		bookings: bookings,
		kafka:    kafka,
		logger:   log,
	}
}

func (l *Ledger) lockReservation(reservationID string) *sync.Mutex {
	mu, _ := l.locks.LoadOrStore(reservationID, &sync.Mutex{})
	m := mu.(*sync.Mutex)
	m.Lock()
	return m
}

// RecordPayment appends a payment against a reservation and derives its
// status from the remaining balance. The record that brings the balance to
// zero is the single Completed one; earlier installments stay
// PartiallyCompleted. A zero amount yields a degenerate Pending record.
func (l *Ledger) RecordPayment(ctx context.Context, reservationID string, method models.PaymentMethod, amount float64, externalTxID string) (*models.PaymentRecord, error) {
	if amount < 0 {
		return nil, fmt.Errorf("%w: amount cannot be negative", models.ErrValidation)
	}

	mu := l.lockReservation(reservationID)
	defer mu.Unlock()

	reservation, err := l.bookings.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}

	alreadyPaid, err := l.store.SumNonFailed(reservationID)
	if err != nil {
		return nil, err
	}

	if alreadyPaid+amount > reservation.TotalPrice {
		return nil, fmt.Errorf("%w: %.2f paid, %.2f offered, %.2f total",
			models.ErrOverPayment, alreadyPaid, amount, reservation.TotalPrice)
	}

	remaining := reservation.TotalPrice - alreadyPaid - amount
	var status models.PaymentStatus
	switch {
	case amount == 0:
		status = models.PaymentPending
	case remaining == 0:
		status = models.PaymentCompleted
	default:
		status = models.PaymentPartiallyCompleted
	}

	record := &models.PaymentRecord{
		PaymentID:             utils.GeneratePaymentID(),
		ReservationID:         reservationID,
		Method:                method,
		ExternalTransactionID: externalTxID,
		Amount:                amount,
		Status:                status,
		CreatedDate:           time.Now().UTC(),
	}

	if err := l.store.SavePayment(record); err != nil {
		return nil, err
	}

	l.logger.LogPayment("RECORD", reservationID,
		fmt.Sprintf("%s payment of %.2f (%s), %.2f remaining", method, amount, status, remaining))

	if status == models.PaymentCompleted {
		// The reservation may have been cancelled while the payment was in
		// flight; the CAS inside ConfirmPaid reports that as a conflict and
		// the ledger row stands for the refund flow to pick up.
		if err := l.bookings.ConfirmPaid(ctx, reservationID); err != nil {
			l.logger.Warn("PAYMENT", fmt.Sprintf("Balance settled but confirmation failed for %s: %v", reservationID, err))
		}
		if err := l.kafka.PublishPaymentCompleted(record); err != nil {
			l.logger.Error("KAFKA", fmt.Sprintf("Failed to publish payment completion for %s: %v", record.PaymentID, err))
		}
	}

	return record, nil
}

// GetRemainingBalance returns what is still owed on a reservation. Gateway
// initiation charges exactly this, which is how a previously-partial balance
// gets settled.
func (l *Ledger) GetRemainingBalance(ctx context.Context, reservationID string) (float64, error) {
	reservation, err := l.bookings.GetReservation(ctx, reservationID)
	if err != nil {
		return 0, err
	}
	alreadyPaid, err := l.store.SumNonFailed(reservationID)
	if err != nil {
		return 0, err
	}
	return reservation.TotalPrice - alreadyPaid, nil
}

// GetBalance returns the full balance breakdown for the API.
func (l *Ledger) GetBalance(ctx context.Context, reservationID string) (*models.BalanceResponse, error) {
	reservation, err := l.bookings.GetReservation(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	alreadyPaid, err := l.store.SumNonFailed(reservationID)
	if err != nil {
		return nil, err
	}
	return &models.BalanceResponse{
		ReservationID: reservationID,
		TotalPrice:    reservation.TotalPrice,
		Paid:          alreadyPaid,
		Remaining:     reservation.TotalPrice - alreadyPaid,
	}, nil
}

// GetByExternalTransactionID is the reconciler's idempotency lookup.
func (l *Ledger) GetByExternalTransactionID(ctx context.Context, externalTxID string) (*models.PaymentRecord, error) {
	return l.store.GetByExternalTransactionID(externalTxID)
}

// ListByReservation returns a reservation's payment history.
func (l *Ledger) ListByReservation(ctx context.Context, reservationID string) ([]*models.PaymentRecord, error) {
	return l.store.ListByReservation(reservationID)
}

// MarkFailed flips a pending record to failed after a verification failure.
func (l *Ledger) MarkFailed(ctx context.Context, paymentID string) error {
	return l.store.MarkFailed(paymentID)
}
