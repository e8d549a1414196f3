package storage

import (
	"ms-grounds/internal/models"
)

// Store is the durable home of payment records. Records are append-only
// except for MarkFailed, which only flips a pending record.
type Store interface {
	SavePayment(payment *models.PaymentRecord) error
	GetPayment(id string) (*models.PaymentRecord, error)
	GetByExternalTransactionID(externalTxID string) (*models.PaymentRecord, error)
	ListByReservation(reservationID string) ([]*models.PaymentRecord, error)
	SumNonFailed(reservationID string) (float64, error)
	MarkFailed(paymentID string) error
	HealthCheck() error
	Close() error
}
