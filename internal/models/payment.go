package models

import (
	"time"
)

type PaymentMethod string

const (
	MethodCash    PaymentMethod = "cash"
	MethodPayHere PaymentMethod = "payhere"
	MethodStripe  PaymentMethod = "stripe"
)

type PaymentStatus string

const (
	PaymentPending            PaymentStatus = "pending"
	PaymentPartiallyCompleted PaymentStatus = "partially_completed"
	PaymentCompleted          PaymentStatus = "completed"
	PaymentFailed             PaymentStatus = "failed"
)

// PaymentRecord is one payment against a reservation. Records are immutable
// after creation except for the Pending -> Failed flip on verification
// failure. The record whose amount closes the balance is the Completed one;
// earlier installments stay PartiallyCompleted for history.
type PaymentRecord struct {
	PaymentID             string        `json:"payment_id"`
	ReservationID         string        `json:"reservation_id"`
	Method                PaymentMethod `json:"method"`
	ExternalTransactionID string        `json:"external_transaction_id,omitempty"`
	Amount                float64       `json:"amount"`
	Status                PaymentStatus `json:"status"`
	CreatedDate           time.Time     `json:"created_date"`
}

type CashPaymentRequest struct {
	ReservationID string  `json:"reservation_id"`
	Amount        float64 `json:"amount"`
}

type BalanceResponse struct {
	ReservationID string  `json:"reservation_id"`
	TotalPrice    float64 `json:"total_price"`
	Paid          float64 `json:"paid"`
	Remaining     float64 `json:"remaining"`
}
