package models

import (
	"time"
)

// GatewayTransaction correlates an initiated gateway payment with the
// reservation it pays for. It lives in Redis with a TTL matching the
// gateway's checkout expiry; it is not part of the durable ledger.
type GatewayTransaction struct {
	Token         string        `json:"token"`
	ReservationID string        `json:"reservation_id"`
	Method        PaymentMethod `json:"method"`
	Amount        float64       `json:"amount"`
	CreatedAt     time.Time     `json:"created_at"`
}

// GatewayInitiation is what the payer needs to complete checkout.
type GatewayInitiation struct {
	PaymentURL string `json:"payment_url"`
	Token      string `json:"token"`
}

// GatewayStatus is the gateway's own view of a transaction, fetched through
// the status-lookup API. Status is normalized by the adapter to one of
// "completed", "pending" or "failed".
type GatewayStatus struct {
	OrderRef      string  `json:"order_ref"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
}

// GatewayWebhook is the shape both supported gateways push. The raw body is
// HMAC-signed; nothing in it is trusted before the signature checks out.
type GatewayWebhook struct {
	Token         string  `json:"token"`
	OrderRef      string  `json:"order_ref"`
	TransactionID string  `json:"transaction_id"`
	Status        string  `json:"status"`
	Amount        float64 `json:"amount"`
}

type InitiatePaymentRequest struct {
	ReservationID string        `json:"reservation_id"`
	Method        PaymentMethod `json:"method"`
	ReturnURL     string        `json:"return_url"`
}
