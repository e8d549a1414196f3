package models

import "time"

// Events published to Kafka for the notification service. Delivery failures
// are logged and never roll back the state that produced them.

type ReservationEvent struct {
	Type          string       `json:"type"`
	ReservationID string       `json:"reservation_id"`
	Reservation   *Reservation `json:"reservation,omitempty"`
	Timestamp     time.Time    `json:"timestamp"`
}

type PaymentEvent struct {
	Type          string         `json:"type"`
	PaymentID     string         `json:"payment_id"`
	ReservationID string         `json:"reservation_id"`
	Payment       *PaymentRecord `json:"payment,omitempty"`
	Timestamp     time.Time      `json:"timestamp"`
}
