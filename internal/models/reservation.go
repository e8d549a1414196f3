package models

import (
	"time"

	"github.com/uptrace/bun"
)

type ReservationStatus string

const (
	ReservationPending   ReservationStatus = "pending"
	ReservationConfirmed ReservationStatus = "confirmed"
	ReservationUpcoming  ReservationStatus = "upcoming"
	ReservationCancelled ReservationStatus = "cancelled"
	ReservationCompleted ReservationStatus = "completed"
)

// ActiveStatuses are the statuses that hold a slot. A cancelled or completed
// reservation no longer blocks the window.
var ActiveStatuses = []string{
	string(ReservationPending),
	string(ReservationConfirmed),
	string(ReservationUpcoming),
}

// Reservation is a booked [start,end) window on a ground for one date.
// Date is "2006-01-02", StartTime/EndTime are zero-padded "15:04" so that
// string comparison orders them chronologically.
type Reservation struct {
	bun.BaseModel `bun:"table:reservations"`

	ReservationID string            `bun:"reservation_id,pk" json:"reservation_id"`
	GroundID      string            `bun:"ground_id" json:"ground_id"`
	UserID        string            `bun:"user_id" json:"user_id"`
	Date          string            `bun:"date" json:"date"`
	StartTime     string            `bun:"start_time" json:"start_time"`
	EndTime       string            `bun:"end_time" json:"end_time"`
	Status        ReservationStatus `bun:"status" json:"status"`
	TotalPrice    float64           `bun:"total_price" json:"total_price"`
	CreatedAt     time.Time         `bun:"created_at" json:"created_at"`
	UpdatedAt     time.Time         `bun:"updated_at" json:"updated_at"`
}

type ReservationRequest struct {
	GroundID  string `json:"ground_id"`
	Date      string `json:"date"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type ReservationUpdateRequest struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Overlaps reports whether two half-open [start,end) windows intersect.
// Touching endpoints are not a conflict.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && bStart < aEnd
}
