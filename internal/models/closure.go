package models

import (
	"time"

	"github.com/uptrace/bun"
)

// ClosureWindow blocks bookings on a ground between StartsAt and EndsAt
// regardless of existing reservations (maintenance, holidays).
type ClosureWindow struct {
	bun.BaseModel `bun:"table:closure_windows"`

	ClosureID string    `bun:"closure_id,pk" json:"closure_id"`
	GroundID  string    `bun:"ground_id" json:"ground_id"`
	StartsAt  time.Time `bun:"starts_at" json:"starts_at"`
	EndsAt    time.Time `bun:"ends_at" json:"ends_at"`
	Reason    string    `bun:"reason,nullzero" json:"reason,omitempty"`
	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

type ClosureRequest struct {
	GroundID string    `json:"ground_id"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at"`
	Reason   string    `json:"reason,omitempty"`
}
