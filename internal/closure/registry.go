package closure

import (
	"context"
	"fmt"
	"time"

	"ms-grounds/internal/models"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Registry answers "is this slot blacked out?" against the closure_windows
// table. Windows are created by owner tooling; the booking flow only reads.
type Registry struct {
	Bun *bun.DB
}

func NewRegistry(db *bun.DB) *Registry {
	return &Registry{Bun: db}
}

// IsClosed reports whether any closure window on the ground overlaps the
// half-open interval [date+start, date+end). Times are "15:04" on the
// "2006-01-02" date, interpreted as UTC like the stored windows.
func (r *Registry) IsClosed(ctx context.Context, groundID, date, startTime, endTime string) (bool, error) {
	slotStart, err := time.Parse("2006-01-02 15:04", date+" "+startTime)
	if err != nil {
		return false, fmt.Errorf("%w: bad slot start: %v", models.ErrValidation, err)
	}
	slotEnd, err := time.Parse("2006-01-02 15:04", date+" "+endTime)
	if err != nil {
		return false, fmt.Errorf("%w: bad slot end: %v", models.ErrValidation, err)
	}

	count, err := r.Bun.NewSelect().
		Model((*models.ClosureWindow)(nil)).
		Where("ground_id = ?", groundID).
		Where("starts_at < ?", slotEnd).
		Where("ends_at > ?", slotStart).
		Count(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check closure windows: %w", err)
	}
	return count > 0, nil
}

// AddWindow registers a new closure window.
func (r *Registry) AddWindow(ctx context.Context, req models.ClosureRequest) (*models.ClosureWindow, error) {
	if !req.StartsAt.Before(req.EndsAt) {
		return nil, fmt.Errorf("%w: closure window must end after it starts", models.ErrValidation)
	}
	window := &models.ClosureWindow{
		ClosureID: uuid.NewString(),
		GroundID:  req.GroundID,
		StartsAt:  req.StartsAt.UTC(),
		EndsAt:    req.EndsAt.UTC(),
		Reason:    req.Reason,
		CreatedAt: time.Now().UTC(),
	}
	if _, err := r.Bun.NewInsert().Model(window).Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to insert closure window: %w", err)
	}
	return window, nil
}

// RemoveWindow deletes a closure window by id.
func (r *Registry) RemoveWindow(ctx context.Context, closureID string) error {
	res, err := r.Bun.NewDelete().
		Model((*models.ClosureWindow)(nil)).
		Where("closure_id = ?", closureID).
		Exec(ctx)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrNotFound
	}
	return nil
}

// ListForGround returns the windows registered on a ground.
func (r *Registry) ListForGround(ctx context.Context, groundID string) ([]models.ClosureWindow, error) {
	var windows []models.ClosureWindow
	err := r.Bun.NewSelect().
		Model(&windows).
		Where("ground_id = ?", groundID).
		Order("starts_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return windows, nil
}
