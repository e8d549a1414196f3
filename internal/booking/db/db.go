package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ms-grounds/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun *bun.DB
}

// ---------------- CREATION ----------------

// CreateReservationIfFree runs the overlap check and the insert in one
// transaction. The half-open overlap test lets back-to-back slots share an
// endpoint. Callers hold the ground/date slot lock, so the check-then-insert
// pair cannot interleave with a conflicting writer.
func (d *DB) CreateReservationIfFree(ctx context.Context, res *models.Reservation) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		count, err := tx.NewSelect().
			Model((*models.Reservation)(nil)).
			Where("ground_id = ?", res.GroundID).
			Where("date = ?", res.Date).
			Where("status IN (?)", bun.In(models.ActiveStatuses)).
			Where("start_time < ?", res.EndTime).
			Where("end_time > ?", res.StartTime).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to check conflicting reservations: %w", err)
		}
		if count > 0 {
			return models.ErrSlotTaken
		}

		if _, err := tx.NewInsert().Model(res).Exec(ctx); err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		return nil
	})
}

// UpdateWindowIfFree moves a pending reservation to a new window using the
// same check-then-write discipline as creation, excluding the reservation
// itself from the overlap count.
func (d *DB) UpdateWindowIfFree(ctx context.Context, reservationID, newStart, newEnd string) error {
	return d.Bun.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		var res models.Reservation
		err := tx.NewSelect().
			Model(&res).
			Where("reservation_id = ?", reservationID).
			Limit(1).
			Scan(ctx)
		if err != nil {
			if err == sql.ErrNoRows {
				return models.ErrNotFound
			}
			return fmt.Errorf("failed to load reservation: %w", err)
		}
		if res.Status != models.ReservationPending {
			return fmt.Errorf("%w: only pending reservations can be rescheduled", models.ErrConflict)
		}

		count, err := tx.NewSelect().
			Model((*models.Reservation)(nil)).
			Where("reservation_id != ?", reservationID).
			Where("ground_id = ?", res.GroundID).
			Where("date = ?", res.Date).
			Where("status IN (?)", bun.In(models.ActiveStatuses)).
			Where("start_time < ?", newEnd).
			Where("end_time > ?", newStart).
			Count(ctx)
		if err != nil {
			return fmt.Errorf("failed to check conflicting reservations: %w", err)
		}
		if count > 0 {
			return models.ErrSlotTaken
		}

		_, err = tx.NewUpdate().
			Model((*models.Reservation)(nil)).
			Set("start_time = ?", newStart).
			Set("end_time = ?", newEnd).
			Set("updated_at = ?", time.Now().UTC()).
			Where("reservation_id = ?", reservationID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to update reservation window: %w", err)
		}
		return nil
	})
}

// ---------------- TRANSITIONS ----------------

// TransitionStatus flips a reservation from one of the given source statuses
// to the target. The WHERE clause is the compare-and-swap: a racer whose
// source state is stale affects zero rows and gets false back.
func (d *DB) TransitionStatus(ctx context.Context, reservationID string, from []models.ReservationStatus, to models.ReservationStatus) (bool, error) {
	sources := make([]string, len(from))
	for i, s := range from {
		sources[i] = string(s)
	}

	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("reservation_id = ?", reservationID).
		Where("status IN (?)", bun.In(sources)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to transition reservation %s: %w", reservationID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// CompleteElapsed promotes confirmed reservations whose window has elapsed to
// completed. Already-completed rows no longer match the predicate, so the
// sweeper can re-run it safely.
func (d *DB) CompleteElapsed(ctx context.Context, now time.Time) (int64, error) {
	today := now.Format("2006-01-02")
	clock := now.Format("15:04")

	res, err := d.Bun.NewUpdate().
		Model((*models.Reservation)(nil)).
		Set("status = ?", string(models.ReservationCompleted)).
		Set("updated_at = ?", now.UTC()).
		Where("status = ?", string(models.ReservationConfirmed)).
		Where("date < ? OR (date = ? AND end_time < ?)", today, today, clock).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to complete elapsed reservations: %w", err)
	}
	return res.RowsAffected()
}

// ---------------- QUERIES ----------------

func (d *DB) GetReservationByID(ctx context.Context, reservationID string) (*models.Reservation, error) {
	var res models.Reservation
	err := d.Bun.NewSelect().
		Model(&res).
		Where("reservation_id = ?", reservationID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

// ListForGroundDate returns the active reservations holding slots on a
// ground for one date, ordered by start time.
func (d *DB) ListForGroundDate(ctx context.Context, groundID, date string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("ground_id = ?", groundID).
		Where("date = ?", date).
		Where("status IN (?)", bun.In(models.ActiveStatuses)).
		Order("start_time ASC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}

// ListByUser returns all reservations for a user, newest first.
func (d *DB) ListByUser(ctx context.Context, userID string) ([]models.Reservation, error) {
	var reservations []models.Reservation
	err := d.Bun.NewSelect().
		Model(&reservations).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	return reservations, nil
}
