package db_test

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand"
	"ms-grounds/internal/booking/db"
	"ms-grounds/internal/models"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "github.com/uptrace/bun/driver/sqliteshim"
)

func setupTestDB(t *testing.T) (*db.DB, *bun.DB) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}

	bunDB := bun.NewDB(sqldb, sqlitedialect.New())

	_, err = bunDB.NewCreateTable().Model((*models.Reservation)(nil)).Exec(context.Background())
	if err != nil {
		t.Fatalf("Failed to create reservations table: %v", err)
	}

	return &db.DB{Bun: bunDB}, bunDB
}

func newReservation(groundID, date, start, end string, status models.ReservationStatus) *models.Reservation {
	now := time.Now()
	return &models.Reservation{
		ReservationID: uuid.New().String(),
		GroundID:      groundID,
		UserID:        "user123",
		Date:          date,
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		TotalPrice:    3000.0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func TestCreateReservationIfFree(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	err := reservationDB.CreateReservationIfFree(ctx, first)
	require.NoError(t, err)

	got, err := reservationDB.GetReservationByID(ctx, first.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "ground-1", got.GroundID)
	assert.Equal(t, models.ReservationPending, got.Status)
}

func TestCreateReservationIfFree_OverlapRejected(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, first))

	// Partial overlap at the tail of the existing window.
	overlapping := newReservation("ground-1", "2026-09-01", "11:00", "13:00", models.ReservationPending)
	err := reservationDB.CreateReservationIfFree(ctx, overlapping)
	assert.ErrorIs(t, err, models.ErrSlotTaken)

	// Fully contained window.
	contained := newReservation("ground-1", "2026-09-01", "10:30", "11:30", models.ReservationPending)
	err = reservationDB.CreateReservationIfFree(ctx, contained)
	assert.ErrorIs(t, err, models.ErrSlotTaken)

	// Containing window.
	containing := newReservation("ground-1", "2026-09-01", "09:00", "13:00", models.ReservationPending)
	err = reservationDB.CreateReservationIfFree(ctx, containing)
	assert.ErrorIs(t, err, models.ErrSlotTaken)
}

func TestCreateReservationIfFree_TouchingEndpointsAllowed(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, first))

	// Back-to-back slots share an endpoint and must both be accepted.
	after := newReservation("ground-1", "2026-09-01", "12:00", "14:00", models.ReservationPending)
	assert.NoError(t, reservationDB.CreateReservationIfFree(ctx, after))

	before := newReservation("ground-1", "2026-09-01", "08:00", "10:00", models.ReservationPending)
	assert.NoError(t, reservationDB.CreateReservationIfFree(ctx, before))
}

func TestCreateReservationIfFree_InactiveRowsDoNotBlock(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	cancelled := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationCancelled)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, cancelled))

	completed := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationCompleted)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, completed))

	// The same window is free again once its holders are cancelled or done.
	fresh := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	assert.NoError(t, reservationDB.CreateReservationIfFree(ctx, fresh))
}

func TestCreateReservationIfFree_OtherGroundOrDateUnaffected(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	first := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, first))

	otherGround := newReservation("ground-2", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	assert.NoError(t, reservationDB.CreateReservationIfFree(ctx, otherGround))

	otherDate := newReservation("ground-1", "2026-09-02", "10:00", "12:00", models.ReservationPending)
	assert.NoError(t, reservationDB.CreateReservationIfFree(ctx, otherDate))
}

func TestUpdateWindowIfFree(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, res))

	err := reservationDB.UpdateWindowIfFree(ctx, res.ReservationID, "14:00", "16:00")
	require.NoError(t, err)

	got, err := reservationDB.GetReservationByID(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "14:00", got.StartTime)
	assert.Equal(t, "16:00", got.EndTime)
}

func TestUpdateWindowIfFree_ConflictRejected(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	blocker := newReservation("ground-1", "2026-09-01", "14:00", "16:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, blocker))

	res := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, res))

	err := reservationDB.UpdateWindowIfFree(ctx, res.ReservationID, "15:00", "17:00")
	assert.ErrorIs(t, err, models.ErrSlotTaken)

	// Original window untouched after the rejected move.
	got, err := reservationDB.GetReservationByID(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, "10:00", got.StartTime)
	assert.Equal(t, "12:00", got.EndTime)
}

func TestUpdateWindowIfFree_SelfOverlapAllowed(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, res))

	// Shifting by an hour overlaps the reservation's own old window.
	err := reservationDB.UpdateWindowIfFree(ctx, res.ReservationID, "11:00", "13:00")
	assert.NoError(t, err)
}

func TestUpdateWindowIfFree_NonPendingRejected(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, res))

	err := reservationDB.UpdateWindowIfFree(ctx, res.ReservationID, "14:00", "16:00")
	assert.ErrorIs(t, err, models.ErrConflict)
}

func TestUpdateWindowIfFree_NotFound(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	err := reservationDB.UpdateWindowIfFree(context.Background(), "does-not-exist", "14:00", "16:00")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestTransitionStatus(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	res := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, res))

	swapped, err := reservationDB.TransitionStatus(ctx, res.ReservationID,
		[]models.ReservationStatus{models.ReservationPending}, models.ReservationConfirmed)
	require.NoError(t, err)
	assert.True(t, swapped)

	// Second attempt from the same source state loses the race.
	swapped, err = reservationDB.TransitionStatus(ctx, res.ReservationID,
		[]models.ReservationStatus{models.ReservationPending}, models.ReservationConfirmed)
	require.NoError(t, err)
	assert.False(t, swapped)

	got, err := reservationDB.GetReservationByID(ctx, res.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, got.Status)
}

func TestTransitionStatus_UnknownReservation(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	swapped, err := reservationDB.TransitionStatus(context.Background(), "does-not-exist",
		[]models.ReservationStatus{models.ReservationPending}, models.ReservationCancelled)
	require.NoError(t, err)
	assert.False(t, swapped)
}

func TestCompleteElapsed(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	now := time.Date(2026, 9, 1, 13, 0, 0, 0, time.UTC)

	elapsedYesterday := newReservation("ground-1", "2026-08-31", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, elapsedYesterday))

	elapsedToday := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, elapsedToday))

	stillRunning := newReservation("ground-1", "2026-09-01", "12:30", "14:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, stillRunning))

	future := newReservation("ground-1", "2026-09-02", "10:00", "12:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, future))

	pendingElapsed := newReservation("ground-2", "2026-08-31", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, pendingElapsed))

	swept, err := reservationDB.CompleteElapsed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	for _, id := range []string{elapsedYesterday.ReservationID, elapsedToday.ReservationID} {
		got, err := reservationDB.GetReservationByID(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.ReservationCompleted, got.Status)
	}

	got, err := reservationDB.GetReservationByID(ctx, stillRunning.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationConfirmed, got.Status)

	got, err = reservationDB.GetReservationByID(ctx, pendingElapsed.ReservationID)
	require.NoError(t, err)
	assert.Equal(t, models.ReservationPending, got.Status)

	// Re-running the sweep finds nothing new.
	swept, err = reservationDB.CompleteElapsed(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), swept)
}

func TestListForGroundDate(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	late := newReservation("ground-1", "2026-09-01", "14:00", "16:00", models.ReservationConfirmed)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, late))

	early := newReservation("ground-1", "2026-09-01", "08:00", "10:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, early))

	cancelled := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationCancelled)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, cancelled))

	list, err := reservationDB.ListForGroundDate(ctx, "ground-1", "2026-09-01")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, early.ReservationID, list[0].ReservationID)
	assert.Equal(t, late.ReservationID, list[1].ReservationID)
}

func TestListByUser(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	ctx := context.Background()

	mine := newReservation("ground-1", "2026-09-01", "10:00", "12:00", models.ReservationPending)
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, mine))

	other := newReservation("ground-1", "2026-09-02", "10:00", "12:00", models.ReservationPending)
	other.UserID = "someone-else"
	require.NoError(t, reservationDB.CreateReservationIfFree(ctx, other))

	list, err := reservationDB.ListByUser(ctx, "user123")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, mine.ReservationID, list[0].ReservationID)
}

func TestGetReservationByID_NotFound(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()

	_, err := reservationDB.GetReservationByID(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestCreateReservationIfFree_ConcurrentOverlapping(t *testing.T) {
	reservationDB, bunDB := setupTestDB(t)
	defer bunDB.Close()
	// One connection so the in-memory database is shared and writers queue.
	bunDB.SetMaxOpenConns(1)
	ctx := context.Background()

	rng := rand.New(rand.NewSource(42))
	attempts := make([]*models.Reservation, 30)
	for i := range attempts {
		startHour := 6 + rng.Intn(14)
		endHour := startHour + 1 + rng.Intn(3)
		attempts[i] = newReservation("ground-1", "2026-09-01",
			fmt.Sprintf("%02d:00", startHour), fmt.Sprintf("%02d:00", endHour),
			models.ReservationPending)
	}

	errs := make([]error, len(attempts))
	var wg sync.WaitGroup
	for i, res := range attempts {
		wg.Add(1)
		go func(i int, res *models.Reservation) {
			defer wg.Done()
			errs[i] = reservationDB.CreateReservationIfFree(ctx, res)
		}(i, res)
	}
	wg.Wait()

	stored, err := reservationDB.ListForGroundDate(ctx, "ground-1", "2026-09-01")
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	// The stored set is pairwise non-overlapping.
	for i := 0; i < len(stored); i++ {
		for j := i + 1; j < len(stored); j++ {
			assert.False(t,
				models.Overlaps(stored[i].StartTime, stored[i].EndTime, stored[j].StartTime, stored[j].EndTime),
				"[%s,%s) overlaps [%s,%s)",
				stored[i].StartTime, stored[i].EndTime, stored[j].StartTime, stored[j].EndTime)
		}
	}

	// Exactly the successful attempts are stored, and every rejected attempt
	// genuinely collides with a stored window.
	successes := 0
	for i, res := range attempts {
		if errs[i] == nil {
			successes++
			continue
		}
		require.ErrorIs(t, errs[i], models.ErrSlotTaken)
		collides := false
		for _, s := range stored {
			if models.Overlaps(res.StartTime, res.EndTime, s.StartTime, s.EndTime) {
				collides = true
				break
			}
		}
		assert.True(t, collides, "rejected [%s,%s) overlaps nothing stored", res.StartTime, res.EndTime)
	}
	assert.Equal(t, successes, len(stored))
}
