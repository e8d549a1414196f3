package booking

import (
	"context"
	"fmt"
	"time"

	"ms-grounds/internal/catalog"
	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"

	"github.com/google/uuid"
)

type DBLayer interface {
	CreateReservationIfFree(ctx context.Context, res *models.Reservation) error
	UpdateWindowIfFree(ctx context.Context, reservationID, newStart, newEnd string) error
	TransitionStatus(ctx context.Context, reservationID string, from []models.ReservationStatus, to models.ReservationStatus) (bool, error)
	GetReservationByID(ctx context.Context, reservationID string) (*models.Reservation, error)
	ListForGroundDate(ctx context.Context, groundID, date string) ([]models.Reservation, error)
	ListByUser(ctx context.Context, userID string) ([]models.Reservation, error)
}

type SlotLock interface {
	LockSlot(ctx context.Context, groundID, date, holder string) (bool, error)
	UnlockSlot(ctx context.Context, groundID, date, holder string) error
}

type Publisher interface {
	PublishReservationConfirmed(res *models.Reservation) error
	PublishReservationCancelled(res *models.Reservation) error
}

type ClosureChecker interface {
	IsClosed(ctx context.Context, groundID, date, startTime, endTime string) (bool, error)
}

type Catalog interface {
	GetGround(ctx context.Context, groundID string) (*catalog.Ground, error)
}

type BookingService struct {
	DB       DBLayer
	Lock     SlotLock
	Kafka    Publisher
	Closures ClosureChecker
	Catalog  Catalog
	logger   *logger.Logger

	// now is swappable so tests can pin the clock
	now func() time.Time
}

func NewBookingService(db DBLayer, lock SlotLock, kafka Publisher, closures ClosureChecker, cat Catalog, log *logger.Logger) *BookingService {
	return &BookingService{
		DB:       db,
		Lock:     lock,
		Kafka:    kafka,
		Closures: closures,
		Catalog:  cat,
		logger:   log,
		now:      time.Now,
	}
}

// ---------------- CREATION ----------------

// TryCreateReservation validates the request, fixes the price from the
// catalog's hourly rate, and runs closure check -> slot lock -> atomic
// check-then-insert. For any ground and date, two active reservations never
// overlap, even when creation requests race.
func (s *BookingService) TryCreateReservation(ctx context.Context, userID string, req models.ReservationRequest) (*models.Reservation, error) {
	if err := validateWindow(req.Date, req.StartTime, req.EndTime, s.now()); err != nil {
		return nil, err
	}

	ground, err := s.Catalog.GetGround(ctx, req.GroundID)
	if err != nil {
		return nil, err
	}
	if ground.OpensAt != "" && ground.ClosesAt != "" {
		if req.StartTime < ground.OpensAt || req.EndTime > ground.ClosesAt {
			return nil, fmt.Errorf("%w: ground is open %s-%s", models.ErrValidation, ground.OpensAt, ground.ClosesAt)
		}
	}

	closed, err := s.Closures.IsClosed(ctx, req.GroundID, req.Date, req.StartTime, req.EndTime)
	if err != nil {
		return nil, fmt.Errorf("closure check failed: %w", err)
	}
	if closed {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrSlotClosed, req.GroundID, req.Date)
	}

	reservationID := uuid.NewString()
	now := s.now().UTC()
	reservation := &models.Reservation{
		ReservationID: reservationID,
		GroundID:      req.GroundID,
		UserID:        userID,
		Date:          req.Date,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Status:        models.ReservationPending,
		TotalPrice:    windowPrice(req.StartTime, req.EndTime, ground.PricePerHour),
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	ok, err := s.Lock.LockSlot(ctx, req.GroundID, req.Date, reservationID)
	if err != nil {
		return nil, fmt.Errorf("slot lock error: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("timed out waiting for slot lock on %s/%s", req.GroundID, req.Date)
	}
	defer func() {
		if err := s.Lock.UnlockSlot(ctx, req.GroundID, req.Date, reservationID); err != nil {
			s.logger.Warn("BOOKING", fmt.Sprintf("Failed to release slot lock for %s/%s: %v", req.GroundID, req.Date, err))
		}
	}()

	if err := s.DB.CreateReservationIfFree(ctx, reservation); err != nil {
		return nil, err
	}

	s.logger.LogBooking("CREATE", reservationID,
		fmt.Sprintf("Reserved %s %s-%s on %s for %s", req.Date, req.StartTime, req.EndTime, req.GroundID, userID))
	return reservation, nil
}

// UpdateWindow reschedules a pending reservation. The same lock-then-check
// discipline as creation applies, with the reservation excluded from its own
// overlap check.
func (s *BookingService) UpdateWindow(ctx context.Context, reservationID, requesterID, newStart, newEnd string) (*models.Reservation, error) {
	existing, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if existing.UserID != requesterID {
		// Don't leak that the reservation exists
		return nil, models.ErrNotFound
	}

	if err := validateWindow(existing.Date, newStart, newEnd, s.now()); err != nil {
		return nil, err
	}

	closed, err := s.Closures.IsClosed(ctx, existing.GroundID, existing.Date, newStart, newEnd)
	if err != nil {
		return nil, fmt.Errorf("closure check failed: %w", err)
	}
	if closed {
		return nil, fmt.Errorf("%w: %s on %s", models.ErrSlotClosed, existing.GroundID, existing.Date)
	}

	ok, err := s.Lock.LockSlot(ctx, existing.GroundID, existing.Date, reservationID)
	if err != nil {
		return nil, fmt.Errorf("slot lock error: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("timed out waiting for slot lock on %s/%s", existing.GroundID, existing.Date)
	}
	defer func() {
		if err := s.Lock.UnlockSlot(ctx, existing.GroundID, existing.Date, reservationID); err != nil {
			s.logger.Warn("BOOKING", fmt.Sprintf("Failed to release slot lock for %s/%s: %v", existing.GroundID, existing.Date, err))
		}
	}()

	if err := s.DB.UpdateWindowIfFree(ctx, reservationID, newStart, newEnd); err != nil {
		return nil, err
	}

	s.logger.LogBooking("UPDATE", reservationID, fmt.Sprintf("Rescheduled to %s-%s", newStart, newEnd))
	return s.DB.GetReservationByID(ctx, reservationID)
}

// ---------------- TRANSITIONS ----------------

// Cancel releases the slot if the reservation belongs to the requester and is
// still cancellable. Every failure mode returns false so the API can answer
// "not found" without revealing whether the reservation exists.
func (s *BookingService) Cancel(ctx context.Context, reservationID, requesterID string) bool {
	res, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return false
	}
	if res.UserID != requesterID {
		return false
	}

	cancellable := []models.ReservationStatus{
		models.ReservationPending,
		models.ReservationConfirmed,
		models.ReservationUpcoming,
	}
	swapped, err := s.DB.TransitionStatus(ctx, reservationID, cancellable, models.ReservationCancelled)
	if err != nil || !swapped {
		return false
	}

	res.Status = models.ReservationCancelled
	if err := s.Kafka.PublishReservationCancelled(res); err != nil {
		s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish cancellation for %s: %v", reservationID, err))
	}

	s.logger.LogBooking("CANCEL", reservationID, "Reservation cancelled, slot released")
	return true
}

// ConfirmPaid moves a fully paid reservation from pending to confirmed. The
// ledger calls this exactly when the balance hits zero; a reservation is
// never confirmed while money is still owed.
func (s *BookingService) ConfirmPaid(ctx context.Context, reservationID string) error {
	swapped, err := s.DB.TransitionStatus(ctx, reservationID,
		[]models.ReservationStatus{models.ReservationPending}, models.ReservationConfirmed)
	if err != nil {
		return err
	}
	if !swapped {
		return fmt.Errorf("%w: reservation %s is not pending", models.ErrConflict, reservationID)
	}

	res, err := s.DB.GetReservationByID(ctx, reservationID)
	if err == nil {
		if err := s.Kafka.PublishReservationConfirmed(res); err != nil {
			s.logger.Error("KAFKA", fmt.Sprintf("Failed to publish confirmation for %s: %v", reservationID, err))
		}
	}

	s.logger.LogBooking("CONFIRM", reservationID, "Reservation confirmed, balance settled")
	return nil
}

// ---------------- QUERIES ----------------

// GetReservation returns a reservation with the display-only Upcoming
// projection applied to confirmed future windows.
func (s *BookingService) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	res, err := s.DB.GetReservationByID(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	projectUpcoming(res, s.now())
	return res, nil
}

// ListMyReservations returns the caller's reservations, newest first.
func (s *BookingService) ListMyReservations(ctx context.Context, userID string) ([]models.Reservation, error) {
	reservations, err := s.DB.ListByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	for i := range reservations {
		projectUpcoming(&reservations[i], now)
	}
	return reservations, nil
}

// ListSchedule returns the active reservations on a ground for a date.
func (s *BookingService) ListSchedule(ctx context.Context, groundID, date string) ([]models.Reservation, error) {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return nil, fmt.Errorf("%w: bad date %q", models.ErrValidation, date)
	}
	return s.DB.ListForGroundDate(ctx, groundID, date)
}

// ---------------- HELPERS ----------------

// projectUpcoming rewrites confirmed-and-future to the display-only Upcoming
// status. Nothing is stored; overlap checks treat both the same.
func projectUpcoming(res *models.Reservation, now time.Time) {
	if res.Status != models.ReservationConfirmed {
		return
	}
	today := now.Format("2006-01-02")
	clock := now.Format("15:04")
	if res.Date > today || (res.Date == today && res.StartTime > clock) {
		res.Status = models.ReservationUpcoming
	}
}

func validateWindow(date, startTime, endTime string, now time.Time) error {
	if _, err := time.Parse("2006-01-02", date); err != nil {
		return fmt.Errorf("%w: bad date %q", models.ErrValidation, date)
	}
	if _, err := time.Parse("15:04", startTime); err != nil {
		return fmt.Errorf("%w: bad start time %q", models.ErrValidation, startTime)
	}
	if _, err := time.Parse("15:04", endTime); err != nil {
		return fmt.Errorf("%w: bad end time %q", models.ErrValidation, endTime)
	}
	if startTime >= endTime {
		return fmt.Errorf("%w: start time must be before end time", models.ErrValidation)
	}
	if date < now.Format("2006-01-02") {
		return fmt.Errorf("%w: date is in the past", models.ErrValidation)
	}
	return nil
}

// windowPrice fixes the total at creation time from the catalog's hourly
// rate. Later price changes on the ground do not reprice the reservation.
func windowPrice(startTime, endTime string, pricePerHour float64) float64 {
	start, _ := time.Parse("15:04", startTime)
	end, _ := time.Parse("15:04", endTime)
	hours := end.Sub(start).Hours()
	return pricePerHour * hours
}
