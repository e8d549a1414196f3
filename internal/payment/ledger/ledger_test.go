package ledger_test

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	_ "github.com/uptrace/bun/driver/sqliteshim"

	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
	"ms-grounds/internal/payment/ledger"
	"ms-grounds/internal/payment/storage"
)

type MockReservations struct {
	mock.Mock
}

func (m *MockReservations) GetReservation(ctx context.Context, reservationID string) (*models.Reservation, error) {
	args := m.Called(ctx, reservationID)
	if res := args.Get(0); res != nil {
		return res.(*models.Reservation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReservations) ConfirmPaid(ctx context.Context, reservationID string) error {
	args := m.Called(ctx, reservationID)
	return args.Error(0)
}

type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) PublishPaymentCompleted(rec *models.PaymentRecord) error {
	args := m.Called(rec)
	return args.Error(0)
}

func setupLedger(t *testing.T) (*ledger.Ledger, *MockReservations, *MockPublisher) {
	sqldb, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to in-memory database: %v", err)
	}
	t.Cleanup(func() { sqldb.Close() })

	store, err := storage.NewPostgreSQLStoreWithDB(sqldb, logger.NewLogger())
	require.NoError(t, err)

	bookings := new(MockReservations)
	pub := new(MockPublisher)
	return ledger.NewLedger(store, bookings, pub, logger.NewLogger()), bookings, pub
}

func pendingReservation(id string, total float64) *models.Reservation {
	return &models.Reservation{
		ReservationID: id,
		GroundID:      "ground-1",
		UserID:        "user-1",
		Status:        models.ReservationPending,
		TotalPrice:    total,
	}
}

func TestRecordPayment_Installments(t *testing.T) {
	l, bookings, pub := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	first, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 1000.0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPartiallyCompleted, first.Status)

	// Confirmation only fires once the balance closes.
	bookings.AssertNotCalled(t, "ConfirmPaid", mock.Anything, "res-1")

	second, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 2000.0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, second.Status)

	bookings.AssertCalled(t, "ConfirmPaid", mock.Anything, "res-1")
	pub.AssertCalled(t, "PublishPaymentCompleted", mock.Anything)

	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, balance.Paid)
	assert.Equal(t, 0.0, balance.Remaining)
}

func TestRecordPayment_ExactTotal(t *testing.T) {
	l, bookings, pub := setupLedger(t)

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	record, err := l.RecordPayment(context.Background(), "res-1", models.MethodPayHere, 3000.0, "txn-1")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, record.Status)
	assert.Equal(t, "txn-1", record.ExternalTransactionID)
}

func TestRecordPayment_OverPaymentRejected(t *testing.T) {
	l, bookings, pub := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	_, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 3500.0, "")
	assert.ErrorIs(t, err, models.ErrOverPayment)

	_, err = l.RecordPayment(ctx, "res-1", models.MethodCash, 2000.0, "")
	require.NoError(t, err)

	// 2000 paid of 3000, 1500 more would overshoot.
	_, err = l.RecordPayment(ctx, "res-1", models.MethodCash, 1500.0, "")
	assert.ErrorIs(t, err, models.ErrOverPayment)

	// The running total never exceeds the reservation price.
	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 2000.0, balance.Paid)
}

func TestRecordPayment_NegativeAmount(t *testing.T) {
	l, _, _ := setupLedger(t)

	_, err := l.RecordPayment(context.Background(), "res-1", models.MethodCash, -50.0, "")
	assert.ErrorIs(t, err, models.ErrValidation)
}

func TestRecordPayment_ZeroAmountIsPending(t *testing.T) {
	l, bookings, _ := setupLedger(t)

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)

	record, err := l.RecordPayment(context.Background(), "res-1", models.MethodCash, 0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, record.Status)
	bookings.AssertNotCalled(t, "ConfirmPaid", mock.Anything, mock.Anything)
}

func TestRecordPayment_ZeroAfterSettled(t *testing.T) {
	l, bookings, pub := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	_, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 3000.0, "")
	require.NoError(t, err)

	// A zero payment on a settled reservation must not mint a second
	// Completed record.
	record, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentPending, record.Status)

	history, err := l.ListByReservation(ctx, "res-1")
	require.NoError(t, err)
	completed := 0
	for _, rec := range history {
		if rec.Status == models.PaymentCompleted {
			completed++
		}
	}
	assert.Equal(t, 1, completed)
}

func TestRecordPayment_UnknownReservation(t *testing.T) {
	l, bookings, _ := setupLedger(t)

	bookings.On("GetReservation", mock.Anything, "missing").Return(nil, models.ErrNotFound)

	_, err := l.RecordPayment(context.Background(), "missing", models.MethodCash, 100.0, "")
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestRecordPayment_FailedRecordsDoNotCount(t *testing.T) {
	l, bookings, pub := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	pending, err := l.RecordPayment(ctx, "res-1", models.MethodPayHere, 0, "")
	require.NoError(t, err)
	require.NoError(t, l.MarkFailed(ctx, pending.PaymentID))

	// Full amount still accepted after the failed record.
	record, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 3000.0, "")
	require.NoError(t, err)
	assert.Equal(t, models.PaymentCompleted, record.Status)
}

func TestRecordPayment_ConcurrentInstallments(t *testing.T) {
	l, bookings, pub := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)
	bookings.On("ConfirmPaid", mock.Anything, "res-1").Return(nil)
	pub.On("PublishPaymentCompleted", mock.Anything).Return(nil)

	// Ten racers each offer the full outstanding total; exactly one wins.
	var wg sync.WaitGroup
	accepted := make(chan *models.PaymentRecord, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := l.RecordPayment(ctx, "res-1", models.MethodCash, 3000.0, fmt.Sprintf("txn-%d", i))
			if err == nil {
				accepted <- rec
			} else {
				assert.ErrorIs(t, err, models.ErrOverPayment)
			}
		}(i)
	}
	wg.Wait()
	close(accepted)

	var winners []*models.PaymentRecord
	for rec := range accepted {
		winners = append(winners, rec)
	}
	require.Len(t, winners, 1)
	assert.Equal(t, models.PaymentCompleted, winners[0].Status)

	balance, err := l.GetBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, balance.Paid)
}

func TestGetRemainingBalance(t *testing.T) {
	l, bookings, _ := setupLedger(t)
	ctx := context.Background()

	bookings.On("GetReservation", mock.Anything, "res-1").Return(pendingReservation("res-1", 3000.0), nil)

	remaining, err := l.GetRemainingBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 3000.0, remaining)

	_, err = l.RecordPayment(ctx, "res-1", models.MethodCash, 1200.0, "")
	require.NoError(t, err)

	remaining, err = l.GetRemainingBalance(ctx, "res-1")
	require.NoError(t, err)
	assert.Equal(t, 1800.0, remaining)
}
