package storage

import (
	"database/sql"
	"fmt"

	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"

	_ "github.com/lib/pq"
)

type PostgreSQLStore struct {
	db  *sql.DB
	log *logger.Logger
}

// NewPostgreSQLStoreWithDB creates the payment store on an existing database
// connection (the one the bun reservation store shares).
func NewPostgreSQLStoreWithDB(db *sql.DB, log *logger.Logger) (*PostgreSQLStore, error) {
	store := &PostgreSQLStore{
		db:  db,
		log: log,
	}

	if err := store.initTables(); err != nil {
		log.Error("DATABASE", "Failed to initialize payment tables: "+err.Error())
		return nil, fmt.Errorf("failed to initialize payment tables: %w", err)
	}

	log.LogDatabase("SUCCESS", "payments", "Payment storage initialized")
	return store, nil
}

func (s *PostgreSQLStore) initTables() error {
	s.log.LogDatabase("MIGRATE", "payments", "Creating payments table if not exists")

	paymentsQuery := `
    CREATE TABLE IF NOT EXISTS payments (
        payment_id VARCHAR(64) PRIMARY KEY,
        reservation_id VARCHAR(36) NOT NULL,
        method VARCHAR(20) NOT NULL,
        external_transaction_id VARCHAR(100),
        amount DECIMAL(10,2) NOT NULL,
        status VARCHAR(30) NOT NULL,
        created_date TIMESTAMP DEFAULT CURRENT_TIMESTAMP
    );
    `

	if _, err := s.db.Exec(paymentsQuery); err != nil {
		return fmt.Errorf("failed to create payments table: %w", err)
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_payments_reservation_id ON payments(reservation_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_external_txn ON payments(external_transaction_id);",
		"CREATE INDEX IF NOT EXISTS idx_payments_status ON payments(status);",
	}

	for _, indexQuery := range indexes {
		if _, err := s.db.Exec(indexQuery); err != nil {
			return fmt.Errorf("failed to create index: %w", err)
		}
	}

	return nil
}

// SavePayment appends a payment record.
func (s *PostgreSQLStore) SavePayment(payment *models.PaymentRecord) error {
	s.log.LogDatabase("INSERT", "payments", fmt.Sprintf("Saving payment %s", payment.PaymentID))

	query := `
    INSERT INTO payments (
        payment_id, reservation_id, method, external_transaction_id, amount, status, created_date
    ) VALUES ($1, $2, $3, $4, $5, $6, $7)
    `

	externalTxID := sql.NullString{String: payment.ExternalTransactionID, Valid: payment.ExternalTransactionID != ""}
	_, err := s.db.Exec(query,
		payment.PaymentID, payment.ReservationID, string(payment.Method), externalTxID,
		payment.Amount, string(payment.Status), payment.CreatedDate,
	)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to save payment %s: %s", payment.PaymentID, err.Error()))
		return fmt.Errorf("failed to save payment: %w", err)
	}

	return nil
}

// GetPayment retrieves a payment by ID.
func (s *PostgreSQLStore) GetPayment(id string) (*models.PaymentRecord, error) {
	query := `
    SELECT payment_id, reservation_id, method, external_transaction_id, amount, status, created_date
    FROM payments WHERE payment_id = $1
    `
	return s.scanOne(s.db.QueryRow(query, id))
}

// GetByExternalTransactionID retrieves the payment recorded for a gateway
// transaction. This is the reconciler's idempotency anchor: one gateway
// transaction never becomes two ledger rows.
func (s *PostgreSQLStore) GetByExternalTransactionID(externalTxID string) (*models.PaymentRecord, error) {
	query := `
    SELECT payment_id, reservation_id, method, external_transaction_id, amount, status, created_date
    FROM payments WHERE external_transaction_id = $1
    `
	return s.scanOne(s.db.QueryRow(query, externalTxID))
}

func (s *PostgreSQLStore) scanOne(row *sql.Row) (*models.PaymentRecord, error) {
	payment := &models.PaymentRecord{}
	var externalTxID sql.NullString
	var method, status string

	err := row.Scan(
		&payment.PaymentID, &payment.ReservationID, &method, &externalTxID,
		&payment.Amount, &status, &payment.CreatedDate,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, models.ErrNotFound
		}
		s.log.Error("DATABASE", fmt.Sprintf("Failed to get payment: %s", err.Error()))
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}

	payment.Method = models.PaymentMethod(method)
	payment.Status = models.PaymentStatus(status)
	payment.ExternalTransactionID = externalTxID.String
	return payment, nil
}

// ListByReservation retrieves all payments against a reservation, oldest
// first so installment history reads top to bottom.
func (s *PostgreSQLStore) ListByReservation(reservationID string) ([]*models.PaymentRecord, error) {
	query := `
    SELECT payment_id, reservation_id, method, external_transaction_id, amount, status, created_date
    FROM payments
    WHERE reservation_id = $1
    ORDER BY created_date ASC
    `

	rows, err := s.db.Query(query, reservationID)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to list payments: %s", err.Error()))
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []*models.PaymentRecord
	for rows.Next() {
		payment := &models.PaymentRecord{}
		var externalTxID sql.NullString
		var method, status string

		err := rows.Scan(
			&payment.PaymentID, &payment.ReservationID, &method, &externalTxID,
			&payment.Amount, &status, &payment.CreatedDate,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}

		payment.Method = models.PaymentMethod(method)
		payment.Status = models.PaymentStatus(status)
		payment.ExternalTransactionID = externalTxID.String
		payments = append(payments, payment)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return payments, nil
}

// SumNonFailed returns the amount already paid on a reservation. Failed
// records don't count against the balance.
func (s *PostgreSQLStore) SumNonFailed(reservationID string) (float64, error) {
	query := `
    SELECT COALESCE(SUM(amount), 0)
    FROM payments
    WHERE reservation_id = $1 AND status != $2
    `

	var sum float64
	err := s.db.QueryRow(query, reservationID, string(models.PaymentFailed)).Scan(&sum)
	if err != nil {
		s.log.Error("DATABASE", fmt.Sprintf("Failed to sum payments for %s: %s", reservationID, err.Error()))
		return 0, fmt.Errorf("failed to sum payments: %w", err)
	}
	return sum, nil
}

// MarkFailed flips a pending payment to failed. Any other state is
// immutable, so the WHERE clause refuses the update and the caller learns
// nothing changed.
func (s *PostgreSQLStore) MarkFailed(paymentID string) error {
	query := `
    UPDATE payments SET status = $1
    WHERE payment_id = $2 AND status = $3
    `

	res, err := s.db.Exec(query, string(models.PaymentFailed), paymentID, string(models.PaymentPending))
	if err != nil {
		return fmt.Errorf("failed to mark payment failed: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: payment %s is not pending", models.ErrConflict, paymentID)
	}

	s.log.LogDatabase("UPDATE", "payments", fmt.Sprintf("Payment %s marked failed", paymentID))
	return nil
}

func (s *PostgreSQLStore) HealthCheck() error {
	return s.db.Ping()
}

func (s *PostgreSQLStore) Close() error {
	s.log.LogDatabase("CLOSE", "payments", "Closing payment storage")
	return s.db.Close()
}
