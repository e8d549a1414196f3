package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
)

// Ledger is the slice of the payment ledger the reconciler commits into.
type Ledger interface {
	RecordPayment(ctx context.Context, reservationID string, method models.PaymentMethod, amount float64, externalTxID string) (*models.PaymentRecord, error)
	GetRemainingBalance(ctx context.Context, reservationID string) (float64, error)
	GetByExternalTransactionID(ctx context.Context, externalTxID string) (*models.PaymentRecord, error)
}

// Reconciler matches external gateway confirmations to local reservations
// and commits them into the ledger exactly once. Callbacks and webhooks may
// both arrive for the same checkout, and webhooks may be retried; the
// external transaction id dedupes them all.
type Reconciler struct {
	adapters map[models.PaymentMethod]Adapter
	txns     TxnStore
	ledger   Ledger
	logger   *logger.Logger
}

func NewReconciler(txns TxnStore, ledger Ledger, log *logger.Logger, adapters ...Adapter) *Reconciler {
	byMethod := make(map[models.PaymentMethod]Adapter, len(adapters))
	for _, a := range adapters {
		byMethod[a.Method()] = a
	}
	return &Reconciler{
		adapters: byMethod,
		txns:     txns,
		ledger:   ledger,
		logger:   log,
	}
}

func (r *Reconciler) adapter(method models.PaymentMethod) (Adapter, error) {
	a, ok := r.adapters[method]
	if !ok {
		return nil, fmt.Errorf("%w: unknown gateway %q", models.ErrNotFound, method)
	}
	return a, nil
}

// InitiatePayment opens a gateway checkout for whatever is still owed on the
// reservation and remembers the token for the confirmation leg.
func (r *Reconciler) InitiatePayment(ctx context.Context, reservationID string, method models.PaymentMethod, returnURL string) (*models.GatewayInitiation, error) {
	adapter, err := r.adapter(method)
	if err != nil {
		return nil, err
	}

	remaining, err := r.ledger.GetRemainingBalance(ctx, reservationID)
	if err != nil {
		return nil, err
	}
	if remaining <= 0 {
		return nil, fmt.Errorf("%w: reservation %s", models.ErrNothingOwed, reservationID)
	}

	initiation, err := adapter.InitiatePayment(ctx, reservationID, remaining, returnURL)
	if err != nil {
		return nil, err
	}

	txn := models.GatewayTransaction{
		Token:         initiation.Token,
		ReservationID: reservationID,
		Method:        method,
		Amount:        remaining,
		CreatedAt:     time.Now().UTC(),
	}
	if err := r.txns.SaveTransaction(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to store gateway transaction: %w", err)
	}

	r.logger.LogGateway(string(method), "INITIATE",
		fmt.Sprintf("Checkout for %.2f on reservation %s, token %s", remaining, reservationID, initiation.Token))
	return initiation, nil
}

// ReconcileCallback handles the payer's synchronous return. The token comes
// from the browser, so nothing about it is trusted: the stored transaction
// and the gateway's own status lookup are authoritative.
func (r *Reconciler) ReconcileCallback(ctx context.Context, method models.PaymentMethod, token string) (*models.PaymentRecord, error) {
	adapter, err := r.adapter(method)
	if err != nil {
		return nil, err
	}

	txn, err := r.txns.GetTransaction(ctx, token)
	if err != nil {
		return nil, err
	}

	status, err := adapter.LookupStatus(ctx, token)
	if err != nil {
		return nil, err
	}

	return r.commit(ctx, adapter.Method(), txn, status.TransactionID, status.Status, status.Amount, status.OrderRef)
}

// ReconcileWebhook handles the gateway's asynchronous push. The signature is
// verified before anything else happens; an unsigned or tampered payload is
// rejected with zero side effects. A verified payload is trusted server-side
// and cross-checked against the stored transaction.
func (r *Reconciler) ReconcileWebhook(ctx context.Context, method models.PaymentMethod, payload []byte, signature string) (*models.PaymentRecord, error) {
	adapter, err := r.adapter(method)
	if err != nil {
		return nil, err
	}

	if !adapter.VerifySignature(payload, signature) {
		r.logger.LogSecurity("WEBHOOK", fmt.Sprintf("Invalid %s webhook signature rejected", method))
		return nil, fmt.Errorf("%w: webhook signature mismatch", models.ErrIntegrity)
	}

	var hook models.GatewayWebhook
	if err := json.Unmarshal(payload, &hook); err != nil {
		return nil, fmt.Errorf("%w: malformed webhook payload", models.ErrValidation)
	}

	txn, err := r.txns.GetTransaction(ctx, hook.Token)
	if err != nil {
		return nil, err
	}

	return r.commit(ctx, adapter.Method(), txn, hook.TransactionID, normalizeStatus(hook.Status), hook.Amount, hook.OrderRef)
}

// commit is the shared confirmation tail: idempotency check, mismatch
// checks, then the ledger write.
func (r *Reconciler) commit(ctx context.Context, method models.PaymentMethod, txn *models.GatewayTransaction, externalTxID, status string, amount float64, orderRef string) (*models.PaymentRecord, error) {
	if externalTxID != "" {
		existing, err := r.ledger.GetByExternalTransactionID(ctx, externalTxID)
		if err == nil {
			r.logger.LogGateway(string(method), "RECONCILE",
				fmt.Sprintf("Transaction %s already recorded as %s", externalTxID, existing.PaymentID))
			return existing, nil
		}
		if !errors.Is(err, models.ErrNotFound) {
			return nil, err
		}
	}

	if orderRef != "" && orderRef != txn.ReservationID {
		r.logger.LogSecurity("RECONCILE",
			fmt.Sprintf("Order mismatch for token %s: gateway says %s, initiated for %s", txn.Token, orderRef, txn.ReservationID))
		return nil, fmt.Errorf("%w: order reference mismatch", models.ErrIntegrity)
	}
	// Sub-cent tolerance: adapters round-trip amounts through integer cents,
	// so the gateway's figure can differ from the stored one by float noise.
	if math.Abs(amount-txn.Amount) >= 0.005 {
		r.logger.LogSecurity("RECONCILE",
			fmt.Sprintf("Amount mismatch for token %s: gateway says %.2f, initiated for %.2f", txn.Token, amount, txn.Amount))
		return nil, fmt.Errorf("%w: amount mismatch", models.ErrIntegrity)
	}

	if status != "completed" {
		return nil, fmt.Errorf("%w: gateway reports %q", models.ErrPaymentIncomplete, status)
	}

	record, err := r.ledger.RecordPayment(ctx, txn.ReservationID, method, amount, externalTxID)
	if err != nil {
		return nil, err
	}

	r.logger.LogGateway(string(method), "RECONCILE",
		fmt.Sprintf("Recorded %.2f against reservation %s (%s)", amount, txn.ReservationID, externalTxID))
	return record, nil
}
