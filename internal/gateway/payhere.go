package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"

	"ms-grounds/internal/config"
	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"
)

// PayHere talks to the PayHere merchant API over plain HTTP. The http.Client
// carries the timeout; a slow or down gateway surfaces as
// ErrGatewayUnavailable, never a hang.
type PayHere struct {
	merchantID    string
	secret        string
	webhookSecret string
	baseURL       string
	client        *http.Client
	logger        *logger.Logger
}

func NewPayHere(cfg config.PayHereConfig, log *logger.Logger) *PayHere {
	return &PayHere{
		merchantID:    cfg.MerchantID,
		secret:        cfg.Secret,
		webhookSecret: cfg.WebhookSecret,
		baseURL:       cfg.BaseURL,
		client:        &http.Client{Timeout: cfg.Timeout},
		logger:        log,
	}
}

func (p *PayHere) Method() models.PaymentMethod {
	return models.MethodPayHere
}

type payHereCheckoutRequest struct {
	MerchantID string  `json:"merchant_id"`
	OrderID    string  `json:"order_id"`
	Amount     float64 `json:"amount"`
	Currency   string  `json:"currency"`
	ReturnURL  string  `json:"return_url"`
}

type payHereCheckoutResponse struct {
	PaymentURL string `json:"payment_url"`
	Token      string `json:"token"`
}

// InitiatePayment opens a hosted checkout for the remaining amount.
func (p *PayHere) InitiatePayment(ctx context.Context, orderRef string, amount float64, returnURL string) (*models.GatewayInitiation, error) {
	body, err := json.Marshal(payHereCheckoutRequest{
		MerchantID: p.merchantID,
		OrderID:    orderRef,
		Amount:     amount,
		Currency:   "LKR",
		ReturnURL:  returnURL,
	})
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/merchant/v1/checkout", p.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		p.logger.LogGateway("payhere", "INITIATE", fmt.Sprintf("Checkout request failed: %v", err))
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		p.logger.LogGateway("payhere", "INITIATE", fmt.Sprintf("Checkout returned status %d", resp.StatusCode))
		return nil, fmt.Errorf("%w: status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}

	var checkout payHereCheckoutResponse
	if err := json.NewDecoder(resp.Body).Decode(&checkout); err != nil {
		return nil, fmt.Errorf("failed to decode checkout response: %w", err)
	}
	if checkout.Token == "" {
		return nil, errors.New("checkout response missing token")
	}

	p.logger.LogGateway("payhere", "INITIATE", fmt.Sprintf("Checkout opened for %s, token %s", orderRef, checkout.Token))
	return &models.GatewayInitiation{
		PaymentURL: checkout.PaymentURL,
		Token:      checkout.Token,
	}, nil
}

type payHereStatusResponse struct {
	OrderID   string  `json:"order_id"`
	PaymentID string  `json:"payment_id"`
	Status    string  `json:"status"`
	Amount    float64 `json:"amount"`
}

// LookupStatus re-queries PayHere for the transaction's authoritative state.
func (p *PayHere) LookupStatus(ctx context.Context, token string) (*models.GatewayStatus, error) {
	url := fmt.Sprintf("%s/merchant/v1/status/%s", p.baseURL, token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+p.secret)

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: gateway token %s", models.ErrNotFound, token)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", models.ErrGatewayUnavailable, resp.StatusCode)
	}

	var status payHereStatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &models.GatewayStatus{
		OrderRef:      status.OrderID,
		TransactionID: status.PaymentID,
		Status:        normalizeStatus(status.Status),
		Amount:        status.Amount,
	}, nil
}

// VerifySignature checks the webhook HMAC. The secret never appears in logs.
func (p *PayHere) VerifySignature(payload []byte, signature string) bool {
	secret := p.webhookSecret
	if secret == "" {
		secret = os.Getenv("PAYHERE_WEBHOOK_SECRET")
	}
	return verifyHMAC(secret, payload, signature)
}
