package gateway

import (
	"context"
	"fmt"

	"ms-grounds/internal/config"
	"ms-grounds/internal/logger"
	"ms-grounds/internal/models"

	stripeapi "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/paymentintent"
)

// Stripe drives checkouts through PaymentIntents. Amounts are in cents on
// the wire; the webhook uses the same HMAC scheme as the other gateway, so
// the adapter shares verifyHMAC rather than Stripe's own event signing.
type Stripe struct {
	webhookSecret string
	logger        *logger.Logger
}

func NewStripe(cfg config.StripeConfig, log *logger.Logger) *Stripe {
	stripeapi.Key = cfg.SecretKey
	return &Stripe{
		webhookSecret: cfg.WebhookSecret,
		logger:        log,
	}
}

func (s *Stripe) Method() models.PaymentMethod {
	return models.MethodStripe
}

// InitiatePayment creates a PaymentIntent for the remaining amount and hands
// back its client secret as the checkout token.
func (s *Stripe) InitiatePayment(ctx context.Context, orderRef string, amount float64, returnURL string) (*models.GatewayInitiation, error) {
	amountInCents := amountToCents(amount)

	params := &stripeapi.PaymentIntentParams{
		Amount:   stripeapi.Int64(amountInCents),
		Currency: stripeapi.String(string(stripeapi.CurrencyLKR)),
		AutomaticPaymentMethods: &stripeapi.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripeapi.Bool(true),
		},
	}
	params.Context = ctx
	params.AddMetadata("reservation_id", orderRef)
	params.AddMetadata("return_url", returnURL)

	intent, err := paymentintent.New(params)
	if err != nil {
		s.logger.LogGateway("stripe", "INITIATE", fmt.Sprintf("PaymentIntent creation failed: %v", err))
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	s.logger.LogGateway("stripe", "INITIATE", fmt.Sprintf("PaymentIntent %s created for %s", intent.ID, orderRef))
	return &models.GatewayInitiation{
		PaymentURL: fmt.Sprintf("https://checkout.stripe.com/pay/%s", intent.ClientSecret),
		Token:      intent.ID,
	}, nil
}

// LookupStatus fetches the PaymentIntent's authoritative state.
func (s *Stripe) LookupStatus(ctx context.Context, token string) (*models.GatewayStatus, error) {
	params := &stripeapi.PaymentIntentParams{}
	params.Context = ctx

	intent, err := paymentintent.Get(token, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrGatewayUnavailable, err)
	}

	return &models.GatewayStatus{
		OrderRef:      intent.Metadata["reservation_id"],
		TransactionID: intent.ID,
		Status:        normalizeStatus(string(intent.Status)),
		Amount:        float64(intent.Amount) / 100,
	}, nil
}

// VerifySignature checks the webhook HMAC against the endpoint secret.
func (s *Stripe) VerifySignature(payload []byte, signature string) bool {
	return verifyHMAC(s.webhookSecret, payload, signature)
}
