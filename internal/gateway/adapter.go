package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"math"
	"strings"

	"ms-grounds/internal/models"
)

// Adapter is the one contract both external gateways sit behind. The two
// integrations differ in wire details but not in shape: initiate a checkout,
// look a transaction up by token, verify a webhook signature.
type Adapter interface {
	Method() models.PaymentMethod
	InitiatePayment(ctx context.Context, orderRef string, amount float64, returnURL string) (*models.GatewayInitiation, error)
	LookupStatus(ctx context.Context, token string) (*models.GatewayStatus, error)
	VerifySignature(payload []byte, signature string) bool
}

// verifyHMAC checks a hex HMAC-SHA256 of the raw payload against the
// header-supplied signature. Comparison is case-insensitive (gateways differ
// on hex casing) and constant-time.
func verifyHMAC(secret string, payload []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected))
}

// amountToCents converts a currency amount to integer cents. Rounding, not
// truncation: 4.35*100 is 434.99999... in binary floats, and truncating it
// would bill one cent short of the stored amount.
func amountToCents(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// normalizeStatus folds gateway status vocabularies into the three the
// reconciler understands.
func normalizeStatus(raw string) string {
	switch strings.ToLower(raw) {
	case "completed", "succeeded", "success", "paid", "received":
		return "completed"
	case "failed", "cancelled", "canceled", "chargedback", "expired":
		return "failed"
	default:
		return "pending"
	}
}
