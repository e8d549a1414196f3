package utils

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"time"
)

// GeneratePaymentID builds a sortable payment identifier. Reservation ids use
// uuid.NewString; payments keep the pay_ prefix so ledger rows are easy to
// spot in logs.
func GeneratePaymentID() string {
	timestamp := time.Now().Unix()
	randomNum, _ := rand.Int(rand.Reader, big.NewInt(999999))
	return fmt.Sprintf("pay_%d_%06d", timestamp, randomNum.Int64())
}
