package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"ms-grounds/internal/models"

	"github.com/go-redis/redis/v8"
)

// TxnStore keeps the token -> reservation correlation between a checkout
// initiation and its eventual confirmation. Entries expire with the
// checkout, so a stale or replayed token simply isn't found.
type TxnStore interface {
	SaveTransaction(ctx context.Context, txn models.GatewayTransaction) error
	GetTransaction(ctx context.Context, token string) (*models.GatewayTransaction, error)
}

type RedisTxnStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisTxnStore(client *redis.Client, ttl time.Duration) *RedisTxnStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &RedisTxnStore{Client: client, TTL: ttl}
}

func txnKey(token string) string {
	return "gateway_txn:" + token
}

func (s *RedisTxnStore) SaveTransaction(ctx context.Context, txn models.GatewayTransaction) error {
	value, err := json.Marshal(txn)
	if err != nil {
		return err
	}
	return s.Client.Set(ctx, txnKey(txn.Token), value, s.TTL).Err()
}

func (s *RedisTxnStore) GetTransaction(ctx context.Context, token string) (*models.GatewayTransaction, error) {
	value, err := s.Client.Get(ctx, txnKey(token)).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: gateway token %s", models.ErrNotFound, token)
	}
	if err != nil {
		return nil, err
	}

	var txn models.GatewayTransaction
	if err := json.Unmarshal([]byte(value), &txn); err != nil {
		return nil, fmt.Errorf("failed to decode gateway transaction: %w", err)
	}
	return &txn, nil
}
