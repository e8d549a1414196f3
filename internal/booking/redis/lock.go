package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"log"

	"github.com/go-redis/redis/v8"
)

// Redis serializes reservation creation per ground and date. The lock is
// advisory: the database transaction still re-checks overlap, the lock just
// keeps two racing check-then-insert sequences from interleaving.
type Redis struct {
	Client *redis.Client
	Logger *log.Logger
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		Client: client,
		Logger: log.Default(),
	}
}

// getSlotLockDuration returns the lock TTL from environment variables or the
// default value. The TTL is a crash guard; normal flow unlocks explicitly.
func (r *Redis) getSlotLockDuration() time.Duration {
	defaultDuration := 30 * time.Second

	lockTTLStr := os.Getenv("SLOT_LOCK_TTL_SECONDS")
	if lockTTLStr == "" {
		return defaultDuration
	}

	lockTTLSec, err := strconv.Atoi(lockTTLStr)
	if err != nil {
		r.Logger.Println("REDIS: Invalid SLOT_LOCK_TTL_SECONDS value '" + lockTTLStr + "', using default 30 seconds")
		return defaultDuration
	}

	return time.Duration(lockTTLSec) * time.Second
}

func slotKey(groundID, date string) string {
	return fmt.Sprintf("slot_lock:%s:%s", groundID, date)
}

// LockSlot acquires the ground/date lock, waiting out a competing holder
// rather than failing: two disjoint windows on the same date must both
// succeed, so lock contention alone is never a rejection.
func (r *Redis) LockSlot(ctx context.Context, groundID, date, holder string) (bool, error) {
	key := slotKey(groundID, date)
	lockDuration := r.getSlotLockDuration()

	deadline := time.Now().Add(5 * time.Second)
	for {
		ok, err := r.Client.SetNX(ctx, key, holder, lockDuration).Result()
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
		if time.Now().After(deadline) {
			return false, nil
		}
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// UnlockSlot releases the lock if this holder still owns it.
func (r *Redis) UnlockSlot(ctx context.Context, groundID, date, holder string) error {
	key := slotKey(groundID, date)
	val, err := r.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil // already released or expired
	}
	if err != nil {
		return err
	}
	if val == holder {
		_, err := r.Client.Del(ctx, key).Result()
		return err
	}
	return nil
}
