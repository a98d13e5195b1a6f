package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ledgerflow/backend/internal/domain/bookkeeping"
)

// RedisTransmissionStore implements bookkeeping.TransmissionStore using Redis.
// It is shared by every instance, so one event is transmitted once across the deployment.
//
// Keys: {prefix}claim:{event} holds an expiring claim, {prefix}done:{event} the voucher reference.
type RedisTransmissionStore struct {
	client    redis.UniversalClient
	keyPrefix string
}

// NewRedisClient connects to Redis and verifies the connection.
func NewRedisClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return client, nil
}

// NewRedisTransmissionStore creates a store over an existing client
func NewRedisTransmissionStore(client redis.UniversalClient, keyPrefix string) *RedisTransmissionStore {
	if keyPrefix == "" {
		keyPrefix = "ledgerflow:transmission:"
	}
	return &RedisTransmissionStore{client: client, keyPrefix: keyPrefix}
}

func (s *RedisTransmissionStore) claimKey(eventID string) string {
	return s.keyPrefix + "claim:" + eventID
}

func (s *RedisTransmissionStore) doneKey(eventID string) string {
	return s.keyPrefix + "done:" + eventID
}

// Claim takes the transmission of eventID with SETNX. The claim expires after ttl
// so a crashed worker does not block the event forever.
func (s *RedisTransmissionStore) Claim(ctx context.Context, eventID string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.claimKey(eventID), time.Now().UTC().Format(time.RFC3339), ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim transmission %s: %w", eventID, err)
	}
	return ok, nil
}

// Complete records the voucher reference and drops the claim in one transaction.
func (s *RedisTransmissionStore) Complete(ctx context.Context, eventID, voucherRef string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, s.doneKey(eventID), voucherRef, 0)
		pipe.Del(ctx, s.claimKey(eventID))
		return nil
	})
	if err != nil {
		return fmt.Errorf("complete transmission %s: %w", eventID, err)
	}
	return nil
}

// Release drops the claim after a failed transmission.
func (s *RedisTransmissionStore) Release(ctx context.Context, eventID string) error {
	if err := s.client.Del(ctx, s.claimKey(eventID)).Err(); err != nil {
		return fmt.Errorf("release transmission %s: %w", eventID, err)
	}
	return nil
}

// VoucherRef returns the stored reference of a completed transmission.
func (s *RedisTransmissionStore) VoucherRef(ctx context.Context, eventID string) (string, bool, error) {
	ref, err := s.client.Get(ctx, s.doneKey(eventID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load transmission %s: %w", eventID, err)
	}
	return ref, true, nil
}

// Close closes the Redis client
func (s *RedisTransmissionStore) Close() error {
	return s.client.Close()
}

var _ bookkeeping.TransmissionStore = (*RedisTransmissionStore)(nil)
