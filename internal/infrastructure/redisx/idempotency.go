package redisx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

const pendingMarker = "pending"

// ClaimState is the outcome of claiming an idempotency key
type ClaimState int

const (
	// ClaimAcquired means the caller owns the key and must Complete or Release it
	ClaimAcquired ClaimState = iota
	// ClaimInProgress means another request holds the key
	ClaimInProgress
	// ClaimCompleted means a response was stored for the key
	ClaimCompleted
)

// StoredResponse is the response replayed for a completed key
type StoredResponse struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

// IdempotencyStore keeps order-create keys in Redis
type IdempotencyStore struct {
	rdb redis.Cmdable
}

func NewIdempotencyStore(rdb redis.Cmdable) *IdempotencyStore {
	return &IdempotencyStore{rdb: rdb}
}

func idemKey(key string) string { return fmt.Sprintf(KeyIdemOrderCreate, key) }

// Claim marks key as pending, or reports who already has it
func (s *IdempotencyStore) Claim(ctx context.Context, key string) (ClaimState, *StoredResponse, error) {
	ok, err := s.rdb.SetNX(ctx, idemKey(key), pendingMarker, TTLIdempotency).Result()
	if err != nil {
		return 0, nil, fmt.Errorf("claim idempotency key: %w", err)
	}
	if ok {
		return ClaimAcquired, nil, nil
	}

	val, err := s.rdb.Get(ctx, idemKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET
		return s.Claim(ctx, key)
	}
	if err != nil {
		return 0, nil, fmt.Errorf("read idempotency key: %w", err)
	}
	if val == pendingMarker {
		return ClaimInProgress, nil, nil
	}

	var resp StoredResponse
	if err := json.Unmarshal([]byte(val), &resp); err != nil {
		return 0, nil, fmt.Errorf("decode stored response: %w", err)
	}
	return ClaimCompleted, &resp, nil
}

// Complete stores the response to replay for key
func (s *IdempotencyStore) Complete(ctx context.Context, key string, resp StoredResponse) error {
	b, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, idemKey(key), b, TTLIdempotency).Err()
}

// Release drops the claim so the request can be retried
func (s *IdempotencyStore) Release(ctx context.Context, key string) error {
	return s.rdb.Del(ctx, idemKey(key)).Err()
}
