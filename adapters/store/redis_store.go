package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/superpool/walletauth/core"
)

// RedisStore backs every durable collection with Redis: pending
// authentication nonces, user profiles, approved devices and
// invalidated session tokens. Records are stored as JSON documents.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a new Redis store
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: "walletauth:",
	}
}

func (s *RedisStore) nonceKey(walletAddress string) string {
	return s.prefix + "nonce:" + strings.ToLower(walletAddress)
}

func (s *RedisStore) userKey(walletAddress string) string {
	return s.prefix + "user:" + strings.ToLower(walletAddress)
}

func (s *RedisStore) deviceKey(deviceID string) string {
	return s.prefix + "device:" + deviceID
}

// Put stores the nonce record, replacing any prior one for the address.
// The key carries a TTL slightly past the record's own expiry as a
// cleanup backstop; the handler still enforces ExpiresAt itself.
func (s *RedisStore) Put(ctx context.Context, walletAddress string, record *core.NonceRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal nonce record: %w", err)
	}

	ttl := time.Until(record.ExpiresAt) + time.Minute
	if err := s.client.Set(ctx, s.nonceKey(walletAddress), payload, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store nonce: %w", err)
	}
	return nil
}

// Get returns the nonce record for the address, or (nil, nil) when absent.
func (s *RedisStore) Get(ctx context.Context, walletAddress string) (*core.NonceRecord, error) {
	payload, err := s.client.Get(ctx, s.nonceKey(walletAddress)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load nonce: %w", err)
	}

	var record core.NonceRecord
	if err := json.Unmarshal(payload, &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal nonce record: %w", err)
	}
	return &record, nil
}

// Delete removes the nonce record if present and reports whether a
// record was actually removed.
func (s *RedisStore) Delete(ctx context.Context, walletAddress string) (bool, error) {
	removed, err := s.client.Del(ctx, s.nonceKey(walletAddress)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to delete nonce: %w", err)
	}
	return removed > 0, nil
}

// GetUser returns the profile for the address, or (nil, nil) when absent.
func (s *RedisStore) GetUser(ctx context.Context, walletAddress string) (*core.UserProfile, error) {
	payload, err := s.client.Get(ctx, s.userKey(walletAddress)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}

	var profile core.UserProfile
	if err := json.Unmarshal(payload, &profile); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user profile: %w", err)
	}
	return &profile, nil
}

// PutUser stores the profile without expiry.
func (s *RedisStore) PutUser(ctx context.Context, profile *core.UserProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return fmt.Errorf("failed to marshal user profile: %w", err)
	}
	if err := s.client.Set(ctx, s.userKey(profile.WalletAddress), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store user profile: %w", err)
	}
	return nil
}

// GetDevice returns the approval record for the device id, or (nil, nil)
// when the device has never been approved.
func (s *RedisStore) GetDevice(ctx context.Context, deviceID string) (*core.DeviceApproval, error) {
	payload, err := s.client.Get(ctx, s.deviceKey(deviceID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load device approval: %w", err)
	}

	var approval core.DeviceApproval
	if err := json.Unmarshal(payload, &approval); err != nil {
		return nil, fmt.Errorf("failed to unmarshal device approval: %w", err)
	}
	return &approval, nil
}

// PutDevice stores the approval record without expiry.
func (s *RedisStore) PutDevice(ctx context.Context, approval *core.DeviceApproval) error {
	payload, err := json.Marshal(approval)
	if err != nil {
		return fmt.Errorf("failed to marshal device approval: %w", err)
	}
	if err := s.client.Set(ctx, s.deviceKey(approval.DeviceID), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store device approval: %w", err)
	}
	return nil
}

// InvalidateToken marks a token as invalidated in Redis
func (s *RedisStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	key := s.prefix + "invalidated:" + tokenID
	if err := s.client.Set(ctx, key, "1", expiry).Err(); err != nil {
		return fmt.Errorf("failed to invalidate token: %w", err)
	}
	return nil
}

// IsTokenInvalidated checks if a token is invalidated in Redis
func (s *RedisStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	key := s.prefix + "invalidated:" + tokenID
	val, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check token invalidation: %w", err)
	}
	return val > 0, nil
}
