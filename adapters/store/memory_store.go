package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/superpool/walletauth/core"
)

// MemoryStore is an in-memory implementation of the store interfaces,
// used by tests and single-node development setups.
type MemoryStore struct {
	mu                sync.RWMutex
	nonces            map[string]core.NonceRecord
	users             map[string]core.UserProfile
	devices           map[string]core.DeviceApproval
	invalidatedTokens map[string]time.Time
}

// NewMemoryStore creates a new in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nonces:            make(map[string]core.NonceRecord),
		users:             make(map[string]core.UserProfile),
		devices:           make(map[string]core.DeviceApproval),
		invalidatedTokens: make(map[string]time.Time),
	}
}

// Put stores the nonce record, replacing any prior one for the address.
func (s *MemoryStore) Put(ctx context.Context, walletAddress string, record *core.NonceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nonces[strings.ToLower(walletAddress)] = *record
	return nil
}

// Get returns the nonce record for the address, or (nil, nil) when absent.
func (s *MemoryStore) Get(ctx context.Context, walletAddress string) (*core.NonceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.nonces[strings.ToLower(walletAddress)]
	if !ok {
		return nil, nil
	}
	return &record, nil
}

// Delete removes the nonce record if present and reports whether a
// record was actually removed.
func (s *MemoryStore) Delete(ctx context.Context, walletAddress string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := strings.ToLower(walletAddress)
	_, ok := s.nonces[key]
	delete(s.nonces, key)
	return ok, nil
}

// GetUser returns the profile for the address, or (nil, nil) when absent.
func (s *MemoryStore) GetUser(ctx context.Context, walletAddress string) (*core.UserProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.users[strings.ToLower(walletAddress)]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

// PutUser stores the profile.
func (s *MemoryStore) PutUser(ctx context.Context, profile *core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[strings.ToLower(profile.WalletAddress)] = *profile
	return nil
}

// GetDevice returns the approval for the device id, or (nil, nil) when absent.
func (s *MemoryStore) GetDevice(ctx context.Context, deviceID string) (*core.DeviceApproval, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	approval, ok := s.devices[deviceID]
	if !ok {
		return nil, nil
	}
	return &approval, nil
}

// PutDevice stores the approval record.
func (s *MemoryStore) PutDevice(ctx context.Context, approval *core.DeviceApproval) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.devices[approval.DeviceID] = *approval
	return nil
}

// InvalidateToken marks a token as invalidated
func (s *MemoryStore) InvalidateToken(ctx context.Context, tokenID string, expiry time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invalidatedTokens[tokenID] = time.Now().Add(expiry)
	return nil
}

// IsTokenInvalidated checks if a token is invalidated
func (s *MemoryStore) IsTokenInvalidated(ctx context.Context, tokenID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	expiryTime, ok := s.invalidatedTokens[tokenID]
	if !ok {
		return false, nil
	}
	return time.Now().Before(expiryTime), nil
}
