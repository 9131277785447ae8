package status

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/caselink/voice-call-service/internal/domain"
	pkgredis "github.com/caselink/voice-call-service/pkg/redis"
)

// StateStore holds the authoritative in-flight status per call id. The
// database remains the durable record; the store serves hot reads and keeps
// replicas consistent when backed by Redis.
type StateStore interface {
	Get(ctx context.Context, callID string) (domain.CallStatus, bool, error)
	Set(ctx context.Context, callID string, status domain.CallStatus) error
	Delete(ctx context.Context, callID string) error
}

// MemoryStore is the single-process StateStore.
type MemoryStore struct {
	mu    sync.RWMutex
	state map[string]domain.CallStatus
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: make(map[string]domain.CallStatus)}
}

func (s *MemoryStore) Get(_ context.Context, callID string) (domain.CallStatus, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.state[callID]
	return st, ok, nil
}

func (s *MemoryStore) Set(_ context.Context, callID string, status domain.CallStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state[callID] = status
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.state, callID)
	return nil
}

// RedisStore is the StateStore for multi-instance deployments. Entries
// expire after TTL so abandoned call ids cannot accumulate.
type RedisStore struct {
	redis pkgredis.RedisServiceInterface
	ttl   time.Duration
}

// NewRedisStore creates a Redis-backed store. ttl <= 0 defaults to 24h.
func NewRedisStore(svc pkgredis.RedisServiceInterface, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{redis: svc, ttl: ttl}
}

func (s *RedisStore) Get(ctx context.Context, callID string) (domain.CallStatus, bool, error) {
	key := s.redis.GenerateKey(pkgredis.CALL_STATUS, callID)
	val, err := s.redis.GetValue(ctx, key)
	if err != nil {
		if errors.Is(err, pkgredis.ErrKeyNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read call status: %w", err)
	}
	return domain.CallStatus(val), true, nil
}

func (s *RedisStore) Set(ctx context.Context, callID string, status domain.CallStatus) error {
	key := s.redis.GenerateKey(pkgredis.CALL_STATUS, callID)
	if err := s.redis.SetValue(ctx, key, string(status), s.ttl); err != nil {
		return fmt.Errorf("failed to write call status: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, callID string) error {
	key := s.redis.GenerateKey(pkgredis.CALL_STATUS, callID)
	if err := s.redis.DelValue(ctx, key); err != nil {
		return fmt.Errorf("failed to delete call status: %w", err)
	}
	return nil
}
