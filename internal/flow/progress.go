// Package flow drives a respondent through a questionnaire step by step:
// welcome, one step per question, then submission. Progress is persisted after
// every transition so a reload can resume where it left off.
package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"leadcapture/pkg/domain"
)

// Progress captures where a respondent is and what they answered so far.
type Progress struct {
	Step    int                           `json:"step"`
	Answers map[string]domain.AnswerValue `json:"answers"`
}

// ProgressStore persists per-session progress with a bounded lifetime.
type ProgressStore interface {
	Save(ctx context.Context, sessionID string, p Progress) error
	Load(ctx context.Context, sessionID string) (Progress, bool, error)
	Clear(ctx context.Context, sessionID string) error
}

// RedisProgressStore keeps progress in Redis with a TTL.
type RedisProgressStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisProgressStore builds a progress store on an existing Redis client.
// A non-positive TTL defaults to 24 hours.
func NewRedisProgressStore(client *redis.Client, prefix string, ttl time.Duration) *RedisProgressStore {
	if prefix == "" {
		prefix = "leadcapture:progress"
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisProgressStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisProgressStore) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// Save writes progress, refreshing the TTL.
func (s *RedisProgressStore) Save(ctx context.Context, sessionID string, p Progress) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}
	if err := s.client.Set(ctx, s.key(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save progress: %w", err)
	}
	return nil
}

// Load reads progress; ok is false when none is stored or it expired.
func (s *RedisProgressStore) Load(ctx context.Context, sessionID string) (Progress, bool, error) {
	data, err := s.client.Get(ctx, s.key(sessionID)).Bytes()
	if err == redis.Nil {
		return Progress{}, false, nil
	}
	if err != nil {
		return Progress{}, false, fmt.Errorf("load progress: %w", err)
	}
	var p Progress
	if err := json.Unmarshal(data, &p); err != nil {
		return Progress{}, false, fmt.Errorf("decode progress: %w", err)
	}
	return p, true, nil
}

// Clear drops stored progress, typically after completion.
func (s *RedisProgressStore) Clear(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil && err != redis.Nil {
		return fmt.Errorf("clear progress: %w", err)
	}
	return nil
}

// MemoryProgressStore keeps progress in-process for tests.
type MemoryProgressStore struct {
	mu      sync.Mutex
	entries map[string]Progress
}

// NewMemoryProgressStore initializes an empty store.
func NewMemoryProgressStore() *MemoryProgressStore {
	return &MemoryProgressStore{entries: make(map[string]Progress)}
}

// Save stores progress.
func (s *MemoryProgressStore) Save(_ context.Context, sessionID string, p Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[sessionID] = p
	return nil
}

// Load reads progress.
func (s *MemoryProgressStore) Load(_ context.Context, sessionID string) (Progress, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.entries[sessionID]
	return p, ok, nil
}

// Clear drops progress.
func (s *MemoryProgressStore) Clear(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, sessionID)
	return nil
}
