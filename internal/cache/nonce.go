package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// NonceStore hands out single-use login nonces
type NonceStore interface {
	// Issue creates a nonce for address, replacing any earlier one.
	Issue(ctx context.Context, address common.Address) (string, error)
	// Consume reports whether nonce is the live nonce for address and
	// invalidates it either way.
	Consume(ctx context.Context, address common.Address, nonce string) (bool, error)
}

func nonceKey(address common.Address) string {
	return "dispatcher:login-nonce:" + strings.ToLower(address.Hex())
}

// RedisConfig connection settings for NewRedisClient
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	Timeout  time.Duration
}

func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: cfg.Timeout,
	})
}

// RedisNonceStore keeps nonces in Redis so any instance can verify a login.
type RedisNonceStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisNonceStore(client *redis.Client, ttl time.Duration) *RedisNonceStore {
	return &RedisNonceStore{client: client, ttl: ttl}
}

func (s *RedisNonceStore) Issue(ctx context.Context, address common.Address) (string, error) {
	nonce := uuid.NewString()
	if err := s.client.Set(ctx, nonceKey(address), nonce, s.ttl).Err(); err != nil {
		return "", err
	}
	return nonce, nil
}

func (s *RedisNonceStore) Consume(ctx context.Context, address common.Address, nonce string) (bool, error) {
	stored, err := s.client.GetDel(ctx, nonceKey(address)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return stored == nonce, nil
}

// HealthCheck pings the server.
func (s *RedisNonceStore) HealthCheck(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis connection failed: %w", err)
	}
	return nil
}

type memoryNonce struct {
	value   string
	expires time.Time
}

// MemoryNonceStore is the single-instance fallback when Redis is not
// configured.
type MemoryNonceStore struct {
	mu     sync.Mutex
	nonces map[string]memoryNonce
	ttl    time.Duration
	now    func() time.Time
}

func NewMemoryNonceStore(ttl time.Duration) *MemoryNonceStore {
	return &MemoryNonceStore{nonces: make(map[string]memoryNonce), ttl: ttl, now: time.Now}
}

func (s *MemoryNonceStore) Issue(_ context.Context, address common.Address) (string, error) {
	nonce := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for k, v := range s.nonces {
		if now.After(v.expires) {
			delete(s.nonces, k)
		}
	}
	s.nonces[nonceKey(address)] = memoryNonce{value: nonce, expires: now.Add(s.ttl)}
	return nonce, nil
}

func (s *MemoryNonceStore) Consume(_ context.Context, address common.Address, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := nonceKey(address)
	stored, ok := s.nonces[key]
	delete(s.nonces, key)
	if !ok || s.now().After(stored.expires) {
		return false, nil
	}
	return stored.value == nonce, nil
}
