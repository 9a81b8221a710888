package otp

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

const (
	// CodeLength is the number of decimal digits in a code.
	CodeLength = 6
	// MaxAttempts wrong guesses burn the live code.
	MaxAttempts = 5
)

// Store holds at most one live code per email. Consume succeeds once per
// issued code, only before the code expires, and only while fewer than
// MaxAttempts wrong codes were presented for it.
type Store interface {
	Save(ctx context.Context, email, code string) error
	Consume(ctx context.Context, email, code string) (bool, error)
}

// GenerateCode returns a uniformly random numeric code of CodeLength digits.
func GenerateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CodeLength; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

func key(email string) string {
	return "otp:" + strings.ToLower(strings.TrimSpace(email))
}

func attemptsKey(email string) string {
	return "otp:attempts:" + strings.ToLower(strings.TrimSpace(email))
}

// consumeScript deletes the code when it matches. A miss increments a failure
// counter that shares the code's expiry and burns the code at ARGV[2] misses.
var consumeScript = redis.NewScript(`
local stored = redis.call("GET", KEYS[1])
if not stored then
	return 0
end
if stored == ARGV[1] then
	redis.call("DEL", KEYS[1], KEYS[2])
	return 1
end
local n = redis.call("INCR", KEYS[2])
if n == 1 then
	local ttl = redis.call("PTTL", KEYS[1])
	if ttl > 0 then
		redis.call("PEXPIRE", KEYS[2], ttl)
	end
end
if n >= tonumber(ARGV[2]) then
	redis.call("DEL", KEYS[1], KEYS[2])
end
return 0
`)

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Save(ctx context.Context, email, code string) error {
	_, err := s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key(email), code, s.ttl)
		p.Del(ctx, attemptsKey(email))
		return nil
	})
	if err != nil {
		return fmt.Errorf("otp: save: %w", err)
	}
	return nil
}

func (s *RedisStore) Consume(ctx context.Context, email, code string) (bool, error) {
	n, err := consumeScript.Run(ctx, s.client, []string{key(email), attemptsKey(email)}, code, MaxAttempts).Int64()
	if err != nil {
		return false, fmt.Errorf("otp: consume: %w", err)
	}
	return n == 1, nil
}

// MemoryStore keeps codes in process memory; use only with a single instance.
type MemoryStore struct {
	mu    sync.Mutex
	codes *lru.LRU[string, *memoryCode]
}

type memoryCode struct {
	code     string
	failures int
}

func NewMemoryStore(size int, ttl time.Duration) *MemoryStore {
	return &MemoryStore{codes: lru.NewLRU[string, *memoryCode](size, nil, ttl)}
}

func (s *MemoryStore) Save(_ context.Context, email, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes.Add(key(email), &memoryCode{code: code})
	return nil
}

func (s *MemoryStore) Consume(_ context.Context, email, code string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(email)
	stored, ok := s.codes.Get(k)
	if !ok {
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(stored.code), []byte(code)) != 1 {
		stored.failures++
		if stored.failures >= MaxAttempts {
			s.codes.Remove(k)
		}
		return false, nil
	}
	s.codes.Remove(k)
	return true, nil
}
