package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps session state in Redis with a TTL, so sessions survive
// process restarts and are shared across instances. Expired sessions simply
// restart from the greeting.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed session store.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if rdb == nil {
		panic("dialogue: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{
		redis:  rdb,
		ttl:    ttl,
		tracer: otel.Tracer("colectiva.internal.dialogue.sessions"),
	}
}

var _ SessionStore = (*RedisStore)(nil)

func sessionKey(key string) string {
	return fmt.Sprintf("session:%s", key)
}

func (s *RedisStore) Get(ctx context.Context, key string) (State, bool, error) {
	ctx, span := s.tracer.Start(ctx, "dialogue.load_session")
	defer span.End()

	data, err := s.redis.Get(ctx, sessionKey(key)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return State{}, false, nil
		}
		span.RecordError(err)
		return State{}, false, fmt.Errorf("dialogue: load session: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		// Corrupted payloads are recoverable: report absent so the engine
		// restarts the conversation.
		span.RecordError(err)
		return State{}, false, nil
	}
	return state, true, nil
}

func (s *RedisStore) Set(ctx context.Context, key string, state State) error {
	ctx, span := s.tracer.Start(ctx, "dialogue.save_session")
	defer span.End()

	data, err := json.Marshal(state)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialogue: marshal session: %w", err)
	}
	if err := s.redis.Set(ctx, sessionKey(key), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialogue: persist session: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, key string) error {
	ctx, span := s.tracer.Start(ctx, "dialogue.delete_session")
	defer span.End()

	if err := s.redis.Del(ctx, sessionKey(key)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("dialogue: delete session: %w", err)
	}
	return nil
}
