package sessions

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on Redis so multiple gateway instances can
// share streaming sessions. Session metadata lives in a hash, the event log
// in a Redis stream; both expire together via the TTL.
type RedisStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// RedisConfig configures a RedisStore.
type RedisConfig struct {
	// Addr like "localhost:6379".
	Addr string
	// KeyPrefix namespaces all keys.
	KeyPrefix string
	// TTL bounds idle session lifetime.
	TTL time.Duration
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	if cfg.Addr == "" {
		cfg.Addr = "localhost:6379"
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "uptimecheck:sessions:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Minute
	}

	cl := redis.NewClient(&redis.Options{Addr: cfg.Addr})
	if err := cl.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStore{client: cl, keyPrefix: cfg.KeyPrefix, ttl: cfg.TTL}, nil
}

func (s *RedisStore) metaKey(id string) string   { return s.keyPrefix + "meta:" + id }
func (s *RedisStore) streamKey(id string) string { return s.keyPrefix + "stream:" + id }

func (s *RedisStore) Create(ctx context.Context, protocolVersion string) (*Session, error) {
	id := uuid.NewString()
	now := time.Now().UTC()

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.metaKey(id), map[string]any{
		"protocol_version": protocolVersion,
		"created_at":       now.Format(time.RFC3339Nano),
	})
	pipe.Expire(ctx, s.metaKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	return &Session{ID: id, ProtocolVersion: protocolVersion, CreatedAt: now}, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	vals, err := s.client.HGetAll(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if len(vals) == 0 {
		return nil, ErrSessionNotFound
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, vals["created_at"])
	sess := &Session{
		ID:              id,
		ProtocolVersion: vals["protocol_version"],
		CreatedAt:       createdAt,
	}

	// Last delivered event id, if any events exist.
	msgs, err := s.client.XRevRangeN(ctx, s.streamKey(id), "+", "-", 1).Result()
	if err == nil && len(msgs) > 0 {
		sess.LastEventID = msgs[0].ID
	}

	_ = s.Touch(ctx, id)
	return sess, nil
}

func (s *RedisStore) AppendEvent(ctx context.Context, id string, data []byte) (string, error) {
	exists, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}
	if exists == 0 {
		return "", ErrSessionNotFound
	}

	eventID, err := s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: s.streamKey(id),
		Values: map[string]any{"d": data},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("append event: %w", err)
	}

	_ = s.Touch(ctx, id)
	return eventID, nil
}

func (s *RedisStore) ReplaySince(ctx context.Context, id string, lastEventID string) ([]Event, error) {
	exists, err := s.client.Exists(ctx, s.metaKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}
	if exists == 0 {
		return nil, ErrSessionNotFound
	}

	start := "-"
	if lastEventID != "" {
		// "(" makes the range exclusive of lastEventID itself.
		start = "(" + lastEventID
	}
	msgs, err := s.client.XRange(ctx, s.streamKey(id), start, "+").Result()
	if err != nil {
		return nil, fmt.Errorf("replay events: %w", err)
	}

	events := make([]Event, 0, len(msgs))
	for _, m := range msgs {
		d, _ := m.Values["d"].(string)
		events = append(events, Event{ID: m.ID, Data: []byte(d)})
	}

	_ = s.Touch(ctx, id)
	return events, nil
}

func (s *RedisStore) Touch(ctx context.Context, id string) error {
	pipe := s.client.Pipeline()
	pipe.Expire(ctx, s.metaKey(id), s.ttl)
	pipe.Expire(ctx, s.streamKey(id), s.ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	n, err := s.client.Del(ctx, s.metaKey(id), s.streamKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int, error) {
	var count int
	iter := s.client.Scan(ctx, 0, s.keyPrefix+"meta:*", 100).Iterator()
	for iter.Next(ctx) {
		count++
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return count, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
