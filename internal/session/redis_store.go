package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const keyPrefix = "chat_session:"

// RedisStore keeps session metadata as a JSON string and turns as a list,
// both under the same sliding TTL.
type RedisStore struct {
	redis  *redis.Client
	tracer trace.Tracer
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		redis:  client,
		tracer: otel.Tracer("medassist.internal.session"),
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *RedisStore) Create(ctx context.Context, meta Meta) (string, error) {
	ctx, span := s.tracer.Start(ctx, "session.create")
	defer span.End()

	if strings.TrimSpace(meta.ID) == "" {
		meta.ID = NewID()
	}
	now := s.now()
	meta.CreatedAt, meta.UpdatedAt = now, now

	data, err := json.Marshal(meta)
	if err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("session: marshal meta: %w", err)
	}
	if err := s.redis.Set(ctx, metaKey(meta.ID), data, s.ttl).Err(); err != nil {
		span.RecordError(err)
		return "", fmt.Errorf("session: persist meta: %w", err)
	}
	span.SetAttributes(attribute.String("session.role", meta.Role))
	return meta.ID, nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Meta, error) {
	ctx, span := s.tracer.Start(ctx, "session.get")
	defer span.End()

	meta, err := s.loadMeta(ctx, id)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := s.touch(ctx, id); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return meta, nil
}

func (s *RedisStore) Append(ctx context.Context, id string, turns ...Turn) error {
	ctx, span := s.tracer.Start(ctx, "session.append")
	defer span.End()

	if len(turns) == 0 {
		return nil
	}
	exists, err := s.redis.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: check session: %w", err)
	}
	if exists == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	values := make([]any, 0, len(turns))
	for _, t := range stamp(turns, s.now()) {
		data, err := json.Marshal(t)
		if err != nil {
			span.RecordError(err)
			return fmt.Errorf("session: marshal turn: %w", err)
		}
		values = append(values, data)
	}

	pipe := s.redis.TxPipeline()
	pipe.RPush(ctx, turnsKey(id), values...)
	pipe.Expire(ctx, turnsKey(id), s.ttl)
	pipe.Expire(ctx, metaKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: append turns: %w", err)
	}
	span.SetAttributes(attribute.Int("session.turns_appended", len(turns)))
	return nil
}

func (s *RedisStore) History(ctx context.Context, id string) ([]Turn, error) {
	ctx, span := s.tracer.Start(ctx, "session.history")
	defer span.End()

	exists, err := s.redis.Exists(ctx, metaKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: check session: %w", err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	raw, err := s.redis.LRange(ctx, turnsKey(id), 0, -1).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		span.RecordError(err)
		return nil, fmt.Errorf("session: load history: %w", err)
	}
	out := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("session: decode turn: %w", err)
		}
		out = append(out, t)
	}
	if err := s.touch(ctx, id); err != nil {
		span.RecordError(err)
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) SaveDraft(ctx context.Context, id string, draft Draft) error {
	ctx, span := s.tracer.Start(ctx, "session.save_draft")
	defer span.End()

	meta, err := s.loadMeta(ctx, id)
	if err != nil {
		span.RecordError(err)
		return err
	}
	meta.Draft = draft
	meta.UpdatedAt = s.now()
	data, err := json.Marshal(meta)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: marshal meta: %w", err)
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, metaKey(id), data, s.ttl)
	pipe.Expire(ctx, turnsKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: save draft: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	ctx, span := s.tracer.Start(ctx, "session.delete")
	defer span.End()

	n, err := s.redis.Del(ctx, metaKey(id), turnsKey(id)).Result()
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: delete: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *RedisStore) loadMeta(ctx context.Context, id string) (*Meta, error) {
	data, err := s.redis.Get(ctx, metaKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("session: load meta: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("session: decode meta: %w", err)
	}
	return &meta, nil
}

func (s *RedisStore) touch(ctx context.Context, id string) error {
	pipe := s.redis.TxPipeline()
	pipe.Expire(ctx, metaKey(id), s.ttl)
	pipe.Expire(ctx, turnsKey(id), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("session: refresh ttl: %w", err)
	}
	return nil
}

func metaKey(id string) string {
	return keyPrefix + id + ":meta"
}

func turnsKey(id string) string {
	return keyPrefix + id + ":turns"
}

var _ Store = (*RedisStore)(nil)
