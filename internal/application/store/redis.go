package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"lms/internal/application/models"
	id "lms/pkg/domain"
	"lms/pkg/platform/sentinel"
)

const (
	defaultKeyPrefix  = "application:"
	defaultMaxRetries = 8
)

// Redis stores each aggregate as a JSON document under application:{id}.
// Update is an optimistic WATCH/MULTI transaction that is retried when another
// writer touches the key between read and commit.
type Redis struct {
	client     *redis.Client
	prefix     string
	maxRetries int
}

// RedisOption configures a Redis store.
type RedisOption func(*Redis)

// WithKeyPrefix overrides the key namespace.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *Redis) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithMaxRetries bounds optimistic retries before Update gives up with ErrConflict.
func WithMaxRetries(n int) RedisOption {
	return func(s *Redis) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

func NewRedis(client *redis.Client, opts ...RedisOption) *Redis {
	s := &Redis{
		client:     client,
		prefix:     defaultKeyPrefix,
		maxRetries: defaultMaxRetries,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *Redis) key(appID id.ApplicationID) string {
	return s.prefix + appID.String()
}

func (s *Redis) Create(ctx context.Context, app *models.LoanApplication) error {
	stored := app.Clone()
	stored.Version = 1
	payload, err := json.Marshal(stored)
	if err != nil {
		return fmt.Errorf("encode application: %w", err)
	}
	created, err := s.client.SetNX(ctx, s.key(app.ID), payload, 0).Result()
	if err != nil {
		return fmt.Errorf("create application: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	if !created {
		return sentinel.ErrAlreadyExists
	}
	app.Version = 1
	return nil
}

func (s *Redis) FindByID(ctx context.Context, appID id.ApplicationID) (*models.LoanApplication, error) {
	return s.load(ctx, s.client, appID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Redis) load(ctx context.Context, g getter, appID id.ApplicationID) (*models.LoanApplication, error) {
	raw, err := g.Get(ctx, s.key(appID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load application: %w", errors.Join(sentinel.ErrUnavailable, err))
	}
	var app models.LoanApplication
	if err := json.Unmarshal(raw, &app); err != nil {
		return nil, fmt.Errorf("decode application: %w", err)
	}
	return &app, nil
}

func (s *Redis) Update(ctx context.Context, appID id.ApplicationID, fn Mutator) (*models.LoanApplication, error) {
	key := s.key(appID)
	var result *models.LoanApplication

	txf := func(tx *redis.Tx) error {
		working, err := s.load(ctx, tx, appID)
		if err != nil {
			return err
		}
		if err := fn(working); err != nil {
			return err
		}
		working.Version++
		payload, err := json.Marshal(working)
		if err != nil {
			return fmt.Errorf("encode application: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, 0)
			return nil
		})
		if err != nil {
			return err
		}
		result = working
		return nil
	}

	for range s.maxRetries {
		err := s.client.Watch(ctx, txf, key)
		if err == nil {
			return result, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, sentinel.ErrConflict
}
