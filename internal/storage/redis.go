package storage

import (
	"context"
	"fmt"

	"github.com/redis/rueidis"

	"github.com/hyperjump/contentindex/internal/models"
)

const redisKeyPrefix = "contentindex:state:"

// RedisConfig holds connection parameters for the Redis state backend.
type RedisConfig struct {
	Addrs    []string `yaml:"addrs"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	DB       int      `yaml:"db"`
}

// RedisProvider keeps each tenant's state in one Redis hash (field = content id).
type RedisProvider struct {
	client rueidis.Client
}

// NewRedisProvider connects to Redis via rueidis.
func NewRedisProvider(cfg RedisConfig) (*RedisProvider, error) {
	if len(cfg.Addrs) == 0 {
		return nil, fmt.Errorf("redis addrs is required")
	}
	client, err := rueidis.NewClient(rueidis.ClientOption{
		InitAddress:  cfg.Addrs,
		Username:     cfg.Username,
		Password:     cfg.Password,
		SelectDB:     cfg.DB,
		DisableCache: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis client: %w", err)
	}
	return NewRedisProviderWithClient(client), nil
}

// NewRedisProviderWithClient wraps an existing client (used by tests with a mock client).
func NewRedisProviderWithClient(client rueidis.Client) *RedisProvider {
	return &RedisProvider{client: client}
}

// ForTenant returns a store bound to the tenant's hash.
func (p *RedisProvider) ForTenant(tenant string) (StateStore, error) {
	if err := models.ValidateTenant(tenant); err != nil {
		return nil, err
	}
	return &redisStore{client: p.client, key: redisKeyPrefix + tenant}, nil
}

// DropTenant deletes the tenant's hash.
func (p *RedisProvider) DropTenant(ctx context.Context, tenant string) error {
	cmd := p.client.B().Del().Key(redisKeyPrefix + tenant).Build()
	return p.client.Do(ctx, cmd).Error()
}

// Close shuts down the client.
func (p *RedisProvider) Close() error {
	p.client.Close()
	return nil
}

type redisStore struct {
	client rueidis.Client
	key    string
}

func (s *redisStore) Get(ctx context.Context, id models.ContentID) (*models.TextContentState, error) {
	cmd := s.client.B().Hget().Key(s.key).Field(id.String()).Build()
	raw, err := s.client.Do(ctx, cmd).ToString()
	if rueidis.IsRedisNil(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("hget state: %w", err)
	}
	return decodeState(id, raw)
}

func (s *redisStore) Set(ctx context.Context, state *models.TextContentState) error {
	if err := validState(state); err != nil {
		return err
	}
	raw, err := encodeState(state)
	if err != nil {
		return err
	}
	cmd := s.client.B().Hset().Key(s.key).FieldValue().FieldValue(state.ContentID.String(), raw).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hset state: %w", err)
	}
	return nil
}

func (s *redisStore) Remove(ctx context.Context, id models.ContentID) error {
	cmd := s.client.B().Hdel().Key(s.key).Field(id.String()).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("hdel state: %w", err)
	}
	return nil
}

func (s *redisStore) Clear(ctx context.Context) error {
	cmd := s.client.B().Del().Key(s.key).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("del states: %w", err)
	}
	return nil
}

// Replace deletes the hash and writes all states inside one MULTI/EXEC.
func (s *redisStore) Replace(ctx context.Context, states []*models.TextContentState) error {
	b := s.client.B()
	cmds := rueidis.Commands{b.Multi().Build(), b.Del().Key(s.key).Build()}
	if len(states) > 0 {
		hset := b.Hset().Key(s.key).FieldValue()
		for _, state := range states {
			if err := validState(state); err != nil {
				return err
			}
			raw, err := encodeState(state)
			if err != nil {
				return err
			}
			hset = hset.FieldValue(state.ContentID.String(), raw)
		}
		cmds = append(cmds, hset.Build())
	}
	cmds = append(cmds, b.Exec().Build())

	for i, res := range s.client.DoMulti(ctx, cmds...) {
		if err := res.Error(); err != nil {
			return fmt.Errorf("replace states (command %d): %w", i, err)
		}
	}
	return nil
}

func (s *redisStore) Count(ctx context.Context) (int64, error) {
	cmd := s.client.B().Hlen().Key(s.key).Build()
	n, err := s.client.Do(ctx, cmd).AsInt64()
	if err != nil {
		return 0, fmt.Errorf("hlen states: %w", err)
	}
	return n, nil
}
