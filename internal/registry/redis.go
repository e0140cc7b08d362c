package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"botvac-bridge/internal/config"
	"botvac-bridge/internal/robot"
	"botvac-bridge/internal/utils"

	"github.com/go-redis/redis/v8"
)

// NewRedisClient connects and verifies the server with a ping.
func NewRedisClient(cfg *config.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, err
	}

	return client, nil
}

// RedisStore keeps each identity as a JSON string under robot_identity:<serial>
// and indexes the serials in the robot_identities set.
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func (s *RedisStore) Save(ctx context.Context, id robot.Identity) error {
	if id.Serial == "" {
		return fmt.Errorf("identity has no serial")
	}
	data, err := json.Marshal(id)
	if err != nil {
		return fmt.Errorf("failed to marshal identity %s: %w", id.Serial, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, IdentityKey(id.Serial), data, 0)
	pipe.SAdd(ctx, IdentitySet, id.Serial)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save identity %s: %w", id.Serial, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, serial string) (robot.Identity, error) {
	data, err := s.client.Get(ctx, IdentityKey(serial)).Bytes()
	if errors.Is(err, redis.Nil) {
		return robot.Identity{}, fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	if err != nil {
		return robot.Identity{}, fmt.Errorf("failed to load identity %s: %w", serial, err)
	}
	return decodeIdentity(serial, data)
}

func (s *RedisStore) List(ctx context.Context) ([]robot.Identity, error) {
	serials, err := s.client.SMembers(ctx, IdentitySet).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list identities: %w", err)
	}
	if len(serials) == 0 {
		return []robot.Identity{}, nil
	}

	keys := make([]string, len(serials))
	for i, serial := range serials {
		keys[i] = IdentityKey(serial)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load identities: %w", err)
	}

	out := make([]robot.Identity, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			// indexed but expired or deleted out of band
			utils.Logger.Warnf("Identity %s is indexed but missing", serials[i])
			continue
		}
		id, err := decodeIdentity(serials[i], []byte(raw))
		if err != nil {
			utils.Logger.Errorf("Skipping identity %s: %v", serials[i], err)
			continue
		}
		out = append(out, id)
	}
	sortBySerial(out)
	return out, nil
}

func (s *RedisStore) Delete(ctx context.Context, serial string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, IdentityKey(serial))
	pipe.SRem(ctx, IdentitySet, serial)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete identity %s: %w", serial, err)
	}
	if del.Val() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, serial)
	}
	return nil
}

func (s *RedisStore) SetPersistentMaps(ctx context.Context, serial string, enabled bool) error {
	id, err := s.Get(ctx, serial)
	if err != nil {
		return err
	}
	id.HasPersistentMaps = enabled
	return s.Save(ctx, id)
}

func decodeIdentity(serial string, data []byte) (robot.Identity, error) {
	var id robot.Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return robot.Identity{}, fmt.Errorf("failed to decode identity %s: %w", serial, err)
	}
	return id, nil
}
