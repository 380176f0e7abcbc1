package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/roster-sync/internal/config"
	"github.com/roster-sync/internal/domain"
)

// Client is the subset of *redis.Client the snapshot store uses
type Client interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Close() error
}

// SnapshotMeta describes the last saved snapshot
type SnapshotMeta struct {
	Version uint64    `json:"version"`
	Bytes   int       `json:"bytes"`
	SavedAt time.Time `json:"saved_at"`
}

// SnapshotStore keeps one encoded store snapshot per device
type SnapshotStore struct {
	client   Client
	deviceID string
	ttl      time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewClient connects to Redis
func NewClient(cfg *config.RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	// Test connection
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}

// NewSnapshotStore creates a snapshot store for one device. A zero ttl
// keeps snapshots forever.
func NewSnapshotStore(client Client, deviceID string, ttl time.Duration, logger *slog.Logger) *SnapshotStore {
	return &SnapshotStore{
		client:   client,
		deviceID: deviceID,
		ttl:      ttl,
		logger:   logger,
		now:      time.Now,
	}
}

// Close closes the Redis connection
func (s *SnapshotStore) Close() error {
	return s.client.Close()
}

// snapshotKey returns the Redis key holding the encoded snapshot
func (s *SnapshotStore) snapshotKey() string {
	return fmt.Sprintf("roster:%s:snapshot", s.deviceID)
}

// metaKey returns the Redis key for snapshot metadata
func (s *SnapshotStore) metaKey() string {
	return fmt.Sprintf("roster:%s:meta", s.deviceID)
}

// Save writes the snapshot and its metadata
func (s *SnapshotStore) Save(ctx context.Context, data []byte, version uint64) error {
	if err := s.client.Set(ctx, s.snapshotKey(), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}

	err := s.client.HSet(ctx, s.metaKey(),
		"version", strconv.FormatUint(version, 10),
		"bytes", strconv.Itoa(len(data)),
		"saved_at", s.now().UTC().Format(time.RFC3339Nano),
	).Err()
	if err != nil {
		return fmt.Errorf("saving snapshot meta: %w", err)
	}
	if s.ttl > 0 {
		if err := s.client.Expire(ctx, s.metaKey(), s.ttl).Err(); err != nil {
			return fmt.Errorf("setting snapshot meta ttl: %w", err)
		}
	}

	s.logger.Debug("saved snapshot", "device_id", s.deviceID, "version", version, "bytes", len(data))
	return nil
}

// Load returns the saved snapshot or domain.ErrSnapshotNotFound
func (s *SnapshotStore) Load(ctx context.Context) ([]byte, error) {
	data, err := s.client.Get(ctx, s.snapshotKey()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return data, nil
}

// Meta returns the metadata of the saved snapshot
func (s *SnapshotStore) Meta(ctx context.Context) (SnapshotMeta, error) {
	fields, err := s.client.HGetAll(ctx, s.metaKey()).Result()
	if err != nil {
		return SnapshotMeta{}, fmt.Errorf("loading snapshot meta: %w", err)
	}
	if len(fields) == 0 {
		return SnapshotMeta{}, domain.ErrSnapshotNotFound
	}

	var meta SnapshotMeta
	meta.Version, _ = strconv.ParseUint(fields["version"], 10, 64)
	meta.Bytes, _ = strconv.Atoi(fields["bytes"])
	meta.SavedAt, _ = time.Parse(time.RFC3339Nano, fields["saved_at"])
	return meta, nil
}

// Delete removes the snapshot and its metadata
func (s *SnapshotStore) Delete(ctx context.Context) error {
	if err := s.client.Del(ctx, s.snapshotKey(), s.metaKey()).Err(); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
