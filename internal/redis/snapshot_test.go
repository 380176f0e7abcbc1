package redis

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roster-sync/internal/domain"
)

// fakeClient keeps strings and hashes in maps and records expirations
type fakeClient struct {
	strings map[string]string
	hashes  map[string]map[string]string
	ttls    map[string]time.Duration
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		strings: make(map[string]string),
		hashes:  make(map[string]map[string]string),
		ttls:    make(map[string]time.Duration),
	}
}

func (f *fakeClient) Set(_ context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case []byte:
		f.strings[key] = string(v)
	case string:
		f.strings[key] = v
	}
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeClient) Get(_ context.Context, key string) *redis.StringCmd {
	v, ok := f.strings[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeClient) HSet(_ context.Context, key string, values ...any) *redis.IntCmd {
	h, ok := f.hashes[key]
	if !ok {
		h = make(map[string]string)
		f.hashes[key] = h
	}
	for i := 0; i+1 < len(values); i += 2 {
		h[values[i].(string)] = values[i+1].(string)
	}
	return redis.NewIntResult(int64(len(values)/2), nil)
}

func (f *fakeClient) HGetAll(_ context.Context, key string) *redis.MapStringStringCmd {
	out := make(map[string]string)
	for k, v := range f.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

func (f *fakeClient) Expire(_ context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.ttls[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeClient) Del(_ context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, k := range keys {
		if _, ok := f.strings[k]; ok {
			n++
		}
		if _, ok := f.hashes[k]; ok {
			n++
		}
		delete(f.strings, k)
		delete(f.hashes, k)
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeClient) Close() error { return nil }

func newTestSnapshotStore(client Client) *SnapshotStore {
	s := NewSnapshotStore(client, "phone-1", 24*time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))
	s.now = func() time.Time { return time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC) }
	return s
}

func TestSnapshotStore_SaveAndLoad(t *testing.T) {
	client := newFakeClient()
	s := newTestSnapshotStore(client)
	ctx := context.Background()

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
	_, err = s.Meta(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)

	require.NoError(t, s.Save(ctx, []byte(`{"version":1}`), 7))

	data, err := s.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, `{"version":1}`, string(data))

	meta, err := s.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), meta.Version)
	assert.Equal(t, 13, meta.Bytes)
	assert.True(t, meta.SavedAt.Equal(time.Date(2025, 2, 20, 9, 0, 0, 0, time.UTC)))

	assert.Equal(t, 24*time.Hour, client.ttls["roster:phone-1:snapshot"])
	assert.Equal(t, 24*time.Hour, client.ttls["roster:phone-1:meta"])
}

func TestSnapshotStore_Delete(t *testing.T) {
	s := newTestSnapshotStore(newFakeClient())
	ctx := context.Background()

	require.NoError(t, s.Save(ctx, []byte("x"), 1))
	require.NoError(t, s.Delete(ctx))

	_, err := s.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}

func TestSnapshotStore_KeysAreScopedByDevice(t *testing.T) {
	client := newFakeClient()
	ctx := context.Background()
	a := newTestSnapshotStore(client)
	b := NewSnapshotStore(client, "tablet-2", 0, slog.New(slog.NewTextHandler(io.Discard, nil)))

	require.NoError(t, a.Save(ctx, []byte("a"), 1))
	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSnapshotNotFound)
}
