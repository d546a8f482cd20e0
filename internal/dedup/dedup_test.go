package dedup

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mapStore Store 的内存实现。
type mapStore struct {
	mu sync.Mutex
	m  map[string]string
}

func newMapStore() *mapStore { return &mapStore{m: map[string]string{}} }

func (s *mapStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m[key], nil
}

func (s *mapStore) Set(_ context.Context, key, value string, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key] = value
	return nil
}

func TestFirstSightIsNotDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	svc := NewService(store, time.Hour)
	occurred := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	dup, err := svc.IsDuplicate(ctx, "order", "uuid-1", occurred)
	require.NoError(t, err)
	assert.False(t, dup)

	// 检查不落记录：没 Mark 之前同一事件再来仍放行。
	dup, err = svc.IsDuplicate(ctx, "order", "uuid-1", occurred)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, svc.MarkProcessed(ctx, "order", "uuid-1", occurred))

	dup, err = svc.IsDuplicate(ctx, "order", "uuid-1", occurred)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestNewerEventSupersedes(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), time.Hour)
	older := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	newer := older.Add(time.Minute)

	require.NoError(t, svc.MarkProcessed(ctx, "order", "uuid-1", older))

	// 更新的时间戳视为新版本，放行。
	dup, err := svc.IsDuplicate(ctx, "order", "uuid-1", newer)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, svc.MarkProcessed(ctx, "order", "uuid-1", newer))

	// 旧版本回流被拒。
	dup, err = svc.IsDuplicate(ctx, "order", "uuid-1", older)
	require.NoError(t, err)
	assert.True(t, dup)
}

func TestKeysScopedByAggregateName(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMapStore(), time.Hour)
	occurred := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, svc.MarkProcessed(ctx, "order", "id-1", occurred))

	// 不同聚合名同载荷 ID 互不影响。
	dup, err := svc.IsDuplicate(ctx, "product", "id-1", occurred)
	require.NoError(t, err)
	assert.False(t, dup)
}

func TestUnparseableRecordIsOverwritten(t *testing.T) {
	ctx := context.Background()
	store := newMapStore()
	svc := NewService(store, time.Hour)
	occurred := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	store.m["event_validation:order-uuid-1"] = "garbage"

	dup, err := svc.IsDuplicate(ctx, "order", "uuid-1", occurred)
	require.NoError(t, err)
	assert.False(t, dup)

	require.NoError(t, svc.MarkProcessed(ctx, "order", "uuid-1", occurred))

	dup, err = svc.IsDuplicate(ctx, "order", "uuid-1", occurred)
	require.NoError(t, err)
	assert.True(t, dup)
}
