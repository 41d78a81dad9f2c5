package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestMemoryCache_Expiry(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(time.Minute, 0)
	mc.now = func() time.Time { return now }

	mc.Set("a", "1")
	v, ok := mc.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	now = now.Add(time.Minute)
	_, ok = mc.Get("a")
	assert.False(t, ok)
}

func TestMemoryCache_Eviction(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	mc := NewMemoryCache(time.Minute, 2)
	mc.now = func() time.Time { return now }

	mc.Set("a", "1")
	now = now.Add(time.Second)
	mc.Set("b", "2")
	mc.Set("c", "3")

	assert.Equal(t, 2, mc.Size())
	_, ok := mc.Get("a")
	assert.False(t, ok, "oldest entry evicted")

	mc.Set("b", "22")
	assert.Equal(t, 2, mc.Size(), "overwrite does not evict")
}

type MockSettingsStore struct {
	mock.Mock
}

func (m *MockSettingsStore) Get(ctx context.Context, key string) (string, error) {
	args := m.Called(ctx, key)
	return args.String(0), args.Error(1)
}

func (m *MockSettingsStore) Set(ctx context.Context, key, value string) error {
	args := m.Called(ctx, key, value)
	return args.Error(0)
}

func TestSettingsCache_ReadThrough(t *testing.T) {
	store := new(MockSettingsStore)
	store.On("Get", mock.Anything, "default_user_id").Return("user-1", nil).Once()

	sc := NewSettingsCache(store, time.Minute)
	for i := 0; i < 3; i++ {
		v, err := sc.Get(context.Background(), "default_user_id")
		require.NoError(t, err)
		assert.Equal(t, "user-1", v)
	}
	store.AssertExpectations(t)
}

func TestSettingsCache_MissNotCached(t *testing.T) {
	notFound := errors.New("not found")
	store := new(MockSettingsStore)
	store.On("Get", mock.Anything, "k").Return("", notFound).Twice()

	sc := NewSettingsCache(store, time.Minute)
	_, err := sc.Get(context.Background(), "k")
	assert.ErrorIs(t, err, notFound)
	_, err = sc.Get(context.Background(), "k")
	assert.ErrorIs(t, err, notFound)
	store.AssertExpectations(t)
}

func TestSettingsCache_WriteThrough(t *testing.T) {
	store := new(MockSettingsStore)
	store.On("Set", mock.Anything, "k", "v2").Return(nil)

	sc := NewSettingsCache(store, time.Minute)
	require.NoError(t, sc.Set(context.Background(), "k", "v2"))

	v, err := sc.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	store.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}
