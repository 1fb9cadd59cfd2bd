package cache

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.CreateTable(SearchCountSchema))
	return db
}

func TestPutAndGet(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Put(db, SearchCountTable, "阿里山 台灣 景點", 1200))

	got, hit, err := Get[int](db, SearchCountTable, "阿里山 台灣 景點", time.Hour)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1200, got)
}

func TestGetMiss(t *testing.T) {
	db := openTestDB(t)

	_, hit, err := Get[int](db, SearchCountTable, "unknown", time.Hour)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetExpired(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Put(db, SearchCountTable, "q", 7))
	time.Sleep(20 * time.Millisecond)

	_, hit, err := Get[int](db, SearchCountTable, "q", 10*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetOrFetchCachesResult(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("cache.ttl", "1h")

	db := openTestDB(t)

	fetches := 0
	fetch := func() (int, error) {
		fetches++
		return 42, nil
	}

	for range 3 {
		got, err := GetOrFetch(db, SearchCountTable, "query", fetch)
		require.NoError(t, err)
		assert.Equal(t, 42, got)
	}
	assert.Equal(t, 1, fetches)
}

func TestGetOrFetchDoesNotCacheErrors(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)

	db := openTestDB(t)

	fetches := 0
	fetch := func() (int, error) {
		fetches++
		return 0, errors.New("api down")
	}

	_, err := GetOrFetch(db, SearchCountTable, "query", fetch)
	require.Error(t, err)
	_, err = GetOrFetch(db, SearchCountTable, "query", fetch)
	require.Error(t, err)
	assert.Equal(t, 2, fetches)
}

func TestPutReplaces(t *testing.T) {
	db := openTestDB(t)

	require.NoError(t, Put(db, SearchCountTable, "q", 1))
	require.NoError(t, Put(db, SearchCountTable, "q", 2))

	got, hit, err := Get[int](db, SearchCountTable, "q", time.Hour)
	require.NoError(t, err)
	require.True(t, hit)
	assert.Equal(t, 2, got)
}
