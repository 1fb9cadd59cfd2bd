package rank

import (
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"formosa/internal/apierr"
	"formosa/internal/cache"
	"formosa/internal/keyring"
)

func newRing(t *testing.T, keys ...string) *keyring.Ring {
	t.Helper()
	r, err := keyring.New(keys)
	require.NoError(t, err)
	return r
}

func TestAPICounterParsesTotal(t *testing.T) {
	var gotKey, gotCx string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.URL.Query().Get("key")
		gotCx = r.URL.Query().Get("cx")
		_, _ = w.Write([]byte(`{"searchInformation": {"totalResults": "12345"}}`))
	}))
	defer server.Close()

	c := &APICounter{
		Keys:     newRing(t, "k1"),
		EngineID: "engine",
		BaseURL:  server.URL,
		Client:   server.Client(),
	}

	count, err := c.Count("阿里山 台灣 景點")
	require.NoError(t, err)
	assert.Equal(t, 12345, count)
	assert.Equal(t, "k1", gotKey)
	assert.Equal(t, "engine", gotCx)
}

func TestAPICounterRotatesKeys(t *testing.T) {
	var keys []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		keys = append(keys, r.URL.Query().Get("key"))
		_, _ = w.Write([]byte(`{"searchInformation": {"totalResults": "1"}}`))
	}))
	defer server.Close()

	c := &APICounter{
		Keys:    newRing(t, "k1", "k2"),
		BaseURL: server.URL,
		Client:  server.Client(),
	}

	for range 4 {
		_, err := c.Count("q")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"k1", "k2", "k1", "k2"}, keys)
}

func TestAPICounterMissingTotalIsZero(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"searchInformation": {}}`))
	}))
	defer server.Close()

	c := &APICounter{Keys: newRing(t, "k"), BaseURL: server.URL, Client: server.Client()}
	count, err := c.Count("q")
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestAPICounterRateLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	c := &APICounter{Keys: newRing(t, "k"), BaseURL: server.URL, Client: server.Client()}
	_, err := c.Count("q")
	assert.True(t, apierr.IsRateLimit(err))
}

func TestAPICounterQuotaExhausted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error": {"code": 403, "status": "RESOURCE_EXHAUSTED"}}`))
	}))
	defer server.Close()

	c := &APICounter{Keys: newRing(t, "k"), BaseURL: server.URL, Client: server.Client()}
	_, err := c.Count("q")
	assert.True(t, apierr.IsQuota(err))
}

func TestAPICounterUsesCache(t *testing.T) {
	viper.Reset()
	t.Cleanup(viper.Reset)
	viper.Set("cache.ttl", "1h")

	hits := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		_, _ = w.Write([]byte(`{"searchInformation": {"totalResults": "7"}}`))
	}))
	defer server.Close()

	db, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.CreateTable(cache.SearchCountSchema))

	c := &APICounter{
		Keys:    newRing(t, "k"),
		BaseURL: server.URL,
		Client:  server.Client(),
		Cache:   db,
	}

	for range 3 {
		count, err := c.Count("same query")
		require.NoError(t, err)
		assert.Equal(t, 7, count)
	}
	assert.Equal(t, 1, hits)
}
