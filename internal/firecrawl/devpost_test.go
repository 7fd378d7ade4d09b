package firecrawl

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNormalizeDevpostProfileURL(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain profile", "https://devpost.com/ada", "https://devpost.com/ada"},
		{"www host", "https://www.devpost.com/ada", "https://devpost.com/ada"},
		{"http scheme kept valid", "http://devpost.com/ada", "https://devpost.com/ada"},
		{"trailing slash", "https://devpost.com/ada/", "https://devpost.com/ada"},
		{"uppercase host", "https://DEVPOST.COM/ada", "https://devpost.com/ada"},
		{"software page", "https://devpost.com/software/cool-app", ""},
		{"blocked root segment", "https://devpost.com/hackathons", ""},
		{"blocked segment case insensitive", "https://devpost.com/Software", ""},
		{"wrong host", "https://github.com/ada", ""},
		{"subdomain rejected", "https://help.devpost.com/ada", ""},
		{"deep path", "https://devpost.com/ada/projects", ""},
		{"root only", "https://devpost.com/", ""},
		{"non-http scheme", "ftp://devpost.com/ada", ""},
		{"not a url", "::::", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeDevpostProfileURL(tt.in))
		})
	}
}

func searchServer(t *testing.T, calls *int32, results ...map[string]string) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Equal(t, "/search", r.URL.Path)
		json.NewEncoder(w).Encode(map[string]interface{}{"web": results})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)
	return client
}

func testCache(t *testing.T) redis.UniversalClient {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()})
}

func TestFindProfileByNameReturnsFirstProfileResult(t *testing.T) {
	client := searchServer(t, nil,
		map[string]string{"url": "https://devpost.com/software/someone-else"},
		map[string]string{"url": "https://devpost.com/ada"},
		map[string]string{"url": "https://devpost.com/other"},
	)
	resolver := NewDevpostResolver(client, nil, 0, zap.NewNop())

	got, err := resolver.FindProfileByName(context.Background(), "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "https://devpost.com/ada", got)
}

func TestFindProfileByNameNotFound(t *testing.T) {
	client := searchServer(t, nil,
		map[string]string{"url": "https://devpost.com/hackathons"},
		map[string]string{"url": "https://example.com/ada"},
	)
	resolver := NewDevpostResolver(client, nil, 0, zap.NewNop())

	_, err := resolver.FindProfileByName(context.Background(), "Ada Lovelace")
	assert.ErrorIs(t, err, ErrProfileNotFound)
}

func TestFindProfileByNameUsesMetadataURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"metadata": map[string]string{"url": "https://devpost.com/ada"}},
			},
		})
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	resolver := NewDevpostResolver(client, nil, 0, zap.NewNop())
	got, err := resolver.FindProfileByName(context.Background(), "Ada Lovelace")
	require.NoError(t, err)
	assert.Equal(t, "https://devpost.com/ada", got)
}

func TestFindProfileByNameCachesPositiveResult(t *testing.T) {
	var calls int32
	client := searchServer(t, &calls, map[string]string{"url": "https://devpost.com/ada"})
	resolver := NewDevpostResolver(client, testCache(t), time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		got, err := resolver.FindProfileByName(context.Background(), "Ada Lovelace")
		require.NoError(t, err)
		assert.Equal(t, "https://devpost.com/ada", got)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFindProfileByNameCachesNotFound(t *testing.T) {
	var calls int32
	client := searchServer(t, &calls)
	resolver := NewDevpostResolver(client, testCache(t), time.Minute, zap.NewNop())

	for i := 0; i < 3; i++ {
		_, err := resolver.FindProfileByName(context.Background(), "Nobody Here")
		assert.ErrorIs(t, err, ErrProfileNotFound)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestFindProfileByNameRejectsEmptyName(t *testing.T) {
	client := searchServer(t, nil)
	resolver := NewDevpostResolver(client, nil, 0, zap.NewNop())

	_, err := resolver.FindProfileByName(context.Background(), "   ")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrProfileNotFound)
}

func TestSearchSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	client, err := NewClient(Config{BaseURL: srv.URL, APIKey: "test-key"}, zap.NewNop())
	require.NoError(t, err)

	_, err = client.Search(context.Background(), "Ada Lovelace Devpost")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 429")
}
