package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinmarket/scraper/internal/client"
	"coinmarket/scraper/internal/config"
)

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	cfg, err := config.Load("", nil)
	require.NoError(t, err)

	dir := t.TempDir()
	cfg.Source.BaseURL = baseURL
	cfg.Source.RequiresAuth = false
	cfg.Source.Catalogs = map[string]string{"101": "Morgan Dollars"}
	cfg.Browser.Enabled = false
	cfg.Auth.CookieEnv = ""
	cfg.Auth.CookieFile = ""
	cfg.Fetch.MinDelay = 0
	cfg.Cache.Path = filepath.Join(dir, "content_cache.db")
	cfg.Store.Path = filepath.Join(dir, "catalog_cache.json")
	return cfg
}

func TestFileCacheSurvivesRestart(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<table><tr><td>1881-S</td></tr></table>"))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	require.Equal(t, "file", cfg.Cache.Backend)
	url := srv.URL + "/prices/catalog/101"

	first, err := New(cfg)
	require.NoError(t, err)
	r1, err := first.Client.Fetch(context.Background(), url, client.FetchOptions{})
	require.NoError(t, err)
	assert.False(t, r1.FromCache)
	require.NoError(t, first.Close())

	second, err := New(cfg)
	require.NoError(t, err)
	defer second.Close()
	r2, err := second.Client.Fetch(context.Background(), url, client.FetchOptions{})
	require.NoError(t, err)

	assert.True(t, r2.FromCache)
	assert.Equal(t, r1.Content, r2.Content)
	assert.Equal(t, int32(1), hits.Load())
}

func TestRefreshBypassesFileCache(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		_, _ = w.Write([]byte("<table></table>"))
	}))
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	url := srv.URL + "/prices/catalog/101"

	c, err := New(cfg)
	require.NoError(t, err)
	defer c.Close()

	_, err = c.Client.Fetch(context.Background(), url, client.FetchOptions{})
	require.NoError(t, err)
	r, err := c.Client.Fetch(context.Background(), url, client.FetchOptions{Refresh: true})
	require.NoError(t, err)

	assert.False(t, r.FromCache)
	assert.Equal(t, int32(2), hits.Load())
}
