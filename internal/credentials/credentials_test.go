package credentials

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvProvider(t *testing.T) {
	t.Setenv("TEST_SCRAPER_COOKIES", "  session=abc  ")

	cookies, err := EnvProvider{Var: "TEST_SCRAPER_COOKIES"}.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session=abc", cookies)

	cookies, err = EnvProvider{}.Cookies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestFileProvider(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cookies.txt")
	require.NoError(t, os.WriteFile(path, []byte("# exported from browser\nsession=abc;\n\ncsrf=xyz\n"), 0o600))

	cookies, err := FileProvider{Path: path}.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "session=abc; csrf=xyz", cookies)

	t.Run("missing file means no cookies", func(t *testing.T) {
		cookies, err := FileProvider{Path: filepath.Join(t.TempDir(), "nope")}.Cookies(context.Background())
		require.NoError(t, err)
		assert.Empty(t, cookies)
	})
}

func TestChain(t *testing.T) {
	chain := Chain{Static(""), Static("a=1"), Static("b=2")}

	cookies, err := chain.Cookies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "a=1", cookies)

	cookies, err = Chain{}.Cookies(context.Background())
	require.NoError(t, err)
	assert.Empty(t, cookies)
}

func TestParse(t *testing.T) {
	cookies := Parse("session=abc; csrf = xyz ; broken; =nope; empty=")
	require.Len(t, cookies, 3)
	assert.Equal(t, "session", cookies[0].Name)
	assert.Equal(t, "abc", cookies[0].Value)
	assert.Equal(t, "csrf", cookies[1].Name)
	assert.Equal(t, "xyz", cookies[1].Value)
	assert.Equal(t, "empty", cookies[2].Name)
	assert.Empty(t, cookies[2].Value)
}
