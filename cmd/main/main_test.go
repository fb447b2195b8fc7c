package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinmarket/scraper/internal/client"
)

func TestFetchOptionsFromFlags(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want client.FetchOptions
	}{
		{"defaults", []string{"fetch", "101"}, client.FetchOptions{}},
		{"refresh", []string{"fetch", "101", "--refresh"}, client.FetchOptions{Refresh: true}},
		{"skip cache", []string{"fetch-all", "--skip-cache"}, client.FetchOptions{SkipCache: true}},
		{"refresh with browser", []string{"--refresh", "--browser", "fetch", "101"}, client.FetchOptions{Refresh: true, Browser: true}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var opts options
			flags := newFlagSet(&opts)
			require.NoError(t, flags.Parse(tc.args))

			assert.Equal(t, tc.want, fetchOptions(opts))
		})
	}
}
