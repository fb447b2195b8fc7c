package discovery

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coinmarket/scraper/internal/domain"
)

type fakePoster struct {
	tree  map[int64]string
	fail  map[int64]error
	calls []int64
	forms []map[string]string
}

func (f *fakePoster) PostForm(_ context.Context, url string, form map[string]string) (*domain.FetchResult, error) {
	id, err := strconv.ParseInt(form["node_id"], 10, 64)
	if err != nil {
		return nil, err
	}
	f.calls = append(f.calls, id)
	f.forms = append(f.forms, form)

	if err := f.fail[id]; err != nil {
		return nil, err
	}
	body, ok := f.tree[id]
	if !ok {
		body = "[]"
	}
	return &domain.FetchResult{Content: body, StatusCode: 200, URL: url}, nil
}

func TestDiscover(t *testing.T) {
	poster := &fakePoster{tree: map[int64]string{
		1: `[{"id": 10, "name": "Dollars", "child_count": 2}, {"id": 20, "name": "Cents", "child_count": 1}, {"id": -1, "name": "All", "child_count": 5}]`,
		10: `[{"id": 101, "name": "Morgan Dollars", "child_count": 0, "series_id": 10}, {"id": 102, "name": "Peace Dollars", "child_count": 0}]`,
		20: `[{"id": "201", "name": "Indian Cents", "child_count": "0"}]`,
	}}

	catalogs, err := New(poster, "https://example.com/ajax", 0).Discover(context.Background(), 1, 3)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{
		"101": "Morgan Dollars",
		"102": "Peace Dollars",
		"201": "Indian Cents",
	}, catalogs)
	assert.Equal(t, []int64{1, 10, 20}, poster.calls)
	assert.Equal(t, "get_children", poster.forms[0]["action"])
}

func TestDiscoverVisitsEachNodeOnce(t *testing.T) {
	poster := &fakePoster{tree: map[int64]string{
		1:  `[{"id": 10, "name": "A", "child_count": 1}, {"id": 20, "name": "B", "child_count": 1}]`,
		10: `[{"id": 30, "name": "Shared", "child_count": 1}]`,
		20: `[{"id": 30, "name": "Shared", "child_count": 1}, {"id": 1, "name": "Root again", "child_count": 2}]`,
		30: `[{"id": 301, "name": "Leaf", "child_count": 0}, {"id": 10, "name": "Cycle", "child_count": 1}]`,
	}}

	catalogs, err := New(poster, "u", 0).Discover(context.Background(), 1, 10)
	require.NoError(t, err)

	assert.Equal(t, map[string]string{"301": "Leaf"}, catalogs)
	assert.Equal(t, []int64{1, 10, 30, 20}, poster.calls)
}

func TestDiscoverDepthLimit(t *testing.T) {
	poster := &fakePoster{tree: map[int64]string{
		1:  `[{"id": 10, "name": "Group", "child_count": 1}, {"id": 11, "name": "Top Leaf", "child_count": 0}]`,
		10: `[{"id": 100, "name": "Deep Leaf", "child_count": 0}]`,
	}}

	t.Run("zero depth is empty", func(t *testing.T) {
		p := &fakePoster{tree: poster.tree}
		catalogs, err := New(p, "u", 0).Discover(context.Background(), 1, 0)
		require.NoError(t, err)
		assert.Empty(t, catalogs)
		assert.Empty(t, p.calls)
	})

	t.Run("depth one stays at the root's children", func(t *testing.T) {
		p := &fakePoster{tree: poster.tree}
		catalogs, err := New(p, "u", 0).Discover(context.Background(), 1, 1)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"11": "Top Leaf"}, catalogs)
		assert.Equal(t, []int64{1}, p.calls)
	})

	t.Run("depth two descends once", func(t *testing.T) {
		p := &fakePoster{tree: poster.tree}
		catalogs, err := New(p, "u", 0).Discover(context.Background(), 1, 2)
		require.NoError(t, err)
		assert.Len(t, catalogs, 2)
	})
}

func TestDiscoverBranchFailure(t *testing.T) {
	poster := &fakePoster{
		tree: map[int64]string{
			1:  `[{"id": 10, "name": "Broken", "child_count": 3}, {"id": 20, "name": "Fine", "child_count": 1}, {"id": 30, "name": "Garbled", "child_count": 1}]`,
			20: `[{"id": 201, "name": "Indian Cents", "child_count": 0}]`,
			30: `<html>oops</html>`,
		},
		fail: map[int64]error{10: errors.New("http server error (status 500)")},
	}

	catalogs, err := New(poster, "u", 0).Discover(context.Background(), 1, 5)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"201": "Indian Cents"}, catalogs)
}

func TestDiscoverRootFailure(t *testing.T) {
	poster := &fakePoster{fail: map[int64]error{1: errors.New("boom")}}

	_, err := New(poster, "u", 0).Discover(context.Background(), 1, 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDiscovery)

	var classed interface{ Class() string }
	require.ErrorAs(t, err, &classed)
	assert.Equal(t, "DiscoveryError", classed.Class())
}

func TestDecodeNodes(t *testing.T) {
	nodes, err := decodeNodes(`[{"id": 5, "name": "X", "child_count": 2, "series_id": null}, {"name": "no id"}]`)
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	assert.Equal(t, int64(5), nodes[0].ID)
	assert.Equal(t, 2, nodes[0].ChildCount)
	assert.Nil(t, nodes[0].ParentSeriesID)

	_, err = decodeNodes(`{"id": 5}`)
	assert.Error(t, err)

	_, err = decodeNodes(`not json`)
	assert.Error(t, err)
}
