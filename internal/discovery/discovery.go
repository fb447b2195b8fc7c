package discovery

import (
	"context"
	"fmt"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"coinmarket/scraper/internal/domain"
)

type discoveryError struct {
	msg string
}

func (e *discoveryError) Error() string { return e.msg }

func (e *discoveryError) Class() string { return "DiscoveryError" }

// ErrDiscovery marks a failed side-channel call.
var ErrDiscovery error = &discoveryError{msg: "discovery error"}

// Poster is the slice of the fetch client discovery depends on. Side-channel
// calls share the source's request queue and retry policy with page fetches.
type Poster interface {
	PostForm(ctx context.Context, url string, form map[string]string) (*domain.FetchResult, error)
}

// Discoverer runs one walk at a time.
type Discoverer struct {
	poster Poster
	url    string
	delay  time.Duration
	calls  int
}

func New(poster Poster, url string, delay time.Duration) *Discoverer {
	return &Discoverer{
		poster: poster,
		url:    url,
		delay:  delay,
	}
}

// Discover walks the taxonomy below rootID and returns catalog id -> name for
// every leaf within maxDepth levels. Each node id is expanded at most once.
// A failing branch is logged and yields nothing; only a failure to expand the
// root itself is returned as an error.
func (d *Discoverer) Discover(ctx context.Context, rootID int64, maxDepth int) (map[string]string, error) {
	catalogs := make(map[string]string)
	if maxDepth <= 0 {
		return catalogs, nil
	}

	d.calls = 0
	visited := map[int64]struct{}{rootID: {}}

	children, err := d.children(ctx, rootID)
	if err != nil {
		return nil, err
	}

	if err := d.walk(ctx, children, 1, maxDepth, visited, catalogs); err != nil {
		return catalogs, err
	}

	log.Infof("🌳 Discovered %d catalogs under node %d (%d nodes visited)", len(catalogs), rootID, len(visited))
	return catalogs, nil
}

func (d *Discoverer) walk(ctx context.Context, nodes []domain.CatalogNode, depth, maxDepth int, visited map[int64]struct{}, catalogs map[string]string) error {
	for _, node := range nodes {
		if node.IsSentinel() {
			continue
		}
		if _, seen := visited[node.ID]; seen {
			continue
		}
		visited[node.ID] = struct{}{}

		if node.IsLeaf() {
			catalogs[strconv.FormatInt(node.ID, 10)] = node.Name
			continue
		}
		if depth+1 > maxDepth {
			log.Debugf("Depth limit reached at node %d (%s)", node.ID, node.Name)
			continue
		}

		children, err := d.children(ctx, node.ID)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("⚠️ Skipping branch %d (%s): %v", node.ID, node.Name, err)
			continue
		}

		if err := d.walk(ctx, children, depth+1, maxDepth, visited, catalogs); err != nil {
			return err
		}
	}
	return nil
}

func (d *Discoverer) children(ctx context.Context, nodeID int64) ([]domain.CatalogNode, error) {
	if err := d.pause(ctx); err != nil {
		return nil, err
	}

	result, err := d.poster.PostForm(ctx, d.url, map[string]string{
		"action":  "get_children",
		"node_id": strconv.FormatInt(nodeID, 10),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: get_children for node %d: %w", ErrDiscovery, nodeID, err)
	}

	nodes, err := decodeNodes(result.Content)
	if err != nil {
		return nil, fmt.Errorf("%w: node %d: %v", ErrDiscovery, nodeID, err)
	}
	return nodes, nil
}

// pause spaces consecutive side-channel calls by the configured delay.
func (d *Discoverer) pause(ctx context.Context) error {
	d.calls++
	if d.calls == 1 || d.delay <= 0 {
		return nil
	}

	timer := time.NewTimer(d.delay)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// decodeNodes reads the get_children payload. Ids and counts may be sent as
// numbers or numeric strings.
func decodeNodes(content string) ([]domain.CatalogNode, error) {
	if !gjson.Valid(content) {
		return nil, fmt.Errorf("invalid JSON in get_children response")
	}

	parsed := gjson.Parse(content)
	if !parsed.IsArray() {
		return nil, fmt.Errorf("expected JSON array in get_children response, got %s", parsed.Type)
	}

	var nodes []domain.CatalogNode
	parsed.ForEach(func(_, item gjson.Result) bool {
		id := item.Get("id")
		if !id.Exists() {
			return true
		}

		node := domain.CatalogNode{
			ID:         id.Int(),
			Name:       item.Get("name").String(),
			ChildCount: int(item.Get("child_count").Int()),
		}
		if series := item.Get("series_id"); series.Exists() && series.Type != gjson.Null {
			seriesID := series.Int()
			node.ParentSeriesID = &seriesID
		}

		nodes = append(nodes, node)
		return true
	})

	return nodes, nil
}
