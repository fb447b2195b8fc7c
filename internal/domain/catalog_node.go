package domain

// CatalogNode is a taxonomy node returned by the discovery side-channel.
// Nodes only live for the duration of one discovery run.
type CatalogNode struct {
	ID             int64  `json:"id"`
	Name           string `json:"name"`
	ChildCount     int    `json:"child_count"`
	ParentSeriesID *int64 `json:"series_id,omitempty"`
}

// IsLeaf reports whether the node is a pricing catalog rather than a grouping.
func (n CatalogNode) IsLeaf() bool {
	return n.ChildCount == 0
}

// IsSentinel reports whether the node is a synthetic entry that must not be expanded.
func (n CatalogNode) IsSentinel() bool {
	return n.ID <= 0
}
