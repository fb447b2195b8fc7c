package service

import (
	"sort"

	"coinmarket/scraper/internal/client"
)

// Report summarizes a batch of catalog fetches.
type Report struct {
	Total     int
	Succeeded int
	Failed    map[string]error
	Classes   map[string]int // error class -> failed catalogs
}

func newReport(total int) *Report {
	return &Report{
		Total:   total,
		Failed:  make(map[string]error),
		Classes: make(map[string]int),
	}
}

func (r *Report) record(catalogID string, err error) {
	if err == nil {
		r.Succeeded++
		return
	}
	r.Failed[catalogID] = err
	r.Classes[client.ErrorClass(err)]++
}

// FailedIDs returns the failed catalog ids in order.
func (r *Report) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for id := range r.Failed {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
