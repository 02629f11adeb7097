package api

import (
	"net/http"
	"strconv"

	"github.com/1hive/honeyswap-indexer/internal/store"
)

const (
	defaultPerPage = 25
	maxPerPage     = 100
)

type Pagination struct {
	Page    int  `json:"page"`
	PerPage int  `json:"per_page"`
	HasNext bool `json:"has_next"`
}

type pageRequest struct {
	Page    int
	PerPage int
}

func parsePagination(r *http.Request) pageRequest {
	q := r.URL.Query()
	req := pageRequest{Page: 1, PerPage: defaultPerPage}
	if v := q.Get("page"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			req.Page = p
		}
	}
	if v := q.Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			req.PerPage = min(n, maxPerPage)
		}
	}
	return req
}

// listOptions selects this page of ids starting with prefix, ordered by the
// numeric field orderBy (descending) or by id when empty.
func (p pageRequest) listOptions(prefix, orderBy string) store.ListOptions {
	return store.ListOptions{
		Prefix:  prefix,
		OrderBy: orderBy,
		Limit:   p.PerPage,
		Offset:  (p.Page - 1) * p.PerPage,
	}
}
