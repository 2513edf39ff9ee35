package clients

import (
	"context"
)

// PageInfo mirrors the pagination block of a catalog connection.
type PageInfo struct {
	HasNextPage bool   `json:"hasNextPage"`
	EndCursor   string `json:"endCursor"`
}

// PageFn fetches one page of nodes for a cursor. The first call
// receives an empty cursor; subsequent calls receive the end cursor of
// the previous page.
type PageFn[T any] func(ctx context.Context, cursor string) ([]T, PageInfo, error)

// GroupFn fetches the nodes belonging to one identifier group.
type GroupFn[T any] func(ctx context.Context, ids []string) ([]T, error)

// FetchAll eagerly drains a cursor-paginated connection into memory,
// following end cursors until the remote reports no further pages.
// onPage, when non-nil, runs after every accumulated page; the sync
// engine hooks memory pressure checks there. limit > 0 stops fetching
// once that many nodes have accumulated and truncates the result.
//
// Result-set growth is bounded only by the remote; callers that cannot
// afford the full set must pass a limit.
func FetchAll[T any](ctx context.Context, fetch PageFn[T], onPage func(), limit int) ([]T, error) {
	var (
		nodes  []T
		cursor string
	)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageNodes, page, err := fetch(ctx, cursor)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, pageNodes...)

		if onPage != nil {
			onPage()
		}
		if limit > 0 && len(nodes) >= limit {
			return nodes[:limit], nil
		}
		if !page.HasNextPage {
			return nodes, nil
		}
		cursor = page.EndCursor
	}
}

// FetchBatched splits ids into fixed-size groups and issues one lookup
// per group, concatenating results in group order. Empty input fetches
// nothing.
func FetchBatched[T any](ctx context.Context, ids []string, groupSize int, fetch GroupFn[T]) ([]T, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	nodes := make([]T, 0, len(ids))
	for _, group := range Partition(ids, groupSize) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		batch, err := fetch(ctx, group)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, batch...)
	}
	return nodes, nil
}

// Partition splits ids into groups of at most size elements, preserving
// order. The final group may be shorter. size <= 0 yields one group
// holding everything.
func Partition(ids []string, size int) [][]string {
	if len(ids) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]string{ids}
	}

	groups := make([][]string, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := start + size
		if end > len(ids) {
			end = len(ids)
		}
		groups = append(groups, ids[start:end])
	}
	return groups
}
