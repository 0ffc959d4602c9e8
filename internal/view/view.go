// Package view derives read-only projections of the links collection:
// filtered and sorted lists, read/unread counts and recency groups.
package view

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"linkkeeper/internal/domain"
)

// Filter selects links by read state.
type Filter string

const (
	FilterAll    Filter = "all"
	FilterUnread Filter = "unread"
	FilterRead   Filter = "read"
)

// SortField names a sortable link attribute.
type SortField string

const (
	SortCreatedAt SortField = "createdAt"
	SortUpdatedAt SortField = "updatedAt"
	SortReadAt    SortField = "readAt"
	SortTitle     SortField = "title"
	SortDomain    SortField = "domain"
)

// Order is the sort direction.
type Order string

const (
	Desc Order = "desc"
	Asc  Order = "asc"
)

// LinkSource reads saved links. Every method returns links in insertion
// order; ByReadState and ByDomain are served by secondary indexes.
type LinkSource interface {
	All(ctx context.Context) ([]domain.Link, error)
	ByReadState(ctx context.Context, read bool) ([]domain.Link, error)
	ByDomain(ctx context.Context, host string) ([]domain.Link, error)
}

// Query describes a List request. Zero values select the defaults:
// all links, newest first.
type Query struct {
	Filter   Filter
	Sort     SortField
	Order    Order
	Domain   string
	Category string
	Tag      string
}

// Counts holds the cardinalities shown on the filter tabs.
type Counts struct {
	All    int `json:"all"`
	Unread int `json:"unread"`
	Read   int `json:"read"`
}

// View reads links through a LinkSource on every call, so results are
// never stale.
type View struct {
	links LinkSource
}

// New creates a View.
func New(links LinkSource) *View {
	return &View{links: links}
}

// ParseFilter validates a filter name; empty means FilterAll.
func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(s)); f {
	case "":
		return FilterAll, nil
	case FilterAll, FilterUnread, FilterRead:
		return f, nil
	}
	return "", fmt.Errorf("unknown filter %q", s)
}

// ParseSort validates a sort field; empty means SortCreatedAt.
func ParseSort(s string) (SortField, error) {
	switch f := SortField(s); f {
	case "":
		return SortCreatedAt, nil
	case SortCreatedAt, SortUpdatedAt, SortReadAt, SortTitle, SortDomain:
		return f, nil
	}
	return "", fmt.Errorf("unknown sort field %q", s)
}

// ParseOrder validates a sort order; empty means Desc.
func ParseOrder(s string) (Order, error) {
	switch o := Order(strings.ToLower(s)); o {
	case "":
		return Desc, nil
	case Asc, Desc:
		return o, nil
	}
	return "", fmt.Errorf("unknown sort order %q", s)
}

// List returns the links matching q. Links with equal sort keys keep
// their insertion order.
func (v *View) List(ctx context.Context, q Query) ([]domain.Link, error) {
	all, err := v.candidates(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	out := make([]domain.Link, 0, len(all))
	for _, l := range all {
		if matches(l, q) {
			out = append(out, l)
		}
	}
	Sort(out, q.Sort, q.Order)
	return out, nil
}

// candidates narrows the scan through an index when the query allows it.
// matches still applies every condition to the result.
func (v *View) candidates(ctx context.Context, q Query) ([]domain.Link, error) {
	switch {
	case q.Domain != "":
		return v.links.ByDomain(ctx, q.Domain)
	case q.Filter == FilterUnread:
		return v.links.ByReadState(ctx, false)
	case q.Filter == FilterRead:
		return v.links.ByReadState(ctx, true)
	}
	return v.links.All(ctx)
}

func matches(l domain.Link, q Query) bool {
	switch q.Filter {
	case FilterUnread:
		if l.IsRead {
			return false
		}
	case FilterRead:
		if !l.IsRead {
			return false
		}
	}
	if q.Domain != "" && l.Domain != q.Domain {
		return false
	}
	if q.Category != "" && (l.Category == nil || *l.Category != q.Category) {
		return false
	}
	if q.Tag != "" && !l.HasTag(q.Tag) {
		return false
	}
	return true
}

// Sort orders links in place by field and order, stably.
func Sort(links []domain.Link, field SortField, order Order) {
	if field == "" {
		field = SortCreatedAt
	}
	less := lessFunc(field)
	sort.SliceStable(links, func(i, j int) bool {
		if order == Asc {
			return less(links[i], links[j])
		}
		return less(links[j], links[i])
	})
}

func lessFunc(field SortField) func(a, b domain.Link) bool {
	switch field {
	case SortUpdatedAt:
		return func(a, b domain.Link) bool { return a.UpdatedAt < b.UpdatedAt }
	case SortReadAt:
		return func(a, b domain.Link) bool { return readAt(a) < readAt(b) }
	case SortTitle:
		return func(a, b domain.Link) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case SortDomain:
		return func(a, b domain.Link) bool { return a.Domain < b.Domain }
	}
	return func(a, b domain.Link) bool { return a.CreatedAt < b.CreatedAt }
}

// readAt sorts unread links before any read one.
func readAt(l domain.Link) int64 {
	if l.ReadAt == nil {
		return -1
	}
	return *l.ReadAt
}

// Counts tallies the current collection.
func (v *View) Counts(ctx context.Context) (Counts, error) {
	all, err := v.links.All(ctx)
	if err != nil {
		return Counts{}, fmt.Errorf("count links: %w", err)
	}
	c := Counts{All: len(all)}
	for _, l := range all {
		if l.IsRead {
			c.Read++
		} else {
			c.Unread++
		}
	}
	return c, nil
}
