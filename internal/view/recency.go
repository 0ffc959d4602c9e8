package view

import (
	"fmt"
	"time"

	"linkkeeper/internal/domain"
)

// Bucket is a recency group label.
type Bucket string

const (
	BucketToday     Bucket = "today"
	BucketYesterday Bucket = "yesterday"
	BucketThisWeek  Bucket = "this-week"
	BucketThisMonth Bucket = "this-month"
	BucketOlder     Bucket = "older"
)

// Buckets lists every bucket in presentation order.
var Buckets = []Bucket{BucketToday, BucketYesterday, BucketThisWeek, BucketThisMonth, BucketOlder}

// Group is one non-empty recency bucket.
type Group struct {
	Bucket Bucket        `json:"bucket"`
	Links  []domain.Link `json:"links"`
}

// BucketFor classifies a creation time relative to now. Every timestamp
// maps to exactly one bucket; timestamps in the future count as today.
func BucketFor(createdAtMillis int64, now time.Time) Bucket {
	hours := (now.UnixMilli() - createdAtMillis) / int64(time.Hour/time.Millisecond)
	days := hours / 24
	switch {
	case hours < 24:
		return BucketToday
	case hours < 48:
		return BucketYesterday
	case days < 7:
		return BucketThisWeek
	case days < 30:
		return BucketThisMonth
	}
	return BucketOlder
}

// GroupByRecency buckets links by CreatedAt, keeping their order within a
// bucket. Groups come out in Buckets order and empty ones are dropped.
func GroupByRecency(links []domain.Link, now time.Time) []Group {
	byBucket := make(map[Bucket][]domain.Link, len(Buckets))
	for _, l := range links {
		b := BucketFor(l.CreatedAt, now)
		byBucket[b] = append(byBucket[b], l)
	}
	groups := make([]Group, 0, len(Buckets))
	for _, b := range Buckets {
		if ls := byBucket[b]; len(ls) > 0 {
			groups = append(groups, Group{Bucket: b, Links: ls})
		}
	}
	return groups
}

// RelativeTime renders a short "how long ago" label for a timestamp.
func RelativeTime(tsMillis int64, now time.Time) string {
	diff := time.Duration(now.UnixMilli()-tsMillis) * time.Millisecond
	days := int(diff.Hours()) / 24
	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case days < 7:
		return fmt.Sprintf("%dd ago", days)
	case days/7 < 4:
		return fmt.Sprintf("%dw ago", days/7)
	case days/30 < 12:
		return fmt.Sprintf("%dmo ago", days/30)
	}
	return time.UnixMilli(tsMillis).In(now.Location()).Format("2006-01-02")
}
