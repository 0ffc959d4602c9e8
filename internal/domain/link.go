package domain

import (
	"fmt"
	"time"
)

// ContentType is the coarse classification of what a link points at.
type ContentType string

const (
	ContentVideo    ContentType = "video"
	ContentSocial   ContentType = "social"
	ContentCode     ContentType = "code"
	ContentImage    ContentType = "image"
	ContentDocument ContentType = "document"
	ContentArticle  ContentType = "article"
)

// Provenance records how a link entered the collection.
type Provenance string

const (
	ProvenanceShare  Provenance = "share-api"
	ProvenanceManual Provenance = "manual"
)

// Index fields declared on the links collection.
const (
	LinkFieldURL       = "url"
	LinkFieldIsRead    = "isRead"
	LinkFieldCreatedAt = "createdAt"
	LinkFieldDomain    = "domain"
)

// Link represents a saved reference.
type Link struct {
	// ID is generated at build time and never changes afterwards.
	ID string `json:"id"`

	// URL is unique across the collection.
	URL string `json:"url"`

	Title       string  `json:"title"`
	Description string  `json:"description"`
	Thumbnail   *string `json:"thumbnail"`
	Favicon     *string `json:"favicon"`

	// Domain is the hostname without a leading "www.".
	Domain string `json:"domain"`

	IsRead bool `json:"isRead"`

	// Category is a soft reference to a Category ID.
	Category *string  `json:"category"`
	Tags     []string `json:"tags"`

	// Timestamps are unix milliseconds. ReadAt is nil unless IsRead.
	CreatedAt int64  `json:"createdAt"`
	UpdatedAt int64  `json:"updatedAt"`
	ReadAt    *int64 `json:"readAt"`

	SharedFrom Provenance `json:"sharedFrom"`
	SharedText string     `json:"sharedText"`

	Metadata Metadata `json:"metadata"`
}

// Metadata is descriptive data attached to a link.
type Metadata struct {
	Author      *string     `json:"author"`
	PublishDate *string     `json:"publishDate"`
	ContentType ContentType `json:"contentType"`
	Duration    *string     `json:"duration"`
}

// RecordID returns the primary key.
func (l *Link) RecordID() string { return l.ID }

// IndexValue returns the encoded value of an indexed field.
func (l *Link) IndexValue(field string) (string, bool) {
	switch field {
	case LinkFieldURL:
		return l.URL, true
	case LinkFieldIsRead:
		return EncodeBool(l.IsRead), true
	case LinkFieldCreatedAt:
		return EncodeMillis(l.CreatedAt), true
	case LinkFieldDomain:
		return l.Domain, true
	}
	return "", false
}

// Touch stamps UpdatedAt.
func (l *Link) Touch(now int64) { l.UpdatedAt = now }

// MarkRead sets the read flag together with ReadAt.
func (l *Link) MarkRead(now int64) {
	l.IsRead = true
	l.ReadAt = &now
}

// MarkUnread clears the read flag together with ReadAt.
func (l *Link) MarkUnread() {
	l.IsRead = false
	l.ReadAt = nil
}

// SetTags replaces the tag set, dropping empty strings and duplicates.
func (l *Link) SetTags(tags []string) {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	l.Tags = out
}

// HasTag reports whether the link carries tag.
func (l *Link) HasTag(tag string) bool {
	for _, t := range l.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Millis converts t to unix milliseconds.
func Millis(t time.Time) int64 { return t.UnixMilli() }

// EncodeBool is the index encoding of a boolean field.
func EncodeBool(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

// EncodeMillis zero-pads a timestamp so index keys sort chronologically.
func EncodeMillis(ms int64) string {
	return fmt.Sprintf("%020d", ms)
}
