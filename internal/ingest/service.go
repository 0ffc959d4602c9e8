// Package ingest turns raw URLs into validated, metadata-enriched links.
// It never touches the network and never writes to the store.
package ingest

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/domain"
)

const faviconEndpoint = "https://www.google.com/s2/favicons?domain=%s&sz=64"

// MaxURLLength is the longest URL BuildLink accepts. Longer URLs would not
// fit the store's url index key.
const MaxURLLength = 4096

var (
	imageExt    = regexp.MustCompile(`\.(jpg|jpeg|png|gif|webp|svg)$`)
	documentExt = regexp.MustCompile(`\.pdf$`)
	separators  = strings.NewReplacer("-", " ", "_", " ")
)

// contentRules are checked in order; the first match wins.
var contentRules = []struct {
	hosts []string
	kind  domain.ContentType
}{
	{[]string{"youtube.com", "youtu.be"}, domain.ContentVideo},
	{[]string{"twitter.com", "x.com"}, domain.ContentSocial},
	{[]string{"github.com"}, domain.ContentCode},
}

// Input is a candidate link.
type Input struct {
	URL        string
	Title      string
	Note       string
	Thumbnail  string
	Provenance domain.Provenance
	SharedText string
}

// Service builds links. Clock and NewID are replaceable for tests.
type Service struct {
	Clock func() time.Time
	NewID func() string
}

// NewService returns a Service using the wall clock and random UUIDs.
func NewService() *Service {
	return &Service{
		Clock: time.Now,
		NewID: func() string { return uuid.NewString() },
	}
}

// BuildLink validates in.URL and returns a link ready for insertion.
// It fails with apperr.ErrInvalidURL when the URL is not absolute or is
// longer than MaxURLLength.
func (s *Service) BuildLink(in Input) (domain.Link, error) {
	raw := strings.TrimSpace(in.URL)
	u, err := ParseAbsolute(raw)
	if err != nil {
		return domain.Link{}, err
	}

	host := Domain(u)
	favicon := FaviconURL(host)
	now := s.Clock().UnixMilli()

	provenance := in.Provenance
	if provenance == "" {
		provenance = domain.ProvenanceManual
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = TitleFromURL(u)
	}

	link := domain.Link{
		ID:          s.NewID(),
		URL:         raw,
		Title:       title,
		Description: in.Note,
		Favicon:     &favicon,
		Domain:      host,
		Tags:        []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
		SharedFrom:  provenance,
		SharedText:  in.SharedText,
		Metadata: domain.Metadata{
			ContentType: DetectContentType(raw),
		},
	}
	if in.Thumbnail != "" {
		thumb := in.Thumbnail
		link.Thumbnail = &thumb
	}
	return link, nil
}

// ParseAbsolute parses raw and requires a scheme and a host.
func ParseAbsolute(raw string) (*url.URL, error) {
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", apperr.ErrInvalidURL)
	}
	if len(raw) > MaxURLLength {
		return nil, fmt.Errorf("%w: longer than %d bytes", apperr.ErrInvalidURL, MaxURLLength)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrInvalidURL, err)
	}
	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("%w: %q is not absolute", apperr.ErrInvalidURL, raw)
	}
	return u, nil
}

// Domain returns the hostname without a leading "www.".
func Domain(u *url.URL) string {
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// FaviconURL returns the favicon image address for a bare hostname.
func FaviconURL(host string) string {
	return fmt.Sprintf(faviconEndpoint, url.QueryEscape(host))
}

// DetectContentType classifies a URL by host substrings, then by extension.
func DetectContentType(raw string) domain.ContentType {
	lower := strings.ToLower(raw)
	for _, rule := range contentRules {
		for _, h := range rule.hosts {
			if strings.Contains(lower, h) {
				return rule.kind
			}
		}
	}
	switch {
	case imageExt.MatchString(lower):
		return domain.ContentImage
	case documentExt.MatchString(lower):
		return domain.ContentDocument
	}
	return domain.ContentArticle
}

// TitleFromURL derives a readable title from the last non-empty path
// segment, or falls back to the hostname. u.Path is already decoded.
func TitleFromURL(u *url.URL) string {
	segments := strings.Split(u.Path, "/")
	for i := len(segments) - 1; i >= 0; i-- {
		seg := segments[i]
		if seg == "" {
			continue
		}
		seg = strings.TrimSuffix(seg, path.Ext(seg))
		if title := strings.TrimSpace(separators.Replace(seg)); title != "" {
			return title
		}
		break
	}
	return u.Hostname()
}
