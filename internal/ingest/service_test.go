package ingest

import (
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/domain"
)

func fixedService() *Service {
	return &Service{
		Clock: func() time.Time { return time.UnixMilli(1_700_000_000_000) },
		NewID: func() string { return "fixed-id" },
	}
}

func TestBuildLink_DerivesTitleDomainAndType(t *testing.T) {
	link, err := fixedService().BuildLink(Input{URL: "https://sub.example.co.kr/path/My-Post.html"})
	require.NoError(t, err)

	assert.Equal(t, "My Post", link.Title)
	assert.Equal(t, "sub.example.co.kr", link.Domain)
	assert.Equal(t, domain.ContentArticle, link.Metadata.ContentType)
	assert.Equal(t, "fixed-id", link.ID)
	assert.Equal(t, domain.ProvenanceManual, link.SharedFrom)
	assert.Equal(t, int64(1_700_000_000_000), link.CreatedAt)
	assert.Equal(t, link.CreatedAt, link.UpdatedAt)
	assert.False(t, link.IsRead)
	assert.Nil(t, link.ReadAt)
	assert.Nil(t, link.Thumbnail)
	require.NotNil(t, link.Favicon)
	assert.Equal(t, "https://www.google.com/s2/favicons?domain=sub.example.co.kr&sz=64", *link.Favicon)
}

func TestBuildLink_KeepsSuppliedFields(t *testing.T) {
	link, err := fixedService().BuildLink(Input{
		URL:        "https://www.example.com/",
		Title:      "  Given  ",
		Note:       "read later",
		Thumbnail:  "https://img.example.com/t.png",
		Provenance: domain.ProvenanceShare,
		SharedText: "look https://www.example.com/",
	})
	require.NoError(t, err)
	assert.Equal(t, "Given", link.Title)
	assert.Equal(t, "read later", link.Description)
	assert.Equal(t, "example.com", link.Domain)
	assert.Equal(t, domain.ProvenanceShare, link.SharedFrom)
	assert.Equal(t, "look https://www.example.com/", link.SharedText)
	require.NotNil(t, link.Thumbnail)
	assert.Equal(t, "https://img.example.com/t.png", *link.Thumbnail)
}

func TestBuildLink_RejectsRelativeAndGarbage(t *testing.T) {
	for _, raw := range []string{"", "   ", "example.com/page", "/just/a/path", "not a url", "http://"} {
		_, err := fixedService().BuildLink(Input{URL: raw})
		assert.ErrorIs(t, err, apperr.ErrInvalidURL, "input %q", raw)
	}
}

func TestDetectContentType(t *testing.T) {
	cases := map[string]domain.ContentType{
		"https://www.youtube.com/watch?v=1":     domain.ContentVideo,
		"https://youtu.be/abc":                  domain.ContentVideo,
		"https://twitter.com/u/status/1":        domain.ContentSocial,
		"https://x.com/u":                       domain.ContentSocial,
		"https://github.com/golang/go":          domain.ContentCode,
		"https://cdn.example.com/pic.JPEG":      domain.ContentImage,
		"https://example.com/paper.pdf":         domain.ContentDocument,
		"https://example.com/blog/post":         domain.ContentArticle,
		"https://github.com/org/repo/logo.png":  domain.ContentCode,
		"https://example.com/file.pdf?download": domain.ContentArticle,
	}
	for raw, want := range cases {
		assert.Equal(t, want, DetectContentType(raw), raw)
	}
}

func TestTitleFromURL(t *testing.T) {
	cases := map[string]string{
		"https://example.com/a/b/some_file-name.tar": "some file name",
		"https://example.com/docs/":                  "docs",
		"https://example.com":                        "example.com",
		"https://www.example.com/":                   "www.example.com",
		"https://example.com/hello%20world":          "hello world",
		"https://example.com/.html":                  "example.com",
		"https://example.com/docs/.env":              "example.com",
		"https://example.com/a%252Fb":                "a%2Fb",
		"https://example.com/-_-":                    "example.com",
	}
	for raw, want := range cases {
		u, err := url.Parse(raw)
		require.NoError(t, err)
		assert.Equal(t, want, TitleFromURL(u), raw)
	}
}

func TestBuildLink_RejectsOverlongURL(t *testing.T) {
	base := "https://example.com/"
	_, err := fixedService().BuildLink(Input{URL: base + strings.Repeat("a", MaxURLLength-len(base)+1)})
	assert.ErrorIs(t, err, apperr.ErrInvalidURL)

	link, err := fixedService().BuildLink(Input{URL: base + strings.Repeat("a", MaxURLLength-len(base))})
	require.NoError(t, err)
	assert.Len(t, link.URL, MaxURLLength)
}
