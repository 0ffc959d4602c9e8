package library

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/ingest"
	"linkkeeper/internal/scraper"
	"linkkeeper/internal/storage"
)

func setupService(t *testing.T) *Service {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := storage.OpenInMemory(context.Background(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return NewService(store.Links(), store.Categories(), store.Settings(), ingest.NewService(), log)
}

func TestAddLink(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	link, err := svc.AddLink(ctx, "https://example.com/a", "", "note")
	require.NoError(t, err)
	assert.Equal(t, "a", link.Title)
	assert.Equal(t, "note", link.Description)

	_, err = svc.AddLink(ctx, "https://example.com/a", "", "")
	assert.ErrorIs(t, err, apperr.ErrConstraintViolation)
	assert.Contains(t, err.Error(), link.ID)

	_, err = svc.AddLink(ctx, "example.com/a", "", "")
	assert.ErrorIs(t, err, apperr.ErrInvalidURL)
}

func TestReadToggleKeepsInvariant(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	link, err := svc.AddLink(ctx, "https://example.com/a", "", "")
	require.NoError(t, err)

	svc.clock = func() time.Time { return time.UnixMilli(link.CreatedAt + 10) }
	read, err := svc.MarkRead(ctx, link.ID)
	require.NoError(t, err)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)
	assert.Equal(t, link.CreatedAt+10, *read.ReadAt)
	assert.GreaterOrEqual(t, read.UpdatedAt, link.UpdatedAt)

	unread, err := svc.MarkUnread(ctx, link.ID)
	require.NoError(t, err)
	assert.False(t, unread.IsRead)
	assert.Nil(t, unread.ReadAt)
	assert.Equal(t, link.ID, unread.ID)

	_, err = svc.MarkRead(ctx, "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestEditLink(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	link, err := svc.AddLink(ctx, "https://example.com/a", "", "")
	require.NoError(t, err)

	ghost := "no-such-category"
	_, err = svc.EditLink(ctx, link.ID, Edit{Category: &ghost})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	cat, err := svc.CreateCategory(ctx, " reading ")
	require.NoError(t, err)
	assert.Equal(t, "reading", cat.Name)

	title := "New title"
	tags := []string{"go", "go", "db"}
	author := "Rob"
	edited, err := svc.EditLink(ctx, link.ID, Edit{Title: &title, Tags: &tags, Category: &cat.ID, Author: &author})
	require.NoError(t, err)
	assert.Equal(t, "New title", edited.Title)
	assert.Equal(t, []string{"go", "db"}, edited.Tags)
	require.NotNil(t, edited.Category)
	assert.Equal(t, cat.ID, *edited.Category)
	require.NotNil(t, edited.Metadata.Author)

	none := ""
	edited, err = svc.EditLink(ctx, link.ID, Edit{Category: &none})
	require.NoError(t, err)
	assert.Nil(t, edited.Category)
	assert.Equal(t, "New title", edited.Title, "untouched fields are kept")
}

func TestDeleteLinkIsIdempotent(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	link, err := svc.AddLink(ctx, "https://example.com/a", "", "")
	require.NoError(t, err)

	require.NoError(t, svc.DeleteLink(ctx, link.ID))
	require.NoError(t, svc.DeleteLink(ctx, link.ID))
	_, err = svc.GetLink(ctx, link.ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestCategories(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.CreateCategory(ctx, "  ")
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	a, err := svc.CreateCategory(ctx, "a")
	require.NoError(t, err)
	_, err = svc.CreateCategory(ctx, "a")
	assert.ErrorIs(t, err, apperr.ErrConstraintViolation)

	renamed, err := svc.RenameCategory(ctx, a.ID, "b")
	require.NoError(t, err)
	assert.Equal(t, "b", renamed.Name)

	require.NoError(t, svc.DeleteCategory(ctx, a.ID))
	all, err := svc.Categories(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestSettings(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()

	_, err := svc.Setting(ctx, "theme")
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = svc.PutSetting(ctx, "theme", json.RawMessage(`{bad`))
	assert.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = svc.PutSetting(ctx, "theme", json.RawMessage(`"dark"`))
	require.NoError(t, err)
	got, err := svc.Setting(ctx, "theme")
	require.NoError(t, err)
	assert.JSONEq(t, `"dark"`, string(got.Value))

	require.NoError(t, svc.DeleteSetting(ctx, "theme"))
	all, err := svc.Settings(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

type stubScraper struct {
	meta scraper.Metadata
	err  error
}

func (s stubScraper) ScrapeMetadata(context.Context, string) (scraper.Metadata, error) {
	return s.meta, s.err
}

func TestEnrichLink(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	link, err := svc.AddLink(ctx, "https://example.com/a", "", "mine")
	require.NoError(t, err)

	_, err = svc.EnrichLink(ctx, link.ID)
	assert.ErrorIs(t, err, ErrEnrichDisabled)

	svc.SetScraper(stubScraper{err: errors.New("offline")})
	_, err = svc.EnrichLink(ctx, link.ID)
	assert.Error(t, err)

	svc.SetScraper(stubScraper{meta: scraper.Metadata{Title: "Real Title", Image: "https://example.com/og.png", Description: "page text"}})
	enriched, err := svc.EnrichLink(ctx, link.ID)
	require.NoError(t, err)
	assert.Equal(t, "Real Title", enriched.Title)
	require.NotNil(t, enriched.Thumbnail)
	assert.Equal(t, "https://example.com/og.png", *enriched.Thumbnail)
	assert.Equal(t, "mine", enriched.Description, "user note is never overwritten")
	assert.Nil(t, enriched.Metadata.Author)
}

func TestEditLink_BlankTitleFallsBackToURL(t *testing.T) {
	svc := setupService(t)
	ctx := context.Background()
	link, err := svc.AddLink(ctx, "https://example.com/docs/My-Guide.html", "Custom", "")
	require.NoError(t, err)
	assert.Equal(t, "Custom", link.Title)

	blank := "  "
	edited, err := svc.EditLink(ctx, link.ID, Edit{Title: &blank})
	require.NoError(t, err)
	assert.Equal(t, "My Guide", edited.Title)
}
