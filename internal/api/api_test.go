package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"linkkeeper/internal/domain"
	"linkkeeper/internal/ingest"
	"linkkeeper/internal/intake"
	"linkkeeper/internal/library"
	"linkkeeper/internal/reconcile"
	"linkkeeper/internal/storage"
	"linkkeeper/internal/view"
)

func setupRouter(t *testing.T) chi.Router {
	t.Helper()
	log := logrus.New()
	log.SetOutput(io.Discard)

	store, err := storage.OpenInMemory(context.Background(), log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	builder := ingest.NewService()
	return NewRouter(Deps{
		Queue:      intake.NewQueue(store.Intake(), log),
		View:       view.New(store.Links()),
		Library:    library.NewService(store.Links(), store.Categories(), store.Settings(), builder, log),
		Reconciler: reconcile.New(store.Intake(), store.Links(), builder, log),
		Log:        log,
	})
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func share(t *testing.T, h http.Handler, ctx context.Context, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, SharePath, strings.NewReader(form.Encode())).WithContext(ctx)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}

func TestShareHandOffAndReconcile(t *testing.T) {
	r := setupRouter(t)

	rec := share(t, r, context.Background(), url.Values{
		"title": {"Cool"},
		"text":  {"look https://example.com/a-b_c.html wow"},
	})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, ShareConfirmPath, loc.Path)
	id := loc.Query().Get("id")
	require.NotEmpty(t, id)

	rec = do(t, r, http.MethodGet, loc.String(), "")
	require.Equal(t, http.StatusOK, rec.Code)
	conf := decodeBody[shareConfirmation](t, rec)
	assert.Equal(t, id, conf.Intake.ID)
	assert.False(t, conf.Intake.Processed)
	assert.Equal(t, domain.SourceWeb, conf.Intake.Source)
	assert.Equal(t, "https://example.com/a-b_c.html", conf.Candidate)
	assert.Equal(t, reconcile.StatusPending, conf.Status)

	// Nothing is saved until the reconciler runs.
	counts := decodeBody[view.Counts](t, do(t, r, http.MethodGet, "/api/links/counts", ""))
	assert.Equal(t, 0, counts.All)

	rec = do(t, r, http.MethodPost, "/api/reconcile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decodeBody[reconcile.Report](t, rec)
	assert.Equal(t, 1, report.Created)

	rec = do(t, r, http.MethodGet, "/api/intake/"+id, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decodeBody[shareConfirmation](t, rec).Intake.Processed)

	list := decodeBody[linkList](t, do(t, r, http.MethodGet, "/api/links?filter=unread", ""))
	require.Len(t, list.Links, 1)
	got := list.Links[0]
	assert.Equal(t, "https://example.com/a-b_c.html", got.URL)
	assert.Equal(t, "Cool", got.Title)
	assert.Equal(t, domain.ProvenanceShare, got.SharedFrom)
	assert.Equal(t, "just now", got.Age)

	// Sharing the same URL again is absorbed.
	share(t, r, context.Background(), url.Values{"url": {"https://example.com/a-b_c.html"}})
	report = decodeBody[reconcile.Report](t, do(t, r, http.MethodPost, "/api/reconcile", ""))
	assert.Equal(t, 1, report.Duplicates)
	counts = decodeBody[view.Counts](t, do(t, r, http.MethodGet, "/api/links/counts", ""))
	assert.Equal(t, 1, counts.All)
}

func TestShareFailureRedirectsToRoot(t *testing.T) {
	r := setupRouter(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	rec := share(t, r, ctx, url.Values{"url": {"https://example.com"}})
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, FallbackPath, rec.Header().Get("Location"))
}

func TestListIntakeKeepsRejectedShares(t *testing.T) {
	r := setupRouter(t)
	share(t, r, context.Background(), url.Values{"text": {"remember the blue one"}})
	share(t, r, context.Background(), url.Values{"url": {"https://example.com/ok"}})

	pending := decodeBody[[]shareConfirmation](t, do(t, r, http.MethodGet, "/api/intake?status=pending", ""))
	assert.Len(t, pending, 2)

	do(t, r, http.MethodPost, "/api/reconcile", "")

	rejected := decodeBody[[]shareConfirmation](t, do(t, r, http.MethodGet, "/api/intake?status=rejected", ""))
	require.Len(t, rejected, 1)
	assert.Equal(t, "remember the blue one", rejected[0].Intake.Text)
	assert.True(t, rejected[0].Intake.Processed)

	all := decodeBody[[]shareConfirmation](t, do(t, r, http.MethodGet, "/api/intake", ""))
	require.Len(t, all, 2)
	assert.Equal(t, reconcile.StatusSaved, all[1].Status)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/intake?status=lost", "").Code)
}

func TestShareConfirmErrors(t *testing.T) {
	r := setupRouter(t)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, ShareConfirmPath, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, ShareConfirmPath+"?id=missing", "").Code)
}

func TestLinkLifecycle(t *testing.T) {
	r := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/links", `{"url":"https://www.youtube.com/watch?v=1","note":"later"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	link := decodeBody[domain.Link](t, rec)
	assert.Equal(t, "youtube.com", link.Domain)
	assert.Equal(t, domain.ContentVideo, link.Metadata.ContentType)
	assert.Equal(t, domain.ProvenanceManual, link.SharedFrom)

	rec = do(t, r, http.MethodPost, "/api/links", `{"url":"https://www.youtube.com/watch?v=1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, r, http.MethodPost, "/api/links/"+link.ID+"/read", "")
	require.Equal(t, http.StatusOK, rec.Code)
	read := decodeBody[domain.Link](t, rec)
	assert.True(t, read.IsRead)
	require.NotNil(t, read.ReadAt)

	counts := decodeBody[view.Counts](t, do(t, r, http.MethodGet, "/api/links/counts", ""))
	assert.Equal(t, view.Counts{All: 1, Unread: 0, Read: 1}, counts)

	rec = do(t, r, http.MethodPost, "/api/links/"+link.ID+"/unread", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody[domain.Link](t, rec).ReadAt)

	rec = do(t, r, http.MethodPatch, "/api/links/"+link.ID, `{"title":"Talk","tags":["go","go","db"]}`)
	require.Equal(t, http.StatusOK, rec.Code)
	edited := decodeBody[domain.Link](t, rec)
	assert.Equal(t, "Talk", edited.Title)
	assert.Equal(t, []string{"go", "db"}, edited.Tags)

	list := decodeBody[linkList](t, do(t, r, http.MethodGet, "/api/links?tag=db", ""))
	assert.Equal(t, 1, list.Total)
	list = decodeBody[linkList](t, do(t, r, http.MethodGet, "/api/links?domain=youtube.com&filter=unread", ""))
	assert.Equal(t, 1, list.Total)
	list = decodeBody[linkList](t, do(t, r, http.MethodGet, "/api/links?filter=read", ""))
	assert.Equal(t, 0, list.Total)
	list = decodeBody[linkList](t, do(t, r, http.MethodGet, "/api/links?domain=example.com", ""))
	assert.Equal(t, 0, list.Total)

	groups := decodeBody[[]groupItem](t, do(t, r, http.MethodGet, "/api/links/grouped", ""))
	require.Len(t, groups, 1)
	assert.Equal(t, view.BucketToday, groups[0].Bucket)

	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/links/"+link.ID, "").Code)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/links/"+link.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/links/"+link.ID, "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodPost, "/api/links/"+link.ID+"/read", "").Code)
}

func TestCreateLinkValidation(t *testing.T) {
	r := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/links", `{"title":"no url"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decodeBody[errResponse](t, rec)
	require.Len(t, body.Fields, 1)
	assert.Equal(t, "url", body.Fields[0].Field)

	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/links", `{"url":"not a url"}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPost, "/api/links", `{"url":"https://a.com","extra":1}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodGet, "/api/links?sort=colour", "").Code)
}

func TestEnrichDisabled(t *testing.T) {
	r := setupRouter(t)
	link := decodeBody[domain.Link](t, do(t, r, http.MethodPost, "/api/links", `{"url":"https://example.com"}`))
	assert.Equal(t, http.StatusNotImplemented, do(t, r, http.MethodPost, "/api/links/"+link.ID+"/enrich", "").Code)
}

func TestCategoriesAndSettings(t *testing.T) {
	r := setupRouter(t)

	rec := do(t, r, http.MethodPost, "/api/categories", `{"name":"reading"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	cat := decodeBody[domain.Category](t, rec)
	assert.Equal(t, http.StatusConflict, do(t, r, http.MethodPost, "/api/categories", `{"name":"reading"}`).Code)

	rec = do(t, r, http.MethodPut, "/api/categories/"+cat.ID, `{"name":"later"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "later", decodeBody[domain.Category](t, rec).Name)

	cats := decodeBody[[]domain.Category](t, do(t, r, http.MethodGet, "/api/categories", ""))
	assert.Len(t, cats, 1)
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/categories/"+cat.ID, "").Code)

	assert.Equal(t, http.StatusNotFound, do(t, r, http.MethodGet, "/api/settings/theme", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, r, http.MethodPut, "/api/settings/theme", `{oops`).Code)
	rec = do(t, r, http.MethodPut, "/api/settings/theme", `"dark"`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = do(t, r, http.MethodGet, "/api/settings/theme", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `"dark"`, string(decodeBody[domain.Setting](t, rec).Value))
	assert.Equal(t, http.StatusNoContent, do(t, r, http.MethodDelete, "/api/settings/theme", "").Code)
}

func TestHealthLive(t *testing.T) {
	r := setupRouter(t)
	rec := do(t, r, http.MethodGet, "/health/live", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestItemsUseClock(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	now := time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)
	h := NewHandler(Deps{Log: log, Clock: func() time.Time { return now }})

	items := h.items([]domain.Link{{CreatedAt: now.Add(-3 * time.Hour).UnixMilli()}})
	require.Len(t, items, 1)
	assert.Equal(t, "3h ago", items[0].Age)
}
