package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"linkkeeper/internal/domain"
	"linkkeeper/internal/library"
	"linkkeeper/internal/view"
)

// linkItem is a link plus its relative age label.
type linkItem struct {
	domain.Link
	Age string `json:"age"`
}

type linkList struct {
	Links []linkItem `json:"links"`
	Total int        `json:"total"`
}

type groupItem struct {
	Bucket view.Bucket `json:"bucket"`
	Links  []linkItem  `json:"links"`
}

func (h *Handler) items(links []domain.Link) []linkItem {
	now := h.clock()
	out := make([]linkItem, 0, len(links))
	for _, l := range links {
		out = append(out, linkItem{Link: l, Age: view.RelativeTime(l.CreatedAt, now)})
	}
	return out
}

// parseQuery reads filter, sort, order, domain, category and tag from the
// query string.
func parseQuery(r *http.Request) (view.Query, error) {
	qs := r.URL.Query()
	filter, err := view.ParseFilter(qs.Get("filter"))
	if err != nil {
		return view.Query{}, err
	}
	sort, err := view.ParseSort(qs.Get("sort"))
	if err != nil {
		return view.Query{}, err
	}
	order, err := view.ParseOrder(qs.Get("order"))
	if err != nil {
		return view.Query{}, err
	}
	return view.Query{
		Filter:   filter,
		Sort:     sort,
		Order:    order,
		Domain:   qs.Get("domain"),
		Category: qs.Get("category"),
		Tag:      qs.Get("tag"),
	}, nil
}

// ListLinks handles GET /api/links.
func (h *Handler) ListLinks(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	links, err := h.view.List(r.Context(), q)
	if err != nil {
		writeError(w, h.log, "list links", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, linkList{Links: h.items(links), Total: len(links)})
}

// GroupedLinks handles GET /api/links/grouped. Groups are ordered from
// today to older; empty groups are left out.
func (h *Handler) GroupedLinks(w http.ResponseWriter, r *http.Request) {
	q, err := parseQuery(r)
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	links, err := h.view.List(r.Context(), q)
	if err != nil {
		writeError(w, h.log, "group links", err)
		return
	}
	groups := view.GroupByRecency(links, h.clock())
	out := make([]groupItem, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupItem{Bucket: g.Bucket, Links: h.items(g.Links)})
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// Counts handles GET /api/links/counts.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.view.Counts(r.Context())
	if err != nil {
		writeError(w, h.log, "count links", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, counts)
}

// CreateLink handles POST /api/links.
func (h *Handler) CreateLink(w http.ResponseWriter, r *http.Request) {
	var req CreateLinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	link, err := h.library.AddLink(r.Context(), req.URL, req.Title, req.Note)
	if err != nil {
		writeError(w, h.log, "create link", err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, link)
}

// GetLink handles GET /api/links/{id}.
func (h *Handler) GetLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.library.GetLink(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "get link", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, link)
}

// UpdateLink handles PATCH /api/links/{id}.
func (h *Handler) UpdateLink(w http.ResponseWriter, r *http.Request) {
	var req UpdateLinkRequest
	if !h.decode(w, r, &req) {
		return
	}
	link, err := h.library.EditLink(r.Context(), chi.URLParam(r, "id"), req.edit())
	if err != nil {
		writeError(w, h.log, "update link", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, link)
}

// DeleteLink handles DELETE /api/links/{id}. Deleting a missing link
// succeeds.
func (h *Handler) DeleteLink(w http.ResponseWriter, r *http.Request) {
	if err := h.library.DeleteLink(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, "delete link", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MarkRead handles POST /api/links/{id}/read.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	link, err := h.library.MarkRead(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "mark read", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, link)
}

// MarkUnread handles POST /api/links/{id}/unread.
func (h *Handler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	link, err := h.library.MarkUnread(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.log, "mark unread", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, link)
}

// EnrichLink handles POST /api/links/{id}/enrich.
func (h *Handler) EnrichLink(w http.ResponseWriter, r *http.Request) {
	link, err := h.library.EnrichLink(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, library.ErrEnrichDisabled) {
		writeJSON(w, h.log, http.StatusNotImplemented, errorBody(err.Error()))
		return
	}
	if err != nil {
		writeError(w, h.log, "enrich link", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, link)
}

// ListCategories handles GET /api/categories.
func (h *Handler) ListCategories(w http.ResponseWriter, r *http.Request) {
	cats, err := h.library.Categories(r.Context())
	if err != nil {
		writeError(w, h.log, "list categories", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, cats)
}

// CreateCategory handles POST /api/categories.
func (h *Handler) CreateCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat, err := h.library.CreateCategory(r.Context(), req.Name)
	if err != nil {
		writeError(w, h.log, "create category", err)
		return
	}
	writeJSON(w, h.log, http.StatusCreated, cat)
}

// RenameCategory handles PUT /api/categories/{id}.
func (h *Handler) RenameCategory(w http.ResponseWriter, r *http.Request) {
	var req CategoryRequest
	if !h.decode(w, r, &req) {
		return
	}
	cat, err := h.library.RenameCategory(r.Context(), chi.URLParam(r, "id"), req.Name)
	if err != nil {
		writeError(w, h.log, "rename category", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, cat)
}

// DeleteCategory handles DELETE /api/categories/{id}.
func (h *Handler) DeleteCategory(w http.ResponseWriter, r *http.Request) {
	if err := h.library.DeleteCategory(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, h.log, "delete category", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListSettings handles GET /api/settings.
func (h *Handler) ListSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.library.Settings(r.Context())
	if err != nil {
		writeError(w, h.log, "list settings", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, settings)
}

// GetSetting handles GET /api/settings/{key}.
func (h *Handler) GetSetting(w http.ResponseWriter, r *http.Request) {
	st, err := h.library.Setting(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		writeError(w, h.log, "get setting", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, st)
}

// PutSetting handles PUT /api/settings/{key}. The body is the raw JSON value.
func (h *Handler) PutSetting(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody("unreadable body"))
		return
	}
	st, err := h.library.PutSetting(r.Context(), chi.URLParam(r, "key"), json.RawMessage(raw))
	if err != nil {
		writeError(w, h.log, "put setting", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, st)
}

// DeleteSetting handles DELETE /api/settings/{key}.
func (h *Handler) DeleteSetting(w http.ResponseWriter, r *http.Request) {
	if err := h.library.DeleteSetting(r.Context(), chi.URLParam(r, "key")); err != nil {
		writeError(w, h.log, "delete setting", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// decode reads and validates a JSON body, writing a 400 on failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := decodeJSON(w, r, dst); err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	if fields := h.validate.validate(dst); len(fields) > 0 {
		writeJSON(w, h.log, http.StatusBadRequest, errResponse{Error: "validation failed", Fields: fields})
		return false
	}
	return true
}
