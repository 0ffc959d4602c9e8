package api

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"linkkeeper/internal/domain"
	"linkkeeper/internal/intake"
	"linkkeeper/internal/reconcile"
)

// shareConfirmation is what the confirmation view shows before the
// reconciler has run.
type shareConfirmation struct {
	Intake    domain.SharedIntake `json:"intake"`
	Candidate string              `json:"candidate"`
	Status    reconcile.Status    `json:"status"`
}

func confirmationOf(rec domain.SharedIntake) shareConfirmation {
	return shareConfirmation{
		Intake:    rec,
		Candidate: reconcile.CandidateURL(rec),
		Status:    reconcile.StatusOf(rec),
	}
}

// Share handles POST /share with form fields url, title and text. It
// always answers with a 303: to the confirmation view on success, to the
// root when the payload could not be stored.
func (h *Handler) Share(w http.ResponseWriter, r *http.Request) {
	log := h.log.WithField("handler", "share")

	if err := r.ParseMultipartForm(10 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		log.WithError(err).Warn("Unreadable share form")
		http.Redirect(w, r, FallbackPath, http.StatusSeeOther)
		return
	}

	rec, err := h.queue.Enqueue(r.Context(), intake.Payload{
		URL:    r.FormValue("url"),
		Title:  r.FormValue("title"),
		Text:   r.FormValue("text"),
		Source: domain.SourceWeb,
	})
	if err != nil {
		log.WithError(err).Error("Share hand-off failed, redirecting to root")
		http.Redirect(w, r, FallbackPath, http.StatusSeeOther)
		return
	}

	target := ShareConfirmPath + "?" + url.Values{"id": {rec.ID}}.Encode()
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// ShareConfirm handles GET /share-confirm?id=.
func (h *Handler) ShareConfirm(w http.ResponseWriter, r *http.Request) {
	h.writeIntake(w, r, strings.TrimSpace(r.URL.Query().Get("id")))
}

// GetIntake handles GET /api/intake/{id}.
func (h *Handler) GetIntake(w http.ResponseWriter, r *http.Request) {
	h.writeIntake(w, r, chi.URLParam(r, "id"))
}

func (h *Handler) writeIntake(w http.ResponseWriter, r *http.Request, id string) {
	if id == "" {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody("id is required"))
		return
	}
	rec, found, err := h.queue.Get(r.Context(), id)
	if err != nil {
		writeError(w, h.log, "get intake", err)
		return
	}
	if !found {
		writeJSON(w, h.log, http.StatusNotFound, errorBody("not found"))
		return
	}
	writeJSON(w, h.log, http.StatusOK, confirmationOf(rec))
}

// ListIntake handles GET /api/intake?status=. Rejected shares stay listed
// with their raw text until pruned.
func (h *Handler) ListIntake(w http.ResponseWriter, r *http.Request) {
	status, err := reconcile.ParseStatus(r.URL.Query().Get("status"))
	if err != nil {
		writeJSON(w, h.log, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	recs, err := h.queue.List(r.Context())
	if err != nil {
		writeError(w, h.log, "list intake", err)
		return
	}
	out := make([]shareConfirmation, 0, len(recs))
	for _, rec := range recs {
		c := confirmationOf(rec)
		if status != "" && c.Status != status {
			continue
		}
		out = append(out, c)
	}
	writeJSON(w, h.log, http.StatusOK, out)
}

// Reconcile handles POST /api/reconcile and runs one pass immediately.
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	report, err := h.reconciler.Run(r.Context())
	if err != nil {
		writeError(w, h.log, "reconcile", err)
		return
	}
	writeJSON(w, h.log, http.StatusOK, report)
}
