// Package api exposes the share-target endpoint and the JSON API over chi.
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"linkkeeper/internal/intake"
	"linkkeeper/internal/library"
	"linkkeeper/internal/reconcile"
	"linkkeeper/internal/view"
)

// Paths used by the share hand-off.
const (
	SharePath        = "/share"
	ShareConfirmPath = "/share-confirm"
	FallbackPath     = "/"
)

// Deps are the components the handlers call into.
type Deps struct {
	Queue      *intake.Queue
	View       *view.View
	Library    *library.Service
	Reconciler *reconcile.Reconciler
	Log        logrus.FieldLogger
	Clock      func() time.Time
}

// Handler holds API route handlers.
type Handler struct {
	queue      *intake.Queue
	view       *view.View
	library    *library.Service
	reconciler *reconcile.Reconciler
	validate   *requestValidator
	log        logrus.FieldLogger
	clock      func() time.Time
}

// NewHandler creates a Handler.
func NewHandler(d Deps) *Handler {
	clock := d.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Handler{
		queue:      d.Queue,
		view:       d.View,
		library:    d.Library,
		reconciler: d.Reconciler,
		validate:   newRequestValidator(),
		log:        d.Log.WithField("component", "api"),
		clock:      clock,
	}
}

// NewRouter mounts the share hand-off, the JSON API and health checks.
func NewRouter(d Deps) chi.Router {
	h := NewHandler(d)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.log))

	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "ok"})
	})

	// Share target hand-off.
	r.Post(SharePath, h.Share)
	r.Get(ShareConfirmPath, h.ShareConfirm)

	r.Route("/api", func(r chi.Router) {
		r.Get("/intake", h.ListIntake)
		r.Get("/intake/{id}", h.GetIntake)
		r.Post("/reconcile", h.Reconcile)

		r.Get("/links", h.ListLinks)
		r.Post("/links", h.CreateLink)
		r.Get("/links/counts", h.Counts)
		r.Get("/links/grouped", h.GroupedLinks)
		r.Get("/links/{id}", h.GetLink)
		r.Patch("/links/{id}", h.UpdateLink)
		r.Delete("/links/{id}", h.DeleteLink)
		r.Post("/links/{id}/read", h.MarkRead)
		r.Post("/links/{id}/unread", h.MarkUnread)
		r.Post("/links/{id}/enrich", h.EnrichLink)

		r.Get("/categories", h.ListCategories)
		r.Post("/categories", h.CreateCategory)
		r.Put("/categories/{id}", h.RenameCategory)
		r.Delete("/categories/{id}", h.DeleteCategory)

		r.Get("/settings", h.ListSettings)
		r.Get("/settings/{key}", h.GetSetting)
		r.Put("/settings/{key}", h.PutSetting)
		r.Delete("/settings/{key}", h.DeleteSetting)
	})

	return r
}

// requestLogger logs one line per request through logrus.
func requestLogger(log logrus.FieldLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.WithFields(logrus.Fields{
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     ww.Status(),
				"duration":   time.Since(start).String(),
				"request_id": middleware.GetReqID(r.Context()),
			}).Debug("HTTP request")
		})
	}
}
