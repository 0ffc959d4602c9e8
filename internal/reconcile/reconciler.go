// Package reconcile drains unprocessed share intake records into links.
//
// The link insert always happens before the intake record is marked
// processed. If the process dies between the two steps the record is
// retried on the next pass, and the unique url index turns the retry into
// a duplicate that is absorbed, so each share produces at most one link.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/domain"
	"linkkeeper/internal/ingest"
)

var urlPattern = regexp.MustCompile(`https?://[^\s]+`)

// IntakeStore is the read/mark side of the intake queue.
type IntakeStore interface {
	Unprocessed(ctx context.Context) ([]domain.SharedIntake, error)
	MarkProcessed(ctx context.Context, id, linkID string) (domain.SharedIntake, error)
}

// LinkStore receives the links built from intake records.
type LinkStore interface {
	Insert(ctx context.Context, link domain.Link) (domain.Link, error)
}

// Builder builds a link from a candidate URL.
type Builder interface {
	BuildLink(in ingest.Input) (domain.Link, error)
}

// Report summarises one reconciliation pass.
type Report struct {
	Processed  int `json:"processed"`
	Created    int `json:"created"`
	Duplicates int `json:"duplicates"`
	Rejected   int `json:"rejected"`
	Failed     int `json:"failed"`
}

// Reconciler turns share intake records into links, exactly once each.
// Passes never overlap.
type Reconciler struct {
	mu      sync.Mutex
	intake  IntakeStore
	links   LinkStore
	builder Builder
	log     logrus.FieldLogger
}

// New creates a Reconciler.
func New(intake IntakeStore, links LinkStore, builder Builder, logger logrus.FieldLogger) *Reconciler {
	return &Reconciler{
		intake:  intake,
		links:   links,
		builder: builder,
		log:     logger.WithField("component", "reconciler"),
	}
}

// Run processes every unprocessed intake record once. A storage failure on
// one record leaves it unprocessed for the next pass and does not stop the
// others. Run returns an error only if the pending set cannot be read or
// ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) (Report, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var report Report

	pending, err := r.intake.Unprocessed(ctx)
	if err != nil {
		r.log.WithError(err).Error("Failed to load unprocessed intake records")
		return report, fmt.Errorf("load unprocessed intake: %w", err)
	}
	if len(pending) == 0 {
		return report, nil
	}
	r.log.WithField("pending", len(pending)).Info("Reconciling shared intake")

	for _, rec := range pending {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if rec.Processed {
			continue
		}
		outcome, err := r.reconcileOne(ctx, rec)
		if err != nil {
			report.Failed++
			r.log.WithError(err).WithField("intake_id", rec.ID).Warn("Intake record left for the next pass")
			continue
		}
		report.Processed++
		switch outcome {
		case outcomeCreated:
			report.Created++
		case outcomeDuplicate:
			report.Duplicates++
		case outcomeRejected:
			report.Rejected++
		}
	}

	r.log.WithFields(logrus.Fields{
		"processed":  report.Processed,
		"created":    report.Created,
		"duplicates": report.Duplicates,
		"rejected":   report.Rejected,
		"failed":     report.Failed,
	}).Info("Reconciliation pass finished")
	return report, nil
}

type outcome int

const (
	outcomeCreated outcome = iota
	outcomeDuplicate
	outcomeRejected
)

func (r *Reconciler) reconcileOne(ctx context.Context, rec domain.SharedIntake) (outcome, error) {
	log := r.log.WithField("intake_id", rec.ID)
	candidate := CandidateURL(rec)

	link, err := r.builder.BuildLink(ingest.Input{
		URL:        candidate,
		Title:      rec.Title,
		Provenance: domain.ProvenanceShare,
		SharedText: rec.Text,
	})
	if errors.Is(err, apperr.ErrInvalidURL) {
		// Nothing link-shaped was shared. Retiring the record keeps it
		// from being rebuilt on every pass.
		log.WithField("candidate", candidate).Warn("Shared payload has no usable URL")
		if _, err := r.intake.MarkProcessed(ctx, rec.ID, ""); err != nil {
			return 0, fmt.Errorf("mark rejected intake %s: %w", rec.ID, err)
		}
		return outcomeRejected, nil
	}
	if err != nil {
		return 0, fmt.Errorf("build link for intake %s: %w", rec.ID, err)
	}

	saved, err := r.links.Insert(ctx, link)
	switch {
	case errors.Is(err, apperr.ErrConstraintViolation):
		log.WithField("url", link.URL).Info("Shared URL already saved")
		if _, err := r.intake.MarkProcessed(ctx, rec.ID, ""); err != nil {
			return 0, fmt.Errorf("mark duplicate intake %s: %w", rec.ID, err)
		}
		return outcomeDuplicate, nil
	case err != nil:
		return 0, fmt.Errorf("insert link for intake %s: %w", rec.ID, err)
	}

	if _, err := r.intake.MarkProcessed(ctx, rec.ID, saved.ID); err != nil {
		return 0, fmt.Errorf("mark intake %s: %w", rec.ID, err)
	}
	log.WithFields(logrus.Fields{"link_id": saved.ID, "url": saved.URL}).Info("Shared link saved")
	return outcomeCreated, nil
}

// Status is the outcome of an intake record as seen from outside.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSaved     Status = "saved"
	StatusDuplicate Status = "duplicate"
	StatusRejected  Status = "rejected"
)

// ParseStatus validates a status name; empty is allowed and means any.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(s)); st {
	case "", StatusPending, StatusSaved, StatusDuplicate, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("unknown intake status %q", s)
}

// StatusOf reports what became of rec. Rejected records keep their raw
// text, so a share without a usable URL is never lost silently.
func StatusOf(rec domain.SharedIntake) Status {
	switch {
	case !rec.Processed:
		return StatusPending
	case rec.LinkID != "":
		return StatusSaved
	}
	if _, err := ingest.ParseAbsolute(CandidateURL(rec)); err != nil {
		return StatusRejected
	}
	return StatusDuplicate
}

// CandidateURL picks the URL to ingest from an intake record: the explicit
// url field, else the first http(s) URL inside the text, else the text
// itself. The first match wins even when the text holds several URLs.
func CandidateURL(rec domain.SharedIntake) string {
	if u := strings.TrimSpace(rec.URL); u != "" {
		return ExtractURL(u)
	}
	return ExtractURL(rec.Text)
}

// ExtractURL returns the first http(s) URL found in text. If there is none,
// the trimmed text is returned as is; BuildLink decides whether it is usable.
func ExtractURL(text string) string {
	if m := urlPattern.FindString(text); m != "" {
		return m
	}
	return strings.TrimSpace(text)
}
