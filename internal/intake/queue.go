// Package intake is the write side of the share hand-off. Producers that may
// run without the foreground application (the share endpoint, the Telegram
// bot) enqueue raw payloads here; the reconciler turns them into links later.
package intake

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkkeeper/internal/domain"
)

// Repository is the storage the queue needs.
type Repository interface {
	Insert(ctx context.Context, rec domain.SharedIntake) (domain.SharedIntake, error)
	Get(ctx context.Context, id string) (domain.SharedIntake, bool, error)
	All(ctx context.Context) ([]domain.SharedIntake, error)
	Delete(ctx context.Context, id string) error
}

// Payload is a share event exactly as delivered.
type Payload struct {
	URL    string
	Title  string
	Text   string
	Source domain.IntakeSource
}

// Queue enqueues share payloads without validating them.
type Queue struct {
	repo  Repository
	log   logrus.FieldLogger
	clock func() time.Time
	newID func() string
}

// NewQueue creates a queue on top of repo.
func NewQueue(repo Repository, logger logrus.FieldLogger) *Queue {
	return &Queue{
		repo:  repo,
		log:   logger.WithField("component", "intake"),
		clock: time.Now,
		newID: uuid.NewString,
	}
}

// Enqueue stores payload as an unprocessed intake record.
func (q *Queue) Enqueue(ctx context.Context, p Payload) (domain.SharedIntake, error) {
	source := p.Source
	if source == "" {
		source = domain.SourceWeb
	}
	rec := domain.SharedIntake{
		ID:        q.newID(),
		URL:       p.URL,
		Title:     p.Title,
		Text:      p.Text,
		Timestamp: q.clock().UnixMilli(),
		Source:    source,
	}

	log := q.log.WithFields(logrus.Fields{"intake_id": rec.ID, "source": source})
	saved, err := q.repo.Insert(ctx, rec)
	if err != nil {
		log.WithError(err).Error("Failed to enqueue shared payload")
		return domain.SharedIntake{}, fmt.Errorf("enqueue share: %w", err)
	}
	log.Info("Shared payload enqueued")
	return saved, nil
}

// Get returns one intake record for the confirmation view. It never mutates.
func (q *Queue) Get(ctx context.Context, id string) (domain.SharedIntake, bool, error) {
	return q.repo.Get(ctx, id)
}

// List returns every intake record in arrival order.
func (q *Queue) List(ctx context.Context) ([]domain.SharedIntake, error) {
	return q.repo.All(ctx)
}

// Prune deletes processed records received before cutoff and returns how
// many were removed. Unprocessed records are always kept.
func (q *Queue) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	all, err := q.repo.All(ctx)
	if err != nil {
		return 0, fmt.Errorf("prune intake: %w", err)
	}
	limit := cutoff.UnixMilli()
	removed := 0
	for _, rec := range all {
		if !rec.Processed || rec.Timestamp >= limit {
			continue
		}
		if err := q.repo.Delete(ctx, rec.ID); err != nil {
			return removed, fmt.Errorf("prune intake %s: %w", rec.ID, err)
		}
		removed++
	}
	if removed > 0 {
		q.log.WithField("removed", removed).Info("Pruned processed intake records")
	}
	return removed, nil
}
