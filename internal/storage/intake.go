package storage

import (
	"context"
	"sort"

	"linkkeeper/internal/domain"
)

// IntakeRepository persists domain.SharedIntake records.
type IntakeRepository struct {
	store *Store
}

// Insert stores a new intake record.
func (r *IntakeRepository) Insert(ctx context.Context, rec domain.SharedIntake) (domain.SharedIntake, error) {
	if err := r.store.Insert(ctx, CollSharedIntake, &rec); err != nil {
		return domain.SharedIntake{}, err
	}
	return rec, nil
}

// Get returns the intake record with id.
func (r *IntakeRepository) Get(ctx context.Context, id string) (domain.SharedIntake, bool, error) {
	var rec domain.SharedIntake
	found, err := r.store.Get(ctx, CollSharedIntake, id, &rec)
	return rec, found, err
}

// All returns every intake record.
func (r *IntakeRepository) All(ctx context.Context) ([]domain.SharedIntake, error) {
	recs, err := r.store.GetAll(ctx, CollSharedIntake)
	if err != nil {
		return nil, err
	}
	return castAll[domain.SharedIntake](recs)
}

// Unprocessed returns the records still waiting for reconciliation, oldest first.
func (r *IntakeRepository) Unprocessed(ctx context.Context) ([]domain.SharedIntake, error) {
	recs, err := r.store.FindByIndex(ctx, CollSharedIntake, domain.IntakeFieldProcessed, domain.EncodeBool(false))
	if err != nil {
		return nil, err
	}
	out, err := castAll[domain.SharedIntake](recs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

// MarkProcessed flips processed to true and records the produced link.
// A record that is already processed is left untouched.
func (r *IntakeRepository) MarkProcessed(ctx context.Context, id, linkID string) (domain.SharedIntake, error) {
	rec, err := r.store.Update(ctx, CollSharedIntake, id, func(rec Record) error {
		in := rec.(*domain.SharedIntake)
		if in.Processed {
			return nil
		}
		in.Processed = true
		in.LinkID = linkID
		return nil
	})
	if err != nil {
		return domain.SharedIntake{}, err
	}
	return castOne[domain.SharedIntake](rec)
}

// Delete removes an intake record.
func (r *IntakeRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollSharedIntake, id)
}
