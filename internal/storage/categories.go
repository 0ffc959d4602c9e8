package storage

import (
	"context"

	"linkkeeper/internal/domain"
)

// CategoryRepository persists domain.Category records. Names are unique.
type CategoryRepository struct {
	store *Store
}

func (r *CategoryRepository) Insert(ctx context.Context, c domain.Category) (domain.Category, error) {
	if err := r.store.Insert(ctx, CollCategories, &c); err != nil {
		return domain.Category{}, err
	}
	return c, nil
}

func (r *CategoryRepository) Get(ctx context.Context, id string) (domain.Category, bool, error) {
	var c domain.Category
	found, err := r.store.Get(ctx, CollCategories, id, &c)
	return c, found, err
}

func (r *CategoryRepository) All(ctx context.Context) ([]domain.Category, error) {
	recs, err := r.store.GetAll(ctx, CollCategories)
	if err != nil {
		return nil, err
	}
	return castAll[domain.Category](recs)
}

// Rename changes a category's name, keeping the unique constraint.
func (r *CategoryRepository) Rename(ctx context.Context, id, name string) (domain.Category, error) {
	rec, err := r.store.Update(ctx, CollCategories, id, func(rec Record) error {
		rec.(*domain.Category).Name = name
		return nil
	})
	if err != nil {
		return domain.Category{}, err
	}
	return castOne[domain.Category](rec)
}

func (r *CategoryRepository) Delete(ctx context.Context, id string) error {
	return r.store.Delete(ctx, CollCategories, id)
}
