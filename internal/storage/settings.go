package storage

import (
	"context"
	"encoding/json"

	"linkkeeper/internal/domain"
)

// SettingsRepository is the key/value settings mapping.
type SettingsRepository struct {
	store *Store
}

// Get returns the setting stored under key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (domain.Setting, bool, error) {
	var s domain.Setting
	found, err := r.store.Get(ctx, CollSettings, key, &s)
	return s, found, err
}

// Put stores value under key, replacing any previous value.
func (r *SettingsRepository) Put(ctx context.Context, key string, value json.RawMessage) (domain.Setting, error) {
	s := domain.Setting{Key: key, Value: value}
	if err := r.store.Put(ctx, CollSettings, &s); err != nil {
		return domain.Setting{}, err
	}
	return s, nil
}

// All returns every setting.
func (r *SettingsRepository) All(ctx context.Context) ([]domain.Setting, error) {
	recs, err := r.store.GetAll(ctx, CollSettings)
	if err != nil {
		return nil, err
	}
	return castAll[domain.Setting](recs)
}

// Delete removes a setting.
func (r *SettingsRepository) Delete(ctx context.Context, key string) error {
	return r.store.Delete(ctx, CollSettings, key)
}
