package storage

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"linkkeeper/internal/apperr"
	"linkkeeper/internal/domain"
)

// Collection names.
const (
	CollLinks        = "links"
	CollSharedIntake = "sharedIntake"
	CollCategories   = "categories"
	CollSettings     = "settings"
)

// SchemaVersion is the version the application expects on disk.
const SchemaVersion = 1

// Record is anything the store can persist.
// IndexValue returns the encoded value of an indexed field and false for
// fields the record does not know.
type Record interface {
	RecordID() string
	IndexValue(field string) (string, bool)
}

// Stamper is implemented by records that track their last modification.
type Stamper interface {
	Touch(nowMillis int64)
}

// Index declares a secondary index on a collection.
type Index struct {
	Field  string `json:"field"`
	Unique bool   `json:"unique"`
}

// Collection is the persisted definition of a collection.
type Collection struct {
	Name    string  `json:"name"`
	Indexes []Index `json:"indexes"`
}

func (c *Collection) index(field string) (Index, bool) {
	for _, idx := range c.Indexes {
		if idx.Field == field {
			return idx, true
		}
	}
	return Index{}, false
}

// Factory creates an empty record of a collection's type.
type Factory func() Record

// Migration upgrades the store to Version. Apply runs inside a single
// transaction together with the version bump.
type Migration struct {
	Version int
	Apply   func(m *Migrator) error
}

// Migrator exposes create-if-missing schema operations to a migration.
type Migrator struct {
	txn   *badger.Txn
	types map[string]Factory
}

// CreateCollection creates the collection if it does not exist and adds
// any of its indexes that are missing. Existing records are kept.
func (m *Migrator) CreateCollection(c Collection) error {
	existing, found, err := loadCollection(m.txn, c.Name)
	if err != nil {
		return err
	}
	if !found {
		existing = &Collection{Name: c.Name}
		if err := saveCollection(m.txn, existing); err != nil {
			return err
		}
	}
	for _, idx := range c.Indexes {
		if _, ok := existing.index(idx.Field); ok {
			continue
		}
		if err := m.CreateIndex(c.Name, idx); err != nil {
			return err
		}
	}
	return nil
}

// CreateIndex declares an index and backfills it from existing records.
// Backfilling a unique index fails if existing records already collide.
func (m *Migrator) CreateIndex(collection string, idx Index) error {
	c, found, err := loadCollection(m.txn, collection)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("storage: create index %s.%s: collection does not exist", collection, idx.Field)
	}
	if _, ok := c.index(idx.Field); ok {
		return nil
	}

	newRecord, ok := m.types[collection]
	if !ok {
		return fmt.Errorf("storage: no record type registered for %s", collection)
	}
	raws, err := scanRecords(m.txn, collection)
	if err != nil {
		return err
	}
	for _, raw := range raws {
		rec := newRecord()
		if err := json.Unmarshal(raw.env.Data, rec); err != nil {
			return fmt.Errorf("storage: decode %s record: %w", collection, err)
		}
		value, ok := rec.IndexValue(idx.Field)
		if !ok {
			continue
		}
		if idx.Unique {
			if err := claimUnique(m.txn, collection, idx.Field, value, rec.RecordID()); err != nil {
				return err
			}
			continue
		}
		if err := m.txn.Set(indexKey(collection, idx.Field, value, rec.RecordID()), nil); err != nil {
			return err
		}
	}

	c.Indexes = append(c.Indexes, idx)
	return saveCollection(m.txn, c)
}

// Migrations is the ordered migration list of the link keeper schema.
var Migrations = []Migration{
	{
		Version: 1,
		Apply: func(m *Migrator) error {
			for _, c := range []Collection{
				{Name: CollLinks, Indexes: []Index{
					{Field: domain.LinkFieldURL, Unique: true},
					{Field: domain.LinkFieldIsRead},
					{Field: domain.LinkFieldCreatedAt},
					{Field: domain.LinkFieldDomain},
				}},
				{Name: CollSharedIntake, Indexes: []Index{
					{Field: domain.IntakeFieldProcessed},
					{Field: domain.IntakeFieldTimestamp},
				}},
				{Name: CollCategories, Indexes: []Index{
					{Field: domain.CategoryFieldName, Unique: true},
				}},
				{Name: CollSettings},
			} {
				if err := m.CreateCollection(c); err != nil {
					return err
				}
			}
			return nil
		},
	},
}

// Types maps each collection to its record type.
var Types = map[string]Factory{
	CollLinks:        func() Record { return &domain.Link{} },
	CollSharedIntake: func() Record { return &domain.SharedIntake{} },
	CollCategories:   func() Record { return &domain.Category{} },
	CollSettings:     func() Record { return &domain.Setting{} },
}

func loadCollection(txn *badger.Txn, name string) (*Collection, bool, error) {
	item, err := txn.Get(metaCollectionKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return nil, false, err
	}
	var c Collection
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, false, fmt.Errorf("storage: decode collection %s: %w", name, err)
	}
	return &c, true, nil
}

func saveCollection(txn *badger.Txn, c *Collection) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return txn.Set(metaCollectionKey(c.Name), raw)
}

// claimUnique points the unique key at id, failing if another record owns it.
func claimUnique(txn *badger.Txn, collection, field, value, id string) error {
	key := uniqueKey(collection, field, value)
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return txn.Set(key, []byte(id))
	case err != nil:
		return err
	}
	owner, err := item.ValueCopy(nil)
	if err != nil {
		return err
	}
	if string(owner) != id {
		return &apperr.ConstraintError{Collection: collection, Field: field, Value: value}
	}
	return nil
}
