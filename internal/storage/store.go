package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"linkkeeper/internal/apperr"
)

// maxConflictRetries bounds how often a write is replayed after Badger
// reports a transaction conflict.
const maxConflictRetries = 10

// Options configures Open.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path     string
	InMemory bool

	// SchemaVersion is the version to migrate to. Opening a store whose
	// persisted version is newer fails.
	SchemaVersion int
	Migrations    []Migration
	Types         map[string]Factory

	// OpenTimeout bounds how long Open waits for the engine. Zero waits
	// until ctx is done.
	OpenTimeout time.Duration

	// Clock stamps updatedAt on mutation. Defaults to time.Now.
	Clock func() time.Time
}

// DefaultOptions returns options for the link keeper schema at path.
func DefaultOptions(path string) Options {
	return Options{
		Path:          path,
		SchemaVersion: SchemaVersion,
		Migrations:    Migrations,
		Types:         Types,
	}
}

// Store is a versioned record store with secondary indexes on top of Badger.
// One Store is opened per process and shared by every component.
type Store struct {
	db          *badger.DB
	log         logrus.FieldLogger
	collections map[string]*Collection
	types       map[string]Factory
	clock       func() time.Time
	inMemory    bool
}

type envelope struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

type storedRecord struct {
	key []byte
	env envelope
}

// Open opens or creates the store and applies pending migrations.
// Engine failures are reported as apperr.ErrStorageUnavailable.
func Open(ctx context.Context, opts Options, logger logrus.FieldLogger) (*Store, error) {
	var bopts badger.Options
	if opts.InMemory {
		bopts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		bopts = badger.DefaultOptions(opts.Path).WithSyncWrites(true)
	}
	bopts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	openCtx := ctx
	if opts.OpenTimeout > 0 {
		var cancel context.CancelFunc
		openCtx, cancel = context.WithTimeout(ctx, opts.OpenTimeout)
		defer cancel()
	}

	type result struct {
		db  *badger.DB
		err error
	}
	done := make(chan result, 1)
	go func() {
		db, err := badger.Open(bopts)
		done <- result{db: db, err: err}
	}()

	var db *badger.DB
	select {
	case res := <-done:
		if res.err != nil {
			logger.WithError(res.err).Error("Failed to open BadgerDB")
			return nil, fmt.Errorf("%w: open badger db at %q: %v", apperr.ErrStorageUnavailable, opts.Path, res.err)
		}
		db = res.db
	case <-openCtx.Done():
		// The engine may still come up later; release it when it does.
		go func() {
			if res := <-done; res.db != nil {
				_ = res.db.Close()
			}
		}()
		logger.WithError(openCtx.Err()).Error("Timed out opening BadgerDB")
		return nil, fmt.Errorf("%w: open badger db at %q: %v", apperr.ErrStorageUnavailable, opts.Path, openCtx.Err())
	}

	s := &Store{
		db:       db,
		log:      logger.WithField("component", "store"),
		types:    opts.Types,
		clock:    opts.Clock,
		inMemory: opts.InMemory,
	}
	if s.clock == nil {
		s.clock = time.Now
	}
	if s.types == nil {
		s.types = Types
	}

	if err := s.migrate(opts.SchemaVersion, opts.Migrations); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := s.loadCollections(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s.log.WithFields(logrus.Fields{
		"path":      opts.Path,
		"in_memory": opts.InMemory,
		"version":   opts.SchemaVersion,
	}).Info("Store opened")
	return s, nil
}

// OpenInMemory opens a non-persistent store with the default schema.
func OpenInMemory(ctx context.Context, logger logrus.FieldLogger) (*Store, error) {
	opts := DefaultOptions("")
	opts.InMemory = true
	return Open(ctx, opts, logger)
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.log.Info("Closing BadgerDB...")
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	s.log.Info("BadgerDB closed.")
	return nil
}

// InMemory reports whether the store is running without persistence.
func (s *Store) InMemory() bool { return s.inMemory }

// SchemaVersion returns the persisted schema version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		v, err = readVersion(txn)
		return err
	})
	return v, err
}

// Collections returns the persisted collection definitions.
func (s *Store) Collections() []Collection {
	out := make([]Collection, 0, len(s.collections))
	for _, c := range s.collections {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) migrate(target int, migrations []Migration) error {
	sorted := make([]Migration, len(migrations))
	copy(sorted, migrations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })
	for i := range sorted {
		if sorted[i].Version <= 0 {
			return fmt.Errorf("storage: migration version must be positive, got %d", sorted[i].Version)
		}
		if i > 0 && sorted[i].Version == sorted[i-1].Version {
			return fmt.Errorf("storage: duplicate migration version %d", sorted[i].Version)
		}
	}

	current, err := s.SchemaVersion()
	if err != nil {
		return fmt.Errorf("storage: read schema version: %w", err)
	}
	if target < current {
		return fmt.Errorf("storage: schema version %d is older than stored version %d", target, current)
	}

	for _, mig := range sorted {
		if mig.Version <= current || mig.Version > target {
			continue
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			if err := mig.Apply(&Migrator{txn: txn, types: s.types}); err != nil {
				return err
			}
			return txn.Set(metaVersionKey, []byte(strconv.Itoa(mig.Version)))
		})
		if err != nil {
			return fmt.Errorf("storage: migration %d: %w", mig.Version, err)
		}
		s.log.WithField("version", mig.Version).Info("Applied schema migration")
		current = mig.Version
	}

	if current < target {
		// No migration reached target; record it anyway so the store is
		// stamped with the version it was opened at.
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Set(metaVersionKey, []byte(strconv.Itoa(target)))
		})
		if err != nil {
			return fmt.Errorf("storage: write schema version: %w", err)
		}
	}
	return nil
}

func (s *Store) loadCollections() error {
	s.collections = make(map[string]*Collection)
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		prefix := []byte("meta:collection:")
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			raw, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			var c Collection
			if err := json.Unmarshal(raw, &c); err != nil {
				return fmt.Errorf("storage: decode collection: %w", err)
			}
			s.collections[c.Name] = &c
		}
		return nil
	})
}

func readVersion(txn *badger.Txn) (int, error) {
	item, err := txn.Get(metaVersionKey)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(raw))
}

func (s *Store) collection(name string) (*Collection, error) {
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("storage: unknown collection %q", name)
	}
	return c, nil
}

func (s *Store) factory(name string) (Factory, error) {
	f, ok := s.types[name]
	if !ok {
		return nil, fmt.Errorf("storage: no record type registered for %s", name)
	}
	return f, nil
}

// write runs fn in a read-write transaction, replaying it when Badger
// detects a conflicting concurrent commit. fn must not keep state across
// attempts.
func (s *Store) write(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < maxConflictRetries {
			s.log.WithField("attempt", attempt+1).Debug("Transaction conflict, retrying")
			continue
		}
		return err
	}
}

// Insert adds a new record. A collision on the primary key or on a unique
// index fails with apperr.ErrConstraintViolation.
func (s *Store) Insert(ctx context.Context, collection string, rec Record) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	id := rec.RecordID()
	if id == "" {
		return fmt.Errorf("storage: insert into %s: empty id", collection)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal %s record: %w", collection, err)
	}

	return s.write(ctx, func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		if _, err := txn.Get(key); err == nil {
			return &apperr.ConstraintError{Collection: collection, Field: "id", Value: id}
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}

		seq, err := nextSeq(txn, collection)
		if err != nil {
			return err
		}
		if err := putIndexes(txn, c, rec); err != nil {
			return err
		}
		raw, err := json.Marshal(envelope{Seq: seq, Data: data})
		if err != nil {
			return err
		}
		return txn.Set(key, raw)
	})
}

// Put inserts the record or replaces the existing one with the same id.
func (s *Store) Put(ctx context.Context, collection string, rec Record) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	newRecord, err := s.factory(collection)
	if err != nil {
		return err
	}
	id := rec.RecordID()
	if id == "" {
		return fmt.Errorf("storage: put into %s: empty id", collection)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("storage: marshal %s record: %w", collection, err)
	}

	return s.write(ctx, func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		env, found, err := readEnvelope(txn, key)
		if err != nil {
			return err
		}
		if found {
			old := newRecord()
			if err := json.Unmarshal(env.Data, old); err != nil {
				return fmt.Errorf("storage: decode %s record: %w", collection, err)
			}
			if err := dropIndexes(txn, c, old); err != nil {
				return err
			}
		} else if env.Seq, err = nextSeq(txn, collection); err != nil {
			return err
		}
		if err := putIndexes(txn, c, rec); err != nil {
			return err
		}
		env.Data = data
		raw, err := json.Marshal(env)
		if err != nil {
			return err
		}
		return txn.Set(key, raw)
	})
}

// Get decodes the record with id into dst. Absence is reported through the
// boolean, never as an error.
func (s *Store) Get(ctx context.Context, collection, id string, dst Record) (bool, error) {
	if _, err := s.collection(collection); err != nil {
		return false, err
	}
	if err := ctx.Err(); err != nil {
		return false, err
	}
	var found bool
	err := s.db.View(func(txn *badger.Txn) error {
		env, ok, err := readEnvelope(txn, recordKey(collection, id))
		if err != nil || !ok {
			return err
		}
		found = true
		return json.Unmarshal(env.Data, dst)
	})
	if err != nil {
		return false, fmt.Errorf("storage: get %s/%s: %w", collection, id, err)
	}
	return found, nil
}

// GetAll returns every record of the collection in insertion order.
func (s *Store) GetAll(ctx context.Context, collection string) ([]Record, error) {
	newRecord, err := s.factory(collection)
	if err != nil {
		return nil, err
	}
	if _, err := s.collection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raws []storedRecord
	err = s.db.View(func(txn *badger.Txn) error {
		var err error
		raws, err = scanRecords(txn, collection)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("storage: scan %s: %w", collection, err)
	}
	return decodeAll(collection, raws, newRecord)
}

// Update loads the record, applies mutate and writes it back with a fresh
// updatedAt stamp. A missing record fails with apperr.ErrNotFound. mutate
// may run more than once if the write has to be replayed.
func (s *Store) Update(ctx context.Context, collection, id string, mutate func(Record) error) (Record, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	newRecord, err := s.factory(collection)
	if err != nil {
		return nil, err
	}

	var out Record
	err = s.write(ctx, func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		env, found, err := readEnvelope(txn, key)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%s/%s: %w", collection, id, apperr.ErrNotFound)
		}

		old := newRecord()
		if err := json.Unmarshal(env.Data, old); err != nil {
			return fmt.Errorf("storage: decode %s record: %w", collection, err)
		}
		rec := newRecord()
		if err := json.Unmarshal(env.Data, rec); err != nil {
			return fmt.Errorf("storage: decode %s record: %w", collection, err)
		}
		if err := mutate(rec); err != nil {
			return err
		}
		if rec.RecordID() != id {
			return fmt.Errorf("storage: update %s/%s: id is immutable", collection, id)
		}
		if st, ok := rec.(Stamper); ok {
			st.Touch(s.clock().UnixMilli())
		}

		if err := dropIndexes(txn, c, old); err != nil {
			return err
		}
		if err := putIndexes(txn, c, rec); err != nil {
			return err
		}
		if env.Data, err = json.Marshal(rec); err != nil {
			return err
		}
		raw, err := json.Marshal(env)
		if err != nil {
			return err
		}
		out = rec
		return txn.Set(key, raw)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete removes the record and its index entries. Deleting a missing
// record succeeds.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	c, err := s.collection(collection)
	if err != nil {
		return err
	}
	newRecord, err := s.factory(collection)
	if err != nil {
		return err
	}
	return s.write(ctx, func(txn *badger.Txn) error {
		key := recordKey(collection, id)
		env, found, err := readEnvelope(txn, key)
		if err != nil || !found {
			return err
		}
		old := newRecord()
		if err := json.Unmarshal(env.Data, old); err != nil {
			return fmt.Errorf("storage: decode %s record: %w", collection, err)
		}
		if err := dropIndexes(txn, c, old); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

// FindByIndex returns the records whose indexed field equals value, in
// insertion order. value uses the record's index encoding.
func (s *Store) FindByIndex(ctx context.Context, collection, field, value string) ([]Record, error) {
	c, err := s.collection(collection)
	if err != nil {
		return nil, err
	}
	idx, ok := c.index(field)
	if !ok {
		return nil, fmt.Errorf("storage: %s has no index on %s", collection, field)
	}
	newRecord, err := s.factory(collection)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var raws []storedRecord
	err = s.db.View(func(txn *badger.Txn) error {
		ids, err := indexedIDs(txn, collection, idx, value)
		if err != nil {
			return err
		}
		for _, id := range ids {
			key := recordKey(collection, id)
			env, found, err := readEnvelope(txn, key)
			if err != nil {
				return err
			}
			if !found {
				s.log.WithFields(logrus.Fields{"collection": collection, "id": id}).Warn("Index entry points at missing record")
				continue
			}
			raws = append(raws, storedRecord{key: key, env: env})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storage: find %s by %s: %w", collection, field, err)
	}
	return decodeAll(collection, raws, newRecord)
}

func indexedIDs(txn *badger.Txn, collection string, idx Index, value string) ([]string, error) {
	if idx.Unique {
		item, err := txn.Get(uniqueKey(collection, idx.Field, value))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		return []string{string(id)}, nil
	}

	prefix := indexValuePrefix(collection, idx.Field, value)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	var ids []string
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		id, err := idFromIndexKey(it.Item().Key(), prefix)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func putIndexes(txn *badger.Txn, c *Collection, rec Record) error {
	for _, idx := range c.Indexes {
		value, ok := rec.IndexValue(idx.Field)
		if !ok {
			continue
		}
		if idx.Unique {
			if err := claimUnique(txn, c.Name, idx.Field, value, rec.RecordID()); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(indexKey(c.Name, idx.Field, value, rec.RecordID()), nil); err != nil {
			return err
		}
	}
	return nil
}

func dropIndexes(txn *badger.Txn, c *Collection, rec Record) error {
	for _, idx := range c.Indexes {
		value, ok := rec.IndexValue(idx.Field)
		if !ok {
			continue
		}
		key := indexKey(c.Name, idx.Field, value, rec.RecordID())
		if idx.Unique {
			key = uniqueKey(c.Name, idx.Field, value)
		}
		if err := txn.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

func nextSeq(txn *badger.Txn, collection string) (uint64, error) {
	key := metaSeqKey(collection)
	var seq uint64
	item, err := txn.Get(key)
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
	case err != nil:
		return 0, err
	default:
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return 0, err
		}
		if seq, err = strconv.ParseUint(string(raw), 10, 64); err != nil {
			return 0, fmt.Errorf("storage: corrupt sequence for %s: %w", collection, err)
		}
	}
	seq++
	return seq, txn.Set(key, []byte(strconv.FormatUint(seq, 10)))
}

func readEnvelope(txn *badger.Txn, key []byte) (envelope, bool, error) {
	var env envelope
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return env, false, nil
	}
	if err != nil {
		return env, false, err
	}
	raw, err := item.ValueCopy(nil)
	if err != nil {
		return env, false, err
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return env, false, fmt.Errorf("decode envelope %s: %w", string(key), err)
	}
	return env, true, nil
}

func scanRecords(txn *badger.Txn, collection string) ([]storedRecord, error) {
	prefix := recordPrefix(collection)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	var out []storedRecord
	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var env envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, fmt.Errorf("decode envelope %s: %w", string(item.Key()), err)
		}
		out = append(out, storedRecord{key: item.KeyCopy(nil), env: env})
	}
	return out, nil
}

func decodeAll(collection string, raws []storedRecord, newRecord Factory) ([]Record, error) {
	sort.SliceStable(raws, func(i, j int) bool { return raws[i].env.Seq < raws[j].env.Seq })
	out := make([]Record, 0, len(raws))
	for _, raw := range raws {
		rec := newRecord()
		if err := json.Unmarshal(raw.env.Data, rec); err != nil {
			return nil, fmt.Errorf("storage: decode %s record %s: %w", collection, string(raw.key), err)
		}
		out = append(out, rec)
	}
	return out, nil
}
