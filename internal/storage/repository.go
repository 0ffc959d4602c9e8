package storage

import "fmt"

// Typed repositories wrap the generic Store for each collection of the
// link keeper schema. They share the Store's transactions and errors.

// Links returns the repository for the links collection.
func (s *Store) Links() *LinkRepository { return &LinkRepository{store: s} }

// Intake returns the repository for the sharedIntake collection.
func (s *Store) Intake() *IntakeRepository { return &IntakeRepository{store: s} }

// Categories returns the repository for the categories collection.
func (s *Store) Categories() *CategoryRepository { return &CategoryRepository{store: s} }

// Settings returns the repository for the settings collection.
func (s *Store) Settings() *SettingsRepository { return &SettingsRepository{store: s} }

// castAll converts generic records into values of the concrete type P points to.
func castAll[T any, P interface{ *T }](recs []Record) ([]T, error) {
	out := make([]T, 0, len(recs))
	for _, rec := range recs {
		p, ok := rec.(P)
		if !ok {
			return nil, fmt.Errorf("storage: unexpected record type %T", rec)
		}
		out = append(out, *p)
	}
	return out, nil
}

func castOne[T any, P interface{ *T }](rec Record) (T, error) {
	var zero T
	p, ok := rec.(P)
	if !ok {
		return zero, fmt.Errorf("storage: unexpected record type %T", rec)
	}
	return *p, nil
}
