package domain

import "encoding/json"

// CategoryFieldName is the unique index on categories.
const CategoryFieldName = "name"

// Category groups links. Links reference it by ID without owning it.
type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

func (c *Category) RecordID() string { return c.ID }

func (c *Category) IndexValue(field string) (string, bool) {
	if field == CategoryFieldName {
		return c.Name, true
	}
	return "", false
}

// Setting is one entry of the settings mapping.
type Setting struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}

func (s *Setting) RecordID() string { return s.Key }

func (s *Setting) IndexValue(string) (string, bool) { return "", false }
