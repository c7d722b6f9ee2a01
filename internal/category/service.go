// Package category holds the operator-configured category vocabulary.
// Every mutation boundary that writes a category (classification
// results, split categories) validates against this set.
package category

import (
	"fmt"
	"os"
	"strings"

	"github.com/movi-dev/movi/internal/model"
)

// Set provides in-memory lookup over the configured categories.
type Set struct {
	categories []model.Category
	byKey      map[string]model.Category
}

// NewSet creates a Set from a slice of categories.
func NewSet(cats []model.Category) *Set {
	byKey := make(map[string]model.Category, len(cats))
	for _, c := range cats {
		byKey[normalize(c.Key)] = c
	}
	return &Set{categories: cats, byKey: byKey}
}

// Load reads a categories.csv file and returns a Set.
func Load(path string) (*Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening categories: %w", err)
	}
	defer f.Close()

	cats, err := ReadCategories(f)
	if err != nil {
		return nil, fmt.Errorf("reading categories: %w", err)
	}
	return NewSet(cats), nil
}

// All returns all categories.
func (s *Set) All() []model.Category {
	return s.categories
}

// Get returns a category by key, case-insensitively.
func (s *Set) Get(key string) (model.Category, bool) {
	c, ok := s.byKey[normalize(key)]
	return c, ok
}

// Valid reports whether key names a configured category.
func (s *Set) Valid(key string) bool {
	_, ok := s.byKey[normalize(key)]
	return ok
}

// Validate returns an error naming the offending key when it is not
// in the set.
func (s *Set) Validate(key string) error {
	if !s.Valid(key) {
		return fmt.Errorf("unknown category %q", key)
	}
	return nil
}

// Save writes the set to a categories.csv file.
func (s *Set) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating categories file: %w", err)
	}
	defer f.Close()

	if err := WriteCategories(f, s.categories); err != nil {
		return fmt.Errorf("writing categories: %w", err)
	}
	return nil
}

func normalize(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
