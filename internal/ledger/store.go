package ledger

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/movi-dev/movi/internal/model"
)

// Store is the persistence boundary of the movement ledger: an
// ordered table of movement rows. Implementations must keep row order
// stable within one deployment.
type Store interface {
	// All returns every movement in row order.
	All() ([]model.Movement, error)
	// Append adds movements at the end of the table. The batch is
	// written as a whole or not at all.
	Append(movements []model.Movement) error
	// Update replaces the row with the same id. It fails when the id
	// does not exist.
	Update(m model.Movement) error
	// Close releases any underlying resources.
	Close() error
}

// CSVStore persists the ledger as a single ledger.csv file.
type CSVStore struct {
	path string
}

// NewCSVStore creates a store over <dir>/ledger.csv, creating the
// file with a header row when missing.
func NewCSVStore(dir string) (*CSVStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating ledger dir: %w", err)
	}
	path := filepath.Join(dir, "ledger.csv")
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.WriteFile(path, []byte(Header+"\n"), 0o644); err != nil {
			return nil, fmt.Errorf("creating ledger file: %w", err)
		}
	}
	return &CSVStore{path: path}, nil
}

// All reads every movement from the ledger file.
func (s *CSVStore) All() ([]model.Movement, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger: %w", err)
	}
	defer f.Close()
	return ReadMovements(f)
}

// Append appends movements to the ledger file in one write. A batch
// containing an id already in the ledger (or twice within itself)
// fails as a whole, matching the SQLite backend's primary key.
func (s *CSVStore) Append(movements []model.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	existing, err := s.All()
	if err != nil {
		return err
	}
	ids := make(map[int]bool, len(existing))
	for _, m := range existing {
		ids[m.ID] = true
	}
	for _, m := range movements {
		if ids[m.ID] {
			return fmt.Errorf("movement #%d already exists", m.ID)
		}
		ids[m.ID] = true
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening ledger for append: %w", err)
	}
	defer f.Close()

	if err := AppendMovements(f, movements); err != nil {
		return fmt.Errorf("appending to ledger: %w", err)
	}
	return nil
}

// Update rewrites the ledger file with the given movement replacing
// its row. The rewrite goes through a temp file and rename so a crash
// never leaves a truncated ledger.
func (s *CSVStore) Update(m model.Movement) error {
	movements, err := s.All()
	if err != nil {
		return err
	}

	found := false
	for i := range movements {
		if movements[i].ID == m.ID {
			movements[i] = m
			found = true
			break
		}
	}
	if !found {
		return fmt.Errorf("movement #%d not found", m.ID)
	}

	tmp := s.path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("creating temp ledger: %w", err)
	}
	if err := WriteMovements(f, movements); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("writing temp ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("closing temp ledger: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replacing ledger: %w", err)
	}
	return nil
}

// Close is a no-op for the CSV store.
func (s *CSVStore) Close() error { return nil }
