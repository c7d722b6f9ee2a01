package ledger

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/movi-dev/movi/internal/model"
)

// migrations returns the ledger schema statements. Each string is a
// single SQL statement (SQLite executes one at a time).
func migrations() []string {
	return []string{
		`CREATE TABLE IF NOT EXISTS movements (
			id                   INTEGER PRIMARY KEY,
			source_event_id      TEXT NOT NULL DEFAULT '',
			accounting_system_id TEXT NOT NULL DEFAULT '',
			accounting_system    TEXT NOT NULL DEFAULT '',
			timestamp            TEXT NOT NULL,
			amount               TEXT NOT NULL,
			currency             TEXT NOT NULL,
			source_description   TEXT NOT NULL DEFAULT '',
			user_description     TEXT NOT NULL DEFAULT '',
			category             TEXT NOT NULL DEFAULT '',
			direction            TEXT NOT NULL,
			type                 TEXT NOT NULL,
			status               TEXT NOT NULL DEFAULT '',
			comment              TEXT NOT NULL DEFAULT '',
			settled_movement_id  INTEGER NOT NULL DEFAULT 0,
			clp_value            TEXT,
			usd_value            TEXT,
			gbp_value            TEXT,
			source               TEXT NOT NULL DEFAULT ''
		)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_status ON movements(status)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_source_event ON movements(source_event_id)`,
		`CREATE INDEX IF NOT EXISTS idx_movements_accounting ON movements(accounting_system_id)`,
	}
}

// SQLiteStore persists the ledger in an embedded SQLite database.
// Amounts are stored as decimal strings so 2dp precision survives the
// round trip.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a ledger database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening ledger db: %w", err)
	}
	for _, stmt := range migrations() {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrating ledger db: %w", err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

// All returns every movement ordered by id.
func (s *SQLiteStore) All() ([]model.Movement, error) {
	rows, err := s.db.Query(`
		SELECT id, source_event_id, accounting_system_id, accounting_system,
		       timestamp, amount, currency, source_description, user_description,
		       category, direction, type, status, comment, settled_movement_id,
		       clp_value, usd_value, gbp_value, source
		FROM movements ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("querying movements: %w", err)
	}
	defer rows.Close()

	var movements []model.Movement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

// Append inserts movements inside a single transaction.
func (s *SQLiteStore) Append(movements []model.Movement) error {
	if len(movements) == 0 {
		return nil
	}
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert: %w", err)
	}
	for _, m := range movements {
		if _, err := tx.Exec(`
			INSERT INTO movements (
				id, source_event_id, accounting_system_id, accounting_system,
				timestamp, amount, currency, source_description, user_description,
				category, direction, type, status, comment, settled_movement_id,
				clp_value, usd_value, gbp_value, source
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, sqliteArgs(m)...); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting movement #%d: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Update replaces the row with the movement's id.
func (s *SQLiteStore) Update(m model.Movement) error {
	args := sqliteArgs(m)
	// Move id to the end for the WHERE clause.
	args = append(args[1:], args[0])
	res, err := s.db.Exec(`
		UPDATE movements SET
			source_event_id = ?, accounting_system_id = ?, accounting_system = ?,
			timestamp = ?, amount = ?, currency = ?, source_description = ?,
			user_description = ?, category = ?, direction = ?, type = ?,
			status = ?, comment = ?, settled_movement_id = ?,
			clp_value = ?, usd_value = ?, gbp_value = ?, source = ?
		WHERE id = ?
	`, args...)
	if err != nil {
		return fmt.Errorf("updating movement #%d: %w", m.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating movement #%d: %w", m.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("movement #%d not found", m.ID)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

func sqliteArgs(m model.Movement) []any {
	return []any{
		m.ID, m.SourceEventID, m.AccountingSystemID, m.AccountingSystem,
		m.Timestamp.Format(timeFormat), m.Amount.String(), string(m.Currency),
		m.SourceDescription, m.UserDescription, m.Category,
		string(m.Direction), string(m.Type), string(m.Status), m.Comment,
		m.SettledMovementID,
		nullDecimalArg(m.CLPValue), nullDecimalArg(m.USDValue), nullDecimalArg(m.GBPValue),
		string(m.Source),
	}
}

func nullDecimalArg(d decimal.NullDecimal) any {
	if !d.Valid {
		return nil
	}
	return d.Decimal.StringFixed(2)
}

func scanMovement(rows *sql.Rows) (model.Movement, error) {
	var (
		m                  model.Movement
		ts, amount         string
		currency           string
		direction, mtype   string
		status, source     string
		clp, usd, gbp      sql.NullString
	)
	if err := rows.Scan(
		&m.ID, &m.SourceEventID, &m.AccountingSystemID, &m.AccountingSystem,
		&ts, &amount, &currency, &m.SourceDescription, &m.UserDescription,
		&m.Category, &direction, &mtype, &status, &m.Comment,
		&m.SettledMovementID, &clp, &usd, &gbp, &source,
	); err != nil {
		return model.Movement{}, fmt.Errorf("scanning movement: %w", err)
	}

	parsed, err := time.Parse(timeFormat, ts)
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing timestamp %q: %w", ts, err)
	}
	m.Timestamp = parsed

	m.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing amount %q: %w", amount, err)
	}

	m.Currency = model.Currency(currency)
	m.Direction = model.Direction(direction)
	m.Type = model.MovementType(mtype)
	m.Status = model.Status(status)
	m.Source = model.Source(source)

	if m.CLPValue, err = scanNullDecimal(clp); err != nil {
		return model.Movement{}, err
	}
	if m.USDValue, err = scanNullDecimal(usd); err != nil {
		return model.Movement{}, err
	}
	if m.GBPValue, err = scanNullDecimal(gbp); err != nil {
		return model.Movement{}, err
	}
	return m, nil
}

func scanNullDecimal(s sql.NullString) (decimal.NullDecimal, error) {
	if !s.Valid {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s.String)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("parsing stored value %q: %w", s.String, err)
	}
	return decimal.NewNullDecimal(d), nil
}
