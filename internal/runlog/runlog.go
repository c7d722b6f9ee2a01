// Package runlog records one row per reconciliation run in an append-only CSV.
package runlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Entry is one row in the run log.
type Entry struct {
	Timestamp  time.Time
	RunID      string
	Ingested   int
	Skipped    int
	Classified int
	Split      int
	Pushed     int
	Repaired   int
	Errors     int
	Note       string
}

// Header is the CSV header for run-log.csv.
const Header = "timestamp,run_id,ingested,skipped,classified,split,pushed,repaired,errors,note"

const (
	numFields     = 10
	logDir        = "logs"
	logFile       = "logs/run-log.csv"
	colTimestamp  = 0
	colRunID      = 1
	colIngested   = 2
	colSkipped    = 3
	colClassified = 4
	colSplit      = 5
	colPushed     = 6
	colRepaired   = 7
	colErrors     = 8
	colNote       = 9
)

// MarshalEntry converts an Entry to a CSV row.
func MarshalEntry(e Entry) []string {
	row := make([]string, numFields)
	row[colTimestamp] = e.Timestamp.Format(time.RFC3339)
	row[colRunID] = e.RunID
	row[colIngested] = strconv.Itoa(e.Ingested)
	row[colSkipped] = strconv.Itoa(e.Skipped)
	row[colClassified] = strconv.Itoa(e.Classified)
	row[colSplit] = strconv.Itoa(e.Split)
	row[colPushed] = strconv.Itoa(e.Pushed)
	row[colRepaired] = strconv.Itoa(e.Repaired)
	row[colErrors] = strconv.Itoa(e.Errors)
	row[colNote] = e.Note
	return row
}

// UnmarshalEntry converts a CSV row to an Entry.
func UnmarshalEntry(record []string) (Entry, error) {
	if len(record) != numFields {
		return Entry{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	ts, err := time.Parse(time.RFC3339, record[colTimestamp])
	if err != nil {
		return Entry{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	counts := make([]int, colErrors-colIngested+1)
	for i := range counts {
		n, err := strconv.Atoi(record[colIngested+i])
		if err != nil {
			return Entry{}, fmt.Errorf("parsing count %q: %w", record[colIngested+i], err)
		}
		counts[i] = n
	}

	return Entry{
		Timestamp:  ts,
		RunID:      record[colRunID],
		Ingested:   counts[0],
		Skipped:    counts[1],
		Classified: counts[2],
		Split:      counts[3],
		Pushed:     counts[4],
		Repaired:   counts[5],
		Errors:     counts[6],
		Note:       record[colNote],
	}, nil
}

// Append writes entries to <dataDir>/logs/run-log.csv, creating the file and header if needed.
func Append(dataDir string, entries []Entry) error {
	dir := filepath.Join(dataDir, logDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating logs dir: %w", err)
	}

	path := filepath.Join(dataDir, logFile)
	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	defer cw.Flush()

	if needsHeader {
		if err := cw.Write(strings.Split(Header, ",")); err != nil {
			return fmt.Errorf("writing header: %w", err)
		}
	}

	for i, e := range entries {
		if err := cw.Write(MarshalEntry(e)); err != nil {
			return fmt.Errorf("writing entry %d: %w", i, err)
		}
	}

	return cw.Error()
}

// Read returns all entries from <dataDir>/logs/run-log.csv.
// Returns an empty slice if the file does not exist.
func Read(dataDir string) ([]Entry, error) {
	path := filepath.Join(dataDir, logFile)
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening run log: %w", err)
	}
	defer f.Close()

	return readEntries(f)
}

func readEntries(r io.Reader) ([]Entry, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading run log CSV: %w", err)
	}

	if len(records) <= 1 {
		return nil, nil
	}

	var entries []Entry
	for i, rec := range records[1:] {
		e, err := UnmarshalEntry(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
