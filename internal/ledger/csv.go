package ledger

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// Header is the CSV header for ledger.csv.
const Header = "id,source_event_id,accounting_system_id,accounting_system,timestamp,amount,currency,source_description,user_description,category,direction,type,status,comment,settled_movement_id,clp_value,usd_value,gbp_value,source"

const (
	numFields     = 19
	timeFormat    = time.RFC3339
	colID         = 0
	colSourceEv   = 1
	colAcctSysID  = 2
	colAcctSys    = 3
	colTimestamp  = 4
	colAmount     = 5
	colCurrency   = 6
	colSourceDesc = 7
	colUserDesc   = 8
	colCategory   = 9
	colDirection  = 10
	colType       = 11
	colStatus     = 12
	colComment    = 13
	colSettledID  = 14
	colCLP        = 15
	colUSD        = 16
	colGBP        = 17
	colSource     = 18
)

// ReadMovements reads all movements from a ledger.csv reader.
func ReadMovements(r io.Reader) ([]model.Movement, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = numFields

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("reading ledger CSV: %w", err)
	}

	if len(records) == 0 {
		return nil, nil
	}

	// Skip header row.
	var movements []model.Movement
	for i, rec := range records[1:] {
		m, err := UnmarshalMovement(rec)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		movements = append(movements, m)
	}
	return movements, nil
}

// WriteMovements writes movements to a ledger.csv writer (including
// header).
func WriteMovements(w io.Writer, movements []model.Movement) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write(strings.Split(Header, ",")); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	for i, m := range movements {
		if err := cw.Write(MarshalMovement(m)); err != nil {
			return fmt.Errorf("writing row %d: %w", i+2, err)
		}
	}
	return cw.Error()
}

// AppendMovements appends movements to an existing ledger.csv writer
// (no header).
func AppendMovements(w io.Writer, movements []model.Movement) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	for i, m := range movements {
		if err := cw.Write(MarshalMovement(m)); err != nil {
			return fmt.Errorf("writing row %d: %w", i, err)
		}
	}
	return cw.Error()
}

// MarshalMovement converts a Movement to a CSV row ([]string).
func MarshalMovement(m model.Movement) []string {
	row := make([]string, numFields)
	row[colID] = strconv.Itoa(m.ID)
	row[colSourceEv] = m.SourceEventID
	row[colAcctSysID] = m.AccountingSystemID
	row[colAcctSys] = m.AccountingSystem
	row[colTimestamp] = m.Timestamp.Format(timeFormat)
	row[colAmount] = m.Amount.String()
	row[colCurrency] = string(m.Currency)
	row[colSourceDesc] = m.SourceDescription
	row[colUserDesc] = m.UserDescription
	row[colCategory] = m.Category
	row[colDirection] = string(m.Direction)
	row[colType] = string(m.Type)
	row[colStatus] = string(m.Status)
	row[colComment] = m.Comment

	if m.SettledMovementID != 0 {
		row[colSettledID] = strconv.Itoa(m.SettledMovementID)
	}

	row[colCLP] = marshalNullDecimal(m.CLPValue)
	row[colUSD] = marshalNullDecimal(m.USDValue)
	row[colGBP] = marshalNullDecimal(m.GBPValue)
	row[colSource] = string(m.Source)

	return row
}

// UnmarshalMovement converts a CSV row to a Movement.
func UnmarshalMovement(record []string) (model.Movement, error) {
	if len(record) != numFields {
		return model.Movement{}, fmt.Errorf("expected %d fields, got %d", numFields, len(record))
	}

	id, err := strconv.Atoi(record[colID])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing id %q: %w", record[colID], err)
	}

	ts, err := time.Parse(timeFormat, record[colTimestamp])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing timestamp %q: %w", record[colTimestamp], err)
	}

	amount, err := decimal.NewFromString(record[colAmount])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing amount %q: %w", record[colAmount], err)
	}

	var settledID int
	if record[colSettledID] != "" {
		settledID, err = strconv.Atoi(record[colSettledID])
		if err != nil {
			return model.Movement{}, fmt.Errorf("parsing settled_movement_id %q: %w", record[colSettledID], err)
		}
	}

	clp, err := unmarshalNullDecimal(record[colCLP])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing clp_value %q: %w", record[colCLP], err)
	}
	usd, err := unmarshalNullDecimal(record[colUSD])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing usd_value %q: %w", record[colUSD], err)
	}
	gbp, err := unmarshalNullDecimal(record[colGBP])
	if err != nil {
		return model.Movement{}, fmt.Errorf("parsing gbp_value %q: %w", record[colGBP], err)
	}

	return model.Movement{
		ID:                 id,
		SourceEventID:      record[colSourceEv],
		AccountingSystemID: record[colAcctSysID],
		AccountingSystem:   record[colAcctSys],
		Timestamp:          ts,
		Amount:             amount,
		Currency:           model.Currency(record[colCurrency]),
		SourceDescription:  record[colSourceDesc],
		UserDescription:    record[colUserDesc],
		Category:           record[colCategory],
		Direction:          model.Direction(record[colDirection]),
		Type:               model.MovementType(record[colType]),
		Status:             model.Status(record[colStatus]),
		Comment:            record[colComment],
		SettledMovementID:  settledID,
		CLPValue:           clp,
		USDValue:           usd,
		GBPValue:           gbp,
		Source:             model.Source(record[colSource]),
	}, nil
}

func marshalNullDecimal(d decimal.NullDecimal) string {
	if !d.Valid {
		return ""
	}
	return d.Decimal.StringFixed(2)
}

func unmarshalNullDecimal(s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, err
	}
	return decimal.NewNullDecimal(d), nil
}
