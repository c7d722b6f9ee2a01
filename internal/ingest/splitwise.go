package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// AccountingSystemSplitwise tags movements whose external ref lives
// on the Splitwise ledger.
const AccountingSystemSplitwise = "splitwise"

// SplitwiseSource ingests shared expenses and repayments from a
// Splitwise-style API.
type SplitwiseSource struct {
	baseURL string
	apiKey  string
	userID  int64
	groupID int64
	client  *http.Client
}

// NewSplitwiseSource creates the accounting-system adapter.
func NewSplitwiseSource(baseURL, apiKey string, userID, groupID int64) *SplitwiseSource {
	return &SplitwiseSource{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  userID,
		groupID: groupID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Source.
func (s *SplitwiseSource) Name() string { return "splitwise" }

type splitwiseUserShare struct {
	UserID    int64  `json:"user_id"`
	PaidShare string `json:"paid_share"`
	OwedShare string `json:"owed_share"`
}

type splitwiseExpense struct {
	ID           int64                `json:"id"`
	Description  string               `json:"description"`
	Cost         string               `json:"cost"`
	CurrencyCode string               `json:"currency_code"`
	Date         string               `json:"date"`
	Payment      bool                 `json:"payment"`
	DeletedAt    *string              `json:"deleted_at"`
	Users        []splitwiseUserShare `json:"users"`
}

type splitwiseExpenseList struct {
	Expenses []splitwiseExpense `json:"expenses"`
}

// Fetch lists the group's expenses and normalizes the ones involving
// the configured user. The remote expense id is the idempotency key.
func (s *SplitwiseSource) Fetch(ctx context.Context) ([]model.Candidate, error) {
	q := url.Values{}
	if s.groupID != 0 {
		q.Set("group_id", strconv.FormatInt(s.groupID, 10))
	}
	u := s.baseURL + "/get_expenses"
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("splitwise: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("splitwise: listing expenses: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("splitwise: listing expenses: status %d", resp.StatusCode)
	}

	var list splitwiseExpenseList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("splitwise: decoding expenses: %w", err)
	}

	var candidates []model.Candidate
	for _, e := range list.Expenses {
		if e.DeletedAt != nil {
			continue
		}
		c, ok, err := s.normalizeExpense(e)
		if err != nil {
			return nil, fmt.Errorf("splitwise: expense %d: %w", e.ID, err)
		}
		if ok {
			candidates = append(candidates, c)
		}
	}
	return candidates, nil
}

// normalizeExpense maps one remote expense to a candidate. Expenses
// not involving the user yield ok=false. A payment is itself evidence
// of settlement, so repayments are born settled.
func (s *SplitwiseSource) normalizeExpense(e splitwiseExpense) (model.Candidate, bool, error) {
	var mine *splitwiseUserShare
	for i := range e.Users {
		if e.Users[i].UserID == s.userID {
			mine = &e.Users[i]
			break
		}
	}
	if mine == nil {
		return model.Candidate{}, false, nil
	}

	paid, err := parseShare(mine.PaidShare)
	if err != nil {
		return model.Candidate{}, false, fmt.Errorf("parsing paid_share: %w", err)
	}
	owed, err := parseShare(mine.OwedShare)
	if err != nil {
		return model.Candidate{}, false, fmt.Errorf("parsing owed_share: %w", err)
	}

	date, err := time.Parse(time.RFC3339, e.Date)
	if err != nil {
		return model.Candidate{}, false, fmt.Errorf("parsing date %q: %w", e.Date, err)
	}

	c := model.Candidate{
		AccountingSystemID: strconv.FormatInt(e.ID, 10),
		AccountingSystem:   AccountingSystemSplitwise,
		Timestamp:          date,
		Currency:           model.Currency(e.CurrencyCode),
		SourceDescription:  e.Description,
		Source:             model.SourceAccountingSystem,
	}

	switch {
	case e.Payment && paid.GreaterThan(decimal.Zero):
		// I paid my debt back.
		c.Type = model.TypeCreditRepayment
		c.Direction = model.Outflow
		c.Amount = paid
		c.Status = model.StatusSettled
	case e.Payment:
		// Someone paid me back.
		c.Type = model.TypeDebitRepayment
		c.Direction = model.Inflow
		c.Amount = owed
		c.Status = model.StatusSettled
	case paid.GreaterThan(owed):
		// I paid for others; they owe me the difference.
		c.Type = model.TypeDebit
		c.Direction = model.Neutral
		c.Amount = paid.Sub(owed)
		c.Status = model.StatusUnsettled
	case owed.GreaterThan(paid):
		// Others paid for me; I owe my share.
		c.Type = model.TypeCredit
		c.Direction = model.Outflow
		c.Amount = owed.Sub(paid)
		c.Status = model.StatusUnsettled
	default:
		// Fully balanced share, nothing to track.
		return model.Candidate{}, false, nil
	}
	return c, true, nil
}

func parseShare(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
