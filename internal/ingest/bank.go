package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// BankSource ingests transactions from a Monzo-style bank API. The
// bank reports amounts in minor units, negative for spending.
type BankSource struct {
	baseURL     string
	accountID   string
	accessToken string
	client      *http.Client
}

// NewBankSource creates the bank adapter.
func NewBankSource(baseURL, accountID, accessToken string) *BankSource {
	return &BankSource{
		baseURL:     baseURL,
		accountID:   accountID,
		accessToken: accessToken,
		client:      &http.Client{Timeout: 30 * time.Second},
	}
}

// Name implements Source.
func (s *BankSource) Name() string { return "bank" }

type bankTransaction struct {
	ID          string `json:"id"`
	Created     string `json:"created"`
	Amount      int64  `json:"amount"` // minor units, negative = spend
	Currency    string `json:"currency"`
	Description string `json:"description"`
}

type bankTransactionList struct {
	Transactions []bankTransaction `json:"transactions"`
}

// Fetch lists the account's transactions and normalizes them. The
// bank transaction id is the idempotency key.
func (s *BankSource) Fetch(ctx context.Context) ([]model.Candidate, error) {
	u := fmt.Sprintf("%s/transactions?%s", s.baseURL, url.Values{"account_id": {s.accountID}}.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("bank: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bank: listing transactions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bank: listing transactions: status %d", resp.StatusCode)
	}

	var list bankTransactionList
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("bank: decoding transactions: %w", err)
	}

	var candidates []model.Candidate
	for _, tx := range list.Transactions {
		c, err := normalizeBankTransaction(tx)
		if err != nil {
			return nil, fmt.Errorf("bank: transaction %s: %w", tx.ID, err)
		}
		candidates = append(candidates, c)
	}
	return candidates, nil
}

func normalizeBankTransaction(tx bankTransaction) (model.Candidate, error) {
	created, err := time.Parse(time.RFC3339, tx.Created)
	if err != nil {
		return model.Candidate{}, fmt.Errorf("parsing created %q: %w", tx.Created, err)
	}

	amount := decimal.NewFromInt(tx.Amount).Div(decimal.NewFromInt(100))
	direction := model.Outflow
	mtype := model.TypeExpense
	if tx.Amount >= 0 {
		direction = model.Inflow
		mtype = model.TypeCash
	}

	return model.Candidate{
		SourceEventID:     tx.ID,
		Timestamp:         created,
		Amount:            amount.Abs(),
		Currency:          model.Currency(tx.Currency),
		SourceDescription: tx.Description,
		Direction:         direction,
		Type:              mtype,
		Source:            model.SourceBank,
	}, nil
}
