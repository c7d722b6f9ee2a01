package settle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// SplitwiseClient creates expenses on a Splitwise-style API: the
// ledger owner paid the total, others owe everything but the personal
// portion.
type SplitwiseClient struct {
	baseURL string
	apiKey  string
	userID  int64
	groupID int64
	client  *http.Client
}

// NewSplitwiseClient creates a settlement pusher.
func NewSplitwiseClient(baseURL, apiKey string, userID, groupID int64) *SplitwiseClient {
	return &SplitwiseClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		userID:  userID,
		groupID: groupID,
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

type createExpenseRequest struct {
	Cost         string             `json:"cost"`
	CurrencyCode string             `json:"currency_code"`
	Description  string             `json:"description"`
	Date         string             `json:"date"`
	GroupID      int64              `json:"group_id"`
	Users        []createExpenseUser `json:"users"`
}

type createExpenseUser struct {
	UserID    int64  `json:"user_id"`
	PaidShare string `json:"paid_share"`
	OwedShare string `json:"owed_share"`
}

type createExpenseResponse struct {
	Expenses []struct {
		ID int64 `json:"id"`
	} `json:"expenses"`
	Errors map[string][]string `json:"errors"`
}

// expenseDescription renders the description the remote ledger shows,
// with the total formatted in the currency's own convention.
func expenseDescription(s Settlement) string {
	formatted := FormatAmount(s.TotalAmount, s.Currency)
	if s.Description == "" {
		return formatted
	}
	return fmt.Sprintf("%s (%s)", s.Description, formatted)
}

// CreateSettlement implements Pusher.
func (c *SplitwiseClient) CreateSettlement(ctx context.Context, s Settlement) (string, error) {
	payload := createExpenseRequest{
		Cost:         s.TotalAmount.StringFixed(2),
		CurrencyCode: string(s.Currency),
		Description:  expenseDescription(s),
		Date:         s.Date.Format(time.RFC3339),
		GroupID:      c.groupID,
		Users: []createExpenseUser{
			{
				UserID:    c.userID,
				PaidShare: s.TotalAmount.StringFixed(2),
				OwedShare: s.PersonalAmount.StringFixed(2),
			},
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("splitwise: marshaling expense: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/create_expense", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("splitwise: building request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("splitwise: creating expense: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("splitwise: creating expense: status %d", resp.StatusCode)
	}

	var parsed createExpenseResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("splitwise: decoding response: %w", err)
	}
	if len(parsed.Errors) > 0 {
		return "", fmt.Errorf("splitwise: creating expense: %v", parsed.Errors)
	}
	if len(parsed.Expenses) == 0 {
		return "", fmt.Errorf("splitwise: creating expense: empty response")
	}
	return strconv.FormatInt(parsed.Expenses[0].ID, 10), nil
}
