package ingest

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/movi-dev/movi/internal/model"
)

// ErrNoMatch marks mail text that is not a purchase notification.
// It is a definite answer, not a partial parse.
var ErrNoMatch = errors.New("not a purchase notification")

// Message is one mail retrieved by the searcher. Retrieval itself
// (IMAP, Gmail API, whatever) lives outside the engine.
type Message struct {
	ID      string
	Subject string
	Body    string
}

// MailSearcher finds bank notification mails matching a query.
type MailSearcher interface {
	Search(ctx context.Context, query string) ([]Message, error)
}

// Purchase is the structured result of parsing one notification.
type Purchase struct {
	Timestamp time.Time
	Amount    decimal.Decimal
	Currency  model.Currency
	Merchant  string
}

// Card purchase notifications as the bank sends them, e.g.
// "Se realizó una compra por $23.320 en LAS LOMAS el 01/06/2025 14:30"
// or "... por US$24,55 en AMAZON.COM el 01/06/2025".
var (
	clpPurchaseRe = regexp.MustCompile(`(?i)compra por \$([\d.]+) en (.+?) el (\d{2}/\d{2}/\d{4})(?: (\d{2}:\d{2}))?`)
	usdPurchaseRe = regexp.MustCompile(`(?i)compra por US\$([\d.,]+) en (.+?) el (\d{2}/\d{2}/\d{4})(?: (\d{2}:\d{2}))?`)
)

// ParsePurchase extracts a purchase from notification text. It
// returns ErrNoMatch when the text is not a purchase notification.
func ParsePurchase(body string) (Purchase, error) {
	if m := usdPurchaseRe.FindStringSubmatch(body); m != nil {
		amount, err := parseUSDAmount(m[1])
		if err != nil {
			return Purchase{}, fmt.Errorf("parsing amount %q: %w", m[1], err)
		}
		ts, err := parsePurchaseTime(m[3], m[4])
		if err != nil {
			return Purchase{}, err
		}
		return Purchase{Timestamp: ts, Amount: amount, Currency: model.USD, Merchant: strings.TrimSpace(m[2])}, nil
	}

	if m := clpPurchaseRe.FindStringSubmatch(body); m != nil {
		amount, err := parseCLPAmount(m[1])
		if err != nil {
			return Purchase{}, fmt.Errorf("parsing amount %q: %w", m[1], err)
		}
		ts, err := parsePurchaseTime(m[3], m[4])
		if err != nil {
			return Purchase{}, err
		}
		return Purchase{Timestamp: ts, Amount: amount, Currency: model.CLP, Merchant: strings.TrimSpace(m[2])}, nil
	}

	return Purchase{}, ErrNoMatch
}

// parseCLPAmount handles "23.320": dots are thousands separators,
// CLP has no decimal part.
func parseCLPAmount(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.ReplaceAll(s, ".", ""))
}

// parseUSDAmount handles "1.234,55": dots are thousands separators,
// the comma is the decimal mark.
func parseUSDAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	return decimal.NewFromString(s)
}

func parsePurchaseTime(date, clock string) (time.Time, error) {
	layout := "02/01/2006"
	value := date
	if clock != "" {
		layout = "02/01/2006 15:04"
		value = date + " " + clock
	}
	ts, err := time.Parse(layout, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing purchase time %q: %w", value, err)
	}
	return ts, nil
}

// MailSource ingests card purchases from bank notification mails.
type MailSource struct {
	searcher MailSearcher
	query    string
}

// NewMailSource creates the mail adapter.
func NewMailSource(searcher MailSearcher, query string) *MailSource {
	return &MailSource{searcher: searcher, query: query}
}

// Name implements Source.
func (s *MailSource) Name() string { return "mail" }

// Fetch searches for notification mails and parses each into a
// candidate. Mails that are not purchase notifications are skipped;
// the message id is the idempotency key.
func (s *MailSource) Fetch(ctx context.Context) ([]model.Candidate, error) {
	messages, err := s.searcher.Search(ctx, s.query)
	if err != nil {
		return nil, fmt.Errorf("mail: searching %q: %w", s.query, err)
	}

	var candidates []model.Candidate
	for _, msg := range messages {
		purchase, err := ParsePurchase(msg.Body)
		if errors.Is(err, ErrNoMatch) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("mail: message %s: %w", msg.ID, err)
		}
		candidates = append(candidates, model.Candidate{
			SourceEventID:     msg.ID,
			Timestamp:         purchase.Timestamp,
			Amount:            purchase.Amount,
			Currency:          purchase.Currency,
			SourceDescription: purchase.Merchant,
			Direction:         model.Outflow,
			Type:              model.TypeExpense,
			Source:            model.SourceMail,
		})
	}
	return candidates, nil
}
