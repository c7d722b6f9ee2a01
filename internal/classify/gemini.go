package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"google.golang.org/genai"

	"github.com/movi-dev/movi/internal/model"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.0-flash"

// GeminiClassifier classifies movement annotations with a Gemini
// model. It expects strict JSON back and treats anything else as a
// classification failure.
type GeminiClassifier struct {
	model      string
	categories []model.Category
}

// NewGeminiClassifier creates a classifier for the given model name
// and category vocabulary.
func NewGeminiClassifier(modelName string, categories []model.Category) *GeminiClassifier {
	if modelName == "" {
		modelName = DefaultModelName
	}
	return &GeminiClassifier{model: modelName, categories: categories}
}

// Classify sends the annotation plus movement context to the model.
func (g *GeminiClassifier) Classify(ctx context.Context, text string, mctx MovementContext) (Result, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return Result{}, fmt.Errorf("classify: create genai client: %w", err)
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: g.buildPrompt(text, mctx)},
			},
		},
	}

	resp, err := client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return Result{}, fmt.Errorf("classify: generate content: %w", err)
	}

	rawText := resp.Text()
	if rawText == "" {
		return Result{}, fmt.Errorf("classify: empty response from model")
	}

	return parseResult(rawText)
}

func (g *GeminiClassifier) buildPrompt(text string, mctx MovementContext) string {
	var b strings.Builder
	b.WriteString("You are a personal-expense classifier.\n\n")
	b.WriteString("Categories (use the key exactly as written):\n")
	for _, c := range g.categories {
		fmt.Fprintf(&b, "- %s: %s\n", c.Key, c.Description)
	}
	b.WriteString("\nMovement:\n")
	fmt.Fprintf(&b, "- amount: %s %s\n", mctx.Amount, mctx.Currency)
	fmt.Fprintf(&b, "- merchant: %s\n", mctx.SourceDescription)
	fmt.Fprintf(&b, "- type: %s, direction: %s\n", mctx.Type, mctx.Direction)
	fmt.Fprintf(&b, "- user note: %s\n\n", text)
	b.WriteString("Task: pick the category for this movement. If the note says part " +
		"of the amount was paid for other people (e.g. \"mine 4000, rest shared\"), " +
		"set needs_split with the personal portion as split_amount.\n\n")
	b.WriteString("Output STRICT JSON only, no code fences, a single object with fields:\n")
	b.WriteString(`- "category": string (one of the keys above)` + "\n")
	b.WriteString(`- "needs_split": boolean` + "\n")
	b.WriteString(`- "split_amount": number or null (personal portion, same currency)` + "\n")
	b.WriteString(`- "split_category": string or null` + "\n")
	b.WriteString(`- "clean_description": string (the note, tidied)` + "\n")
	b.WriteString(`- "split_instructions": string or null` + "\n")
	return b.String()
}

type rawResult struct {
	Category          string       `json:"category"`
	NeedsSplit        bool         `json:"needs_split"`
	SplitAmount       *json.Number `json:"split_amount"`
	SplitCategory     *string      `json:"split_category"`
	CleanDescription  string       `json:"clean_description"`
	SplitInstructions *string      `json:"split_instructions"`
}

// parseResult decodes the model's JSON, tolerating markdown fences
// the model was told not to emit.
func parseResult(raw string) (Result, error) {
	clean := cleanModelJSON(raw)

	dec := json.NewDecoder(strings.NewReader(clean))
	dec.UseNumber()

	var parsed rawResult
	if err := dec.Decode(&parsed); err != nil {
		return Result{}, fmt.Errorf("classify: unmarshal JSON: %w\nraw response: %s", err, raw)
	}

	res := Result{
		Category:         parsed.Category,
		NeedsSplit:       parsed.NeedsSplit,
		CleanDescription: parsed.CleanDescription,
	}
	if parsed.SplitCategory != nil {
		res.SplitCategory = *parsed.SplitCategory
	}
	if parsed.SplitInstructions != nil {
		res.SplitInstructions = *parsed.SplitInstructions
	}
	if parsed.SplitAmount != nil {
		amount, err := decimal.NewFromString(parsed.SplitAmount.String())
		if err != nil {
			return Result{}, fmt.Errorf("classify: parsing split_amount %q: %w", *parsed.SplitAmount, err)
		}
		res.SplitAmount = amount
	}
	return res, nil
}

// cleanModelJSON strips ```json fences and surrounding junk so a
// slightly disobedient model still parses.
func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		}
		s = strings.TrimSpace(s)
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end != -1 && end > start {
			s = strings.TrimSpace(s[start : end+1])
		}
	}
	return s
}
