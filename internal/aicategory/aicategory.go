// Package aicategory asks a Gemini model for a category when the history
// heuristic has no confident suggestion.
package aicategory

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

// DefaultModelName is the Gemini model used when none is configured.
const DefaultModelName = "gemini-2.5-flash"

// Generator produces a text completion for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Suggester picks one of the owner's categories for a statement record.
type Suggester struct {
	gen Generator
}

// New creates a Suggester backed by gen.
func New(gen Generator) *Suggester {
	return &Suggester{gen: gen}
}

// SuggestCategory implements reconcile.CategoryFallback. A reply naming a
// category outside the given list yields nil.
func (s *Suggester) SuggestCategory(ctx context.Context, rec domain.IngestedRecord, categories []domain.Category) (*domain.Category, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	raw, err := s.gen.Generate(ctx, buildPrompt(rec, categories))
	if err != nil {
		return nil, fmt.Errorf("SuggestCategory: generate: %w", err)
	}

	var reply struct {
		Category *string `json:"category"`
	}
	if err := json.Unmarshal([]byte(cleanModelJSON(raw)), &reply); err != nil {
		return nil, fmt.Errorf("SuggestCategory: unmarshal JSON: %w\nraw response: %s", err, raw)
	}
	if reply.Category == nil {
		return nil, nil
	}

	name := strings.TrimSpace(*reply.Category)
	for i := range categories {
		if strings.EqualFold(categories[i].Name, name) {
			c := categories[i]
			return &c, nil
		}
	}
	return nil, nil
}

func buildPrompt(rec domain.IngestedRecord, categories []domain.Category) string {
	var b strings.Builder
	b.WriteString("You categorize bank statement lines for a personal finance ledger.\n\n")
	b.WriteString("Statement line:\n")
	fmt.Fprintf(&b, "- date: %s\n", rec.OccurredOn)
	fmt.Fprintf(&b, "- description: %s\n", rec.Description)
	fmt.Fprintf(&b, "- amount: %s\n", rec.Amount.StringFixed(2))
	fmt.Fprintf(&b, "- direction: %s\n\n", rec.Direction)

	b.WriteString("Use ONLY one of the following categories:\n")
	for _, c := range categories {
		b.WriteString("  - " + c.Name + "\n")
	}

	b.WriteString("\nRules:\n")
	b.WriteString("1. Category must be EXACTLY one of the names shown above.\n")
	b.WriteString("2. If you are unsure, use null.\n\n")
	b.WriteString("Return ONLY a raw JSON object of the form {\"category\": \"<name>\"} or {\"category\": null}.\n")
	b.WriteString("Do NOT wrap the response in code fences.\n")
	return b.String()
}

func cleanModelJSON(raw string) string {
	s := strings.TrimSpace(raw)

	// Handle ```json ... ``` or ``` ... ``` wrappers.
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx != -1 {
			s = s[idx+1:]
		} else {
			return s
		}
	}
	if idx := strings.LastIndex(s, "```"); idx != -1 {
		s = s[:idx]
	}
	s = strings.TrimSpace(s)

	if start := strings.Index(s, "{"); start != -1 {
		if end := strings.LastIndex(s, "}"); end > start {
			s = s[start : end+1]
		}
	}
	return s
}

// GeminiGenerator calls the Gemini API through google.golang.org/genai.
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a client from the environment (GOOGLE_API_KEY
// or Vertex AI settings). An empty model selects DefaultModelName.
func NewGeminiGenerator(ctx context.Context, model string) (*GeminiGenerator, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		return nil, fmt.Errorf("NewGeminiGenerator: create genai client: %w", err)
	}
	if model == "" {
		model = DefaultModelName
	}
	return &GeminiGenerator{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	contents := []*genai.Content{
		{
			Role:  "user",
			Parts: []*genai.Part{{Text: prompt}},
		},
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("Generate: generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("Generate: empty response from model")
	}
	return text, nil
}
