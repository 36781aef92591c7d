package aicategory

import (
	"context"
	"errors"
	"strings"
	"testing"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/statement-reconciler/internal/domain"
)

type fakeGenerator struct {
	GenerateFunc func(ctx context.Context, prompt string) (string, error)
	prompts      []string
}

func (f *fakeGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return f.GenerateFunc(ctx, prompt)
}

func reply(s string) func(context.Context, string) (string, error) {
	return func(context.Context, string) (string, error) { return s, nil }
}

var categories = []domain.Category{
	{ID: "c1", Name: "Groceries", Kind: domain.DirectionOutflow},
	{ID: "c2", Name: "Health", Kind: domain.DirectionOutflow},
}

func record() domain.IngestedRecord {
	return domain.NewIngestedRecord(civil.Date{Year: 2024, Month: 12, Day: 10}, "FARMACIA NOVA", decimal.RequireFromString("-42"))
}

func TestSuggestCategory(t *testing.T) {
	tests := []struct {
		name   string
		answer string
		wantID string
	}{
		{"plain json", `{"category": "Health"}`, "c2"},
		{"fenced json", "```json\n{\"category\": \"health\"}\n```", "c2"},
		{"chatty reply", "Sure! {\"category\": \"Groceries\"} hope that helps", "c1"},
		{"unknown name", `{"category": "Travel"}`, ""},
		{"null", `{"category": null}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(&fakeGenerator{GenerateFunc: reply(tt.answer)})
			got, err := s.SuggestCategory(context.Background(), record(), categories)
			require.NoError(t, err)
			if tt.wantID == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.wantID, got.ID)
		})
	}
}

func TestSuggestCategoryErrors(t *testing.T) {
	s := New(&fakeGenerator{GenerateFunc: func(context.Context, string) (string, error) {
		return "", errors.New("quota exceeded")
	}})
	_, err := s.SuggestCategory(context.Background(), record(), categories)
	assert.ErrorContains(t, err, "quota exceeded")

	s = New(&fakeGenerator{GenerateFunc: reply("not json at all")})
	_, err = s.SuggestCategory(context.Background(), record(), categories)
	assert.Error(t, err)
}

func TestSuggestCategorySkipsModelWithoutCategories(t *testing.T) {
	gen := &fakeGenerator{GenerateFunc: reply(`{"category": "Health"}`)}
	got, err := New(gen).SuggestCategory(context.Background(), record(), nil)
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.Empty(t, gen.prompts)
}

func TestBuildPromptListsCategories(t *testing.T) {
	p := buildPrompt(record(), categories)
	assert.Contains(t, p, "FARMACIA NOVA")
	assert.Contains(t, p, "42.00")
	assert.Contains(t, p, "outflow")
	assert.True(t, strings.Contains(p, "  - Groceries\n") && strings.Contains(p, "  - Health\n"))
}
