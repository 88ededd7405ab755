package analyzer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/retry"
)

// fakeModel scripts GenerateContent replies for tests.
type fakeModel struct {
	replies []string
	errs    []error
	calls   int
}

func (f *fakeModel) GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	reply := ""
	if i < len(f.replies) {
		reply = f.replies[i]
	}
	return &llms.ContentResponse{
		Choices: []*llms.ContentChoice{{Content: reply}},
	}, nil
}

func (f *fakeModel) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	resp, err := f.GenerateContent(ctx, nil)
	if err != nil {
		return "", err
	}
	return resp.Choices[0].Content, nil
}

func newTestAnalyzer(model llms.Model) *Analyzer {
	return &Analyzer{
		config: AnalyzerConfig{
			Temperature: 0.4,
			MaxTokens:   1000,
			Retry: retry.Policy{
				MaxRetries:   2,
				InitialDelay: time.Millisecond,
				Multiplier:   2,
			},
		},
		llm: model,
	}
}

const structuredReply = `1. SUMMARY: Heavy summer clearance with sitewide discounting.

2. KEY PROMOTIONS:
- 50% off with code SUMMER20
- Free shipping over £50

3. FEATURED PRODUCTS/CATEGORIES:
- Swimwear and sandals

4. TRADING INSIGHTS:
- Aggressive end-of-season stock clearance

5. COMPARISON TO INDUSTRY NORMS:
- Deeper discounts than typical mid-market retailers`

func TestAnalyzeParsesSections(t *testing.T) {
	model := &fakeModel{replies: []string{structuredReply}}
	a := newTestAnalyzer(model)

	analysis, err := a.Analyze(context.Background(), models.AnalysisRequest{
		Domain:       "example.com",
		SnapshotDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Content:      "# PROMOTIONS\n- 50% off",
		Intent:       "promotions",
	})
	require.NoError(t, err)

	assert.Equal(t, "Heavy summer clearance with sitewide discounting.", analysis.Summary)
	assert.Contains(t, analysis.Findings["promotions"], "SUMMER20")
	assert.Contains(t, analysis.Findings["products"], "Swimwear")
	assert.Contains(t, analysis.Findings["insights"], "clearance")
	assert.Contains(t, analysis.Findings["comparison"], "mid-market")
	assert.Equal(t, structuredReply, analysis.Raw)
}

func TestAnalyzeUnstructuredReplyKeepsRaw(t *testing.T) {
	reply := "The site was running a big summer sale with lots of discounts."
	model := &fakeModel{replies: []string{reply}}
	a := newTestAnalyzer(model)

	analysis, err := a.Analyze(context.Background(), models.AnalysisRequest{
		Domain:       "example.com",
		SnapshotDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Content:      "content",
		Intent:       "general",
	})
	require.NoError(t, err)

	assert.Empty(t, analysis.Summary)
	assert.Empty(t, analysis.Findings)
	assert.Equal(t, reply, analysis.Raw)
}

func TestAnalyzeRetriesTransientFailures(t *testing.T) {
	model := &fakeModel{
		errs:    []error{errors.New("rate limited"), nil},
		replies: []string{"", structuredReply},
	}
	a := newTestAnalyzer(model)

	_, err := a.Analyze(context.Background(), models.AnalysisRequest{
		Domain:       "example.com",
		SnapshotDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Content:      "content",
		Intent:       "general",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, model.calls)
}

func TestAnalyzePersistentFailure(t *testing.T) {
	model := &fakeModel{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	a := newTestAnalyzer(model)

	_, err := a.Analyze(context.Background(), models.AnalysisRequest{
		Domain:       "example.com",
		SnapshotDate: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		Content:      "content",
		Intent:       "general",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrAnalysisUnavailable)
	assert.Equal(t, 3, model.calls)
}

func TestBuildPromptIncludesContext(t *testing.T) {
	prompt := buildPrompt(models.AnalysisRequest{
		Domain:       "asos.com",
		SnapshotDate: time.Date(2023, 11, 24, 0, 0, 0, 0, time.UTC),
		Content:      "# PROMOTIONS\n- 70% off everything",
		Intent:       "promotions",
		Question:     "What deals did asos.com run last Black Friday?",
	})

	assert.Contains(t, prompt, "asos.com's homepage from November 24, 2023")
	assert.Contains(t, prompt, "promotions and discounts")
	assert.Contains(t, prompt, "70% off everything")
	assert.Contains(t, prompt, "Black Friday, Cyber Monday, and holiday shopping")
	assert.Contains(t, prompt, "The user asked: What deals did asos.com run last Black Friday?")
}

func TestBuildPromptUnknownIntentFallsBackToGeneral(t *testing.T) {
	prompt := buildPrompt(models.AnalysisRequest{
		Domain:       "example.com",
		SnapshotDate: time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC),
		Content:      "content",
		Intent:       "something-else",
	})
	assert.Contains(t, prompt, "general trading activity")
}

func TestInferDate(t *testing.T) {
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		reply string
		want  time.Time
	}{
		{"iso date", "2023-12-25", time.Date(2023, 12, 25, 0, 0, 0, 0, time.UTC)},
		{"iso date with noise", "The date is 2023-06-15.", time.Date(2023, 6, 15, 0, 0, 0, 0, time.UTC)},
		{"relative years", "1 year ago", now.AddDate(-1, 0, 0)},
		{"relative months", "3 months ago", now.AddDate(0, -3, 0)},
		{"relative weeks", "2 weeks ago", now.AddDate(0, 0, -14)},
		{"unparseable falls back a year", "no idea", now.AddDate(-1, 0, 0)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			model := &fakeModel{replies: []string{tt.reply}}
			a := newTestAnalyzer(model)

			got, err := a.InferDate(context.Background(), "when was that", now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferDateProviderFailure(t *testing.T) {
	model := &fakeModel{
		errs: []error{errors.New("down"), errors.New("down"), errors.New("down")},
	}
	a := newTestAnalyzer(model)

	_, err := a.InferDate(context.Background(), "when", time.Now())
	assert.ErrorIs(t, err, ErrAnalysisUnavailable)
}

func TestMatchSectionHeaderVariants(t *testing.T) {
	tests := []struct {
		line string
		key  string
		ok   bool
	}{
		{"1. SUMMARY: overview here", "summary", true},
		{"**KEY PROMOTIONS**", "promotions", true},
		{"## TRADING INSIGHTS", "insights", true},
		{"FEATURED PRODUCTS:", "products", true},
		{"- 50% off everything", "", false},
		{"Some normal sentence.", "", false},
	}

	for _, tt := range tests {
		key, _, ok := matchSectionHeader(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.key, key, tt.line)
	}
}
