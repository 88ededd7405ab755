package analyzer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/retry"
)

// ErrAnalysisUnavailable means the LLM provider kept failing after retries.
var ErrAnalysisUnavailable = errors.New("analysis service unavailable")

type AnalyzerConfig struct {
	Provider    string // googleai, openai or ollama
	Model       string
	APIKey      string
	BaseURL     string // ollama server URL
	MaxTokens   int
	Temperature float64
	Retry       retry.Policy
}

// Analyzer sends extracted page content to an LLM and parses the reply into
// an Analysis. It also doubles as the query processor's date inferrer.
type Analyzer struct {
	config AnalyzerConfig
	llm    llms.Model
}

func NewWithConfig(ctx context.Context, config AnalyzerConfig) (*Analyzer, error) {
	if config.MaxTokens == 0 {
		config.MaxTokens = 1000
	}
	if config.Temperature == 0 {
		config.Temperature = 0.4
	}
	if config.Retry.MaxRetries == 0 {
		config.Retry = retry.DefaultPolicy()
	}

	var model llms.Model
	var err error
	switch config.Provider {
	case "googleai", "":
		model, err = googleai.New(ctx,
			googleai.WithAPIKey(config.APIKey),
			googleai.WithDefaultModel(config.Model))
	case "openai":
		model, err = openai.New(
			openai.WithToken(config.APIKey),
			openai.WithModel(config.Model))
	case "ollama":
		baseURL := config.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434"
		}
		model, err = ollama.New(
			ollama.WithModel(config.Model),
			ollama.WithServerURL(baseURL))
	default:
		return nil, fmt.Errorf("unknown LLM provider: %q (valid: googleai, openai, ollama)", config.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &Analyzer{
		config: config,
		llm:    model,
	}, nil
}

const systemPrompt = `You are an expert ecommerce trading analyst with deep knowledge of retail strategies, promotions, and merchandising.

Your task is to analyze historical ecommerce website content and provide valuable insights about their trading strategy.

Guidelines for your analysis:
1. Focus on concrete observations before making interpretations
2. Identify specific promotional mechanics (e.g., "20% off with code SAVE20" rather than just "discount")
3. Note price points and thresholds (e.g., "Free shipping on orders over £50")
4. Identify featured brands, categories, or products and their prominence
5. Consider seasonal context based on the snapshot date
6. Format your response with clear sections and bullet points
7. Be specific and precise - avoid vague statements
8. Include 3-5 key trading insights that would be valuable to a competitor

Your analysis should be professional, data-driven, and actionable.`

const userPromptTemplate = `Analyze this content extracted from %s's homepage from %s.

Focus specifically on %s.

EXTRACTED CONTENT:
%s

Please structure your response as follows:

1. SUMMARY: A 2-3 sentence overview of the main trading strategy
2. KEY PROMOTIONS: Bullet points of specific offers, discounts, and promotional mechanics
3. FEATURED PRODUCTS/CATEGORIES: What was being highlighted on the homepage
4. TRADING INSIGHTS: 3-5 specific observations about their strategy that would be valuable to a competitor
5. COMPARISON TO INDUSTRY NORMS: How this approach compares to typical ecommerce strategies

Remember to be specific and precise in your analysis.`

// Typical retail focus for each month, appended to the prompt so the model
// reads the snapshot in season.
var seasonalContext = map[time.Month]string{
	time.January:   "post-holiday sales and winter promotions",
	time.February:  "Valentine's Day and early spring transitions",
	time.March:     "spring launches and seasonal transitions",
	time.April:     "Easter promotions and spring campaigns",
	time.May:       "Mother's Day and early summer preparations",
	time.June:      "summer launches and vacation season",
	time.July:      "mid-summer sales and early back-to-school",
	time.August:    "back-to-school and end-of-summer sales",
	time.September: "fall launches and fashion week influences",
	time.October:   "Halloween and early holiday preparations",
	time.November:  "Black Friday, Cyber Monday, and holiday shopping",
	time.December:  "holiday gifting and end-of-year sales",
}

var focusAreas = map[string]string{
	"promotions": "promotions and discounts",
	"products":   "product range and merchandising",
	"delivery":   "delivery and shipping offers",
	"pricing":    "price points and pricing strategy",
	"general":    "general trading activity",
}

// Analyze runs one LLM call over the extracted content and parses the reply.
// A malformed reply is never an error: the verbatim text is returned in
// Analysis.Raw.
func (a *Analyzer) Analyze(ctx context.Context, req models.AnalysisRequest) (models.Analysis, error) {
	prompt := buildPrompt(req)

	text, err := a.generate(ctx, systemPrompt, prompt)
	if err != nil {
		return models.Analysis{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}

	return parseAnalysis(text), nil
}

func buildPrompt(req models.AnalysisRequest) string {
	focus, ok := focusAreas[req.Intent]
	if !ok {
		focus = focusAreas["general"]
	}

	prompt := fmt.Sprintf(userPromptTemplate,
		req.Domain,
		req.SnapshotDate.Format("January 2, 2006"),
		focus,
		req.Content,
	)

	if season, ok := seasonalContext[req.SnapshotDate.Month()]; ok {
		prompt += fmt.Sprintf("\n\nNote that this snapshot is from %s, which typically features %s in retail.",
			req.SnapshotDate.Format("January"), season)
	}
	if req.Question != "" {
		prompt += "\n\nThe user asked: " + req.Question
	}

	return prompt
}

func (a *Analyzer) generate(ctx context.Context, system, user string) (string, error) {
	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, user),
	}

	var text string
	err := a.config.Retry.Do(ctx, func() error {
		resp, err := a.llm.GenerateContent(ctx, content,
			llms.WithTemperature(a.config.Temperature),
			llms.WithMaxTokens(a.config.MaxTokens))
		if err != nil {
			// Provider failures are rate limits or transport errors
			// often enough that retrying is always worth it.
			return retry.Transient(err)
		}
		if len(resp.Choices) == 0 || resp.Choices[0].Content == "" {
			return retry.Transient(errors.New("empty response from LLM"))
		}
		text = resp.Choices[0].Content
		return nil
	})
	return text, err
}

// Section headers the structured prompt asks for, mapped to finding keys.
var sectionKeys = []struct {
	header string
	key    string
}{
	{"SUMMARY", "summary"},
	{"KEY PROMOTIONS", "promotions"},
	{"FEATURED PRODUCTS/CATEGORIES", "products"},
	{"FEATURED PRODUCTS", "products"},
	{"TRADING INSIGHTS", "insights"},
	{"COMPARISON TO INDUSTRY NORMS", "comparison"},
}

var sectionNumberRe = regexp.MustCompile(`^(\d+)[.)]\s*`)

// parseAnalysis splits the LLM reply into the sections the prompt requested.
// Replies in any other shape keep only the Raw text.
func parseAnalysis(text string) models.Analysis {
	analysis := models.Analysis{
		Findings: map[string]string{},
		Raw:      text,
	}

	lines := strings.Split(text, "\n")
	current := ""
	var buf strings.Builder

	flush := func() {
		if current == "" {
			return
		}
		body := strings.TrimSpace(buf.String())
		if body != "" {
			analysis.Findings[current] = body
		}
		buf.Reset()
	}

	for _, line := range lines {
		key, rest, ok := matchSectionHeader(line)
		if ok {
			flush()
			current = key
			if rest != "" {
				buf.WriteString(rest)
				buf.WriteString("\n")
			}
			continue
		}
		if current != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()

	analysis.Summary = analysis.Findings["summary"]
	return analysis
}

func matchSectionHeader(line string) (key, rest string, ok bool) {
	trimmed := strings.TrimSpace(line)
	trimmed = strings.TrimLeft(trimmed, "#* ")
	trimmed = strings.TrimRight(trimmed, "* ")

	// Strip "1. " style numbering.
	if m := sectionNumberRe.FindString(trimmed); m != "" {
		trimmed = trimmed[len(m):]
	}

	upper := strings.ToUpper(trimmed)
	for _, section := range sectionKeys {
		if strings.HasPrefix(upper, section.header) {
			rest = strings.TrimSpace(trimmed[len(section.header):])
			rest = strings.TrimLeft(rest, ":* ")
			return section.key, rest, true
		}
	}
	return "", "", false
}

const datePromptTemplate = `Extract a specific date or time period from this query: "%s"

Today's date is %s.

If the query mentions a specific date or time period (like "last Christmas", "summer 2023", "3 months ago", etc.), convert it to an exact date in YYYY-MM-DD format.

If no specific date or time period is mentioned, return "1 year ago" as the default.

Only return the date in YYYY-MM-DD format or the relative time period (like "1 year ago"). Do not include any other text or explanation.`

var (
	isoDateRe  = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	unitsAgoRe = regexp.MustCompile(`(\d+)\s+(year|month|week|day)s?\s+ago`)
)

// InferDate asks the LLM to resolve a temporal phrase the pattern table
// missed. Implements query.DateInferrer.
func (a *Analyzer) InferDate(ctx context.Context, question string, now time.Time) (time.Time, error) {
	prompt := fmt.Sprintf(datePromptTemplate, question, now.Format("2006-01-02"))

	text, err := a.generate(ctx, "You are a date extraction assistant. Extract dates or time periods from queries.", prompt)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %v", ErrAnalysisUnavailable, err)
	}

	if target, ok := ParseInferredDate(text, now); ok {
		return target, nil
	}
	// Unparseable reply: fall back to a year before today, matching the
	// default the prompt asks the model for.
	return now.AddDate(-1, 0, 0), nil
}

// ParseInferredDate interprets the model's date reply: either an ISO date or
// an "N units ago" phrase.
func ParseInferredDate(text string, now time.Time) (time.Time, bool) {
	lower := strings.ToLower(strings.TrimSpace(text))

	if m := unitsAgoRe.FindStringSubmatch(lower); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "year":
			return now.AddDate(-n, 0, 0), true
		case "month":
			return now.AddDate(0, -n, 0), true
		case "week":
			return now.AddDate(0, 0, -7*n), true
		case "day":
			return now.AddDate(0, 0, -n), true
		}
	}

	if m := isoDateRe.FindString(text); m != "" {
		if t, err := time.Parse("2006-01-02", m); err == nil {
			return t, true
		}
	}

	return time.Time{}, false
}
