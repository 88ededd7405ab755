package query

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
)

// ParseError signals a question the processor could not turn into a Query.
// Clarification is a user-facing prompt shown instead of guessing silently.
type ParseError struct {
	Field         string
	Clarification string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse error (%s): %s", e.Field, e.Clarification)
}

// DateInferrer resolves a temporal reference the pattern table missed,
// typically by asking the LLM.
type DateInferrer interface {
	InferDate(ctx context.Context, question string, now time.Time) (time.Time, error)
}

type ProcessorConfig struct {
	Now      func() time.Time // defaults to time.Now; tests pin the clock
	Inferrer DateInferrer     // optional fallback for free-form date phrases
}

// Processor extracts a domain, a target date and an intent label from a
// free-text question.
type Processor struct {
	config ProcessorConfig
}

var (
	domainRe   = regexp.MustCompile(`([a-zA-Z0-9][-a-zA-Z0-9]*\.)+[a-zA-Z]{2,}`)
	unitsAgoRe = regexp.MustCompile(`(\d+)\s+(year|month|week|day)s?\s+ago`)
	lastWordRe = regexp.MustCompile(`last\s+(january|february|march|april|may|june|july|august|september|october|november|december|spring|summer|fall|autumn|winter|black friday|cyber monday|christmas|valentine'?s?(?:\s+day)?|halloween|easter)`)
	absDateRe  = regexp.MustCompile(`(?i)\b(\d{4}-\d{2}-\d{2})\b|\b((?:january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec)[a-z]*\.?\s+(?:\d{1,2}(?:st|nd|rd|th)?,?\s+)?\d{4})\b`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March,
	"april": time.April, "may": time.May, "june": time.June,
	"july": time.July, "august": time.August, "september": time.September,
	"october": time.October, "november": time.November, "december": time.December,
}

// Seasons map to the 15th of their opening month, matching holidays below.
var seasonStart = map[string]time.Month{
	"spring": time.March, "summer": time.June,
	"fall": time.September, "autumn": time.September,
	"winter": time.December,
}

var seasonEnd = map[string]time.Month{
	"spring": time.May, "summer": time.August,
	"fall": time.November, "autumn": time.November,
}

// Approximate calendar positions for retail events. Black Friday and Cyber
// Monday drift year to year; the archive client's offset sweep absorbs the
// few days of error.
var holidays = map[string]struct {
	month time.Month
	day   int
}{
	"black friday": {time.November, 25},
	"cyber monday": {time.November, 28},
	"christmas":    {time.December, 25},
	"valentine":    {time.February, 14},
	"halloween":    {time.October, 31},
	"easter":       {time.April, 15},
}

func NewWithConfig(config ProcessorConfig) *Processor {
	if config.Now == nil {
		config.Now = time.Now
	}
	return &Processor{config: config}
}

// Parse turns a free-text question into a structured Query. A question with
// no resolvable domain or no resolvable date yields a *ParseError.
func (p *Processor) Parse(ctx context.Context, question string) (models.Query, error) {
	trimmed := strings.TrimSpace(question)
	if trimmed == "" {
		return models.Query{}, &ParseError{
			Field:         "question",
			Clarification: "Ask me about a website's past, e.g. \"What was asos.com promoting this time last year?\"",
		}
	}

	domain := domainRe.FindString(trimmed)
	if domain == "" {
		return models.Query{}, &ParseError{
			Field:         "domain",
			Clarification: "Please include a website domain in your question (e.g. asos.com).",
		}
	}
	domain = strings.ToLower(domain)

	target, err := p.resolveDate(ctx, trimmed)
	if err != nil {
		return models.Query{}, err
	}

	return models.Query{
		RawText:    question,
		Domain:     domain,
		TargetDate: target,
		Intent:     detectIntent(trimmed),
	}, nil
}

func detectIntent(question string) string {
	q := strings.ToLower(question)
	has := func(terms ...string) bool {
		for _, t := range terms {
			if strings.Contains(q, t) {
				return true
			}
		}
		return false
	}

	switch {
	case has("promo", "promotion", "offer", "discount", "sale", "deal"):
		return "promotions"
	case has("product", "range", "item", "selling"):
		return "products"
	case has("delivery", "shipping", "fulfillment"):
		return "delivery"
	case has("price", "pricing", "cost", "how much", "charge"):
		return "pricing"
	default:
		return "general"
	}
}

func (p *Processor) resolveDate(ctx context.Context, question string) (time.Time, error) {
	q := strings.ToLower(question)
	today := dateOnly(p.config.Now())

	// Plain relative phrases first.
	switch {
	case strings.Contains(q, "this time last year"), strings.Contains(q, "last year"):
		return today.AddDate(-1, 0, 0), nil
	case strings.Contains(q, "last month"):
		return today.AddDate(0, -1, 0), nil
	case strings.Contains(q, "last week"):
		return today.AddDate(0, 0, -7), nil
	case strings.Contains(q, "yesterday"):
		return today.AddDate(0, 0, -1), nil
	}

	if m := unitsAgoRe.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		switch m[2] {
		case "year":
			return today.AddDate(-n, 0, 0), nil
		case "month":
			return today.AddDate(0, -n, 0), nil
		case "week":
			return today.AddDate(0, 0, -7*n), nil
		case "day":
			return today.AddDate(0, 0, -n), nil
		}
	}

	// Absolute dates beat named events so "june 2023" is not read as
	// "last june".
	if target, ok := parseAbsoluteDate(question); ok {
		return target, nil
	}

	if m := lastWordRe.FindStringSubmatch(q); m != nil {
		return lastOccurrence(m[1], today), nil
	}

	if p.config.Inferrer != nil {
		if target, err := p.config.Inferrer.InferDate(ctx, question, today); err == nil && !target.IsZero() {
			return dateOnly(target), nil
		}
	}

	return time.Time{}, &ParseError{
		Field:         "date",
		Clarification: "When should I look? Try a phrase like \"last year\", \"6 months ago\" or an exact date.",
	}
}

func parseAbsoluteDate(question string) (time.Time, bool) {
	m := absDateRe.FindString(question)
	if m == "" {
		return time.Time{}, false
	}
	if t, err := dateparse.ParseAny(m); err == nil {
		return dateOnly(t), true
	}
	for _, layout := range []string{"January 2006", "Jan 2006"} {
		if t, err := time.Parse(layout, strings.Title(strings.ToLower(m))); err == nil {
			return dateOnly(t), true
		}
	}
	return time.Time{}, false
}

// lastOccurrence resolves "last <month|season|holiday>" to its most recent
// past calendar position, the way shoppers mean it.
func lastOccurrence(name string, today time.Time) time.Time {
	name = strings.TrimSpace(name)

	if month, ok := monthNames[name]; ok {
		return lastMonthOccurrence(month, today)
	}

	if start, ok := seasonStart[name]; ok {
		if name == "winter" {
			// Winter straddles the year boundary.
			if today.Month() == time.December || today.Month() <= time.February {
				return today.AddDate(-1, 0, 0)
			}
			return time.Date(today.Year(), time.January, 15, 0, 0, 0, 0, today.Location())
		}
		year := today.Year()
		if today.Month() <= seasonEnd[name] {
			year--
		}
		return time.Date(year, start, 15, 0, 0, 0, 0, today.Location())
	}

	for key, h := range holidays {
		if strings.HasPrefix(name, key) {
			candidate := time.Date(today.Year(), h.month, h.day, 0, 0, 0, 0, today.Location())
			if !candidate.Before(today) {
				candidate = candidate.AddDate(-1, 0, 0)
			}
			return candidate
		}
	}

	// Unreachable while the regex and tables agree; default to a year back.
	return today.AddDate(-1, 0, 0)
}

func lastMonthOccurrence(month time.Month, today time.Time) time.Time {
	year := today.Year()
	if today.Month() <= month {
		year--
	}
	return time.Date(year, month, 15, 0, 0, 0, 0, today.Location())
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
