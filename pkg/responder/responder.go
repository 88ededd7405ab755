// Package responder renders an analysis into the markdown answer shown to
// the user.
package responder

import (
	"fmt"
	"strings"
	"time"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
)

// Meta carries everything about the snapshot the response should cite.
type Meta struct {
	Domain       string
	TargetDate   time.Time
	SnapshotDate time.Time
	WaybackURL   string
	FromCache    bool
}

var sectionTitles = []struct {
	key   string
	title string
}{
	{"promotions", "Key Promotions"},
	{"products", "Featured Products & Categories"},
	{"insights", "Trading Insights"},
	{"comparison", "Comparison to Industry Norms"},
}

// Render produces the markdown response for one answered question. It never
// fails: missing analysis sections simply collapse to the raw LLM text.
func Render(analysis models.Analysis, meta Meta) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## %s on %s\n\n", meta.Domain, meta.SnapshotDate.Format("January 2, 2006"))

	if analysis.Summary != "" {
		b.WriteString(analysis.Summary)
		b.WriteString("\n\n")
	}

	wrote := false
	for _, section := range sectionTitles {
		body, ok := analysis.Findings[section.key]
		if !ok || body == "" {
			continue
		}
		fmt.Fprintf(&b, "### %s\n\n%s\n\n", section.title, body)
		wrote = true
	}

	// Nothing structured came back: show the model's reply as-is.
	if !wrote && analysis.Summary == "" {
		b.WriteString(strings.TrimSpace(analysis.Raw))
		b.WriteString("\n\n")
	}

	b.WriteString("---\n\n")
	if !sameDay(meta.SnapshotDate, meta.TargetDate) {
		fmt.Fprintf(&b, "*Closest snapshot to your requested date of %s.*\n",
			meta.TargetDate.Format("January 2, 2006"))
	}
	if meta.WaybackURL != "" {
		fmt.Fprintf(&b, "*Source: [archived snapshot](%s)*\n", meta.WaybackURL)
	}
	if meta.FromCache {
		b.WriteString("*Served from cache.*\n")
	}

	return strings.TrimRight(b.String(), "\n") + "\n"
}

// sameDay ignores capture time of day when deciding whether the snapshot
// landed on the requested date.
func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}
