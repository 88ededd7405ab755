package extractor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleHTML = `<!DOCTYPE html>
<html>
<head><title>Test Ecommerce Site</title></head>
<body>
	<div class="hero-banner">
		<h1>Summer Sale</h1>
		<p>Up to 50% off selected items</p>
		<img src="banner.jpg" alt="Summer Sale Banner">
	</div>
	<div class="promo-banner">
		<p>Use code SUMMER20 for an extra 20% off</p>
	</div>
	<div class="product-card">
		<h3 class="name">Test Product 1</h3>
		<p class="price">$99.99</p>
	</div>
	<div class="product-card">
		<h3 class="name">Test Product 2</h3>
		<p class="price">$149.99</p>
	</div>
</body>
</html>`

func TestExtractDefaultSelectors(t *testing.T) {
	content := New().Extract(sampleHTML, "unknown-domain.com")

	require.NotEmpty(t, content.Signals[SignalHero])
	require.NotEmpty(t, content.Signals[SignalPromotions])
	require.NotEmpty(t, content.Signals[SignalProducts])

	hero := join(content.Signals[SignalHero])
	assert.Contains(t, hero, "Summer Sale")

	promos := join(content.Signals[SignalPromotions])
	assert.Contains(t, promos, "SUMMER20")

	products := join(content.Signals[SignalProducts])
	assert.Contains(t, products, "Test Product 1")
	assert.Contains(t, products, "$99.99")
}

func TestExtractPrices(t *testing.T) {
	content := New().Extract(sampleHTML, "unknown-domain.com")

	assert.Contains(t, content.Signals[SignalPrices], "$99.99")
	assert.Contains(t, content.Signals[SignalPrices], "$149.99")
}

func TestExtractFallback(t *testing.T) {
	html := `<!DOCTYPE html>
<html>
<head><title>Test Site</title></head>
<body>
	<div class="no-match">
		<h1>Summer Sale</h1>
		<p>Up to 50% off selected items</p>
	</div>
	<div class="no-match-promo">
		<p>Use code SUMMER20 for an extra 20% off</p>
	</div>
</body>
</html>`

	content := New().Extract(html, "unknown-domain.com")

	all := join(content.Signals[SignalHero]) + join(content.Signals[SignalPromotions])
	assert.Contains(t, all, "Summer Sale")
	assert.Contains(t, all, "50% off")
}

func TestExtractMalformedHTML(t *testing.T) {
	for _, input := range []string{
		"",
		"<div><<<<>>>",
		"<html><body><div class=",
		"plain text with no markup at all",
	} {
		content := New().Extract(input, "example.com")
		assert.NotNil(t, content.Signals)
		// Must never panic, and must not invent signals from garbage.
		for _, items := range content.Signals {
			for _, item := range items {
				assert.NotEmpty(t, item)
			}
		}
	}
}

func TestExtractEmptyPage(t *testing.T) {
	content := New().Extract("<html><body></body></html>", "example.com")
	assert.True(t, content.Empty())
}

func TestExtractNormalizedText(t *testing.T) {
	content := New().Extract(sampleHTML, "example.com")
	assert.Contains(t, content.NormalizedText, "Summer Sale")
	assert.NotContains(t, content.NormalizedText, "<div")
}

func TestFormatSections(t *testing.T) {
	content := New().Extract(sampleHTML, "unknown-domain.com")
	formatted := New().Format(content)

	assert.Contains(t, formatted, "# HERO CONTENT")
	assert.Contains(t, formatted, "# PROMOTIONS")
	assert.Contains(t, formatted, "# FEATURED PRODUCTS")
	assert.Contains(t, formatted, "# EXTRACTION METADATA")
	assert.Contains(t, formatted, "SUMMER20")
}

func TestFormatEmptyContent(t *testing.T) {
	content := New().Extract("<html><body></body></html>", "example.com")
	formatted := New().Format(content)

	assert.Contains(t, formatted, "Elements found: 0")
	assert.NotContains(t, formatted, "# PROMOTIONS")
}

func TestDomainSpecificSelectors(t *testing.T) {
	html := `<html><body>
		<div class="promotion-banner">Extra 10% off everything</div>
		<div class="hero__title">New Season Arrivals</div>
	</body></html>`

	content := New().Extract(html, "www.asos.com")

	promos := join(content.Signals[SignalPromotions])
	assert.Contains(t, promos, "Extra 10% off everything")
	assert.Contains(t, promos, "New Season Arrivals")
}

func join(items []string) string {
	out := ""
	for _, item := range items {
		out += item + "\n"
	}
	return out
}
