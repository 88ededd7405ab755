package extractor

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
)

// ErrExtractionEmpty means the page yielded no usable content at all.
var ErrExtractionEmpty = errors.New("no usable content extracted from the page")

// Signal categories produced by Extract.
const (
	SignalPromotions = "promotions"
	SignalHero       = "hero"
	SignalProducts   = "products"
	SignalPrices     = "prices"
)

type selectorSet struct {
	promo   []string
	product []string
	hero    []string
}

// Per-domain selector sets for sites with known markup, with a generic
// default for everything else.
var domainSelectors = map[string]selectorSet{
	"asos.com": {
		promo:   []string{".promotion-banner", ".discount-strip", ".hero__title"},
		product: []string{".product-card", ".product-tile"},
		hero:    []string{".hero", ".homepage-hero", ".main-banner"},
	},
	"lookfantastic.com": {
		promo:   []string{".promo-banner", ".offer-strip", ".lf-banner__content"},
		product: []string{".productBlock", ".product-list__item"},
		hero:    []string{".hero-banner", ".homepage-banner"},
	},
	"default": {
		promo:   []string{".promo", ".promo-banner", ".banner", ".offer", ".discount", ".sale", ".deal"},
		product: []string{".product", ".product-card", ".item", ".card"},
		hero:    []string{".hero", ".hero-banner", ".banner", ".slider", ".carousel"},
	},
}

var (
	promoTermRe = regexp.MustCompile(`(?i)\b(off|save|discount|free|deal|offer|promotion|sale)\b`)
	priceRe     = regexp.MustCompile(`[$£€]\s?\d+(?:[.,]\d{2})?`)
	priceClass  = regexp.MustCompile(`(?i)price|cost|amount|now|was`)
)

// Extractor turns raw archived HTML into normalized text plus ecommerce
// signals. It is a pure transformation: no network, no side effects, and
// malformed markup degrades to empty signals rather than an error.
type Extractor struct{}

func New() *Extractor {
	return &Extractor{}
}

// Extract parses html and collects promotional banners, hero content,
// product names and prices, falling back to a generic heading/keyword scan
// when the selector sets find nothing.
func (e *Extractor) Extract(html, domain string) models.ExtractedContent {
	content := models.ExtractedContent{
		Signals: map[string][]string{
			SignalPromotions: {},
			SignalHero:       {},
			SignalProducts:   {},
			SignalPrices:     {},
		},
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return content
	}

	content.NormalizedText = normalizedText(html, domain, doc)

	selectors := selectorsFor(domain)
	e.collectPromotions(doc, selectors, &content)
	e.collectHero(doc, selectors, &content)
	e.collectProducts(doc, selectors, &content)

	if signalsEmpty(content.Signals) {
		e.fallback(doc, &content)
	}

	e.collectPrices(doc, &content)

	return content
}

func selectorsFor(domain string) selectorSet {
	for key, set := range domainSelectors {
		if key != "default" && strings.Contains(domain, key) {
			return set
		}
	}
	return domainSelectors["default"]
}

// normalizedText prefers the readability extraction and falls back to the
// raw body text when readability cannot make sense of the markup.
func normalizedText(html, domain string, doc *goquery.Document) string {
	pageURL, err := url.Parse("https://" + domain + "/")
	if err == nil {
		parser := readability.NewParser()
		article, rerr := parser.Parse(strings.NewReader(html), pageURL)
		if rerr == nil && strings.TrimSpace(article.TextContent) != "" {
			return collapseWhitespace(article.TextContent)
		}
	}
	return collapseWhitespace(doc.Find("body").Text())
}

func (e *Extractor) collectPromotions(doc *goquery.Document, set selectorSet, content *models.ExtractedContent) {
	for _, selector := range set.promo {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := collapseWhitespace(s.Text())
			if len(text) > 3 {
				content.Signals[SignalPromotions] = appendUnique(content.Signals[SignalPromotions], text)
			}
		})
	}
}

func (e *Extractor) collectHero(doc *goquery.Document, set selectorSet, content *models.ExtractedContent) {
	for _, selector := range set.hero {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			text := collapseWhitespace(s.Text())
			if len(text) > 5 {
				content.Signals[SignalHero] = appendUnique(content.Signals[SignalHero], text)
			}

			s.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
				alt, _ := img.Attr("alt")
				if len(strings.TrimSpace(alt)) > 5 {
					content.Signals[SignalHero] = appendUnique(content.Signals[SignalHero], "Hero image: "+strings.TrimSpace(alt))
				}
			})
		})
	}
}

func (e *Extractor) collectProducts(doc *goquery.Document, set selectorSet, content *models.ExtractedContent) {
	for _, selector := range set.product {
		doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
			name := collapseWhitespace(s.Find("h3, h4, h5, .name, .title").First().Text())
			price := ""
			s.Find("[class]").EachWithBreak(func(_ int, el *goquery.Selection) bool {
				class, _ := el.Attr("class")
				if priceClass.MatchString(class) {
					price = collapseWhitespace(el.Text())
					return false
				}
				return true
			})

			switch {
			case name != "" && price != "":
				content.Signals[SignalProducts] = appendUnique(content.Signals[SignalProducts], fmt.Sprintf("%s (%s)", name, price))
			case name != "":
				content.Signals[SignalProducts] = appendUnique(content.Signals[SignalProducts], name)
			}
		})
	}
}

// fallback mirrors the generic pass used when a site's markup matches none
// of the selector sets: headings, promo-term text nodes and alt text.
func (e *Extractor) fallback(doc *goquery.Document, content *models.ExtractedContent) {
	doc.Find("h1, h2, h3").Each(func(_ int, s *goquery.Selection) {
		text := collapseWhitespace(s.Text())
		if len(text) > 5 {
			content.Signals[SignalHero] = appendUnique(content.Signals[SignalHero], "Heading: "+text)
		}
	})

	doc.Find("p, span, div, a").Each(func(_ int, s *goquery.Selection) {
		if s.Children().Length() > 0 {
			return
		}
		text := collapseWhitespace(s.Text())
		if text == "" || len(text) > 200 {
			return
		}
		if promoTermRe.MatchString(text) {
			content.Signals[SignalPromotions] = appendUnique(content.Signals[SignalPromotions], text)
		}
	})

	doc.Find("img[alt]").Each(func(_ int, img *goquery.Selection) {
		alt, _ := img.Attr("alt")
		alt = strings.TrimSpace(alt)
		if len(alt) > 5 {
			content.Signals[SignalHero] = appendUnique(content.Signals[SignalHero], "Image: "+alt)
		}
	})
}

func (e *Extractor) collectPrices(doc *goquery.Document, content *models.ExtractedContent) {
	seen := map[string]bool{}
	for _, match := range priceRe.FindAllString(doc.Text(), 20) {
		match = strings.TrimSpace(match)
		if !seen[match] {
			seen[match] = true
			content.Signals[SignalPrices] = append(content.Signals[SignalPrices], match)
		}
	}
}

// Format renders extracted content as the sectioned digest the analyzer
// receives.
func (e *Extractor) Format(content models.ExtractedContent) string {
	var sb strings.Builder

	writeSection := func(header string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(header)
		sb.WriteString("\n")
		for _, item := range items {
			sb.WriteString(item)
			sb.WriteString("\n")
		}
	}

	writeSection("# HERO CONTENT", content.Signals[SignalHero])
	writeSection("# PROMOTIONS", content.Signals[SignalPromotions])
	writeSection("# FEATURED PRODUCTS", content.Signals[SignalProducts])
	writeSection("# PRICES SEEN", content.Signals[SignalPrices])

	total := 0
	for _, items := range content.Signals {
		total += len(items)
	}
	sb.WriteString("# EXTRACTION METADATA\n")
	sb.WriteString(fmt.Sprintf("Elements found: %d\n", total))

	if total == 0 && content.NormalizedText != "" {
		sb.WriteString("# PAGE TEXT\n")
		sb.WriteString(truncate(content.NormalizedText, 4000))
		sb.WriteString("\n")
	}

	return sb.String()
}

func signalsEmpty(signals map[string][]string) bool {
	for _, items := range signals {
		if len(items) > 0 {
			return false
		}
	}
	return true
}

func appendUnique(items []string, item string) []string {
	for _, existing := range items {
		if existing == item {
			return items
		}
	}
	return append(items, item)
}

func collapseWhitespace(s string) string {
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
