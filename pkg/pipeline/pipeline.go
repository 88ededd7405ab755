// Package pipeline wires the query processor, archive client, extractor,
// analyzer and cache into the end-to-end question flow.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/types"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/analyzer"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/archive"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/cache"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/config"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/extractor"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/query"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/responder"
	"github.com/Kylethg/wayback-ecommerce-chatbot/pkg/retry"
)

// Stage names reported through OnStage while a question is in flight.
const (
	StageParsing    = "parsing"
	StageSearching  = "searching"
	StageFetching   = "fetching"
	StageExtracting = "extracting"
	StageAnalyzing  = "analyzing"
)

type Pipeline struct {
	Parser    types.QueryParser
	Archive   types.SnapshotFinder
	Extractor types.ContentExtractor
	Analyzer  types.Analyzer
	Cache     types.Store
	Log       *logrus.Logger

	// OnStage, when set, is called as each stage of a question starts. The
	// terminal UI uses it to drive progress output.
	OnStage func(stage string)

	now func() time.Time
}

func New(parser types.QueryParser, arch types.SnapshotFinder, ext types.ContentExtractor, an types.Analyzer, store types.Store, log *logrus.Logger) *Pipeline {
	if log == nil {
		log = logrus.New()
	}
	return &Pipeline{
		Parser:    parser,
		Archive:   arch,
		Extractor: ext,
		Analyzer:  an,
		Cache:     store,
		Log:       log,
		now:       time.Now,
	}
}

// FromConfig builds a fully wired pipeline from a loaded configuration. The
// analyzer doubles as the query processor's date inferrer, so vague phrases
// fall through to the LLM.
func FromConfig(ctx context.Context, cfg *config.Config, log *logrus.Logger) (*Pipeline, error) {
	an, err := analyzer.NewWithConfig(ctx, analyzer.AnalyzerConfig{
		Provider:    cfg.LLM.Provider,
		Model:       cfg.LLM.Model,
		APIKey:      cfg.LLM.APIKey,
		BaseURL:     cfg.LLM.BaseURL,
		MaxTokens:   cfg.LLM.MaxTokens,
		Temperature: cfg.LLM.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize analyzer: %w", err)
	}

	arch, err := archive.NewWithConfig(archive.ClientConfig{
		BaseURL:   cfg.Archive.BaseURL,
		MaxOffset: cfg.Archive.MaxOffsetDays,
		RateLimit: cfg.Archive.RateLimit,
		Timeout:   cfg.ArchiveTimeout(),
		Retry:     retry.Policy{MaxRetries: cfg.Archive.MaxRetries, InitialDelay: time.Second, Multiplier: 2, Jitter: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize archive client: %w", err)
	}

	store, err := cache.New(cfg.Cache.Dir, cfg.CacheTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	parser := query.NewWithConfig(query.ProcessorConfig{Inferrer: an})

	return New(parser, arch, extractor.New(), an, store, log), nil
}

func (p *Pipeline) stage(name string) {
	if p.OnStage != nil {
		p.OnStage(name)
	}
}

// Ask answers one question end to end. Cached answers are returned verbatim
// without touching the archive or the LLM.
func (p *Pipeline) Ask(ctx context.Context, question string) (models.Result, error) {
	p.stage(StageParsing)
	q, err := p.Parser.Parse(ctx, question)
	if err != nil {
		return models.Result{}, err
	}

	log := p.Log.WithFields(logrus.Fields{
		"domain": q.Domain,
		"date":   q.TargetDate.Format("2006-01-02"),
		"intent": q.Intent,
	})

	fingerprint := cache.Fingerprint(q.Domain, q.TargetDate, q.Intent)
	if entry, ok := p.Cache.Get(fingerprint); ok {
		log.Debug("cache hit")
		result := entry.Result
		result.FromCache = true
		return result, nil
	}

	started := time.Now()

	p.stage(StageSearching)
	snap, err := p.Archive.FindSnapshot(ctx, q.Domain, q.TargetDate)
	if err != nil {
		return models.Result{}, err
	}
	log.WithFields(logrus.Fields{
		"snapshot": snap.Timestamp,
		"elapsed":  time.Since(started),
	}).Info("snapshot located")

	p.stage(StageFetching)
	html, err := p.Archive.FetchContent(ctx, snap)
	if err != nil {
		return models.Result{}, err
	}

	p.stage(StageExtracting)
	content := p.Extractor.Extract(html, q.Domain)
	if content.Empty() {
		return models.Result{}, fmt.Errorf("%w: %s at %s", extractor.ErrExtractionEmpty, q.Domain, snap.Timestamp)
	}

	p.stage(StageAnalyzing)
	analysis, err := p.Analyzer.Analyze(ctx, models.AnalysisRequest{
		Domain:       q.Domain,
		SnapshotDate: snap.Captured,
		Content:      p.Extractor.Format(content),
		Intent:       q.Intent,
		Question:     q.RawText,
	})
	if err != nil {
		return models.Result{}, err
	}

	result := models.Result{
		Response: responder.Render(analysis, responder.Meta{
			Domain:       q.Domain,
			TargetDate:   q.TargetDate,
			SnapshotDate: snap.Captured,
			WaybackURL:   p.Archive.WaybackURL(snap),
		}),
		Domain:       q.Domain,
		TargetDate:   q.TargetDate,
		SnapshotDate: snap.Captured,
		WaybackURL:   p.Archive.WaybackURL(snap),
		GeneratedAt:  p.now(),
	}

	if err := p.Cache.Put(fingerprint, result); err != nil {
		// A failed cache write never fails the question.
		log.WithError(err).Warn("failed to cache result")
	}

	log.WithField("elapsed", time.Since(started)).Info("question answered")
	return result, nil
}

// UserMessage turns a pipeline error into a short message suitable for the
// chat UI.
func UserMessage(err error) string {
	var parseErr *query.ParseError
	switch {
	case errors.As(err, &parseErr):
		return parseErr.Clarification
	case errors.Is(err, archive.ErrNoSnapshotFound):
		return "I couldn't find an archived snapshot of that site near the date you asked about. Try a different date, or a more popular domain."
	case errors.Is(err, archive.ErrArchiveUnavailable):
		return "The web archive isn't responding right now. Please try again in a few minutes."
	case errors.Is(err, extractor.ErrExtractionEmpty):
		return "I found a snapshot but couldn't extract any usable content from it. The page may have been heavily scripted or blocked from archiving."
	case errors.Is(err, analyzer.ErrAnalysisUnavailable):
		return "The analysis service is unavailable right now. Please try again shortly."
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "That took too long and was cancelled. Please try again."
	default:
		return "Something went wrong answering that. Please try again."
	}
}
