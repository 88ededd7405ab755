package types

import (
	"context"
	"time"

	"github.com/Kylethg/wayback-ecommerce-chatbot/internal/models"
)

// Core interfaces consumed by the pipeline. Concrete implementations live in
// pkg/; the pipeline only depends on these so providers can be swapped.

type QueryParser interface {
	Parse(ctx context.Context, question string) (models.Query, error)
}

type SnapshotFinder interface {
	FindSnapshot(ctx context.Context, domain string, target time.Time) (models.Snapshot, error)
	FetchContent(ctx context.Context, snap models.Snapshot) (string, error)
	WaybackURL(snap models.Snapshot) string
}

type ContentExtractor interface {
	Extract(html, domain string) models.ExtractedContent
	Format(content models.ExtractedContent) string
}

type Analyzer interface {
	Analyze(ctx context.Context, req models.AnalysisRequest) (models.Analysis, error)
}

type Store interface {
	Get(fingerprint string) (models.CacheEntry, bool)
	Put(fingerprint string, result models.Result) error
}
