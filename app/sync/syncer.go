package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rkuznecov/cinetica/app/database"
	"github.com/rkuznecov/cinetica/app/metadata"
)

// ErrSyncInProgress is returned when a sync operation is requested while
// another one is still running. The caller treats it as a no-op.
var ErrSyncInProgress = errors.New("sync already in progress")

// MetadataClient is the remote API surface the orchestrator consumes.
type MetadataClient interface {
	FetchSummaries(ctx context.Context, q metadata.SummaryQuery) (*metadata.Page, error)
	FetchDetail(ctx context.Context, externalID int64, kind metadata.Kind) (*metadata.Detail, error)
	UnmappedCounts() (int64, int64)
}

// Upserter persists a resolved remote detail as a catalog item.
type Upserter interface {
	Upsert(ctx context.Context, detail *metadata.Detail) (*database.CatalogItem, bool, error)
}

// RunStats collects the counters of one sync operation.
type RunStats struct {
	Operation         string    `json:"operation"`
	MoviesAdded       int       `json:"movies_added"`
	SeriesAdded       int       `json:"series_added"`
	AnimeAdded        int       `json:"anime_added"`
	Updated           int       `json:"updated"`
	Skipped           int       `json:"skipped"`
	Errors            int       `json:"errors"`
	Deactivated       int       `json:"deactivated"`
	TrendingSet       int       `json:"trending_set"`
	UnmappedGenres    int64     `json:"unmapped_genres"`
	UnmappedProviders int64     `json:"unmapped_providers"`
	StartedAt         time.Time `json:"started_at"`
	FinishedAt        time.Time `json:"finished_at"`
}

// Syncer orchestrates catalog synchronization. At most one operation runs at
// a time; overlapping invocations fail fast with ErrSyncInProgress regardless
// of whether the scheduler, the CLI or the API triggered them.
type Syncer struct {
	client     MetadataClient
	normalizer Upserter
	store      database.CatalogRepository
	policy     *Policy

	running atomic.Bool
	mu      sync.Mutex
	lastRun *RunStats

	now func() time.Time
}

func NewSyncer(client MetadataClient, normalizer Upserter, store database.CatalogRepository, policy *Policy) *Syncer {
	return &Syncer{
		client:     client,
		normalizer: normalizer,
		store:      store,
		policy:     policy,
		now:        time.Now,
	}
}

// IsRunning reports whether a sync operation is currently in progress.
func (s *Syncer) IsRunning() bool {
	return s.running.Load()
}

// Stats returns a copy of the most recent run's counters, or nil when no
// operation has completed yet.
func (s *Syncer) Stats() *RunStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastRun == nil {
		return nil
	}
	copied := *s.lastRun
	return &copied
}

func (s *Syncer) begin(operation string) (*RunStats, error) {
	if !s.running.CompareAndSwap(false, true) {
		slog.Warn("Sync already in progress, skipping", "operation", operation)
		return nil, ErrSyncInProgress
	}
	slog.Info("Sync started", "operation", operation)
	return &RunStats{Operation: operation, StartedAt: s.now().UTC()}, nil
}

func (s *Syncer) finish(stats *RunStats) {
	stats.FinishedAt = s.now().UTC()
	stats.UnmappedGenres, stats.UnmappedProviders = s.client.UnmappedCounts()

	s.mu.Lock()
	s.lastRun = stats
	s.mu.Unlock()
	s.running.Store(false)

	slog.Info("Sync completed",
		"operation", stats.Operation,
		"movies_added", stats.MoviesAdded,
		"series_added", stats.SeriesAdded,
		"anime_added", stats.AnimeAdded,
		"updated", stats.Updated,
		"skipped", stats.Skipped,
		"errors", stats.Errors,
		"deactivated", stats.Deactivated,
		"trending_set", stats.TrendingSet,
		"unmapped_genres", stats.UnmappedGenres,
		"unmapped_providers", stats.UnmappedProviders,
		"duration", stats.FinishedAt.Sub(stats.StartedAt).String())
}

// FullSync runs the complete discovery sequence, then refreshes stale items
// and deactivates obsolete ones. A failing step is logged and counted but
// never aborts the remaining steps.
func (s *Syncer) FullSync(ctx context.Context) error {
	stats, err := s.begin("full")
	if err != nil {
		return err
	}
	defer s.finish(stats)

	s.runDiscovery(ctx, stats)
	if err := s.syncTrending(ctx, stats); err != nil {
		slog.Warn("Trending step failed", "error", err)
		stats.Errors++
	}
	s.updateExisting(ctx, stats)
	if err := s.cleanupObsolete(stats); err != nil {
		slog.Warn("Cleanup step failed", "error", err)
		stats.Errors++
	}
	return nil
}

func (s *Syncer) runDiscovery(ctx context.Context, stats *RunStats) {
	type step struct {
		name      string
		query     metadata.SummaryQuery
		minRating float64
	}

	steps := []step{
		{"popular movies", metadata.SummaryQuery{Kind: metadata.KindMovie, Strategy: metadata.StrategyPopular}, s.policy.GlobalMinRating},
		{"popular series", metadata.SummaryQuery{Kind: metadata.KindSeries, Strategy: metadata.StrategyPopular}, s.policy.GlobalMinRating},
		{"popular anime", metadata.SummaryQuery{Kind: metadata.KindAnime, Strategy: metadata.StrategyPopular}, s.policy.GlobalMinRating},
		{"top rated movies", metadata.SummaryQuery{Kind: metadata.KindMovie, Strategy: metadata.StrategyTopRated}, s.policy.GlobalMinRating},
	}

	for _, genre := range s.policy.PriorityGenres {
		genreID := metadata.GenreID(genre)
		if genreID == 0 {
			slog.Warn("Unknown priority genre in policy, skipping", "genre", genre)
			continue
		}
		steps = append(steps,
			step{"genre " + genre + " movies", metadata.SummaryQuery{Kind: metadata.KindMovie, Strategy: metadata.StrategyByGenre, GenreID: genreID}, s.policy.GlobalMinRating},
			step{"genre " + genre + " series", metadata.SummaryQuery{Kind: metadata.KindSeries, Strategy: metadata.StrategyByGenre, GenreID: genreID}, s.policy.GlobalMinRating},
		)
	}

	// Local content carries a lower admission bar
	for _, region := range s.policy.Regions {
		steps = append(steps,
			step{"regional movies " + region, metadata.SummaryQuery{Kind: metadata.KindMovie, Strategy: metadata.StrategyByRegion, Region: region}, s.policy.RegionalMinRating},
			step{"regional series " + region, metadata.SummaryQuery{Kind: metadata.KindSeries, Strategy: metadata.StrategyByRegion, Region: region}, s.policy.RegionalMinRating},
		)
	}

	for _, st := range steps {
		if ctx.Err() != nil {
			return
		}
		if err := s.syncListing(ctx, stats, st.query, st.minRating); err != nil {
			slog.Warn("Discovery step failed", "step", st.name, "error", err)
			stats.Errors++
		}
	}
}

// SyncNewReleases ingests upcoming and newly airing titles. The admission
// bar is stricter than the general one: only well-rated releases enter.
func (s *Syncer) SyncNewReleases(ctx context.Context) error {
	stats, err := s.begin("releases")
	if err != nil {
		return err
	}
	defer s.finish(stats)

	queries := []metadata.SummaryQuery{
		{Kind: metadata.KindMovie, Strategy: metadata.StrategyUpcoming},
		{Kind: metadata.KindSeries, Strategy: metadata.StrategyUpcoming},
	}
	for _, q := range queries {
		if err := s.syncListing(ctx, stats, q, s.policy.UpcomingMinRating); err != nil {
			slog.Warn("New releases step failed", "kind", q.Kind, "error", err)
			stats.Errors++
		}
	}
	return nil
}

// UpdateExisting refreshes items whose last sync is older than the staleness
// window, bounded to one batch per run.
func (s *Syncer) UpdateExisting(ctx context.Context) error {
	stats, err := s.begin("update")
	if err != nil {
		return err
	}
	defer s.finish(stats)

	s.updateExisting(ctx, stats)
	return nil
}

// SyncTrending recomputes the trending shelf as a full replace.
func (s *Syncer) SyncTrending(ctx context.Context) error {
	stats, err := s.begin("trending")
	if err != nil {
		return err
	}
	defer s.finish(stats)

	return s.syncTrending(ctx, stats)
}

// CleanupObsolete deactivates items that are unwatched, old and poorly
// rated, all at once. Anything failing one of the conditions stays active.
func (s *Syncer) CleanupObsolete(ctx context.Context) error {
	stats, err := s.begin("cleanup")
	if err != nil {
		return err
	}
	defer s.finish(stats)

	return s.cleanupObsolete(stats)
}

// syncListing walks the configured number of pages of one remote listing and
// admits every summary passing the rating bar. Admitted entries move through
// the normalizer in fixed-size batches; cancellation is honored at batch
// boundaries, so an in-flight batch always completes.
func (s *Syncer) syncListing(ctx context.Context, stats *RunStats, q metadata.SummaryQuery, minRating float64) error {
	for page := 1; page <= s.policy.PagesPerStrategy; page++ {
		q.Page = page
		result, err := s.client.FetchSummaries(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to fetch page %d: %w", page, err)
		}

		var admitted []*metadata.Summary
		for i := range result.Results {
			if result.Results[i].VoteAverage >= minRating {
				admitted = append(admitted, &result.Results[i])
			}
		}

		for start := 0; start < len(admitted); start += s.policy.BatchSize {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := start + s.policy.BatchSize
			if end > len(admitted) {
				end = len(admitted)
			}
			for _, summary := range admitted[start:end] {
				s.processSummary(ctx, stats, summary)
			}
		}

		if page >= result.TotalPages {
			break
		}
	}
	return nil
}

// processSummary resolves and persists one listing entry. Items refreshed
// within the staleness window are skipped without a detail fetch; individual
// failures are counted and never abort the batch.
func (s *Syncer) processSummary(ctx context.Context, stats *RunStats, summary *metadata.Summary) {
	existing, err := s.store.GetByKey(summary.ExternalID, string(summary.Kind))
	if err != nil {
		slog.Warn("Failed to look up catalog item", "external_id", summary.ExternalID, "kind", summary.Kind, "error", err)
		stats.Errors++
		return
	}
	if existing != nil && s.now().UTC().Sub(existing.LastSyncAt) < s.policy.StalenessWindow() {
		stats.Skipped++
		return
	}

	detail, err := s.client.FetchDetail(ctx, summary.ExternalID, summary.Kind)
	if err != nil {
		if errors.Is(err, metadata.ErrNotFound) {
			slog.Debug("Remote item vanished, leaving local state untouched", "external_id", summary.ExternalID, "kind", summary.Kind)
		} else {
			slog.Warn("Failed to fetch item detail", "external_id", summary.ExternalID, "kind", summary.Kind, "error", err)
		}
		stats.Errors++
		return
	}

	_, created, err := s.normalizer.Upsert(ctx, detail)
	if err != nil {
		slog.Warn("Failed to persist catalog item", "external_id", summary.ExternalID, "kind", summary.Kind, "error", err)
		stats.Errors++
		return
	}

	if created {
		switch summary.Kind {
		case metadata.KindMovie:
			stats.MoviesAdded++
		case metadata.KindSeries:
			stats.SeriesAdded++
		case metadata.KindAnime:
			stats.AnimeAdded++
		}
	} else {
		stats.Updated++
	}
}

func (s *Syncer) updateExisting(ctx context.Context, stats *RunStats) {
	cutoff := s.now().UTC().Add(-s.policy.StalenessWindow())
	items, err := s.store.GetStale(cutoff, s.policy.UpdateBatchLimit)
	if err != nil {
		slog.Warn("Failed to load stale items", "error", err)
		stats.Errors++
		return
	}

	slog.Debug("Refreshing stale items", "count", len(items))
	for i := range items {
		if ctx.Err() != nil {
			return
		}
		item := &items[i]

		detail, err := s.client.FetchDetail(ctx, item.ExternalID, metadata.Kind(item.Kind))
		if err != nil {
			if errors.Is(err, metadata.ErrNotFound) {
				// The remote record is gone; local state stays as is
				slog.Debug("Stale item no longer exists remotely", "external_id", item.ExternalID, "kind", item.Kind)
				stats.Skipped++
			} else {
				slog.Warn("Failed to refresh stale item", "external_id", item.ExternalID, "kind", item.Kind, "error", err)
				stats.Errors++
			}
			continue
		}

		if _, _, err := s.normalizer.Upsert(ctx, detail); err != nil {
			slog.Warn("Failed to persist refreshed item", "external_id", item.ExternalID, "kind", item.Kind, "error", err)
			stats.Errors++
			continue
		}
		stats.Updated++
	}
}

// syncTrending drops every trending flag and rebuilds the shelf from the
// remote trending listing. Trending is its own popularity signal, so no
// rating bar applies; missing titles are created on the spot.
func (s *Syncer) syncTrending(ctx context.Context, stats *RunStats) error {
	var candidates []metadata.Summary
	for _, kind := range []metadata.Kind{metadata.KindMovie, metadata.KindSeries} {
		page, err := s.client.FetchSummaries(ctx, metadata.SummaryQuery{
			Kind:     kind,
			Strategy: metadata.StrategyTrending,
			Window:   s.policy.TrendingWindow,
			Page:     1,
		})
		if err != nil {
			return fmt.Errorf("failed to fetch trending %s: %w", kind, err)
		}
		candidates = append(candidates, page.Results...)
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Popularity > candidates[j].Popularity
	})
	if len(candidates) > s.policy.TrendingSize {
		candidates = candidates[:s.policy.TrendingSize]
	}

	if _, err := s.store.ResetTrending(); err != nil {
		return fmt.Errorf("failed to reset trending flags: %w", err)
	}

	var ids []string
	for i := range candidates {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		summary := &candidates[i]

		existing, err := s.store.GetByKey(summary.ExternalID, string(summary.Kind))
		if err != nil {
			stats.Errors++
			continue
		}
		if existing != nil {
			ids = append(ids, existing.ID)
			continue
		}

		detail, err := s.client.FetchDetail(ctx, summary.ExternalID, summary.Kind)
		if err != nil {
			slog.Warn("Failed to fetch trending item detail", "external_id", summary.ExternalID, "kind", summary.Kind, "error", err)
			stats.Errors++
			continue
		}
		item, created, err := s.normalizer.Upsert(ctx, detail)
		if err != nil {
			slog.Warn("Failed to persist trending item", "external_id", summary.ExternalID, "kind", summary.Kind, "error", err)
			stats.Errors++
			continue
		}
		if created {
			switch summary.Kind {
			case metadata.KindMovie:
				stats.MoviesAdded++
			default:
				stats.SeriesAdded++
			}
		}
		ids = append(ids, item.ID)
	}

	if err := s.store.SetTrending(ids); err != nil {
		return fmt.Errorf("failed to set trending flags: %w", err)
	}
	stats.TrendingSet = len(ids)
	return nil
}

func (s *Syncer) cleanupObsolete(stats *RunStats) error {
	cutoff := s.now().UTC().Add(-s.policy.CleanupMinAge())
	count, err := s.store.BulkDeactivate(s.policy.CleanupMaxViews, cutoff, s.policy.CleanupMaxRating)
	if err != nil {
		return fmt.Errorf("failed to deactivate obsolete items: %w", err)
	}
	stats.Deactivated = count
	return nil
}
