package catalog

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rkuznecov/cinetica/app/database"
	"github.com/rkuznecov/cinetica/app/metadata"
)

// mockStore is an in-memory CatalogRepository for normalizer tests.
type mockStore struct {
	items   map[string]*database.CatalogItem
	inserts int
	updates int
}

func newMockStore() *mockStore {
	return &mockStore{items: make(map[string]*database.CatalogItem)}
}

func storeKey(externalID int64, kind string) string {
	return fmt.Sprintf("%d/%s", externalID, kind)
}

func (m *mockStore) GetByKey(externalID int64, kind string) (*database.CatalogItem, error) {
	item, ok := m.items[storeKey(externalID, kind)]
	if !ok {
		return nil, nil
	}
	copied := *item
	return &copied, nil
}

func (m *mockStore) GetBySlug(slug string) (*database.CatalogItem, error) { return nil, nil }

func (m *mockStore) Insert(item *database.CatalogItem) error {
	m.inserts++
	if item.ID == "" {
		item.ID = fmt.Sprintf("id-%d", m.inserts)
	}
	copied := *item
	m.items[storeKey(item.ExternalID, item.Kind)] = &copied
	return nil
}

func (m *mockStore) Update(item *database.CatalogItem) error {
	m.updates++
	copied := *item
	m.items[storeKey(item.ExternalID, item.Kind)] = &copied
	return nil
}

func (m *mockStore) GetStale(olderThan time.Time, limit int) ([]database.CatalogItem, error) {
	return nil, nil
}

func (m *mockStore) BulkDeactivate(maxViews int64, createdBefore time.Time, maxRating float64) (int, error) {
	return 0, nil
}

func (m *mockStore) ResetTrending() (int, error)    { return 0, nil }
func (m *mockStore) SetTrending(ids []string) error { return nil }

func (m *mockStore) Search(query string, kind string, page int, perPage int) ([]database.CatalogItem, int, error) {
	return nil, 0, nil
}

func (m *mockStore) List(filters database.ListFilters, page int, perPage int) ([]database.CatalogItem, int, error) {
	return nil, 0, nil
}

func (m *mockStore) IncrementViews(id string) error { return nil }
func (m *mockStore) Counts() (*database.Counts, error) {
	return &database.Counts{Total: len(m.items)}, nil
}

func newTestNormalizer(store *mockStore) *Normalizer {
	return &Normalizer{
		store:  store,
		mapper: &metadata.Client{},
		region: "BR",
		now:    time.Now,
	}
}

func movieDetail() *metadata.Detail {
	return &metadata.Detail{
		Summary: metadata.Summary{
			ExternalID:    550,
			Kind:          metadata.KindMovie,
			Title:         "Fight Club",
			OriginalTitle: "Fight Club",
			Overview:      "An insomniac office worker...",
			GenreIDs:      []int{18},
			Popularity:    61.4,
			VoteAverage:   7.5,
			VoteCount:     26000,
			PosterPath:    "/fight.jpg",
			ReleaseDate:   "1999-10-15",
		},
		TrailerKey:     "abc123",
		ProviderIDs:    []int{8},
		Certifications: map[string]string{"BR": "18", "US": "R"},
	}
}

func TestUpsertCreatesNewItem(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	item, created, err := n.Upsert(context.Background(), movieDetail())
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true for new item")
	}

	if item.ExternalID != 550 || item.Kind != database.KindMovie {
		t.Errorf("Unexpected identity: %d/%s", item.ExternalID, item.Kind)
	}
	if item.Slug != "fight-club" {
		t.Errorf("Expected slug 'fight-club', got %q", item.Slug)
	}
	if item.Year != 1999 {
		t.Errorf("Expected year 1999, got %d", item.Year)
	}
	if item.ExternalRating != 7.5 {
		t.Errorf("Expected external rating 7.5, got %v", item.ExternalRating)
	}
	if len(item.Genres) != 1 || item.Genres[0] != "Drama" {
		t.Errorf("Expected genres [Drama], got %v", item.Genres)
	}
	if len(item.Availability) != 1 || item.Availability[0] != "Netflix" {
		t.Errorf("Expected availability [Netflix], got %v", item.Availability)
	}
	if item.AgeRating != "18" {
		t.Errorf("Expected BR age rating '18', got %q", item.AgeRating)
	}
	if item.TrailerURL != "https://www.youtube.com/watch?v=abc123" {
		t.Errorf("Unexpected trailer URL: %q", item.TrailerURL)
	}
	if !item.IsActive {
		t.Error("Expected new item to be active")
	}
	if item.InternalRating != 0 || item.InternalVotes != 0 || item.Views != 0 {
		t.Error("Expected zeroed internal fields on new item")
	}
}

func TestUpsertIsIdempotent(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	_, created, err := n.Upsert(context.Background(), movieDetail())
	if err != nil || !created {
		t.Fatalf("First upsert: created=%v err=%v", created, err)
	}

	_, created, err = n.Upsert(context.Background(), movieDetail())
	if err != nil {
		t.Fatalf("Second upsert failed: %v", err)
	}
	if created {
		t.Error("Expected created=false on second upsert")
	}
	if len(store.items) != 1 {
		t.Errorf("Expected 1 item after duplicate upsert, got %d", len(store.items))
	}
	if store.inserts != 1 || store.updates != 1 {
		t.Errorf("Expected 1 insert and 1 update, got %d/%d", store.inserts, store.updates)
	}
}

func TestUpsertPreservesInternalFields(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	item, _, err := n.Upsert(context.Background(), movieDetail())
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	// Storefront activity between syncs
	stored := store.items[storeKey(550, database.KindMovie)]
	stored.InternalRating = 4.2
	stored.InternalVotes = 17
	stored.Views = 930
	stored.IsActive = false
	stored.Slug = "fight-club-legacy"
	originalCreatedAt := stored.CreatedAt

	refreshed := movieDetail()
	refreshed.VoteAverage = 8.9
	refreshed.Title = "Fight Club (Remastered)"

	updated, created, err := n.Upsert(context.Background(), refreshed)
	if err != nil {
		t.Fatalf("Refresh upsert failed: %v", err)
	}
	if created {
		t.Error("Expected created=false on refresh")
	}

	if updated.InternalRating != 4.2 || updated.InternalVotes != 17 {
		t.Errorf("Internal rating not preserved: %v/%d", updated.InternalRating, updated.InternalVotes)
	}
	if updated.Views != 930 {
		t.Errorf("Views not preserved: %d", updated.Views)
	}
	if updated.IsActive {
		t.Error("Active flag not preserved")
	}
	if updated.Slug != "fight-club-legacy" {
		t.Errorf("Slug not preserved: %q", updated.Slug)
	}
	if !updated.CreatedAt.Equal(originalCreatedAt) {
		t.Error("CreatedAt not preserved")
	}
	if updated.ID != item.ID {
		t.Error("Expected stable item ID across refreshes")
	}

	// Remote-derived fields follow the refresh
	if updated.ExternalRating != 8.9 {
		t.Errorf("Expected refreshed rating 8.9, got %v", updated.ExternalRating)
	}
	if updated.Title != "Fight Club (Remastered)" {
		t.Errorf("Expected refreshed title, got %q", updated.Title)
	}
}

func TestUpsertNonLatinTitleGetsFallbackSlug(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	detail := &metadata.Detail{
		Summary: metadata.Summary{
			ExternalID:  129,
			Kind:        metadata.KindMovie,
			Title:       "千と千尋の神隠し",
			ReleaseDate: "2001-07-20",
		},
	}

	item, created, err := n.Upsert(context.Background(), detail)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if !created {
		t.Error("Expected created=true")
	}
	if item.Slug != "movie-129" {
		t.Errorf("Expected fallback slug 'movie-129', got %q", item.Slug)
	}
}

func TestUpsertLastSyncMonotonic(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	if _, _, err := n.Upsert(context.Background(), movieDetail()); err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}

	future := time.Now().UTC().Add(time.Hour)
	store.items[storeKey(550, database.KindMovie)].LastSyncAt = future

	updated, _, err := n.Upsert(context.Background(), movieDetail())
	if err != nil {
		t.Fatalf("Refresh upsert failed: %v", err)
	}
	if updated.LastSyncAt.Before(future) {
		t.Errorf("Expected last sync to stay at %v, got %v", future, updated.LastSyncAt)
	}
}

func TestUpsertBuildsSeasonIndex(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	detail := &metadata.Detail{
		Summary: metadata.Summary{
			ExternalID:  1399,
			Kind:        metadata.KindSeries,
			Title:       "Game of Thrones",
			ReleaseDate: "2011-04-17",
		},
		Seasons: []metadata.SeasonInfo{
			{Number: 1, Name: "Season 1", EpisodeCount: 10, AirDate: "2011-04-17"},
			{Number: 2, Name: "Season 2", EpisodeCount: 10, AirDate: "2012-04-01"},
		},
	}

	item, _, err := n.Upsert(context.Background(), detail)
	if err != nil {
		t.Fatalf("Upsert failed: %v", err)
	}
	if len(item.Seasons) != 2 {
		t.Fatalf("Expected 2 seasons, got %d", len(item.Seasons))
	}
	if item.Seasons[1].AirYear != 2012 {
		t.Errorf("Expected air year 2012, got %d", item.Seasons[1].AirYear)
	}
	if item.Year != 2011 {
		t.Errorf("Expected year 2011, got %d", item.Year)
	}
}

func TestUpsertCancelledContext(t *testing.T) {
	store := newMockStore()
	n := newTestNormalizer(store)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, _, err := n.Upsert(ctx, movieDetail()); err == nil {
		t.Error("Expected error for cancelled context")
	}
	if len(store.items) != 0 {
		t.Error("Expected no writes after cancelled context")
	}
}
