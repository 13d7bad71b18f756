package catalog

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rkuznecov/cinetica/app/cfg"
	"github.com/rkuznecov/cinetica/app/database"
	"github.com/rkuznecov/cinetica/app/metadata"
)

// Mapper resolves remote genre and provider ids to display names.
// Implemented by the metadata client.
type Mapper interface {
	MapGenres(ids []int) []string
	MapProviders(ids []int) []string
}

// Normalizer converts fully resolved remote details into catalog items and
// upserts them. Storefront-owned fields (internal rating and votes, views,
// active flag) are never overwritten on refresh.
type Normalizer struct {
	store  database.CatalogRepository
	mapper Mapper
	region string

	now func() time.Time
}

func NewNormalizer(store database.CatalogRepository, mapper Mapper) *Normalizer {
	return &Normalizer{
		store:  store,
		mapper: mapper,
		region: cfg.Get().Region,
		now:    time.Now,
	}
}

// Upsert stores the detail as a catalog item. Returns the persisted item and
// whether it was newly created. The same detail applied twice yields one item.
func (n *Normalizer) Upsert(ctx context.Context, detail *metadata.Detail) (*database.CatalogItem, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}

	existing, err := n.store.GetByKey(detail.ExternalID, string(detail.Kind))
	if err != nil {
		return nil, false, fmt.Errorf("failed to look up item %d/%s: %w", detail.ExternalID, detail.Kind, err)
	}

	now := n.now().UTC()
	item := n.build(detail, now)

	if existing == nil {
		if err := n.store.Insert(item); err != nil {
			return nil, false, fmt.Errorf("failed to insert item %d/%s: %w", detail.ExternalID, detail.Kind, err)
		}
		return item, true, nil
	}

	item.ID = existing.ID
	item.Slug = existing.Slug
	item.InternalRating = existing.InternalRating
	item.InternalVotes = existing.InternalVotes
	item.Views = existing.Views
	item.IsActive = existing.IsActive
	item.IsTrending = existing.IsTrending
	item.CreatedAt = existing.CreatedAt
	if existing.LastSyncAt.After(now) {
		item.LastSyncAt = existing.LastSyncAt
	}

	if err := n.store.Update(item); err != nil {
		return nil, false, fmt.Errorf("failed to update item %d/%s: %w", detail.ExternalID, detail.Kind, err)
	}
	return item, false, nil
}

func (n *Normalizer) build(detail *metadata.Detail, now time.Time) *database.CatalogItem {
	slug := metadata.Slugify(detail.Title)
	if slug == "" {
		// Titles without Latin characters slugify to nothing
		slug = fmt.Sprintf("%s-%d", detail.Kind, detail.ExternalID)
	}

	item := &database.CatalogItem{
		ExternalID:     detail.ExternalID,
		Kind:           string(detail.Kind),
		Title:          detail.Title,
		OriginalTitle:  detail.OriginalTitle,
		Slug:           slug,
		Overview:       detail.Overview,
		Year:           releaseYear(detail.ReleaseDate),
		Genres:         n.mapper.MapGenres(detail.GenreIDs),
		Popularity:     detail.Popularity,
		ExternalRating: detail.VoteAverage,
		ExternalVotes:  detail.VoteCount,
		Availability:   n.mapper.MapProviders(detail.ProviderIDs),
		PosterURL:      metadata.ImageURL(detail.PosterPath),
		BackdropURL:    metadata.ImageURL(detail.BackdropPath),
		TrailerURL:     metadata.TrailerURL(detail.TrailerKey),
		AgeRating:      metadata.AgeRating(detail.Certifications, n.region),
		IsActive:       true,
		LastSyncAt:     now,
	}

	if detail.Kind == metadata.KindSeries || detail.Kind == metadata.KindAnime {
		for _, s := range detail.Seasons {
			item.Seasons = append(item.Seasons, database.Season{
				Number:       s.Number,
				Name:         s.Name,
				EpisodeCount: s.EpisodeCount,
				AirYear:      releaseYear(s.AirDate),
			})
		}
	}

	return item
}

func releaseYear(date string) int {
	if len(date) < 4 {
		return 0
	}
	year, err := strconv.Atoi(date[:4])
	if err != nil {
		return 0
	}
	return year
}
