package database

import (
	"time"
)

// Content kinds stored in the catalog. Anime is a first-class kind even
// though the remote API serves it through the series endpoints.
const (
	KindMovie  = "movie"
	KindSeries = "series"
	KindAnime  = "anime"
)

// ValidKind reports whether kind names a known content kind.
func ValidKind(kind string) bool {
	return kind == KindMovie || kind == KindSeries || kind == KindAnime
}

type Season struct {
	Number       int    `json:"number"`
	Name         string `json:"name"`
	EpisodeCount int    `json:"episode_count"`
	AirYear      int    `json:"air_year"`
}

type CatalogItem struct {
	ID            string // Database UUID
	ExternalID    int64  // Remote catalog identifier
	Kind          string // movie, series or anime
	Title         string
	OriginalTitle string
	Slug          string // Unique; suffixed on collision at insert, stable afterwards
	Overview      string
	Year          int
	Genres        []string // Mapped genre names
	Popularity    float64

	ExternalRating float64
	ExternalVotes  int
	InternalRating float64 // Owned by the storefront, never touched by sync
	InternalVotes  int     // Owned by the storefront, never touched by sync
	Views          int64   // Engagement counter, bumped by the read path

	Availability []string // Mapped streaming provider names
	Seasons      []Season // Season index only; episodes are not eagerly fetched

	PosterURL   string
	BackdropURL string
	TrailerURL  string
	AgeRating   string

	IsActive   bool
	IsTrending bool // Transient; recomputed by the trending pass

	LastSyncAt time.Time // Monotonically non-decreasing per item
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ListFilters narrows catalog listings.
type ListFilters struct {
	Kind         string
	Genre        string
	ActiveOnly   bool
	TrendingOnly bool
}

// Counts summarizes the catalog for health and stats endpoints.
type Counts struct {
	Total    int `json:"total"`
	Active   int `json:"active"`
	Trending int `json:"trending"`
	Movies   int `json:"movies"`
	Series   int `json:"series"`
	Anime    int `json:"anime"`
}
