package metadata

// Kind identifies the catalog content kind a remote title belongs to.
// Anime shares the series endpoints upstream but is tracked as its own kind.
type Kind string

const (
	KindMovie  Kind = "movie"
	KindSeries Kind = "series"
	KindAnime  Kind = "anime"
)

// Strategy selects which remote listing a summary fetch draws from.
type Strategy string

const (
	StrategyPopular  Strategy = "popular"
	StrategyTopRated Strategy = "top_rated"
	StrategyUpcoming Strategy = "upcoming"
	StrategyByGenre  Strategy = "by_genre"
	StrategyByRegion Strategy = "by_region"
	StrategyTrending Strategy = "trending"
)

// SummaryQuery describes one page of a remote listing.
type SummaryQuery struct {
	Kind     Kind
	Strategy Strategy
	GenreID  int    // Used by StrategyByGenre
	Region   string // Used by StrategyByRegion; defaults to the configured region
	Window   string // Used by StrategyTrending: "day" or "week"
	Page     int
}

// Summary is a lightweight listing entry as returned by the remote catalog.
type Summary struct {
	ExternalID      int64
	Kind            Kind
	Title           string
	OriginalTitle   string
	Overview        string
	GenreIDs        []int
	Popularity      float64
	VoteAverage     float64
	VoteCount       int
	PosterPath      string
	BackdropPath    string
	ReleaseDate     string // YYYY-MM-DD; first air date for series
	OriginCountries []string
}

// Page is one page of summaries.
type Page struct {
	Page       int
	TotalPages int
	Results    []Summary
}

// SeasonInfo is one entry of a series season index. Episodes are not
// fetched individually.
type SeasonInfo struct {
	Number       int
	Name         string
	EpisodeCount int
	AirDate      string // YYYY-MM-DD
}

// Detail is the fully resolved remote record for a single title.
type Detail struct {
	Summary

	Cast           []string // Top-billed cast names
	Director       string
	TrailerKey     string // YouTube video key, empty when no trailer exists
	ProviderIDs    []int  // Streaming providers for the configured region
	Keywords       []string
	Certifications map[string]string // Country code -> certification label
	Seasons        []SeasonInfo      // Empty for movies
}
