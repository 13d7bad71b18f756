package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/rkuznecov/cinetica/app/cfg"
)

const imageBaseURL = "https://image.tmdb.org/t/p/w500"

// ImageURL expands a remote image path into a full poster/backdrop URL.
func ImageURL(path string) string {
	if path == "" {
		return ""
	}
	return imageBaseURL + path
}

// TrailerURL expands a YouTube video key into a watchable URL.
func TrailerURL(key string) string {
	if key == "" {
		return ""
	}
	return "https://www.youtube.com/watch?v=" + key
}

// Client talks to the remote catalog API. All outbound calls share one pacer
// and one response cache, so concurrent callers never exceed the configured
// request spacing.
type Client struct {
	baseURL    string
	apiKey     string
	language   string
	region     string
	userAgent  string
	httpClient *http.Client
	pace       *pacer
	cache      *responseCache

	unmappedGenres    atomic.Int64
	unmappedProviders atomic.Int64
}

func NewClient() *Client {
	c := cfg.Get()

	return &Client{
		baseURL:   strings.TrimSuffix(c.TMDBBaseURL, "/"),
		apiKey:    c.TMDBAPIKey,
		language:  c.Language,
		region:    c.Region,
		userAgent: c.UserAgent,
		httpClient: &http.Client{
			Timeout: time.Duration(c.RequestTimeout) * time.Second,
		},
		pace:  newPacer(time.Duration(c.RateLimitMs) * time.Millisecond),
		cache: newResponseCache(time.Duration(c.CacheTTLMin) * time.Minute),
	}
}

// remoteStatusError marks retryable upstream failures (throttling, 5xx).
type remoteStatusError struct {
	status int
	path   string
}

func (e *remoteStatusError) Error() string {
	return fmt.Sprintf("remote API returned HTTP %d for %s", e.status, e.path)
}

func isTransient(err error) bool {
	var statusErr *remoteStatusError
	if errors.As(err, &statusErr) {
		return true
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// get performs a cached, paced, retried GET against the remote API and
// decodes the JSON response into dst.
func (c *Client) get(ctx context.Context, path string, params url.Values, dst interface{}) error {
	if params == nil {
		params = url.Values{}
	}
	params.Set("language", c.language)

	// url.Values.Encode sorts keys, so the key is stable across callers
	cacheKey := path + "?" + params.Encode()

	if body, ok := c.cache.Get(cacheKey); ok {
		if err := json.Unmarshal(body, dst); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, path, err)
		}
		return nil
	}

	params.Set("api_key", c.apiKey)
	reqURL := c.baseURL + path + "?" + params.Encode()

	var body []byte
	err := retry.Do(
		func() error {
			b, err := c.fetch(ctx, reqURL, path)
			if err != nil {
				return err
			}
			body = b
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.Delay(200*time.Millisecond),
		retry.MaxDelay(2*time.Second),
		retry.LastErrorOnly(true),
		retry.RetryIf(isTransient),
	)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, path, err)
	}

	// Only decodable responses enter the cache
	c.cache.Set(cacheKey, body)
	return nil
}

func (c *Client) fetch(ctx context.Context, reqURL, path string) ([]byte, error) {
	c.pace.Wait()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: %s", ErrUnauthorized, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &remoteStatusError{status: resp.StatusCode, path: path}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("unexpected status %d for %s", resp.StatusCode, path)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	return body, nil
}

type rawSummary struct {
	ID            int64    `json:"id"`
	Title         string   `json:"title"`
	Name          string   `json:"name"`
	OriginalTitle string   `json:"original_title"`
	OriginalName  string   `json:"original_name"`
	Overview      string   `json:"overview"`
	GenreIDs      []int    `json:"genre_ids"`
	Popularity    float64  `json:"popularity"`
	VoteAverage   float64  `json:"vote_average"`
	VoteCount     int      `json:"vote_count"`
	PosterPath    string   `json:"poster_path"`
	BackdropPath  string   `json:"backdrop_path"`
	ReleaseDate   string   `json:"release_date"`
	FirstAirDate  string   `json:"first_air_date"`
	OriginCountry []string `json:"origin_country"`
	MediaType     string   `json:"media_type"`
}

func (r *rawSummary) toSummary(kind Kind) Summary {
	title := r.Title
	if title == "" {
		title = r.Name
	}
	original := r.OriginalTitle
	if original == "" {
		original = r.OriginalName
	}
	release := r.ReleaseDate
	if release == "" {
		release = r.FirstAirDate
	}

	return Summary{
		ExternalID:      r.ID,
		Kind:            kind,
		Title:           title,
		OriginalTitle:   original,
		Overview:        r.Overview,
		GenreIDs:        r.GenreIDs,
		Popularity:      r.Popularity,
		VoteAverage:     r.VoteAverage,
		VoteCount:       r.VoteCount,
		PosterPath:      r.PosterPath,
		BackdropPath:    r.BackdropPath,
		ReleaseDate:     release,
		OriginCountries: r.OriginCountry,
	}
}

type rawPage struct {
	Page       int          `json:"page"`
	TotalPages int          `json:"total_pages"`
	Results    []rawSummary `json:"results"`
}

// FetchSummaries returns one page of the remote listing selected by q.
func (c *Client) FetchSummaries(ctx context.Context, q SummaryQuery) (*Page, error) {
	path, params, err := c.listingEndpoint(q)
	if err != nil {
		return nil, err
	}

	var raw rawPage
	if err := c.get(ctx, path, params, &raw); err != nil {
		return nil, fmt.Errorf("failed to fetch %s/%s summaries: %w", q.Kind, q.Strategy, err)
	}

	page := &Page{Page: raw.Page, TotalPages: raw.TotalPages, Results: make([]Summary, 0, len(raw.Results))}
	for i := range raw.Results {
		page.Results = append(page.Results, raw.Results[i].toSummary(q.Kind))
	}
	return page, nil
}

func (c *Client) listingEndpoint(q SummaryQuery) (string, url.Values, error) {
	params := url.Values{}
	pageNum := q.Page
	if pageNum < 1 {
		pageNum = 1
	}
	params.Set("page", strconv.Itoa(pageNum))

	// Anime has no dedicated endpoints upstream; every anime listing goes
	// through TV discover with an animation + JP origin filter
	if q.Kind == KindAnime {
		params.Set("with_genres", strconv.Itoa(animationGenreID))
		params.Set("with_origin_country", "JP")
		switch q.Strategy {
		case StrategyTopRated:
			params.Set("sort_by", "vote_average.desc")
			params.Set("vote_count.gte", "200")
		case StrategyUpcoming:
			params.Set("sort_by", "first_air_date.desc")
		default:
			params.Set("sort_by", "popularity.desc")
		}
		if q.GenreID != 0 && q.GenreID != animationGenreID {
			params.Set("with_genres", fmt.Sprintf("%d,%d", animationGenreID, q.GenreID))
		}
		return "/discover/tv", params, nil
	}

	screen := "movie"
	if q.Kind == KindSeries {
		screen = "tv"
	}

	switch q.Strategy {
	case StrategyPopular:
		return "/" + screen + "/popular", params, nil
	case StrategyTopRated:
		return "/" + screen + "/top_rated", params, nil
	case StrategyUpcoming:
		if q.Kind == KindMovie {
			params.Set("region", c.region)
			return "/movie/upcoming", params, nil
		}
		return "/tv/on_the_air", params, nil
	case StrategyByGenre:
		if q.GenreID == 0 {
			return "", nil, fmt.Errorf("by_genre strategy requires a genre id")
		}
		params.Set("with_genres", strconv.Itoa(q.GenreID))
		params.Set("sort_by", "popularity.desc")
		return "/discover/" + screen, params, nil
	case StrategyByRegion:
		region := q.Region
		if region == "" {
			region = c.region
		}
		params.Set("with_origin_country", region)
		params.Set("sort_by", "popularity.desc")
		return "/discover/" + screen, params, nil
	case StrategyTrending:
		window := q.Window
		if window == "" {
			window = "week"
		}
		return "/trending/" + screen + "/" + window, params, nil
	default:
		return "", nil, fmt.Errorf("unknown listing strategy: %s", q.Strategy)
	}
}

type rawDetailCore struct {
	rawSummary
	Genres []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"genres"`
	CreatedBy []struct {
		Name string `json:"name"`
	} `json:"created_by"`
	Seasons []struct {
		SeasonNumber int    `json:"season_number"`
		Name         string `json:"name"`
		EpisodeCount int    `json:"episode_count"`
		AirDate      string `json:"air_date"`
	} `json:"seasons"`
}

type rawCredits struct {
	Cast []struct {
		Name  string `json:"name"`
		Order int    `json:"order"`
	} `json:"cast"`
	Crew []struct {
		Name string `json:"name"`
		Job  string `json:"job"`
	} `json:"crew"`
}

type rawVideos struct {
	Results []struct {
		Key      string `json:"key"`
		Site     string `json:"site"`
		Type     string `json:"type"`
		Official bool   `json:"official"`
	} `json:"results"`
}

type rawProviders struct {
	Results map[string]struct {
		Flatrate []struct {
			ProviderID int `json:"provider_id"`
		} `json:"flatrate"`
	} `json:"results"`
}

// Movie keyword payloads use "keywords", TV uses "results"
type rawKeywords struct {
	Keywords []struct {
		Name string `json:"name"`
	} `json:"keywords"`
	Results []struct {
		Name string `json:"name"`
	} `json:"results"`
}

type rawReleaseDates struct {
	Results []struct {
		CountryCode  string `json:"iso_3166_1"`
		ReleaseDates []struct {
			Certification string `json:"certification"`
		} `json:"release_dates"`
	} `json:"results"`
}

type rawContentRatings struct {
	Results []struct {
		CountryCode string `json:"iso_3166_1"`
		Rating      string `json:"rating"`
	} `json:"results"`
}

const topCastSize = 10

// FetchDetail resolves the full remote record for one title. The sub-resources
// (core, credits, videos, providers, keywords, certifications) are fetched
// concurrently; a failure in any of them fails the whole call so a partially
// resolved detail is never returned.
func (c *Client) FetchDetail(ctx context.Context, externalID int64, kind Kind) (*Detail, error) {
	screen := "movie"
	if kind == KindSeries || kind == KindAnime {
		screen = "tv"
	}
	base := fmt.Sprintf("/%s/%d", screen, externalID)

	var (
		core      rawDetailCore
		credits   rawCredits
		videos    rawVideos
		providers rawProviders
		keywords  rawKeywords
		releases  rawReleaseDates
		ratings   rawContentRatings
	)

	fetches := []struct {
		path string
		dst  interface{}
	}{
		{base, &core},
		{base + "/credits", &credits},
		{base + "/videos", &videos},
		{base + "/watch/providers", &providers},
		{base + "/keywords", &keywords},
	}
	if screen == "movie" {
		fetches = append(fetches, struct {
			path string
			dst  interface{}
		}{base + "/release_dates", &releases})
	} else {
		fetches = append(fetches, struct {
			path string
			dst  interface{}
		}{base + "/content_ratings", &ratings})
	}

	errs := make([]error, len(fetches))
	var wg sync.WaitGroup
	for i, f := range fetches {
		wg.Add(1)
		go func(i int, path string, dst interface{}) {
			defer wg.Done()
			errs[i] = c.get(ctx, path, nil, dst)
		}(i, f.path, f.dst)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, fmt.Errorf("failed to fetch %s %d detail: %w", kind, externalID, err)
		}
	}

	detail := &Detail{Summary: core.toSummary(kind)}

	if len(detail.GenreIDs) == 0 && len(core.Genres) > 0 {
		ids := make([]int, 0, len(core.Genres))
		for _, g := range core.Genres {
			ids = append(ids, g.ID)
		}
		detail.GenreIDs = ids
	}

	for _, member := range credits.Cast {
		detail.Cast = append(detail.Cast, member.Name)
		if len(detail.Cast) == topCastSize {
			break
		}
	}
	if screen == "movie" {
		for _, member := range credits.Crew {
			if member.Job == "Director" {
				detail.Director = member.Name
				break
			}
		}
	} else if len(core.CreatedBy) > 0 {
		detail.Director = core.CreatedBy[0].Name
	}

	detail.TrailerKey = pickTrailer(videos)

	if regional, ok := providers.Results[c.region]; ok {
		for _, p := range regional.Flatrate {
			detail.ProviderIDs = append(detail.ProviderIDs, p.ProviderID)
		}
	}

	for _, k := range keywords.Keywords {
		detail.Keywords = append(detail.Keywords, k.Name)
	}
	for _, k := range keywords.Results {
		detail.Keywords = append(detail.Keywords, k.Name)
	}

	detail.Certifications = make(map[string]string)
	for _, r := range releases.Results {
		for _, rd := range r.ReleaseDates {
			if rd.Certification != "" {
				detail.Certifications[r.CountryCode] = rd.Certification
				break
			}
		}
	}
	for _, r := range ratings.Results {
		if r.Rating != "" {
			detail.Certifications[r.CountryCode] = r.Rating
		}
	}

	for _, s := range core.Seasons {
		// Season zero holds specials; skipped to keep the index aligned
		// with what the storefront renders
		if s.SeasonNumber == 0 {
			continue
		}
		detail.Seasons = append(detail.Seasons, SeasonInfo{
			Number:       s.SeasonNumber,
			Name:         s.Name,
			EpisodeCount: s.EpisodeCount,
			AirDate:      s.AirDate,
		})
	}

	return detail, nil
}

func pickTrailer(videos rawVideos) string {
	fallback := ""
	for _, v := range videos.Results {
		if v.Site != "YouTube" {
			continue
		}
		if v.Type == "Trailer" {
			if v.Official {
				return v.Key
			}
			if fallback == "" {
				fallback = v.Key
			}
		}
	}
	return fallback
}

// Search queries the remote catalog across movies and TV. Results of other
// media types (people, collections) are dropped.
func (c *Client) Search(ctx context.Context, query string, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	params := url.Values{}
	params.Set("query", query)
	params.Set("page", strconv.Itoa(page))
	params.Set("include_adult", "false")

	var raw rawPage
	if err := c.get(ctx, "/search/multi", params, &raw); err != nil {
		return nil, fmt.Errorf("failed to search remote catalog: %w", err)
	}

	result := &Page{Page: raw.Page, TotalPages: raw.TotalPages}
	for i := range raw.Results {
		switch raw.Results[i].MediaType {
		case "movie":
			result.Results = append(result.Results, raw.Results[i].toSummary(KindMovie))
		case "tv":
			result.Results = append(result.Results, raw.Results[i].toSummary(KindSeries))
		}
	}
	return result, nil
}
