package metadata

// Remote genre identifiers as served by the catalog API. Movie and TV
// listings use disjoint ranges, so a single table covers both.
var genreNames = map[int]string{
	28:    "Action",
	12:    "Adventure",
	16:    "Animation",
	35:    "Comedy",
	80:    "Crime",
	99:    "Documentary",
	18:    "Drama",
	10751: "Family",
	14:    "Fantasy",
	36:    "History",
	27:    "Horror",
	10402: "Music",
	9648:  "Mystery",
	10749: "Romance",
	878:   "Science Fiction",
	10770: "TV Movie",
	53:    "Thriller",
	10752: "War",
	37:    "Western",
	10759: "Action & Adventure",
	10762: "Kids",
	10763: "News",
	10764: "Reality",
	10765: "Sci-Fi & Fantasy",
	10766: "Soap",
	10767: "Talk",
	10768: "War & Politics",
}

// GenreID returns the remote identifier for a genre name, or 0 when unknown.
// Used to resolve the priority genre names from the sync policy.
func GenreID(name string) int {
	for id, n := range genreNames {
		if n == name {
			return id
		}
	}
	return 0
}

const animationGenreID = 16

// Streaming provider identifiers for the watch-provider endpoint.
var providerNames = map[int]string{
	8:    "Netflix",
	9:    "Amazon Prime Video",
	11:   "MUBI",
	15:   "Hulu",
	283:  "Crunchyroll",
	307:  "Globoplay",
	337:  "Disney Plus",
	350:  "Apple TV Plus",
	384:  "Max",
	531:  "Paramount Plus",
	619:  "Star Plus",
	1899: "Max Amazon Channel",
}

// MapGenres resolves remote genre ids to display names. Unknown ids are
// dropped from the result and recorded on the client's unmapped counter.
func (c *Client) MapGenres(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := genreNames[id]
		if !ok {
			c.unmappedGenres.Add(1)
			continue
		}
		names = append(names, name)
	}
	return names
}

// MapProviders resolves provider ids to display names, dropping and counting
// the ones with no mapping.
func (c *Client) MapProviders(ids []int) []string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		name, ok := providerNames[id]
		if !ok {
			c.unmappedProviders.Add(1)
			continue
		}
		names = append(names, name)
	}
	return names
}

// UnmappedCounts reports how many genre and provider ids were dropped for
// lack of a mapping since the client was created.
func (c *Client) UnmappedCounts() (genres int64, providers int64) {
	return c.unmappedGenres.Load(), c.unmappedProviders.Load()
}

// AgeRating picks the certification for the preferred country, falling back
// to the US label and then to "NR" when nothing usable exists.
func AgeRating(certifications map[string]string, country string) string {
	if cert, ok := certifications[country]; ok && cert != "" {
		return cert
	}
	if cert, ok := certifications["US"]; ok && cert != "" {
		return cert
	}
	return "NR"
}
