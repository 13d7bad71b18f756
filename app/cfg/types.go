package cfg

type Cfg struct {
	// Storage configuration
	DBPath string

	// Remote catalog API configuration
	TMDBAPIKey  string
	TMDBBaseURL string
	Language    string
	Region      string

	// Rate limiting and caching
	RateLimitMs    int
	RequestTimeout int
	CacheTTLMin    int

	// Application configuration
	Port         string
	APIAccessKey string
	PolicyFile   string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
