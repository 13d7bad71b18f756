package sync

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Policy holds the tunable knobs of the sync pipeline. All values have
// defaults matching the storefront's production settings; an optional YAML
// file overrides individual fields.
type Policy struct {
	// Admission thresholds per listing intent
	GlobalMinRating   float64 `yaml:"global_min_rating"`
	RegionalMinRating float64 `yaml:"regional_min_rating"`
	UpcomingMinRating float64 `yaml:"upcoming_min_rating"`

	// Paging and batching
	PagesPerStrategy int `yaml:"pages_per_strategy"`
	BatchSize        int `yaml:"batch_size"`

	// Refresh of already-synced items
	StalenessDays    int `yaml:"staleness_days"`
	UpdateBatchLimit int `yaml:"update_batch_limit"`

	// Trending pass
	TrendingSize   int    `yaml:"trending_size"`
	TrendingWindow string `yaml:"trending_window"`

	// Obsolescence cleanup; all three conditions must hold for deactivation
	CleanupMaxViews   int64   `yaml:"cleanup_max_views"`
	CleanupMinAgeDays int     `yaml:"cleanup_min_age_days"`
	CleanupMaxRating  float64 `yaml:"cleanup_max_rating"`

	// Discovery scope
	PriorityGenres []string `yaml:"priority_genres"`
	Regions        []string `yaml:"regions"`
}

func DefaultPolicy() *Policy {
	return &Policy{
		GlobalMinRating:   6.0,
		RegionalMinRating: 5.0,
		UpcomingMinRating: 7.0,
		PagesPerStrategy:  3,
		BatchSize:         20,
		StalenessDays:     7,
		UpdateBatchLimit:  200,
		TrendingSize:      20,
		TrendingWindow:    "week",
		CleanupMaxViews:   10,
		CleanupMinAgeDays: 365,
		CleanupMaxRating:  5.0,
		PriorityGenres:    []string{"Action", "Comedy", "Drama", "Horror", "Science Fiction", "Animation"},
		Regions:           []string{"BR"},
	}
}

// LoadPolicy reads the policy file at path over the defaults. An empty path
// yields the default policy.
func LoadPolicy(path string) (*Policy, error) {
	policy := DefaultPolicy()
	if path == "" {
		return policy, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sync policy file: %w", err)
	}

	if err := yaml.Unmarshal(data, policy); err != nil {
		return nil, fmt.Errorf("failed to parse sync policy file: %w", err)
	}

	if err := policy.validate(); err != nil {
		return nil, fmt.Errorf("invalid sync policy: %w", err)
	}

	return policy, nil
}

func (p *Policy) validate() error {
	for name, rating := range map[string]float64{
		"global_min_rating":   p.GlobalMinRating,
		"regional_min_rating": p.RegionalMinRating,
		"upcoming_min_rating": p.UpcomingMinRating,
		"cleanup_max_rating":  p.CleanupMaxRating,
	} {
		if rating < 0 || rating > 10 {
			return fmt.Errorf("%s must be between 0 and 10, got %v", name, rating)
		}
	}

	for name, value := range map[string]int{
		"pages_per_strategy":   p.PagesPerStrategy,
		"batch_size":           p.BatchSize,
		"staleness_days":       p.StalenessDays,
		"update_batch_limit":   p.UpdateBatchLimit,
		"trending_size":        p.TrendingSize,
		"cleanup_min_age_days": p.CleanupMinAgeDays,
	} {
		if value < 1 {
			return fmt.Errorf("%s must be positive, got %d", name, value)
		}
	}

	if p.CleanupMaxViews < 0 {
		return fmt.Errorf("cleanup_max_views must not be negative, got %d", p.CleanupMaxViews)
	}
	if p.TrendingWindow != "day" && p.TrendingWindow != "week" {
		return fmt.Errorf("trending_window must be 'day' or 'week', got %q", p.TrendingWindow)
	}

	return nil
}

func (p *Policy) StalenessWindow() time.Duration {
	return time.Duration(p.StalenessDays) * 24 * time.Hour
}

func (p *Policy) CleanupMinAge() time.Duration {
	return time.Duration(p.CleanupMinAgeDays) * 24 * time.Hour
}
