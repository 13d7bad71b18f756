package database

import (
	"time"
)

type CatalogRepository interface {
	GetByKey(externalID int64, kind string) (*CatalogItem, error)
	GetBySlug(slug string) (*CatalogItem, error)

	Insert(item *CatalogItem) error
	Update(item *CatalogItem) error

	GetStale(olderThan time.Time, limit int) ([]CatalogItem, error)
	BulkDeactivate(maxViews int64, createdBefore time.Time, maxRating float64) (int, error)

	ResetTrending() (int, error)
	SetTrending(ids []string) error

	Search(query string, kind string, page int, perPage int) ([]CatalogItem, int, error)
	List(filters ListFilters, page int, perPage int) ([]CatalogItem, int, error)

	IncrementViews(id string) error
	Counts() (*Counts, error)
}
