package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

var _ CatalogRepository = (*CatalogItemRepository)(nil)

// CatalogItemRepository handles database operations for catalog items
type CatalogItemRepository struct {
	db *DB
}

func NewCatalogItemRepository(db *DB) *CatalogItemRepository {
	return &CatalogItemRepository{db: db}
}

const catalogColumns = `id, external_id, kind, title, original_title, slug, overview, year,
	genres, popularity, external_rating, external_votes, internal_rating, internal_votes,
	views, availability, seasons, poster_url, backdrop_url, trailer_url, age_rating,
	is_active, is_trending, last_sync_at, created_at, updated_at`

func (r *CatalogItemRepository) GetByKey(externalID int64, kind string) (*CatalogItem, error) {
	row := r.db.QueryRow(`
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE external_id = ? AND kind = ?
	`, externalID, kind)

	item, err := scanCatalogItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by key: %w", err)
	}
	return item, nil
}

func (r *CatalogItemRepository) GetBySlug(slug string) (*CatalogItem, error) {
	row := r.db.QueryRow(`
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE slug = ?
	`, slug)

	item, err := scanCatalogItem(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item by slug: %w", err)
	}
	return item, nil
}

// Insert stores a new catalog item. A missing ID is generated, and the slug is
// suffixed with a numeric counter when it collides with an existing item.
func (r *CatalogItemRepository) Insert(item *CatalogItem) error {
	if item.ID == "" {
		item.ID = uuid.New().String()
	}

	slug, err := r.resolveSlug(item.Slug, item.ID)
	if err != nil {
		return err
	}
	item.Slug = slug

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	genres, availability, seasons, err := encodeJSONColumns(item)
	if err != nil {
		return err
	}

	_, err = r.db.Exec(`
		INSERT INTO catalog_items (`+catalogColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.ID, item.ExternalID, item.Kind, item.Title, item.OriginalTitle, item.Slug,
		item.Overview, item.Year, genres, item.Popularity, item.ExternalRating,
		item.ExternalVotes, item.InternalRating, item.InternalVotes, item.Views,
		availability, seasons, item.PosterURL, item.BackdropURL, item.TrailerURL,
		item.AgeRating, item.IsActive, item.IsTrending, item.LastSyncAt,
		item.CreatedAt, item.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert catalog item: %w", err)
	}

	return nil
}

// Update rewrites all mutable columns of an existing item. The slug is never
// re-resolved: once assigned it stays stable across refreshes.
func (r *CatalogItemRepository) Update(item *CatalogItem) error {
	item.UpdatedAt = time.Now().UTC()

	genres, availability, seasons, err := encodeJSONColumns(item)
	if err != nil {
		return err
	}

	result, err := r.db.Exec(`
		UPDATE catalog_items SET
			title = ?, original_title = ?, overview = ?, year = ?, genres = ?,
			popularity = ?, external_rating = ?, external_votes = ?,
			internal_rating = ?, internal_votes = ?, views = ?, availability = ?,
			seasons = ?, poster_url = ?, backdrop_url = ?, trailer_url = ?,
			age_rating = ?, is_active = ?, is_trending = ?, last_sync_at = ?,
			updated_at = ?
		WHERE id = ?
	`, item.Title, item.OriginalTitle, item.Overview, item.Year, genres,
		item.Popularity, item.ExternalRating, item.ExternalVotes,
		item.InternalRating, item.InternalVotes, item.Views, availability,
		seasons, item.PosterURL, item.BackdropURL, item.TrailerURL,
		item.AgeRating, item.IsActive, item.IsTrending, item.LastSyncAt,
		item.UpdatedAt, item.ID)
	if err != nil {
		return fmt.Errorf("failed to update catalog item: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("catalog item not found: %s", item.ID)
	}

	return nil
}

func (r *CatalogItemRepository) GetStale(olderThan time.Time, limit int) ([]CatalogItem, error) {
	rows, err := r.db.Query(`
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE is_active = 1 AND last_sync_at < ?
		ORDER BY last_sync_at ASC
		LIMIT ?
	`, olderThan, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get stale items: %w", err)
	}
	defer rows.Close()

	return collectCatalogItems(rows)
}

// BulkDeactivate marks items inactive when all three obsolescence conditions
// hold: low engagement, old enough, and poorly rated.
func (r *CatalogItemRepository) BulkDeactivate(maxViews int64, createdBefore time.Time, maxRating float64) (int, error) {
	result, err := r.db.Exec(`
		UPDATE catalog_items
		SET is_active = 0, updated_at = ?
		WHERE is_active = 1
		  AND views < ?
		  AND created_at < ?
		  AND external_rating < ?
	`, time.Now().UTC(), maxViews, createdBefore, maxRating)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate obsolete items: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *CatalogItemRepository) ResetTrending() (int, error) {
	result, err := r.db.Exec(`
		UPDATE catalog_items
		SET is_trending = 0, updated_at = ?
		WHERE is_trending = 1
	`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset trending flags: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}

	return int(affected), nil
}

func (r *CatalogItemRepository) SetTrending(ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]interface{}, 0, len(ids)+1)
	args = append(args, time.Now().UTC())
	for _, id := range ids {
		args = append(args, id)
	}

	_, err := r.db.Exec(`
		UPDATE catalog_items
		SET is_trending = 1, updated_at = ?
		WHERE id IN (`+placeholders+`)
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to set trending flags: %w", err)
	}

	return nil
}

func (r *CatalogItemRepository) Search(query string, kind string, page int, perPage int) ([]CatalogItem, int, error) {
	pattern := "%" + query + "%"
	where := "is_active = 1 AND (title LIKE ? OR original_title LIKE ?)"
	args := []interface{}{pattern, pattern}

	if kind != "" {
		where += " AND kind = ?"
		args = append(args, kind)
	}

	var total int
	err := r.db.QueryRow("SELECT COUNT(*) FROM catalog_items WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count search results: %w", err)
	}

	args = append(args, perPage, offsetFor(page, perPage))
	rows, err := r.db.Query(`
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE `+where+`
		ORDER BY popularity DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to search catalog items: %w", err)
	}
	defer rows.Close()

	items, err := collectCatalogItems(rows)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *CatalogItemRepository) List(filters ListFilters, page int, perPage int) ([]CatalogItem, int, error) {
	where := "1 = 1"
	var args []interface{}

	if filters.Kind != "" {
		where += " AND kind = ?"
		args = append(args, filters.Kind)
	}
	if filters.Genre != "" {
		// genres is a JSON array of names; a quoted LIKE match avoids
		// false positives on substrings of other genre names
		where += ` AND genres LIKE ?`
		args = append(args, `%"`+filters.Genre+`"%`)
	}
	if filters.ActiveOnly {
		where += " AND is_active = 1"
	}
	if filters.TrendingOnly {
		where += " AND is_trending = 1"
	}

	var total int
	err := r.db.QueryRow("SELECT COUNT(*) FROM catalog_items WHERE "+where, args...).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count catalog items: %w", err)
	}

	args = append(args, perPage, offsetFor(page, perPage))
	rows, err := r.db.Query(`
		SELECT `+catalogColumns+`
		FROM catalog_items
		WHERE `+where+`
		ORDER BY popularity DESC
		LIMIT ? OFFSET ?
	`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list catalog items: %w", err)
	}
	defer rows.Close()

	items, err := collectCatalogItems(rows)
	if err != nil {
		return nil, 0, err
	}

	return items, total, nil
}

func (r *CatalogItemRepository) IncrementViews(id string) error {
	_, err := r.db.Exec(`
		UPDATE catalog_items
		SET views = views + 1
		WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("failed to increment views: %w", err)
	}
	return nil
}

func (r *CatalogItemRepository) Counts() (*Counts, error) {
	var c Counts
	err := r.db.QueryRow(`
		SELECT
			COUNT(*) as total,
			SUM(CASE WHEN is_active = 1 THEN 1 ELSE 0 END) as active,
			SUM(CASE WHEN is_trending = 1 THEN 1 ELSE 0 END) as trending,
			SUM(CASE WHEN kind = 'movie' THEN 1 ELSE 0 END) as movies,
			SUM(CASE WHEN kind = 'series' THEN 1 ELSE 0 END) as series,
			SUM(CASE WHEN kind = 'anime' THEN 1 ELSE 0 END) as anime
		FROM catalog_items
	`).Scan(&c.Total, &c.Active, &c.Trending, &c.Movies, &c.Series, &c.Anime)
	if err != nil {
		return nil, fmt.Errorf("failed to get catalog counts: %w", err)
	}
	return &c, nil
}

const slugProbeLimit = 100

// resolveSlug returns the first free slug among base, base-2, base-3, ...
// The probe is capped; past the cap the row id disambiguates instead.
func (r *CatalogItemRepository) resolveSlug(base, id string) (string, error) {
	for i := 1; i <= slugProbeLimit; i++ {
		candidate := base
		if i > 1 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		var exists int
		err := r.db.QueryRow("SELECT 1 FROM catalog_items WHERE slug = ?", candidate).Scan(&exists)
		if err == sql.ErrNoRows {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("failed to check slug availability: %w", err)
		}
	}
	return fmt.Sprintf("%s-%s", base, id[:8]), nil
}

func offsetFor(page, perPage int) int {
	if page < 1 {
		page = 1
	}
	return (page - 1) * perPage
}

func encodeJSONColumns(item *CatalogItem) (string, string, string, error) {
	genres, err := json.Marshal(orEmpty(item.Genres))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode genres: %w", err)
	}
	availability, err := json.Marshal(orEmpty(item.Availability))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode availability: %w", err)
	}
	seasons := item.Seasons
	if seasons == nil {
		seasons = []Season{}
	}
	seasonsJSON, err := json.Marshal(seasons)
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode seasons: %w", err)
	}
	return string(genres), string(availability), string(seasonsJSON), nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCatalogItem(row rowScanner) (*CatalogItem, error) {
	var item CatalogItem
	var genres, availability, seasons string

	err := row.Scan(
		&item.ID, &item.ExternalID, &item.Kind, &item.Title, &item.OriginalTitle,
		&item.Slug, &item.Overview, &item.Year, &genres, &item.Popularity,
		&item.ExternalRating, &item.ExternalVotes, &item.InternalRating,
		&item.InternalVotes, &item.Views, &availability, &seasons,
		&item.PosterURL, &item.BackdropURL, &item.TrailerURL, &item.AgeRating,
		&item.IsActive, &item.IsTrending, &item.LastSyncAt, &item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(genres), &item.Genres); err != nil {
		return nil, fmt.Errorf("failed to decode genres: %w", err)
	}
	if err := json.Unmarshal([]byte(availability), &item.Availability); err != nil {
		return nil, fmt.Errorf("failed to decode availability: %w", err)
	}
	if err := json.Unmarshal([]byte(seasons), &item.Seasons); err != nil {
		return nil, fmt.Errorf("failed to decode seasons: %w", err)
	}

	return &item, nil
}

func collectCatalogItems(rows *sql.Rows) ([]CatalogItem, error) {
	var items []CatalogItem
	for rows.Next() {
		item, err := scanCatalogItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan catalog item row: %w", err)
		}
		items = append(items, *item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating catalog item rows: %w", err)
	}

	return items, nil
}
