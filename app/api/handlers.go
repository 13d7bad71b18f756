package api

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rkuznecov/cinetica/app/cfg"
	"github.com/rkuznecov/cinetica/app/database"
	"github.com/rkuznecov/cinetica/app/sync"
)

const defaultPerPage = 20
const maxPerPage = 100

type Handler struct {
	repo      database.CatalogRepository
	syncer    *sync.Syncer
	scheduler *sync.Scheduler
}

func NewHandler(repo database.CatalogRepository, syncer *sync.Syncer, scheduler *sync.Scheduler) *Handler {
	return &Handler{
		repo:      repo,
		syncer:    syncer,
		scheduler: scheduler,
	}
}

type itemResponse struct {
	ID             string            `json:"id"`
	ExternalID     int64             `json:"external_id"`
	Kind           string            `json:"kind"`
	Title          string            `json:"title"`
	OriginalTitle  string            `json:"original_title,omitempty"`
	Slug           string            `json:"slug"`
	Overview       string            `json:"overview,omitempty"`
	Year           int               `json:"year,omitempty"`
	Genres         []string          `json:"genres"`
	Popularity     float64           `json:"popularity"`
	ExternalRating float64           `json:"external_rating"`
	ExternalVotes  int               `json:"external_votes"`
	InternalRating float64           `json:"internal_rating"`
	InternalVotes  int               `json:"internal_votes"`
	Views          int64             `json:"views"`
	Availability   []string          `json:"availability"`
	Seasons        []database.Season `json:"seasons,omitempty"`
	PosterURL      string            `json:"poster_url,omitempty"`
	BackdropURL    string            `json:"backdrop_url,omitempty"`
	TrailerURL     string            `json:"trailer_url,omitempty"`
	AgeRating      string            `json:"age_rating"`
	IsTrending     bool              `json:"is_trending"`
	LastSyncAt     time.Time         `json:"last_sync_at"`
	CreatedAt      time.Time         `json:"created_at"`
}

func toItemResponse(item *database.CatalogItem) itemResponse {
	return itemResponse{
		ID:             item.ID,
		ExternalID:     item.ExternalID,
		Kind:           item.Kind,
		Title:          item.Title,
		OriginalTitle:  item.OriginalTitle,
		Slug:           item.Slug,
		Overview:       item.Overview,
		Year:           item.Year,
		Genres:         item.Genres,
		Popularity:     item.Popularity,
		ExternalRating: item.ExternalRating,
		ExternalVotes:  item.ExternalVotes,
		InternalRating: item.InternalRating,
		InternalVotes:  item.InternalVotes,
		Views:          item.Views,
		Availability:   item.Availability,
		Seasons:        item.Seasons,
		PosterURL:      item.PosterURL,
		BackdropURL:    item.BackdropURL,
		TrailerURL:     item.TrailerURL,
		AgeRating:      item.AgeRating,
		IsTrending:     item.IsTrending,
		LastSyncAt:     item.LastSyncAt,
		CreatedAt:      item.CreatedAt,
	}
}

func toItemResponses(items []database.CatalogItem) []itemResponse {
	responses := make([]itemResponse, 0, len(items))
	for i := range items {
		responses = append(responses, toItemResponse(&items[i]))
	}
	return responses
}

// GetItem serves one catalog item by external key and bumps its view counter.
func (h *Handler) GetItem(c *gin.Context) {
	kind := c.Param("kind")
	if !database.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown content kind"})
		return
	}

	externalID, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid item id"})
		return
	}

	item, err := h.repo.GetByKey(externalID, kind)
	if err != nil {
		slog.Error("Database error", "operation", "get_item", "external_id", externalID, "kind", kind, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "item not found"})
		return
	}

	if err := h.repo.IncrementViews(item.ID); err != nil {
		slog.Warn("Failed to bump view counter", "id", item.ID, "error", err)
	} else {
		item.Views++
	}

	c.JSON(http.StatusOK, toItemResponse(item))
}

// ListCatalog serves a filtered, paginated catalog listing.
func (h *Handler) ListCatalog(c *gin.Context) {
	kind := c.Query("kind")
	if kind != "" && !database.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown content kind"})
		return
	}

	filters := database.ListFilters{
		Kind:         kind,
		Genre:        c.Query("genre"),
		ActiveOnly:   true,
		TrendingOnly: c.Query("trending") == "true",
	}
	page, perPage := pagination(c)

	items, total, err := h.repo.List(filters, page, perPage)
	if err != nil {
		slog.Error("Database error", "operation", "list_catalog", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    toItemResponses(items),
		"total":    total,
		"page":     page,
		"per_page": perPage,
	})
}

// Search serves a title search over the active catalog.
func (h *Handler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter 'q' is required"})
		return
	}

	kind := c.Query("kind")
	if kind != "" && !database.ValidKind(kind) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown content kind"})
		return
	}
	page, perPage := pagination(c)

	items, total, err := h.repo.Search(query, kind, page, perPage)
	if err != nil {
		slog.Error("Database error", "operation", "search", "query", query, "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"items":    toItemResponses(items),
		"total":    total,
		"page":     page,
		"per_page": perPage,
		"query":    query,
	})
}

// GetTrending serves the current trending shelf.
func (h *Handler) GetTrending(c *gin.Context) {
	items, _, err := h.repo.List(database.ListFilters{ActiveOnly: true, TrendingOnly: true}, 1, maxPerPage)
	if err != nil {
		slog.Error("Database error", "operation", "get_trending", "error", err)
		c.Status(http.StatusInternalServerError)
		return
	}

	c.JSON(http.StatusOK, gin.H{"items": toItemResponses(items)})
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"version":   cfg.Get().Version,
	}

	if counts, err := h.repo.Counts(); err == nil {
		health["items"] = counts.Total
		health["active_items"] = counts.Active
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats := gin.H{
		"sync_running": h.syncer.IsRunning(),
	}

	if counts, err := h.repo.Counts(); err == nil {
		stats["catalog"] = counts
	}
	if lastRun := h.syncer.Stats(); lastRun != nil {
		stats["last_sync"] = lastRun
	}
	if h.scheduler != nil {
		stats["jobs"] = h.scheduler.Jobs()
	}

	c.JSON(http.StatusOK, stats)
}

// TriggerSync starts a named sync job in the background. Returns 409 when a
// sync operation is already in progress.
func (h *Handler) TriggerSync(c *gin.Context) {
	job := c.Param("job")

	if h.syncer.IsRunning() {
		c.JSON(http.StatusConflict, gin.H{"error": "sync already in progress"})
		return
	}

	if err := h.scheduler.RunNow(job); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}

	slog.Info("Manual sync triggered", "job", job)
	c.JSON(http.StatusAccepted, gin.H{"status": "started", "job": job})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		page = 1
	}
	perPage, err := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
	if err != nil || perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}
