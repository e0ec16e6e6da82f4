// Package search fans a product query out across distributor portals and
// merges the answers into one comparable result set. Each distributor is
// searched concurrently and in isolation: one portal being down, slow, or
// confused never costs the caller the other portals' results.
package search

import (
	"context"
	"encoding/json"
	stdErrors "errors"
	"strings"
	"sync"
	"time"

	"github.com/angelmondragon/platewise-backend/internal/catalog"
	"github.com/angelmondragon/platewise-backend/internal/distributors"
	"github.com/angelmondragon/platewise-backend/internal/ordering"
	"github.com/angelmondragon/platewise-backend/pkg/db/models"
	"github.com/angelmondragon/platewise-backend/pkg/errors"
	"github.com/angelmondragon/platewise-backend/pkg/logger"
	"github.com/angelmondragon/platewise-backend/pkg/metrics"
	"github.com/angelmondragon/platewise-backend/pkg/units"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	defaultLimit    = 10
	maxLimit        = 50
	defaultCacheTTL = time.Minute
)

// Entry sources.
const (
	SourceLive    = "live"
	SourceCatalog = "catalog"
	SourceNone    = "none"
)

// Item is one product in an aggregated result, decorated with the normalized
// per-base-unit price when the pack description is parseable.
type Item struct {
	SKU              string `json:"sku"`
	Description      string `json:"description"`
	PriceCents       *int64 `json:"price_cents,omitempty"`
	PackSize         string `json:"pack_size,omitempty"`
	PackUnit         string `json:"pack_unit,omitempty"`
	InStock          *bool  `json:"in_stock,omitempty"`
	ProductURL       string `json:"product_url,omitempty"`
	ImageURL         string `json:"image_url,omitempty"`
	Category         string `json:"category,omitempty"`
	ProductID        string `json:"product_id,omitempty"`
	PricePerBaseUnit string `json:"price_per_base_unit,omitempty"`
	BaseUnit         string `json:"base_unit,omitempty"`
}

// Entry is one distributor's slice of an aggregated search. Failed
// distributors keep their position with an empty result set and a public
// error message.
type Entry struct {
	DistributorID uuid.UUID `json:"distributor_id"`
	Distributor   string    `json:"distributor"`
	Platform      string    `json:"platform"`
	Source        string    `json:"source"`
	Results       []Item    `json:"results"`
	Error         string    `json:"error,omitempty"`
	ElapsedMS     int64     `json:"elapsed_ms"`
}

// Response is the aggregated answer: exactly one entry per searched
// distributor, in request order.
type Response struct {
	Query        string  `json:"query"`
	Entries      []Entry `json:"entries"`
	TotalResults int     `json:"total_results"`
	ElapsedMS    int64   `json:"elapsed_ms"`
	FromCache    bool    `json:"from_cache"`
}

// AdapterProvider builds a platform adapter for a distributor row.
type AdapterProvider interface {
	ClientFor(ctx context.Context, dist *models.Distributor) (ordering.PlatformAdapter, error)
}

// Cache is the slice of the redis client the aggregator uses.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	SearchKey(query string, distributorIDs []string) string
}

// ObservationPublisher ships fresh price sightings off for catalog ingestion.
type ObservationPublisher interface {
	PublishPriceObservations(ctx context.Context, observations []catalog.PriceObservation) error
}

// AggregatorParams groups dependencies for the aggregator. Cache, Publisher,
// and Metrics are optional; the aggregator degrades to uncached, unpublished,
// unmeasured searches without them.
type AggregatorParams struct {
	Distributors *distributors.Service
	Adapters     AdapterProvider
	Catalog      *catalog.Service
	Cache        Cache
	Publisher    ObservationPublisher
	Metrics      *metrics.SearchMetrics
	Logger       *logger.Logger
	CacheTTL     time.Duration
}

// Aggregator runs concurrent distributor searches with catalog fallback.
type Aggregator struct {
	distSvc    *distributors.Service
	adapters   AdapterProvider
	catalogSvc *catalog.Service
	cache      Cache
	publisher  ObservationPublisher
	metric     *metrics.SearchMetrics
	logg       *logger.Logger
	cacheTTL   time.Duration
}

// NewAggregator builds a search aggregator.
func NewAggregator(params AggregatorParams) (*Aggregator, error) {
	if params.Distributors == nil {
		return nil, stdErrors.New("distributor service is required")
	}
	if params.Adapters == nil {
		return nil, stdErrors.New("adapter provider is required")
	}
	if params.Catalog == nil {
		return nil, stdErrors.New("catalog service is required")
	}
	cacheTTL := params.CacheTTL
	if cacheTTL <= 0 {
		cacheTTL = defaultCacheTTL
	}
	return &Aggregator{
		distSvc:    params.Distributors,
		adapters:   params.Adapters,
		catalogSvc: params.Catalog,
		cache:      params.Cache,
		publisher:  params.Publisher,
		metric:     params.Metrics,
		logg:       params.Logger,
		cacheTTL:   cacheTTL,
	}, nil
}

// Search fans the query out to the given distributors. An empty id list means
// every ordering-enabled distributor; explicit ids are narrowed to the
// ordering-enabled set before any adapter work. The response carries one entry
// per searched distributor in the order they were requested. No deadline is
// imposed on the fan-out as a whole; each portal call is bounded by the
// adapter's own HTTP timeout.
func (a *Aggregator) Search(ctx context.Context, query string, distributorIDs []uuid.UUID, limit int) (*Response, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.New(errors.CodeValidation, "search query is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	distributorIDs, err := a.resolveDistributorIDs(ctx, distributorIDs)
	if err != nil {
		return nil, err
	}

	cacheKey := a.searchKey(query, distributorIDs)
	if cached := a.cachedResponse(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	start := time.Now()
	entries := make([]Entry, len(distributorIDs))
	var wg sync.WaitGroup
	for i, id := range distributorIDs {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					a.logError(ctx, "distributor search panicked",
						errors.New(errors.CodeInternal, "distributor search panicked"))
					entries[i] = Entry{
						DistributorID: id,
						Source:        SourceNone,
						Results:       []Item{},
						Error:         errors.MetadataFor(errors.CodeInternal).PublicMessage,
					}
				}
			}()
			entries[i] = a.searchDistributor(ctx, id, query, limit)
		}(i, id)
	}
	wg.Wait()

	total := 0
	for _, entry := range entries {
		total += len(entry.Results)
	}
	resp := &Response{
		Query:        query,
		Entries:      entries,
		TotalResults: total,
		ElapsedMS:    time.Since(start).Milliseconds(),
	}
	a.storeResponse(ctx, cacheKey, resp)
	return resp, nil
}

// resolveDistributorIDs narrows the requested set to distributors that are
// active with ordering enabled, keeping request order. A distributor with
// ordering switched off never reaches its adapter, even when asked for by id.
func (a *Aggregator) resolveDistributorIDs(ctx context.Context, requested []uuid.UUID) ([]uuid.UUID, error) {
	dists, err := a.distSvc.ListOrderingEnabled(ctx)
	if err != nil {
		return nil, err
	}

	if len(requested) == 0 {
		ids := make([]uuid.UUID, 0, len(dists))
		for _, dist := range dists {
			ids = append(ids, dist.ID)
		}
		if len(ids) == 0 {
			return nil, errors.New(errors.CodeNotFound, "no distributors available to search")
		}
		return ids, nil
	}

	enabled := make(map[uuid.UUID]bool, len(dists))
	for _, dist := range dists {
		enabled[dist.ID] = true
	}
	ids := make([]uuid.UUID, 0, len(requested))
	for _, id := range requested {
		if enabled[id] {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 {
		return nil, errors.New(errors.CodeNotFound, "no distributors available to search")
	}
	return ids, nil
}

// searchDistributor runs one distributor's search: live portal first, local
// catalog as fallback. Every exit path yields a complete entry.
func (a *Aggregator) searchDistributor(ctx context.Context, id uuid.UUID, query string, limit int) Entry {
	start := time.Now()
	entry := Entry{DistributorID: id, Source: SourceNone, Results: []Item{}}
	finish := func(e Entry) Entry {
		e.ElapsedMS = time.Since(start).Milliseconds()
		return e
	}

	dist, err := a.distSvc.Get(ctx, id)
	if err != nil {
		a.metric.IncFailure("unknown", string(errorCode(err)))
		entry.Error = publicMessage(err)
		return finish(entry)
	}
	entry.Distributor = dist.Name
	entry.Platform = dist.PlatformID

	liveErr := a.searchLive(ctx, dist, query, limit, &entry)
	if liveErr == nil {
		return finish(entry)
	}

	// Live portal failed; serve the local catalog when it has anything.
	cached, catErr := a.catalogSvc.Search(ctx, id, query, limit)
	if catErr != nil {
		a.logError(ctx, "catalog fallback failed", catErr)
	}
	if len(cached) > 0 {
		a.metric.IncFallback(dist.PlatformID)
		entry.Source = SourceCatalog
		entry.Results = itemsFromCatalog(cached)
		return finish(entry)
	}

	entry.Error = publicMessage(liveErr)
	return finish(entry)
}

// searchLive attempts the portal search and fills the entry on success. A
// parse failure counts as a successful search with zero results.
func (a *Aggregator) searchLive(ctx context.Context, dist *models.Distributor, query string, limit int, entry *Entry) error {
	adapter, err := a.adapters.ClientFor(ctx, dist)
	if err != nil {
		a.metric.IncFailure(dist.PlatformID, string(errorCode(err)))
		a.logError(ctx, "building platform adapter failed", err)
		return err
	}
	defer adapter.Close()

	started := time.Now()
	results, err := adapter.Search(ctx, query, limit)
	a.metric.ObserveDuration(dist.PlatformID, time.Since(started))

	if errors.HasCode(err, errors.CodeParse) {
		a.metric.IncFailure(dist.PlatformID, string(errors.CodeParse))
		a.logError(ctx, "unparseable portal response, treating as zero results", err)
		entry.Source = SourceLive
		entry.Results = []Item{}
		return nil
	}
	if err != nil {
		a.metric.IncFailure(dist.PlatformID, string(errorCode(err)))
		a.logError(ctx, "live distributor search failed", err)
		return err
	}

	a.metric.IncSuccess(dist.PlatformID)
	entry.Source = SourceLive
	entry.Results = itemsFromLive(results)
	a.publishObservations(ctx, dist, results)
	return nil
}

// publishObservations ships priced live results to the catalog pipeline.
// Strictly best-effort: failures are logged and never reach the caller.
func (a *Aggregator) publishObservations(ctx context.Context, dist *models.Distributor, results []ordering.SearchResult) {
	if a.publisher == nil {
		return
	}
	now := time.Now().UTC()
	observations := make([]catalog.PriceObservation, 0, len(results))
	for _, r := range results {
		if r.PriceCents == nil || r.SKU == "" {
			continue
		}
		observations = append(observations, catalog.PriceObservation{
			DistributorID: dist.ID,
			SKU:           r.SKU,
			Description:   r.Description,
			PackSizeText:  r.PackSize,
			ImageURL:      r.ImageURL,
			PriceCents:    *r.PriceCents,
			Currency:      "USD",
			ObservedAt:    now,
		})
	}
	if len(observations) == 0 {
		return
	}
	if err := a.publisher.PublishPriceObservations(ctx, observations); err != nil {
		a.logError(ctx, "publishing price observations failed", err)
	}
}

func itemsFromLive(results []ordering.SearchResult) []Item {
	items := make([]Item, 0, len(results))
	for _, r := range results {
		item := Item{
			SKU:         r.SKU,
			Description: r.Description,
			PriceCents:  r.PriceCents,
			PackSize:    r.PackSize,
			PackUnit:    r.PackUnit,
			InStock:     r.InStock,
			ProductURL:  r.ProductURL,
			ImageURL:    r.ImageURL,
			Category:    r.Category,
			ProductID:   r.ProductID,
		}
		decoratePerBaseUnit(&item)
		items = append(items, item)
	}
	return items
}

func itemsFromCatalog(cached []catalog.CachedResult) []Item {
	items := make([]Item, 0, len(cached))
	for _, c := range cached {
		item := Item{
			SKU:         c.Item.SKU,
			Description: c.Item.Description,
			PackSize:    c.Item.PackSizeText,
			ImageURL:    c.Item.ImageURL,
			PriceCents:  c.PriceCents,
		}
		decoratePerBaseUnit(&item)
		items = append(items, item)
	}
	return items
}

// decoratePerBaseUnit attaches the normalized price when the pack description
// parses. The pack size field is tried first, then the full description.
func decoratePerBaseUnit(item *Item) {
	if item.PriceCents == nil {
		return
	}
	pack, ok := units.ParsePackDescription(item.PackSize)
	if !ok {
		pack, ok = units.ParsePackDescription(item.Description)
	}
	if !ok {
		return
	}
	var perBase decimal.Decimal
	if perBase, ok = units.PricePerBaseUnit(*item.PriceCents, pack); !ok {
		return
	}
	item.PricePerBaseUnit = units.FormatPricePerUnit(perBase, pack.BaseUnit)
	item.BaseUnit = string(pack.BaseUnit)
}

func (a *Aggregator) searchKey(query string, distributorIDs []uuid.UUID) string {
	if a.cache == nil {
		return ""
	}
	ids := make([]string, 0, len(distributorIDs))
	for _, id := range distributorIDs {
		ids = append(ids, id.String())
	}
	return a.cache.SearchKey(query, ids)
}

func (a *Aggregator) cachedResponse(ctx context.Context, key string) *Response {
	if a.cache == nil || key == "" {
		return nil
	}
	raw, err := a.cache.Get(ctx, key)
	if err != nil || raw == "" {
		return nil
	}
	var resp Response
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return nil
	}
	resp.FromCache = true
	return &resp
}

func (a *Aggregator) storeResponse(ctx context.Context, key string, resp *Response) {
	if a.cache == nil || key == "" {
		return
	}
	encoded, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := a.cache.Set(ctx, key, string(encoded), a.cacheTTL); err != nil {
		a.logError(ctx, "caching aggregated search failed", err)
	}
}

func (a *Aggregator) logError(ctx context.Context, msg string, err error) {
	if a.logg == nil {
		return
	}
	a.logg.Error(ctx, msg, err)
}

func errorCode(err error) errors.Code {
	if domain := errors.As(err); domain != nil {
		return domain.Code()
	}
	return errors.CodeInternal
}

func publicMessage(err error) string {
	return errors.MetadataFor(errorCode(err)).PublicMessage
}
