package categorization

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"golang.org/x/sync/singleflight"
)

const (
	catalogCacheKey = "category-catalog"
	// DefaultCatalogTTL bounds how stale the in-process catalog may get.
	DefaultCatalogTTL = 10 * time.Minute
)

type catalogSnapshot struct {
	byID   map[int64]Category
	byName map[string]Category
	names  []string
}

func newSnapshot(categories []Category) *catalogSnapshot {
	s := &catalogSnapshot{
		byID:   make(map[int64]Category, len(categories)),
		byName: make(map[string]Category, len(categories)),
		names:  make([]string, 0, len(categories)),
	}
	for _, c := range categories {
		s.byID[c.ID] = c
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, dup := s.byName[key]; dup {
			continue
		}
		s.byName[key] = c
		s.names = append(s.names, c.Name)
	}
	return s
}

// CategoryCatalog is the process-local view of the categories table.
// Entries expire after the TTL; Invalidate and Reload force a refresh.
type CategoryCatalog struct {
	repo  CategoryRepository
	cache *ristretto.Cache
	ttl   time.Duration
	group singleflight.Group
}

func NewCategoryCatalog(repo CategoryRepository, ttl time.Duration) (*CategoryCatalog, error) {
	if ttl <= 0 {
		ttl = DefaultCatalogTTL
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 100,
		MaxCost:     10,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog cache: %w", err)
	}
	return &CategoryCatalog{repo: repo, cache: cache, ttl: ttl}, nil
}

// Reload fetches the catalog from storage and replaces the cached copy.
func (c *CategoryCatalog) Reload(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}

// Invalidate drops the cached copy; the next read reloads it.
func (c *CategoryCatalog) Invalidate() {
	c.cache.Del(catalogCacheKey)
	c.cache.Wait()
}

// Close releases the cache goroutines.
func (c *CategoryCatalog) Close() {
	c.cache.Close()
}

// Lookup finds a category by name, case-insensitively.
func (c *CategoryCatalog) Lookup(ctx context.Context, name string) (Category, bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return Category{}, false, err
	}
	cat, ok := snap.byName[strings.ToLower(strings.TrimSpace(name))]
	return cat, ok, nil
}

// ByID finds a category by id.
func (c *CategoryCatalog) ByID(ctx context.Context, id int64) (Category, bool, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return Category{}, false, err
	}
	cat, ok := snap.byID[id]
	return cat, ok, nil
}

// Names returns every category name in catalog order.
func (c *CategoryCatalog) Names(ctx context.Context) ([]string, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(snap.names))
	copy(out, snap.names)
	return out, nil
}

// All returns every category.
func (c *CategoryCatalog) All(ctx context.Context) ([]Category, error) {
	snap, err := c.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Category, 0, len(snap.names))
	for _, name := range snap.names {
		out = append(out, snap.byName[strings.ToLower(strings.TrimSpace(name))])
	}
	return out, nil
}

func (c *CategoryCatalog) snapshot(ctx context.Context) (*catalogSnapshot, error) {
	if v, ok := c.cache.Get(catalogCacheKey); ok {
		if snap, ok := v.(*catalogSnapshot); ok {
			return snap, nil
		}
	}
	return c.load(ctx)
}

func (c *CategoryCatalog) load(ctx context.Context) (*catalogSnapshot, error) {
	v, err, _ := c.group.Do(catalogCacheKey, func() (interface{}, error) {
		categories, err := c.repo.ListCategories(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load categories: %w", err)
		}
		if len(categories) == 0 {
			return nil, ErrCatalogEmpty
		}
		snap := newSnapshot(categories)
		c.cache.SetWithTTL(catalogCacheKey, snap, 1, c.ttl)
		c.cache.Wait()
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*catalogSnapshot), nil
}
