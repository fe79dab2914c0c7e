package categorization

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"ledgerline/internal/domain/mapping"
)

type MockCategoryRepo struct {
	ListCategoriesFunc func(ctx context.Context) ([]Category, error)
	calls              atomic.Int32
}

func (m *MockCategoryRepo) ListCategories(ctx context.Context) ([]Category, error) {
	m.calls.Add(1)
	if m.ListCategoriesFunc != nil {
		return m.ListCategoriesFunc(ctx)
	}
	return systemCategories(), nil
}

func systemCategories() []Category {
	out := make([]Category, 0, len(SystemCategories))
	for i, name := range SystemCategories {
		out = append(out, Category{ID: int64(i + 1), Name: name, IsSystem: true})
	}
	return out
}

type MockClassifier struct {
	CompleteFunc func(ctx context.Context, prompt Prompt) (Completion, error)

	mu      sync.Mutex
	prompts []Prompt
}

func (m *MockClassifier) Complete(ctx context.Context, prompt Prompt) (Completion, error) {
	m.mu.Lock()
	m.prompts = append(m.prompts, prompt)
	m.mu.Unlock()
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return Completion{}, nil
}

func (m *MockClassifier) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.prompts)
}

func replyWith(text string) *MockClassifier {
	return &MockClassifier{
		CompleteFunc: func(context.Context, Prompt) (Completion, error) {
			return Completion{Text: text}, nil
		},
	}
}

func newTestCatalog(t *testing.T, repo CategoryRepository) *CategoryCatalog {
	t.Helper()
	catalog, err := NewCategoryCatalog(repo, time.Minute)
	if err != nil {
		t.Fatalf("NewCategoryCatalog() error = %v", err)
	}
	t.Cleanup(catalog.Close)
	return catalog
}

type resolverFixture struct {
	vendorRepo   *mapping.MemoryRepository
	categoryRepo *mapping.MemoryRepository
	vendorCache  *mapping.Cache
	catCache     *mapping.Cache
	catalog      *CategoryCatalog
	categoryIDs  map[string]int64
}

func newResolverFixture(t *testing.T) *resolverFixture {
	t.Helper()
	f := &resolverFixture{
		vendorRepo:   mapping.NewMemoryRepository(),
		categoryRepo: mapping.NewMemoryRepository(),
		catalog:      newTestCatalog(t, &MockCategoryRepo{}),
		categoryIDs:  map[string]int64{},
	}
	f.vendorCache = mapping.NewCache(mapping.KindVendor, f.vendorRepo, mapping.DefaultOptions(), zerolog.Nop())
	f.catCache = mapping.NewCache(mapping.KindCategory, f.categoryRepo, mapping.DefaultOptions(), zerolog.Nop())
	for _, c := range systemCategories() {
		f.categoryIDs[c.Name] = c.ID
	}
	return f
}

func (f *resolverFixture) vendorResolver(llm Classifier) *VendorResolver {
	return NewVendorResolver(f.vendorCache, llm, time.Second, zerolog.Nop())
}

func (f *resolverFixture) categoryResolver(llm Classifier) *CategoryResolver {
	return NewCategoryResolver(f.catCache, DefaultDirectory(), DefaultRuleEngine(), f.catalog, llm, time.Second, zerolog.Nop())
}
