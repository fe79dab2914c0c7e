package categorization

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"ledgerline/internal/domain/mapping"
)

// CategoryResolver picks a category for a vendor: mapping cache, static
// directory, pattern rules, then the LLM constrained to the catalog.
type CategoryResolver struct {
	cache     MappingStore
	directory *Directory
	rules     *RuleEngine
	catalog   *CategoryCatalog
	llm       Classifier
	timeout   time.Duration
	tiers     []Tier[CategoryQuery]
	group     singleflight.Group
	logger    zerolog.Logger
}

// NewCategoryResolver creates a resolver. llm may be nil.
func NewCategoryResolver(cache MappingStore, directory *Directory, rules *RuleEngine, catalog *CategoryCatalog, llm Classifier, timeout time.Duration, logger zerolog.Logger) *CategoryResolver {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	r := &CategoryResolver{
		cache:     cache,
		directory: directory,
		rules:     rules,
		catalog:   catalog,
		llm:       llm,
		timeout:   timeout,
		logger:    logger.With().Str("component", "category_resolver").Logger(),
	}
	r.tiers = []Tier[CategoryQuery]{
		{Name: "cache", Resolve: r.fromCache},
		{Name: "directory", Resolve: r.fromDirectory},
		{Name: "pattern", Resolve: r.fromRules},
		{Name: "llm", Resolve: r.fromLLM},
	}
	return r
}

// Resolve runs the category cascade. When every tier misses it returns the
// Uncategorized category at zero confidence, or ErrNoCategoryResult if the
// catalog has no such entry.
func (r *CategoryResolver) Resolve(ctx context.Context, q CategoryQuery) (CategoryResult, error) {
	key := mapping.NormalizeKey(q.VendorName)
	if key == "" {
		return CategoryResult{}, ErrEmptyQuery
	}

	ctx, span := resolverTracer.Start(ctx, "resolver.Category")
	defer span.End()

	fk := flightKey(key, q.UserID) + "|" + string(q.Type) + "|" + q.Amount.String()
	v, shared, err := sharedResolve(ctx, &r.group, fk, r.timeout+flightGrace, func(ctx context.Context) (interface{}, error) {
		res, tier, ok := Cascade(ctx, r.tiers, q)
		if !ok {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("category cascade interrupted: %w", ctx.Err())
			}
			return r.unresolved(ctx)
		}
		if tier > 0 && !res.Transient {
			r.writeBack(ctx, key, res)
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		return CategoryResult{}, err
	}

	res := v.(Resolution)
	id, err := strconv.ParseInt(res.Value, 10, 64)
	if err != nil {
		return CategoryResult{}, fmt.Errorf("invalid category id %q: %w", res.Value, err)
	}

	recordResolution(ctx, "category", res.Source)
	span.SetAttributes(
		attribute.String("resolution.source", string(res.Source)),
		attribute.Bool("resolution.shared", shared),
	)

	return CategoryResult{
		CategoryID:   id,
		CategoryName: res.Label,
		Confidence:   res.Confidence,
		Source:       res.Source,
		Reasoning:    res.Reasoning,
	}, nil
}

func (r *CategoryResolver) unresolved(ctx context.Context) (interface{}, error) {
	cat, ok, err := r.catalog.Lookup(ctx, CategoryUncategorized)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNoCategoryResult
	}
	return Resolution{
		Value:     strconv.FormatInt(cat.ID, 10),
		Label:     cat.Name,
		Source:    SourceFallback,
		Reasoning: "no tier matched",
	}, nil
}

// byName turns a category name produced by a tier into a resolution, or
// misses when the catalog does not know it.
func (r *CategoryResolver) byName(ctx context.Context, name string, confidence float64, source Source, reasoning string) (Resolution, bool) {
	cat, ok, err := r.catalog.Lookup(ctx, name)
	if err != nil {
		r.logger.Warn().Err(err).Msg("category catalog unavailable")
		return Resolution{}, false
	}
	if !ok {
		return Resolution{}, false
	}
	return Resolution{
		Value:      strconv.FormatInt(cat.ID, 10),
		Label:      cat.Name,
		Confidence: confidence,
		Source:     source,
		Reasoning:  reasoning,
	}, true
}

func (r *CategoryResolver) fromCache(ctx context.Context, q CategoryQuery) (Resolution, bool) {
	rec, err := r.cache.GetBestMapping(ctx, q.VendorName, q.UserID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("category cache lookup failed")
		return Resolution{}, false
	}
	if rec == nil {
		return Resolution{}, false
	}
	id, err := strconv.ParseInt(rec.ResolvedValue, 10, 64)
	if err != nil {
		return Resolution{}, false
	}
	cat, ok, err := r.catalog.ByID(ctx, id)
	if err != nil || !ok {
		return Resolution{}, false
	}
	return Resolution{
		Value:      rec.ResolvedValue,
		Label:      cat.Name,
		Confidence: rec.Confidence,
		Source:     SourceCache,
		Reasoning:  fmt.Sprintf("cached %s mapping", rec.Source),
	}, true
}

func (r *CategoryResolver) fromDirectory(ctx context.Context, q CategoryQuery) (Resolution, bool) {
	name, ok := r.directory.Lookup(q.VendorName)
	if !ok {
		return Resolution{}, false
	}
	return r.byName(ctx, name, DirectoryConfidence, SourceDirectory, "known merchant")
}

func (r *CategoryResolver) fromRules(ctx context.Context, q CategoryQuery) (Resolution, bool) {
	rule, ok := r.rules.Match(q)
	if !ok {
		return Resolution{}, false
	}
	res, ok := r.byName(ctx, rule.Category, rule.Confidence, SourcePattern, rule.Reasoning)
	res.Transient = rule.AmountDependent
	return res, ok
}

func (r *CategoryResolver) fromLLM(ctx context.Context, q CategoryQuery) (Resolution, bool) {
	if r.llm == nil {
		return Resolution{}, false
	}

	names, err := r.catalog.Names(ctx)
	if err != nil {
		r.logger.Warn().Err(err).Msg("category catalog unavailable")
		return Resolution{}, false
	}

	llmCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	completion, err := r.llm.Complete(llmCtx, CategoryPrompt(q, names))
	if err != nil {
		r.logger.Warn().Err(err).Str("vendor", q.VendorName).Msg("category LLM tier failed")
		return Resolution{}, false
	}

	ans, ok := ParseAnswer(completion.Text, "Category")
	if !ok {
		return Resolution{}, false
	}

	confidence := clampRange(ans.Confidence, LLMCategoryMinConfidence, LLMCategoryMaxConfidence)
	res, ok := r.byName(ctx, ans.Label, confidence, SourceLLM, ans.Reasoning)
	if !ok {
		r.logger.Debug().Str("vendor", q.VendorName).Str("answer", ans.Label).Msg("LLM named an unknown category")
	}
	return res, ok
}

func (r *CategoryResolver) writeBack(ctx context.Context, key string, res Resolution) {
	_, err := r.cache.CacheMapping(ctx, mapping.WriteParams{
		Key:        key,
		Value:      res.Value,
		Label:      res.Label,
		Confidence: res.Confidence,
		Source:     res.Source.mappingSource(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to cache category resolution")
	}
}
