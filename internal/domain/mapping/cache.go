package mapping

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	cacheMeter      = otel.Meter("ledgerline/mapping")
	cacheLookups, _ = cacheMeter.Int64Counter("mapping.lookups", metric.WithDescription("Mapping cache lookups by kind and outcome"))
	cacheWrites, _  = cacheMeter.Int64Counter("mapping.writes", metric.WithDescription("Mapping cache writes by kind and outcome"))
)

// Options tunes the write rules of a Cache.
type Options struct {
	OverwriteMargin    float64
	ConsensusThreshold int
}

// DefaultOptions returns the built-in margin and consensus threshold.
func DefaultOptions() Options {
	return Options{
		OverwriteMargin:    DefaultOverwriteMargin,
		ConsensusThreshold: DefaultConsensusThreshold,
	}
}

// LearnResult reports what a user correction changed.
type LearnResult struct {
	AgreeingUsers int  `json:"agreeingUsers"`
	Promoted      bool `json:"promoted"`
}

// Cache is the persistent priority cache for one mapping kind.
type Cache struct {
	kind   Kind
	repo   Repository
	opts   Options
	logger zerolog.Logger
}

func NewCache(kind Kind, repo Repository, opts Options, logger zerolog.Logger) *Cache {
	if opts.ConsensusThreshold < 1 {
		opts.ConsensusThreshold = DefaultConsensusThreshold
	}
	if opts.OverwriteMargin < 0 {
		opts.OverwriteMargin = DefaultOverwriteMargin
	}
	return &Cache{
		kind:   kind,
		repo:   repo,
		opts:   opts,
		logger: logger.With().Str("component", "mapping_cache").Str("kind", string(kind)).Logger(),
	}
}

// Kind returns the mapping kind this cache serves.
func (c *Cache) Kind() Kind {
	return c.kind
}

// GetBestMapping returns the highest-priority mapping for key, or nil.
func (c *Cache) GetBestMapping(ctx context.Context, key string, userID *int64) (*Record, error) {
	key = NormalizeKey(key)
	if key == "" {
		return nil, nil
	}

	candidates, err := c.repo.Candidates(ctx, key, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s mappings: %w", c.kind, err)
	}

	best := SelectBest(candidates, userID)
	outcome := "miss"
	if best != nil {
		outcome = "hit"
	}
	cacheLookups.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(c.kind)),
		attribute.String("outcome", outcome),
	))

	return best, nil
}

// CacheMapping writes a mapping under the overwrite-only-if-better rule and
// reports whether anything was written.
func (c *Cache) CacheMapping(ctx context.Context, params WriteParams) (bool, error) {
	params, err := c.prepare(params)
	if err != nil {
		return false, err
	}

	written, err := c.repo.UpsertIfBetter(ctx, params, c.opts.OverwriteMargin)
	if err != nil {
		return false, fmt.Errorf("failed to cache %s mapping: %w", c.kind, err)
	}

	outcome := "kept"
	if written {
		outcome = "written"
	}
	cacheWrites.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", string(c.kind)),
		attribute.String("outcome", outcome),
	))

	return written, nil
}

// LearnFromUserCorrection stores the user's correction in their own scope and
// promotes it to global scope once enough distinct users agree.
func (c *Cache) LearnFromUserCorrection(ctx context.Context, key, value, label string, userID int64) (*LearnResult, error) {
	uid := userID
	params, err := c.prepare(WriteParams{
		Key:        key,
		Value:      value,
		Label:      label,
		Confidence: UserCorrectionConfidence,
		Source:     SourceUser,
		UserID:     &uid,
	})
	if err != nil {
		return nil, err
	}

	if err := c.repo.Put(ctx, params); err != nil {
		return nil, fmt.Errorf("failed to store %s correction: %w", c.kind, err)
	}

	agreeing, err := c.repo.CountAgreeingUsers(ctx, params.Key, params.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to count %s consensus: %w", c.kind, err)
	}

	result := &LearnResult{AgreeingUsers: agreeing}
	if agreeing < c.opts.ConsensusThreshold {
		return result, nil
	}

	promoted, err := c.CacheMapping(ctx, WriteParams{
		Key:        params.Key,
		Value:      params.Value,
		Label:      params.Label,
		Confidence: ConsensusConfidence,
		Source:     SourceUser,
	})
	if err != nil {
		return nil, err
	}
	result.Promoted = promoted

	if promoted {
		c.logger.Info().
			Str("key", params.Key).
			Str("value", params.Value).
			Int("agreeing_users", agreeing).
			Msg("mapping promoted to global scope")
	}

	return result, nil
}

func (c *Cache) prepare(params WriteParams) (WriteParams, error) {
	params.Key = NormalizeKey(params.Key)
	if params.Key == "" {
		return params, ErrEmptyKey
	}
	if params.Value == "" {
		return params, ErrEmptyValue
	}
	params.Confidence = ClampConfidence(params.Confidence)
	return params, nil
}
