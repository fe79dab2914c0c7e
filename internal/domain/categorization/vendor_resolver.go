package categorization

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"

	"ledgerline/internal/domain/mapping"
)

// FallbackVendorConfidence marks a cleaned-up descriptor: a guess, not an identity.
const FallbackVendorConfidence = 0.2

// DefaultLLMTimeout bounds one classifier call.
const DefaultLLMTimeout = 20 * time.Second

var (
	gatewayPrefix = regexp.MustCompile(`(?i)^(upi|pos|ecom|ecs|ach|nach|neft|imps|rtgs|vps|vin|bil|mb|ib|int|paypal|payu|razorpay|rzp|paytm|phonepe|gpay|sq|tst|cashfree|ccavenue|billdesk)\b[\s*/:\-_.]*`)
	digitRun      = regexp.MustCompile(`\d{4,}`)
	noiseChars    = regexp.MustCompile(`[*#/\\|_~@]+`)
	spaces        = regexp.MustCompile(`\s+`)
)

// CleanDescriptor strips payment-gateway prefixes, long digit runs and
// separator noise from a bank descriptor and title-cases what remains.
func CleanDescriptor(text string) string {
	s := strings.TrimSpace(text)
	for {
		stripped := gatewayPrefix.ReplaceAllString(s, "")
		if stripped == s {
			break
		}
		s = strings.TrimSpace(stripped)
	}
	s = digitRun.ReplaceAllString(s, " ")
	s = noiseChars.ReplaceAllString(s, " ")
	s = strings.Trim(spaces.ReplaceAllString(s, " "), " -.:,")
	if s == "" {
		return strings.TrimSpace(text)
	}
	return titleCase(s)
}

func titleCase(s string) string {
	words := strings.Fields(strings.ToLower(s))
	for i, w := range words {
		r := []rune(w)
		r[0] = unicode.ToUpper(r[0])
		words[i] = string(r)
	}
	return strings.Join(words, " ")
}

// VendorResolver turns bank descriptors into merchant names:
// mapping cache, then the LLM with web search, then descriptor cleanup.
type VendorResolver struct {
	cache   MappingStore
	llm     Classifier
	timeout time.Duration
	tiers   []Tier[VendorQuery]
	group   singleflight.Group
	logger  zerolog.Logger
}

// NewVendorResolver creates a resolver. llm may be nil, in which case the
// LLM tier always misses.
func NewVendorResolver(cache MappingStore, llm Classifier, timeout time.Duration, logger zerolog.Logger) *VendorResolver {
	if timeout <= 0 {
		timeout = DefaultLLMTimeout
	}
	r := &VendorResolver{
		cache:   cache,
		llm:     llm,
		timeout: timeout,
		logger:  logger.With().Str("component", "vendor_resolver").Logger(),
	}
	r.tiers = []Tier[VendorQuery]{
		{Name: "cache", Resolve: r.fromCache},
		{Name: "llm", Resolve: r.fromLLM},
		{Name: "fallback", Resolve: r.fromCleanup},
	}
	return r
}

// Resolve runs the vendor cascade for q.Text.
func (r *VendorResolver) Resolve(ctx context.Context, q VendorQuery) (VendorResult, error) {
	key := mapping.NormalizeKey(q.Text)
	if key == "" {
		return VendorResult{}, ErrEmptyQuery
	}

	ctx, span := resolverTracer.Start(ctx, "resolver.Vendor")
	defer span.End()

	v, shared, err := sharedResolve(ctx, &r.group, flightKey(key, q.UserID), r.timeout+flightGrace, func(ctx context.Context) (interface{}, error) {
		res, tier, ok := Cascade(ctx, r.tiers, q)
		if !ok {
			return nil, fmt.Errorf("vendor cascade produced nothing: %w", ctx.Err())
		}
		if tier > 0 {
			r.writeBack(ctx, key, res)
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
		return VendorResult{}, err
	}

	res := v.(Resolution)
	recordResolution(ctx, "vendor", res.Source)
	span.SetAttributes(
		attribute.String("resolution.source", string(res.Source)),
		attribute.Bool("resolution.shared", shared),
	)

	return VendorResult{
		ResolvedName: res.Value,
		Confidence:   res.Confidence,
		Source:       res.Source,
		Reasoning:    res.Reasoning,
	}, nil
}

func (r *VendorResolver) fromCache(ctx context.Context, q VendorQuery) (Resolution, bool) {
	rec, err := r.cache.GetBestMapping(ctx, q.Text, q.UserID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("vendor cache lookup failed")
		return Resolution{}, false
	}
	if rec == nil {
		return Resolution{}, false
	}
	return Resolution{
		Value:      rec.ResolvedValue,
		Label:      rec.ResolvedLabel,
		Confidence: rec.Confidence,
		Source:     SourceCache,
		Reasoning:  fmt.Sprintf("cached %s mapping", rec.Source),
	}, true
}

func (r *VendorResolver) fromLLM(ctx context.Context, q VendorQuery) (Resolution, bool) {
	if r.llm == nil {
		return Resolution{}, false
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	completion, err := r.llm.Complete(ctx, VendorPrompt(q))
	if err != nil {
		r.logger.Warn().Err(err).Str("descriptor", q.Text).Msg("vendor LLM tier failed")
		return Resolution{}, false
	}

	ans, ok := ParseAnswer(completion.Text, "Vendor")
	if !ok {
		r.logger.Debug().Str("descriptor", q.Text).Msg("vendor LLM tier gave no answer")
		return Resolution{}, false
	}
	return Resolution{
		Value:      ans.Label,
		Label:      ans.Label,
		Confidence: ans.Confidence,
		Source:     SourceLLM,
		Reasoning:  ans.Reasoning,
	}, true
}

func (r *VendorResolver) fromCleanup(_ context.Context, q VendorQuery) (Resolution, bool) {
	name := CleanDescriptor(q.Text)
	if name == "" {
		return Resolution{}, false
	}
	return Resolution{
		Value:      name,
		Label:      name,
		Confidence: FallbackVendorConfidence,
		Source:     SourceFallback,
		Reasoning:  "descriptor cleanup",
	}, true
}

func (r *VendorResolver) writeBack(ctx context.Context, key string, res Resolution) {
	_, err := r.cache.CacheMapping(ctx, mapping.WriteParams{
		Key:        key,
		Value:      res.Value,
		Label:      res.Label,
		Confidence: res.Confidence,
		Source:     res.Source.mappingSource(),
	})
	if err != nil {
		r.logger.Warn().Err(err).Str("key", key).Msg("failed to cache vendor resolution")
	}
}
