package mapping

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uid(v int64) *int64 { return &v }

func newTestCache(repo Repository) *Cache {
	return NewCache(KindVendor, repo, DefaultOptions(), zerolog.Nop())
}

func TestNormalizeKey(t *testing.T) {
	assert.Equal(t, "amazon pay", NormalizeKey("  AMAZON   Pay\t"))
	assert.Equal(t, "mcdonald's", NormalizeKey("McDonald's"))
	assert.Equal(t, "", NormalizeKey("   "))
}

func TestClampConfidence(t *testing.T) {
	tests := []struct {
		in   float64
		want float64
	}{
		{-0.5, 0},
		{0, 0},
		{0.42, 0.42},
		{1, 1},
		{7, 1},
		{math.NaN(), 0},
		{math.Inf(1), 1},
	}
	for _, tt := range tests {
		if got := ClampConfidence(tt.in); got != tt.want {
			t.Errorf("ClampConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestShouldOverwrite(t *testing.T) {
	tests := []struct {
		name       string
		oldConf    float64
		oldSource  Source
		newConf    float64
		newSource  Source
		wantUpdate bool
	}{
		{"clearly better", 0.6, SourceLLM, 0.7, SourceLLM, true},
		{"within margin", 0.6, SourceLLM, 0.64, SourceLLM, false},
		{"worse", 0.9, SourcePattern, 0.5, SourceLLM, false},
		{"user beats machine at equal confidence", 0.9, SourceLLM, 0.9, SourceUser, true},
		{"user beats machine even when lower", 0.95, SourcePattern, 0.85, SourceUser, true},
		{"user does not displace user", 0.95, SourceUser, 0.95, SourceUser, false},
		{"machine cannot displace user without margin", 0.85, SourceUser, 0.88, SourceLLM, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ShouldOverwrite(tt.oldConf, tt.oldSource, tt.newConf, tt.newSource, DefaultOverwriteMargin)
			if got != tt.wantUpdate {
				t.Errorf("ShouldOverwrite() = %v, want %v", got, tt.wantUpdate)
			}
		})
	}
}

func TestGetBestMapping_Priority(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	require.NoError(t, repo.Put(ctx, WriteParams{Key: "amzn mktp", Value: "Amazon (user)", Confidence: 0.95, Source: SourceUser, UserID: uid(1)}))
	require.NoError(t, repo.Put(ctx, WriteParams{Key: "amzn mktp", Value: "Amazon", Confidence: 0.9, Source: SourceLLM}))
	require.NoError(t, repo.Put(ctx, WriteParams{Key: "amzn mktp", Value: "Amazon (other)", Confidence: 0.99, Source: SourceUser, UserID: uid(2)}))

	cache := newTestCache(repo)

	own, err := cache.GetBestMapping(ctx, "AMZN  Mktp", uid(1))
	require.NoError(t, err)
	require.NotNil(t, own)
	assert.Equal(t, "Amazon (user)", own.ResolvedValue)

	anonymous, err := cache.GetBestMapping(ctx, "amzn mktp", nil)
	require.NoError(t, err)
	require.NotNil(t, anonymous)
	assert.Equal(t, "Amazon", anonymous.ResolvedValue)

	stranger, err := cache.GetBestMapping(ctx, "amzn mktp", uid(3))
	require.NoError(t, err)
	assert.Equal(t, "Amazon", stranger.ResolvedValue)
}

func TestSelectBest(t *testing.T) {
	highGlobal := &Record{ResolvedValue: "high-global", Confidence: 0.85}
	lowGlobal := &Record{ResolvedValue: "low-global", Confidence: 0.4}
	own := &Record{ResolvedValue: "own", Confidence: 0.3, UserID: uid(1)}
	other := &Record{ResolvedValue: "other", Confidence: 0.99, UserID: uid(2)}
	weakOther := &Record{ResolvedValue: "weak-other", Confidence: 0.5, UserID: uid(4)}

	tests := []struct {
		name    string
		records []*Record
		userID  *int64
		want    string
	}{
		{"own wins", []*Record{highGlobal, lowGlobal, own, other}, uid(1), "own"},
		{"trusted global without user", []*Record{lowGlobal, highGlobal, own, other}, nil, "high-global"},
		{"any global beats other users", []*Record{lowGlobal, other}, uid(1), "low-global"},
		{"most confident other user", []*Record{weakOther, other}, uid(1), "other"},
		{"nothing", nil, uid(1), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SelectBest(tt.records, tt.userID)
			if tt.want == "" {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.ResolvedValue)
		})
	}
}

func TestCacheMapping_OverwriteOnlyIfBetter(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newTestCache(repo)

	written, err := cache.CacheMapping(ctx, WriteParams{Key: "swgy", Value: "Swiggy", Confidence: 0.7, Source: SourceLLM})
	require.NoError(t, err)
	assert.True(t, written)

	written, err = cache.CacheMapping(ctx, WriteParams{Key: "swgy", Value: "Swiggy Ltd", Confidence: 0.72, Source: SourceLLM})
	require.NoError(t, err)
	assert.False(t, written)

	written, err = cache.CacheMapping(ctx, WriteParams{Key: "swgy", Value: "Swiggy Instamart", Confidence: 0.9, Source: SourceLLM})
	require.NoError(t, err)
	assert.True(t, written)

	best, err := cache.GetBestMapping(ctx, "swgy", nil)
	require.NoError(t, err)
	assert.Equal(t, "Swiggy Instamart", best.ResolvedValue)
}

func TestCacheMapping_ClampsConfidence(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newTestCache(repo)

	_, err := cache.CacheMapping(ctx, WriteParams{Key: "x", Value: "X", Confidence: 4.2, Source: SourceLLM})
	require.NoError(t, err)

	best, err := cache.GetBestMapping(ctx, "x", nil)
	require.NoError(t, err)
	assert.Equal(t, 1.0, best.Confidence)
}

func TestCacheMapping_RejectsEmpty(t *testing.T) {
	cache := newTestCache(NewMemoryRepository())

	_, err := cache.CacheMapping(context.Background(), WriteParams{Key: "  ", Value: "X"})
	assert.ErrorIs(t, err, ErrEmptyKey)

	_, err = cache.CacheMapping(context.Background(), WriteParams{Key: "k", Value: ""})
	assert.ErrorIs(t, err, ErrEmptyValue)
}

func TestLearnFromUserCorrection_ConsensusThreshold(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newTestCache(repo)

	for _, user := range []int64{1, 2} {
		res, err := cache.LearnFromUserCorrection(ctx, "ZOMATO*ORDER", "Zomato", "Zomato", user)
		require.NoError(t, err)
		assert.False(t, res.Promoted)
	}

	global, err := cache.GetBestMapping(ctx, "zomato*order", nil)
	require.NoError(t, err)
	// Only user-scoped rows exist; the anonymous lookup falls back to tier four.
	require.NotNil(t, global)
	assert.False(t, global.IsGlobal())

	res, err := cache.LearnFromUserCorrection(ctx, "zomato*order", "Zomato", "Zomato", 3)
	require.NoError(t, err)
	assert.Equal(t, 3, res.AgreeingUsers)
	assert.True(t, res.Promoted)

	global, err = cache.GetBestMapping(ctx, "zomato*order", nil)
	require.NoError(t, err)
	require.NotNil(t, global)
	assert.True(t, global.IsGlobal())
	assert.Equal(t, ConsensusConfidence, global.Confidence)
	assert.Equal(t, SourceUser, global.Source)
}

func TestLearnFromUserCorrection_DisagreeingUsersDoNotPromote(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(NewMemoryRepository())

	for user, value := range map[int64]string{1: "Zomato", 2: "Zomato", 3: "Blinkit"} {
		_, err := cache.LearnFromUserCorrection(ctx, "zmt", value, value, user)
		require.NoError(t, err)
	}

	best, err := cache.GetBestMapping(ctx, "zmt", nil)
	require.NoError(t, err)
	require.NotNil(t, best)
	assert.False(t, best.IsGlobal())
}

func TestLearnFromUserCorrection_ReplacesUsersOwnMapping(t *testing.T) {
	ctx := context.Background()
	cache := newTestCache(NewMemoryRepository())

	_, err := cache.LearnFromUserCorrection(ctx, "blr cafe", "Cafe A", "Cafe A", 9)
	require.NoError(t, err)
	_, err = cache.LearnFromUserCorrection(ctx, "blr cafe", "Cafe B", "Cafe B", 9)
	require.NoError(t, err)

	best, err := cache.GetBestMapping(ctx, "blr cafe", uid(9))
	require.NoError(t, err)
	assert.Equal(t, "Cafe B", best.ResolvedValue)
	assert.Equal(t, UserCorrectionConfidence, best.Confidence)
}

func TestLearnFromUserCorrection_PromotionOverridesMachineGlobal(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	cache := newTestCache(repo)

	_, err := cache.CacheMapping(ctx, WriteParams{Key: "pos 1234", Value: "Wrong Vendor", Confidence: 0.9, Source: SourceLLM})
	require.NoError(t, err)

	for _, user := range []int64{1, 2, 3} {
		_, err := cache.LearnFromUserCorrection(ctx, "pos 1234", "Right Vendor", "Right Vendor", user)
		require.NoError(t, err)
	}

	best, err := cache.GetBestMapping(ctx, "pos 1234", nil)
	require.NoError(t, err)
	assert.Equal(t, "Right Vendor", best.ResolvedValue)
}

type failingRepo struct{ MemoryRepository }

func (f *failingRepo) Candidates(context.Context, string, *int64) ([]*Record, error) {
	return nil, errors.New("timeout")
}

func TestGetBestMapping_PropagatesStorageError(t *testing.T) {
	cache := newTestCache(&failingRepo{})

	_, err := cache.GetBestMapping(context.Background(), "k", nil)
	assert.Error(t, err)
}
