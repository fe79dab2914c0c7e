package mapping

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

var (
	ErrEmptyKey   = errors.New("mapping key is empty")
	ErrEmptyValue = errors.New("mapping value is empty")
)

// Kind selects the mapping table.
type Kind string

const (
	KindVendor   Kind = "vendor"
	KindCategory Kind = "category"
)

// Source records who produced a mapping.
type Source string

const (
	SourceUser    Source = "user"
	SourcePattern Source = "pattern"
	SourceLLM     Source = "llm"
)

const (
	// UserCorrectionConfidence is stored for a user's own correction.
	UserCorrectionConfidence = 0.95
	// ConsensusConfidence is stored when corrections are promoted to global scope.
	ConsensusConfidence = 0.85
	// TrustedGlobalConfidence is the floor for the second lookup tier.
	TrustedGlobalConfidence = 0.8

	DefaultOverwriteMargin    = 0.05
	DefaultConsensusThreshold = 3
)

// Record is one key -> value mapping. A nil UserID marks a global mapping.
type Record struct {
	ID            int64     `json:"id"`
	Key           string    `json:"key"`
	ResolvedValue string    `json:"resolvedValue"`
	ResolvedLabel string    `json:"resolvedLabel"`
	UserID        *int64    `json:"userId,omitempty"`
	Confidence    float64   `json:"confidence"`
	Source        Source    `json:"source"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// IsGlobal reports whether the record is shared by every user.
func (r *Record) IsGlobal() bool {
	return r.UserID == nil
}

// WriteParams describes a mapping write.
type WriteParams struct {
	Key        string
	Value      string
	Label      string
	Confidence float64
	Source     Source
	UserID     *int64
}

// Repository is the storage port of one mapping table.
type Repository interface {
	// Candidates returns, for key, the mapping owned by userID (when given),
	// the global mapping and the highest-confidence mapping of any user.
	Candidates(ctx context.Context, key string, userID *int64) ([]*Record, error)
	// UpsertIfBetter inserts the mapping or replaces the one in the same scope
	// only when ShouldOverwrite holds. The check and the write are atomic.
	UpsertIfBetter(ctx context.Context, params WriteParams, margin float64) (bool, error)
	// Put inserts or replaces the mapping in its scope unconditionally.
	Put(ctx context.Context, params WriteParams) error
	// CountAgreeingUsers counts distinct users mapping key to value.
	CountAgreeingUsers(ctx context.Context, key, value string) (int, error)
}

// NormalizeKey lower-cases and collapses whitespace so lookups are stable
// across formatting noise.
func NormalizeKey(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// ClampConfidence forces c into [0,1]. NaN becomes 0.
func ClampConfidence(c float64) float64 {
	if math.IsNaN(c) || c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// ShouldOverwrite is the overwrite-only-if-better rule: the incoming mapping
// replaces the existing one when it is more confident by more than margin, or
// when a user supplies it over a machine guess.
func ShouldOverwrite(existingConfidence float64, existingSource Source, incomingConfidence float64, incomingSource Source, margin float64) bool {
	if incomingConfidence > existingConfidence+margin {
		return true
	}
	return incomingSource == SourceUser && existingSource != SourceUser
}

// SelectBest applies the lookup priority to candidate records:
// the requesting user's mapping, then a trusted global mapping, then any
// global mapping, then the most confident mapping of any other user.
func SelectBest(records []*Record, userID *int64) *Record {
	var own, trustedGlobal, anyGlobal, otherUser *Record

	for _, r := range records {
		switch {
		case r.UserID == nil:
			if r.Confidence >= TrustedGlobalConfidence && moreConfident(r, trustedGlobal) {
				trustedGlobal = r
			}
			if moreConfident(r, anyGlobal) {
				anyGlobal = r
			}
		case userID != nil && *r.UserID == *userID:
			own = r
		default:
			if moreConfident(r, otherUser) {
				otherUser = r
			}
		}
	}

	switch {
	case own != nil:
		return own
	case trustedGlobal != nil:
		return trustedGlobal
	case anyGlobal != nil:
		return anyGlobal
	default:
		return otherUser
	}
}

func moreConfident(r, current *Record) bool {
	return current == nil || r.Confidence > current.Confidence
}
