package transaction

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// fingerprintHexLen keeps the first 128 bits of the digest.
const fingerprintHexLen = 32

// NormalizeDescription lower-cases s, turns punctuation into spaces and
// collapses runs of whitespace. Two descriptions that differ only in case,
// spacing or punctuation noise normalize to the same string.
func NormalizeDescription(s string) string {
	mapped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(mapped), " ")
}

// Fingerprint derives the deduplication key of a transaction:
// sha256(user|YYYY-MM-DD|amount(2dp)|type|normalized description), hex, truncated.
// It refuses to hash partial data.
func Fingerprint(userID int64, date time.Time, amount decimal.Decimal, txType Type, description string) (string, error) {
	if userID <= 0 {
		return "", fmt.Errorf("%w: user id", ErrIncompleteTransaction)
	}
	if date.IsZero() {
		return "", fmt.Errorf("%w: date", ErrIncompleteTransaction)
	}
	if amount.IsNegative() {
		return "", fmt.Errorf("%w: amount must not be negative", ErrIncompleteTransaction)
	}
	if !txType.Valid() {
		return "", fmt.Errorf("%w: type %q", ErrIncompleteTransaction, txType)
	}
	normalized := NormalizeDescription(description)
	if normalized == "" {
		return "", fmt.Errorf("%w: description", ErrIncompleteTransaction)
	}

	payload := fmt.Sprintf("%d|%s|%s|%s|%s",
		userID,
		date.Format("2006-01-02"),
		amount.StringFixed(2),
		txType,
		normalized,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])[:fingerprintHexLen], nil
}

// FingerprintRaw computes the fingerprint of a raw row for its owner.
func FingerprintRaw(raw *RawTransaction) (string, error) {
	return Fingerprint(raw.UserID, raw.Date, raw.Amount, raw.Type, raw.Description)
}
