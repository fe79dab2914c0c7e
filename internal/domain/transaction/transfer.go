package transaction

import (
	"strings"
	"time"
)

// DefaultTransferWindowDays absorbs the lag between a debit leaving one bank and
// the credit landing in another.
const DefaultTransferWindowDays = 3

// DefaultTransferKeywords is the vocabulary that marks a leg as a possible
// movement between the user's own accounts. Keywords match whole words of the
// normalized description.
var DefaultTransferKeywords = []string{
	"transfer",
	"trf",
	"xfer",
	"own account",
	"self transfer",
	"to self",
	"from self",
	"sweep",
	"credit card payment",
	"card payment",
	"cc payment",
	"payment received",
	"autopay",
}

// TransferPolicy holds the heuristic knobs of the linker.
type TransferPolicy struct {
	WindowDays int
	Keywords   []string
}

// NewTransferPolicy fills unset values with the defaults.
func NewTransferPolicy(windowDays int, keywords []string) TransferPolicy {
	if windowDays < 0 {
		windowDays = DefaultTransferWindowDays
	}
	if len(keywords) == 0 {
		keywords = DefaultTransferKeywords
	}
	return TransferPolicy{WindowDays: windowDays, Keywords: keywords}
}

// DefaultTransferPolicy returns the built-in window and vocabulary.
func DefaultTransferPolicy() TransferPolicy {
	return NewTransferPolicy(DefaultTransferWindowDays, nil)
}

// TransferPair names the two legs of a linked internal transfer.
type TransferPair struct {
	DebitID  string
	CreditID string
}

// daysApart counts whole calendar days between a and b, ignoring time of day.
func daysApart(a, b time.Time) int {
	da := time.Date(a.Year(), a.Month(), a.Day(), 0, 0, 0, 0, time.UTC)
	db := time.Date(b.Year(), b.Month(), b.Day(), 0, 0, 0, 0, time.UTC)
	diff := int(da.Sub(db).Hours() / 24)
	if diff < 0 {
		return -diff
	}
	return diff
}

// IsWithinDays reports whether a and b fall at most days calendar days apart.
func IsWithinDays(a, b time.Time, days int) bool {
	if days < 0 {
		return false
	}
	return daysApart(a, b) <= days
}

// CouldBeInternalTransfer reports whether description contains one of keywords
// as a whole word or phrase, after normalization.
func CouldBeInternalTransfer(description string, keywords []string) bool {
	normalized := " " + NormalizeDescription(description) + " "
	if strings.TrimSpace(normalized) == "" {
		return false
	}
	for _, kw := range keywords {
		nk := NormalizeDescription(kw)
		if nk == "" {
			continue
		}
		if strings.Contains(normalized, " "+nk+" ") {
			return true
		}
	}
	return false
}

// IsWithinWindow applies the policy window to two dates.
func (p TransferPolicy) IsWithinWindow(a, b time.Time) bool {
	return IsWithinDays(a, b, p.WindowDays)
}

// CouldBeInternalTransfer applies the policy vocabulary to a description.
func (p TransferPolicy) CouldBeInternalTransfer(description string) bool {
	return CouldBeInternalTransfer(description, p.Keywords)
}

// matches reports whether credit is an acceptable counterpart for debit.
func (p TransferPolicy) matches(debit, credit *Transaction) bool {
	if debit.UserID != credit.UserID {
		return false
	}
	if !debit.Amount.Equal(credit.Amount) {
		return false
	}
	if !p.IsWithinWindow(debit.Date, credit.Date) {
		return false
	}
	return p.CouldBeInternalTransfer(debit.Description) || p.CouldBeInternalTransfer(credit.Description)
}

// LinkTransfers pairs debits with credits in place. Debits are visited in input
// order; among matching credits the nearest date wins and ties go to the
// earliest credit in input order. A credit is consumed by its first match.
// Rows that are already linked are left alone.
func LinkTransfers(txns []*Transaction, policy TransferPolicy) []TransferPair {
	var credits []*Transaction
	for _, t := range txns {
		if t.Type == TypeCredit && !t.Linked() {
			credits = append(credits, t)
		}
	}
	if len(credits) == 0 {
		return nil
	}

	consumed := make([]bool, len(credits))
	var pairs []TransferPair

	for _, debit := range txns {
		if debit.Type != TypeDebit || debit.Linked() {
			continue
		}

		best := -1
		bestGap := 0
		for i, credit := range credits {
			if consumed[i] || credit.ID == debit.ID {
				continue
			}
			if !policy.matches(debit, credit) {
				continue
			}
			gap := daysApart(debit.Date, credit.Date)
			if best == -1 || gap < bestGap {
				best = i
				bestGap = gap
			}
		}
		if best == -1 {
			continue
		}

		credit := credits[best]
		consumed[best] = true

		debitID, creditID := debit.ID, credit.ID
		debit.IsInternalTransfer = true
		debit.RelatedTransactionID = &creditID
		credit.IsInternalTransfer = true
		credit.RelatedTransactionID = &debitID

		pairs = append(pairs, TransferPair{DebitID: debitID, CreditID: creditID})
	}

	return pairs
}
