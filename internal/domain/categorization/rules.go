package categorization

import (
	"strings"

	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/transaction"
)

// PatternRule is one heuristic of the rule engine. Rules are evaluated in
// slice order and the first match wins.
type PatternRule struct {
	Name       string
	Category   string
	Confidence float64
	Reasoning  string
	// AmountDependent rules look at the amount, so their answer is not cached per vendor.
	AmountDependent bool
	Match           func(q CategoryQuery, normalized string) bool
}

var (
	rideFareMin = decimal.NewFromInt(20)
	rideFareMax = decimal.NewFromInt(5000)
)

// DefaultPatternRules is the built-in rule set, highest priority first.
var DefaultPatternRules = []PatternRule{
	{
		Name:       "fuel",
		Category:   CategoryTransportation,
		Confidence: 0.95,
		Reasoning:  "fuel station keyword",
		Match: anyPhrase(
			"indian oil", "iocl", "bharat petroleum", "bpcl", "hpcl", "hindustan petroleum",
			"shell", "petrol", "petroleum", "fuel", "filling station", "diesel",
		),
	},
	{
		Name:            "ride-hailing",
		Category:        CategoryTransportation,
		Confidence:      0.9,
		Reasoning:       "ride-hailing app with a plausible fare",
		AmountDependent: true,
		Match: func(q CategoryQuery, normalized string) bool {
			if containsPhrase(normalized, "eats") {
				return false
			}
			if !containsAny(normalized, "uber", "ola", "lyft", "rapido", "meru") {
				return false
			}
			return q.Amount.GreaterThanOrEqual(rideFareMin) && q.Amount.LessThanOrEqual(rideFareMax)
		},
	},
	{
		Name:       "utilities",
		Category:   CategoryBills,
		Confidence: 0.9,
		Reasoning:  "utility or telecom keyword",
		Match: anyPhrase(
			"electricity", "bescom", "tata power", "adani electricity", "water bill", "gas bill",
			"broadband", "airtel", "jio", "vodafone", "bsnl", "recharge", "postpaid", "dth",
		),
	},
	{
		Name:       "groceries",
		Category:   CategoryGroceries,
		Confidence: 0.85,
		Reasoning:  "grocery keyword",
		Match:      anyPhrase("grocery", "groceries", "supermarket", "hypermarket", "kirana", "reliance fresh", "more retail", "vegetables"),
	},
	{
		Name:       "food",
		Category:   CategoryFoodDining,
		Confidence: 0.85,
		Reasoning:  "restaurant or food keyword",
		Match:      anyPhrase("restaurant", "cafe", "coffee", "pizza", "burger", "bakery", "dhaba", "kitchen", "biryani", "eats", "food"),
	},
	{
		Name:       "salary",
		Category:   CategoryIncome,
		Confidence: 0.9,
		Reasoning:  "salary credit",
		Match: func(q CategoryQuery, normalized string) bool {
			return q.Type == transaction.TypeCredit && containsAny(normalized, "salary", "payroll", "sal cr")
		},
	},
	{
		Name:       "atm",
		Category:   CategoryCash,
		Confidence: 0.9,
		Reasoning:  "cash withdrawal",
		Match:      anyPhrase("atm", "cash withdrawal", "cash wdl", "nwd"),
	},
	{
		Name:       "fees",
		Category:   CategoryFees,
		Confidence: 0.85,
		Reasoning:  "bank fee or charge",
		Match:      anyPhrase("fee", "fees", "charge", "charges", "penalty", "late payment", "gst", "finance charge"),
	},
	{
		Name:       "transfers",
		Category:   CategoryTransfers,
		Confidence: 0.8,
		Reasoning:  "transfer keyword",
		Match:      anyPhrase("transfer", "neft", "imps", "rtgs", "trf", "own account"),
	},
}

// RuleEngine evaluates an ordered rule list.
type RuleEngine struct {
	rules []PatternRule
}

func NewRuleEngine(rules []PatternRule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// DefaultRuleEngine returns an engine over DefaultPatternRules.
func DefaultRuleEngine() *RuleEngine {
	return NewRuleEngine(DefaultPatternRules)
}

// Match returns the first rule that matches q.
func (e *RuleEngine) Match(q CategoryQuery) (PatternRule, bool) {
	normalized := transaction.NormalizeDescription(q.VendorName)
	if normalized == "" {
		return PatternRule{}, false
	}
	for _, rule := range e.rules {
		if rule.Match(q, normalized) {
			return rule, true
		}
	}
	return PatternRule{}, false
}

func anyPhrase(phrases ...string) func(CategoryQuery, string) bool {
	return func(_ CategoryQuery, normalized string) bool {
		return containsAny(normalized, phrases...)
	}
}

func containsAny(normalized string, phrases ...string) bool {
	for _, p := range phrases {
		if containsPhrase(normalized, p) {
			return true
		}
	}
	return false
}

// containsPhrase matches phrase on word boundaries of an already normalized string.
func containsPhrase(normalized, phrase string) bool {
	return strings.Contains(" "+normalized+" ", " "+phrase+" ")
}
