package categorization

import (
	"testing"

	"github.com/shopspring/decimal"

	"ledgerline/internal/domain/transaction"
)

func TestRuleEngine_Match(t *testing.T) {
	engine := DefaultRuleEngine()

	tests := []struct {
		name       string
		vendor     string
		amount     string
		txType     transaction.Type
		wantRule   string
		wantCat    string
		wantConf   float64
		wantNoRule bool
	}{
		{"fuel station", "Indian Oil Corp", "1500", transaction.TypeDebit, "fuel", CategoryTransportation, 0.95, false},
		{"fuel beats food", "Shell Cafe", "200", transaction.TypeDebit, "fuel", CategoryTransportation, 0.95, false},
		{"ride within fare", "Uber India", "250", transaction.TypeDebit, "ride-hailing", CategoryTransportation, 0.9, false},
		{"ride fare too large", "Uber India", "25000", transaction.TypeDebit, "", "", 0, true},
		{"food delivery is not a ride", "Uber Eats", "400", transaction.TypeDebit, "food", CategoryFoodDining, 0.85, false},
		{"telecom", "Airtel Postpaid", "799", transaction.TypeDebit, "utilities", CategoryBills, 0.9, false},
		{"groceries", "Fresh Grocery Store", "900", transaction.TypeDebit, "groceries", CategoryGroceries, 0.85, false},
		{"salary credit", "ACME Corp Salary", "90000", transaction.TypeCredit, "salary", CategoryIncome, 0.9, false},
		{"salary keyword on debit", "Salary advance repayment", "5000", transaction.TypeDebit, "", "", 0, true},
		{"atm", "ATM Withdrawal MG Road", "2000", transaction.TypeDebit, "atm", CategoryCash, 0.9, false},
		{"fees", "Annual Fee", "500", transaction.TypeDebit, "fees", CategoryFees, 0.85, false},
		{"transfer", "NEFT to Priya", "10000", transaction.TypeDebit, "transfers", CategoryTransfers, 0.8, false},
		{"no rule", "Blue Tokai Roasters", "350", transaction.TypeDebit, "", "", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, ok := engine.Match(CategoryQuery{
				VendorName: tt.vendor,
				Amount:     decimal.RequireFromString(tt.amount),
				Type:       tt.txType,
			})
			if tt.wantNoRule {
				if ok {
					t.Errorf("Match(%q) = %q, want no match", tt.vendor, rule.Name)
				}
				return
			}
			if !ok {
				t.Fatalf("Match(%q) found nothing, want %q", tt.vendor, tt.wantRule)
			}
			if rule.Name != tt.wantRule || rule.Category != tt.wantCat || rule.Confidence != tt.wantConf {
				t.Errorf("Match(%q) = (%q, %q, %v), want (%q, %q, %v)",
					tt.vendor, rule.Name, rule.Category, rule.Confidence, tt.wantRule, tt.wantCat, tt.wantConf)
			}
		})
	}
}

func TestRuleEngine_CustomOrder(t *testing.T) {
	engine := NewRuleEngine([]PatternRule{
		{Name: "first", Category: CategoryTravel, Confidence: 0.6, Match: anyPhrase("air")},
		{Name: "second", Category: CategoryShopping, Confidence: 0.9, Match: anyPhrase("air")},
	})

	rule, ok := engine.Match(CategoryQuery{VendorName: "Air India"})
	if !ok || rule.Name != "first" {
		t.Errorf("Match() = (%q, %v), want first rule", rule.Name, ok)
	}
}
