package categorization

import (
	"strings"

	"ledgerline/internal/domain/transaction"
)

// DirectoryConfidence is assigned to every static directory hit.
const DirectoryConfidence = 0.95

// DirectoryEntry maps a well-known merchant to its category.
type DirectoryEntry struct {
	Merchant string
	Category string
}

// DefaultDirectoryEntries are merchants whose category is unambiguous.
var DefaultDirectoryEntries = []DirectoryEntry{
	{"amazon", CategoryShopping},
	{"amzn", CategoryShopping},
	{"flipkart", CategoryShopping},
	{"myntra", CategoryShopping},
	{"ajio", CategoryShopping},
	{"swiggy", CategoryFoodDining},
	{"zomato", CategoryFoodDining},
	{"starbucks", CategoryFoodDining},
	{"mcdonald's", CategoryFoodDining},
	{"domino's", CategoryFoodDining},
	{"bigbasket", CategoryGroceries},
	{"blinkit", CategoryGroceries},
	{"zepto", CategoryGroceries},
	{"dmart", CategoryGroceries},
	{"netflix", CategoryEntertainment},
	{"spotify", CategoryEntertainment},
	{"bookmyshow", CategoryEntertainment},
	{"makemytrip", CategoryTravel},
	{"irctc", CategoryTravel},
	{"apollo pharmacy", CategoryHealth},
	{"coursera", CategoryEducation},
}

// Directory is a static merchant -> category table. Lookups match the whole
// normalized vendor name or its leading words.
type Directory struct {
	entries map[string]string
	longest int
}

func NewDirectory(entries []DirectoryEntry) *Directory {
	d := &Directory{entries: make(map[string]string, len(entries))}
	for _, e := range entries {
		key := transaction.NormalizeDescription(e.Merchant)
		if key == "" {
			continue
		}
		d.entries[key] = e.Category
		if n := len(strings.Fields(key)); n > d.longest {
			d.longest = n
		}
	}
	return d
}

// DefaultDirectory returns the built-in directory.
func DefaultDirectory() *Directory {
	return NewDirectory(DefaultDirectoryEntries)
}

// Lookup returns the category of vendorName, preferring the longest matching
// prefix of words. "Amazon Pay India" matches "amazon".
func (d *Directory) Lookup(vendorName string) (string, bool) {
	words := strings.Fields(transaction.NormalizeDescription(vendorName))
	if len(words) == 0 {
		return "", false
	}
	for n := min(len(words), d.longest); n > 0; n-- {
		if category, ok := d.entries[strings.Join(words[:n], " ")]; ok {
			return category, true
		}
	}
	return "", false
}
