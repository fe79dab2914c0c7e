package categorization

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	// DefaultLLMConfidence is used when the answer carries no usable confidence.
	DefaultLLMConfidence = 0.7

	LLMCategoryMinConfidence = 0.5
	LLMCategoryMaxConfidence = 0.9
)

// Answer is the structured content of a classifier reply.
type Answer struct {
	Label      string
	Confidence float64
	Reasoning  string
}

// ParseAnswer extracts "<label>: value", "Confidence:" and "Reasoning:" lines
// from text. It reports false when the label line is missing or empty. A
// missing or malformed confidence becomes DefaultLLMConfidence; a percentage
// is scaled down; the result is always within [0,1].
func ParseAnswer(text, label string) (Answer, bool) {
	var ans Answer
	confidenceSeen := false
	labelPrefix := strings.ToLower(label) + ":"

	scanner := bufio.NewScanner(strings.NewReader(text))
	for scanner.Scan() {
		line := cleanLine(scanner.Text())

		switch {
		case ans.Label == "" && hasPrefixFold(line, labelPrefix):
			ans.Label = cleanValue(line[len(labelPrefix):])
		case !confidenceSeen && hasPrefixFold(line, "confidence:"):
			if c, ok := parseConfidence(line[len("confidence:"):]); ok {
				ans.Confidence = c
				confidenceSeen = true
			}
		case ans.Reasoning == "" && hasPrefixFold(line, "reasoning:"):
			ans.Reasoning = strings.TrimSpace(line[len("reasoning:"):])
		}
	}

	if ans.Label == "" || isNonAnswer(ans.Label) {
		return Answer{}, false
	}
	if !confidenceSeen {
		ans.Confidence = DefaultLLMConfidence
	}
	return ans, true
}

func hasPrefixFold(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}

// cleanLine strips list markers and markdown emphasis from a reply line.
func cleanLine(line string) string {
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-•> ")
	line = strings.ReplaceAll(line, "**", "")
	line = strings.ReplaceAll(line, "__", "")
	return strings.TrimSpace(line)
}

func cleanValue(v string) string {
	v = strings.TrimSpace(v)
	v = strings.Trim(v, "\"'`*.")
	return strings.TrimSpace(v)
}

func isNonAnswer(v string) bool {
	switch strings.ToLower(v) {
	case "unknown", "n/a", "na", "none", "null", "not sure", "unclear":
		return true
	}
	return false
}

func parseConfidence(v string) (float64, bool) {
	v = strings.TrimSpace(v)
	if fields := strings.Fields(v); len(fields) > 0 {
		v = fields[0]
	}
	percent := strings.HasSuffix(v, "%")
	v = strings.TrimRight(strings.TrimSuffix(v, "%"), ".,;")

	c, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(c) || math.IsInf(c, 0) {
		return 0, false
	}
	// Bare numbers in [2, 100] are percentages written without the sign;
	// anything else above 1 is an overshoot of the unit scale and is clamped.
	if percent || (c >= 2 && c <= 100) {
		c /= 100
	}
	if c < 0 {
		return 0, true
	}
	if c > 1 {
		return 1, true
	}
	return c, true
}

// clampRange bounds c to [lo, hi]. NaN maps to lo.
func clampRange(c, lo, hi float64) float64 {
	if math.IsNaN(c) || c < lo {
		return lo
	}
	if c > hi {
		return hi
	}
	return c
}

// VendorPrompt asks the classifier to identify the merchant behind a bank descriptor.
func VendorPrompt(q VendorQuery) Prompt {
	var b strings.Builder
	b.WriteString("You identify merchants from bank statement descriptors.\n")
	b.WriteString("Search the web if needed and answer with the merchant's common brand name.\n\n")
	fmt.Fprintf(&b, "Descriptor: %s\n", q.Text)
	if !q.Amount.IsZero() {
		fmt.Fprintf(&b, "Amount: %s\n", q.Amount.StringFixed(2))
	}
	if !q.Date.IsZero() {
		fmt.Fprintf(&b, "Date: %s\n", q.Date.Format("2006-01-02"))
	}
	b.WriteString("\nRespond exactly in this format:\n")
	b.WriteString("Vendor: <merchant name, or Unknown>\n")
	b.WriteString("Confidence: <number between 0 and 1>\n")
	b.WriteString("Reasoning: <one sentence>\n")
	return Prompt{Text: b.String(), WebSearch: true}
}

// CategoryPrompt asks the classifier to pick one of the known categories.
func CategoryPrompt(q CategoryQuery, categories []string) Prompt {
	var b strings.Builder
	b.WriteString("You categorize personal finance transactions.\n")
	b.WriteString("Pick exactly one category from this list:\n")
	for _, name := range categories {
		fmt.Fprintf(&b, "- %s\n", name)
	}
	fmt.Fprintf(&b, "\nVendor: %s\n", q.VendorName)
	if !q.Amount.IsZero() {
		fmt.Fprintf(&b, "Amount: %s\n", q.Amount.StringFixed(2))
	}
	if q.Type != "" {
		fmt.Fprintf(&b, "Type: %s\n", q.Type)
	}
	b.WriteString("\nRespond exactly in this format:\n")
	b.WriteString("Category: <one name from the list>\n")
	b.WriteString("Confidence: <number between 0 and 1>\n")
	b.WriteString("Reasoning: <one sentence>\n")
	return Prompt{Text: b.String()}
}
