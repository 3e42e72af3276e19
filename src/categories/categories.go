// Package categories maps aggregator category codes onto the dashboard's
// display taxonomy.
package categories

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode"

	"gopkg.in/yaml.v3"

	"horizon-server/src/models"
)

// defaultLabels covers the codes whose Title Case form is not what the
// dashboard shows. Everything else falls through to the Title Case transform.
var defaultLabels = map[string]string{
	"INCOME":                    "Income",
	"TRANSFER_IN":               "Transfer",
	"TRANSFER_OUT":              "Transfer",
	"LOAN_PAYMENTS":             "Payment",
	"BANK_FEES":                 "Bank Fees",
	"GENERAL_MERCHANDISE":       "Shopping",
	"HOME_IMPROVEMENT":          "Home",
	"RENT_AND_UTILITIES":        "Bills",
	"GENERAL_SERVICES":          "Services",
	"GOVERNMENT_AND_NON_PROFIT": "Government",
	"TRAVEL":                    "Travel",
}

type Mapper struct {
	labels map[string]string
}

// NewMapper returns a mapper over the default table plus overrides.
// Overrides win on conflict.
func NewMapper(overrides map[string]string) *Mapper {
	labels := make(map[string]string, len(defaultLabels)+len(overrides))
	for code, label := range defaultLabels {
		labels[code] = label
	}
	for code, label := range overrides {
		labels[code] = label
	}
	return &Mapper{labels: labels}
}

// Map never fails: nil or empty input yields "".
func (m *Mapper) Map(primary *string) string {
	if primary == nil || *primary == "" {
		return ""
	}
	if label, ok := m.labels[*primary]; ok {
		return label
	}
	return TitleCase(strings.ReplaceAll(*primary, "_", " "))
}

// TitleCase upper-cases the first letter of every whitespace-delimited token
// and lower-cases the rest. Whitespace is kept as is.
func TitleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	start := true
	for _, r := range s {
		switch {
		case unicode.IsSpace(r):
			start = true
		case start:
			r = unicode.ToUpper(r)
			start = false
		default:
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}

type overridesFile struct {
	Categories map[string]string `yaml:"categories"`
}

// LoadOverrides reads a YAML file of the form
//
//	categories:
//	  FOOD_AND_DRINK: Food
func LoadOverrides(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading category mappings: %w", err)
	}
	var f overridesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing category mappings: %w", err)
	}
	return f.Categories, nil
}

// CountCategories tallies views per category, most frequent first.
func CountCategories(views []models.TransactionView) []models.CategoryCount {
	counts := make(map[string]int)
	for _, v := range views {
		counts[v.Category]++
	}

	out := make([]models.CategoryCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, models.CategoryCount{Name: name, Count: n, TotalCount: len(views)})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	return out
}
