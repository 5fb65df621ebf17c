package pricing

import (
	"fmt"
	"sort"

	"github.com/campushq/campusbill/app/models"
	"github.com/shopspring/decimal"
)

// Labels used in limit violation messages, keyed by limit map key.
var metricLabels = map[string]string{
	models.LimitSchools:      "Schools",
	models.LimitUsers:        "Users",
	models.LimitStudents:     "Students",
	models.LimitAPICalls:     "API calls",
	models.LimitStorageBytes: "Storage",
}

// Default per-unit overage rates in minor units. Storage is billed per GiB.
var defaultOverageRates = map[string]int64{
	models.LimitSchools:      5000,
	models.LimitUsers:        200,
	models.LimitStudents:     50,
	models.LimitAPICalls:     1,
	models.LimitStorageBytes: 500,
}

const bytesPerGiB = int64(1024 * 1024 * 1024)

// LimitCheck is the outcome of comparing usage against plan limits.
type LimitCheck struct {
	WithinLimits bool     `json:"within_limits"`
	Violations   []string `json:"violations"`
}

// OverageItem is one billable line for usage beyond a plan limit.
type OverageItem struct {
	Metric    string `json:"metric"`
	Used      int64  `json:"used"`
	Included  int64  `json:"included"`
	Overage   int64  `json:"overage"`
	UnitPrice int64  `json:"unit_price"`
	Amount    int64  `json:"amount"`
}

// CheckLimits compares a usage snapshot against plan limits. Metrics with
// the unlimited sentinel are skipped. Violation messages read "Schools: 4/3"
// and are ordered deterministically by metric key.
func CheckLimits(limits map[string]int64, usage map[string]int64) LimitCheck {
	check := LimitCheck{WithinLimits: true}
	for _, key := range sortedKeys(usage) {
		limit, ok := limits[key]
		if !ok || limit == models.UnlimitedLimit {
			continue
		}
		used := usage[key]
		if used > limit {
			check.WithinLimits = false
			check.Violations = append(check.Violations, fmt.Sprintf("%s: %s", metricLabel(key), formatUsage(key, used, limit)))
		}
	}
	return check
}

// OverageItems prices usage beyond plan limits at fixed per-unit rates.
// Rates may be nil to use the defaults.
func OverageItems(limits map[string]int64, usage map[string]int64, rates map[string]int64) []OverageItem {
	if rates == nil {
		rates = defaultOverageRates
	}
	var items []OverageItem
	for _, key := range sortedKeys(usage) {
		limit, ok := limits[key]
		if !ok || limit == models.UnlimitedLimit {
			continue
		}
		used := usage[key]
		if used <= limit {
			continue
		}
		over := used - limit
		units := over
		if key == models.LimitStorageBytes {
			// Bill storage per started GiB over the limit.
			units = decimal.NewFromInt(over).Div(decimal.NewFromInt(bytesPerGiB)).Ceil().IntPart()
		}
		rate := rates[key]
		items = append(items, OverageItem{
			Metric:    key,
			Used:      used,
			Included:  limit,
			Overage:   over,
			UnitPrice: rate,
			Amount:    units * rate,
		})
	}
	return items
}

func metricLabel(key string) string {
	if label, ok := metricLabels[key]; ok {
		return label
	}
	return key
}

func formatUsage(key string, used, limit int64) string {
	if key == models.LimitStorageBytes {
		return fmt.Sprintf("%dGiB/%dGiB", ceilGiB(used), ceilGiB(limit))
	}
	return fmt.Sprintf("%d/%d", used, limit)
}

func ceilGiB(bytes int64) int64 {
	return decimal.NewFromInt(bytes).Div(decimal.NewFromInt(bytesPerGiB)).Ceil().IntPart()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
