package pricing

import (
	"reflect"
	"testing"

	"github.com/campushq/campusbill/app/models"
)

func TestCheckLimitsViolationFormat(t *testing.T) {
	limits := map[string]int64{models.LimitSchools: 3}
	usage := map[string]int64{models.LimitSchools: 4}

	check := CheckLimits(limits, usage)
	if check.WithinLimits {
		t.Fatalf("expected limits to be exceeded")
	}
	if len(check.Violations) != 1 || check.Violations[0] != "Schools: 4/3" {
		t.Fatalf("Violations = %v, want [Schools: 4/3]", check.Violations)
	}
}

func TestCheckLimitsWithin(t *testing.T) {
	limits := map[string]int64{models.LimitSchools: 3, models.LimitUsers: 50}
	usage := map[string]int64{models.LimitSchools: 3, models.LimitUsers: 12}

	check := CheckLimits(limits, usage)
	if !check.WithinLimits || len(check.Violations) != 0 {
		t.Fatalf("expected no violations, got %+v", check)
	}
}

func TestCheckLimitsUnlimitedSentinel(t *testing.T) {
	limits := map[string]int64{
		models.LimitSchools:  models.UnlimitedLimit,
		models.LimitStudents: models.UnlimitedLimit,
	}
	usage := map[string]int64{
		models.LimitSchools:  1000000,
		models.LimitStudents: 99999999,
	}

	check := CheckLimits(limits, usage)
	if !check.WithinLimits {
		t.Fatalf("unlimited metrics must never violate, got %+v", check)
	}
}

func TestCheckLimitsMissingKeyIsUnlimited(t *testing.T) {
	// A metric the plan does not mention has no limit.
	check := CheckLimits(map[string]int64{}, map[string]int64{models.LimitAPICalls: 5000000})
	if !check.WithinLimits {
		t.Fatalf("missing limit keys must be treated as unlimited, got %+v", check)
	}
}

func TestCheckLimitsDeterministicOrder(t *testing.T) {
	limits := map[string]int64{
		models.LimitSchools:  1,
		models.LimitUsers:    1,
		models.LimitStudents: 1,
	}
	usage := map[string]int64{
		models.LimitUsers:    5,
		models.LimitSchools:  2,
		models.LimitStudents: 3,
	}

	want := []string{"Schools: 2/1", "Students: 3/1", "Users: 5/1"}
	for i := 0; i < 10; i++ {
		check := CheckLimits(limits, usage)
		if !reflect.DeepEqual(check.Violations, want) {
			t.Fatalf("Violations = %v, want %v", check.Violations, want)
		}
	}
}

func TestCheckLimitsStorageFormatsGiB(t *testing.T) {
	limits := map[string]int64{models.LimitStorageBytes: 5 * bytesPerGiB}
	usage := map[string]int64{models.LimitStorageBytes: 6*bytesPerGiB + 1}

	check := CheckLimits(limits, usage)
	if len(check.Violations) != 1 || check.Violations[0] != "Storage: 7GiB/5GiB" {
		t.Fatalf("Violations = %v, want [Storage: 7GiB/5GiB]", check.Violations)
	}
}

func TestOverageItems(t *testing.T) {
	limits := map[string]int64{
		models.LimitSchools:  3,
		models.LimitUsers:    models.UnlimitedLimit,
		models.LimitAPICalls: 10000,
	}
	usage := map[string]int64{
		models.LimitSchools:  5,
		models.LimitUsers:    900,
		models.LimitAPICalls: 10500,
	}

	items := OverageItems(limits, usage, nil)
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2: %+v", len(items), items)
	}

	// Sorted by metric key: api_calls before schools.
	if items[0].Metric != models.LimitAPICalls || items[0].Overage != 500 || items[0].Amount != 500 {
		t.Fatalf("api_calls item = %+v", items[0])
	}
	if items[1].Metric != models.LimitSchools || items[1].Overage != 2 || items[1].Amount != 10000 {
		t.Fatalf("schools item = %+v", items[1])
	}
}

func TestOverageItemsStoragePerStartedGiB(t *testing.T) {
	limits := map[string]int64{models.LimitStorageBytes: 10 * bytesPerGiB}
	usage := map[string]int64{models.LimitStorageBytes: 10*bytesPerGiB + 1}

	items := OverageItems(limits, usage, nil)
	if len(items) != 1 {
		t.Fatalf("got %d items, want 1", len(items))
	}
	// One byte over bills a full GiB.
	if items[0].Amount != defaultOverageRates[models.LimitStorageBytes] {
		t.Fatalf("Amount = %d, want %d", items[0].Amount, defaultOverageRates[models.LimitStorageBytes])
	}
}

func TestOverageItemsCustomRates(t *testing.T) {
	limits := map[string]int64{models.LimitSchools: 1}
	usage := map[string]int64{models.LimitSchools: 4}

	items := OverageItems(limits, usage, map[string]int64{models.LimitSchools: 250})
	if len(items) != 1 || items[0].Amount != 750 {
		t.Fatalf("items = %+v, want one item with amount 750", items)
	}
}

func TestOverageItemsNoneWithinLimits(t *testing.T) {
	limits := map[string]int64{models.LimitSchools: 3}
	usage := map[string]int64{models.LimitSchools: 3}
	if items := OverageItems(limits, usage, nil); len(items) != 0 {
		t.Fatalf("expected no overage at the limit, got %+v", items)
	}
}
