package pipeline

import (
	"testing"
	"time"
)

// TestParsePostedAtAbsolute covers the absolute layouts with and without
// seconds.
func TestParsePostedAtAbsolute(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, JST)

	ts := ParsePostedAt("2026/8/30 14:05:09", now)
	if ts == nil {
		t.Fatal("expected a parsed timestamp")
	}
	if ts.Precision != PrecisionExact {
		t.Fatalf("seconds present, expected exact precision, got %v", ts.Precision)
	}
	want := time.Date(2026, 8, 30, 14, 5, 9, 0, JST)
	if !ts.Time.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ts.Time)
	}

	ts = ParsePostedAt("2026/8/30 14:05", now)
	if ts == nil || ts.Precision != PrecisionCoarse {
		t.Fatalf("minute-level input must parse as coarse, got %+v", ts)
	}

	ts = ParsePostedAt("26/8/30 14:05", now)
	if ts == nil || ts.Time.Year() != 2026 {
		t.Fatalf("two-digit year must resolve to 2026, got %+v", ts)
	}
}

// TestParsePostedAtWeekdayAndSuffix checks the decoration stripping seen on
// detail pages.
func TestParsePostedAtWeekdayAndSuffix(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, JST)
	ts := ParsePostedAt("8/30(日) 14:05配信", now)
	if ts == nil {
		t.Fatal("expected a parsed timestamp")
	}
	want := time.Date(2026, 8, 30, 14, 5, 0, 0, JST)
	if !ts.Time.Equal(want) {
		t.Fatalf("expected %v, got %v", want, ts.Time)
	}
}

// TestParsePostedAtYearBorrow verifies a yearless December date read in
// January resolves to the previous year.
func TestParsePostedAtYearBorrow(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, JST)
	ts := ParsePostedAt("12/28 18:30", now)
	if ts == nil {
		t.Fatal("expected a parsed timestamp")
	}
	if ts.Time.Year() != 2025 {
		t.Fatalf("expected the borrowed year to roll back to 2025, got %d", ts.Time.Year())
	}
}

// TestParsePostedAtRelative covers the relative forms from search listings.
func TestParsePostedAtRelative(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 8, 31, 12, 0, 0, 0, JST)
	cases := []struct {
		raw  string
		want time.Time
	}{
		{"5分前", now.Add(-5 * time.Minute)},
		{"3時間前", now.Add(-3 * time.Hour)},
		{"2日前", now.Add(-48 * time.Hour)},
	}
	for _, tc := range cases {
		ts := ParsePostedAt(tc.raw, now)
		if ts == nil {
			t.Fatalf("expected %q to parse", tc.raw)
		}
		if ts.Precision != PrecisionCoarse {
			t.Fatalf("relative form %q must be coarse", tc.raw)
		}
		if !ts.Time.Equal(tc.want) {
			t.Fatalf("%q: expected %v, got %v", tc.raw, tc.want, ts.Time)
		}
	}
}

// TestParsePostedAtUnparseable confirms garbage yields nil, not an error.
func TestParsePostedAtUnparseable(t *testing.T) {
	t.Parallel()

	now := time.Now()
	for _, raw := range []string{"", "   ", "昨日", "not a date"} {
		if ts := ParsePostedAt(raw, now); ts != nil {
			t.Fatalf("expected nil for %q, got %+v", raw, ts)
		}
	}
}

// TestMergeTimestamp verifies the precision non-regression rule.
func TestMergeTimestamp(t *testing.T) {
	t.Parallel()

	exact := &Timestamp{Time: time.Now(), Precision: PrecisionExact}
	coarse := &Timestamp{Time: time.Now().Add(-time.Hour), Precision: PrecisionCoarse}

	if got := MergeTimestamp(nil, coarse); got != coarse {
		t.Fatal("an incoming value must fill an absent current value")
	}
	if got := MergeTimestamp(coarse, exact); got != exact {
		t.Fatal("an exact value must replace a coarse one")
	}
	if got := MergeTimestamp(exact, coarse); got != exact {
		t.Fatal("a coarse value must never replace an exact one")
	}
	if got := MergeTimestamp(exact, nil); got != exact {
		t.Fatal("a nil incoming value must keep the current one")
	}

	newer := &Timestamp{Time: time.Now().Add(time.Minute), Precision: PrecisionExact}
	if got := MergeTimestamp(exact, newer); got != newer {
		t.Fatal("an equal-precision value must replace the current one")
	}
}
