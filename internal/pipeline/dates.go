package pipeline

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// JST is the timezone all listing and detail timestamps are interpreted in.
var JST = time.FixedZone("JST", 9*60*60)

var (
	weekdaySuffix = regexp.MustCompile(`\([月火水木金土日]\)`)
	relativeExpr  = regexp.MustCompile(`^(\d+)(分|時間|日)前$`)
)

// absolute layouts tried in order. Layouts without a year borrow it from
// "now"; a resulting date more than a month in the future rolls back a year
// (a December listing read in January).
var absoluteLayouts = []struct {
	layout  string
	hasYear bool
}{
	{"2006/1/2 15:04:05", true},
	{"06/1/2 15:04", true},
	{"1/2 15:04", false},
	{"2006/1/2 15:04", true},
}

// ParsePostedAt parses the timestamp strings that appear on listing and
// detail pages: several absolute date/time layouts plus relative forms like
// "3時間前". The weekday suffix and the "配信" marker are stripped first.
// Unparseable input yields nil rather than an error; the caller keeps the
// raw string out of the record and simply leaves the timestamp unset.
func ParsePostedAt(raw string, now time.Time) *Timestamp {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil
	}
	s = weekdaySuffix.ReplaceAllString(s, "")
	s = strings.ReplaceAll(s, "配信", "")
	s = strings.TrimSpace(s)

	now = now.In(JST)

	if m := relativeExpr.FindStringSubmatch(s); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return nil
		}
		var d time.Duration
		switch m[2] {
		case "分":
			d = time.Duration(n) * time.Minute
		case "時間":
			d = time.Duration(n) * time.Hour
		case "日":
			d = time.Duration(n) * 24 * time.Hour
		}
		return &Timestamp{Time: now.Add(-d), Precision: PrecisionCoarse}
	}

	for _, l := range absoluteLayouts {
		t, err := time.ParseInLocation(l.layout, s, JST)
		if err != nil {
			continue
		}
		if !l.hasYear {
			t = time.Date(now.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), 0, JST)
		}
		if t.After(now.Add(31 * 24 * time.Hour)) {
			t = t.AddDate(-1, 0, 0)
		}
		precision := PrecisionCoarse
		if strings.Count(s, ":") == 2 {
			precision = PrecisionExact
		}
		return &Timestamp{Time: t, Precision: precision}
	}
	return nil
}
