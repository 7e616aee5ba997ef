// Package datefmt renders stored Date and Datetime values for output. A Date
// is zone-naive: it is shown in UTC calendar terms whatever zone is asked
// for. A Datetime is converted into the requested zone.
package datefmt

import (
	"fmt"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cast"
	"golang.org/x/text/language"
)

// Kind selects Date or Datetime rendering.
type Kind int

const (
	Date Kind = iota
	Datetime
)

// Default output layouts.
const (
	DateLayout     = "2006-01-02"
	DatetimeLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Options are the field arguments plus resolved defaults. At most one of
// Difference, FromNow and FormatString takes effect, in that order.
type Options struct {
	FormatString string
	FromNow      bool
	// Difference is a unit name such as "days". The result is the signed
	// whole number of units from now to the value.
	Difference string
	Locale     string
	Zone       string
	// Now overrides the clock.
	Now func() time.Time
}

func (o Options) now() time.Time {
	if o.Now != nil {
		return o.Now()
	}
	return time.Now()
}

// Render formats a stored value. A nil value renders as nil. The result is a
// string, or an int64 for Difference.
func Render(value any, kind Kind, opts Options) (any, error) {
	if value == nil {
		return nil, nil
	}
	t, err := Parse(value)
	if err != nil {
		return nil, err
	}

	loc := time.UTC
	if kind == Datetime {
		if loc, err = LoadZone(opts.Zone); err != nil {
			return nil, err
		}
	}
	t = t.In(loc)
	lang := ResolveLocale(opts.Locale)

	switch {
	case opts.Difference != "":
		return Difference(t, opts.now(), opts.Difference)
	case opts.FromNow:
		return humanize.RelTime(t, opts.now(), "ago", "from now"), nil
	case opts.FormatString != "":
		return Format(t, opts.FormatString, lang), nil
	case kind == Date:
		return t.Format(DateLayout), nil
	default:
		return t.Format(DatetimeLayout), nil
	}
}

var parseLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	DateLayout,
}

// Parse reads a stored temporal value: a time.Time, an ISO-8601 string, or a
// number of milliseconds since the epoch.
func Parse(value any) (time.Time, error) {
	switch v := value.(type) {
	case time.Time:
		return v, nil
	case string:
		s := strings.TrimSpace(v)
		for _, layout := range parseLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t, nil
			}
		}
		return time.Time{}, fmt.Errorf("invalid date value %q", v)
	}
	ms, err := cast.ToInt64E(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date value %v: %w", value, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}

// LoadZone resolves an IANA zone name. The empty name is UTC.
func LoadZone(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("invalid zone %q: %w", name, err)
	}
	return loc, nil
}

var supportedLocales = []language.Tag{language.English}

var localeMatcher = language.NewMatcher(supportedLocales)

// ResolveLocale maps a BCP 47 tag onto a supported locale. Unparseable or
// unsupported tags fall back to English.
func ResolveLocale(tag string) language.Tag {
	if tag == "" {
		return language.English
	}
	parsed, err := language.Parse(tag)
	if err != nil {
		return language.English
	}
	_, index, _ := localeMatcher.Match(parsed)
	return supportedLocales[index]
}

// Difference returns the signed whole number of units between now and t,
// positive when t is after now.
func Difference(t, now time.Time, unit string) (int64, error) {
	switch normalizeUnit(unit) {
	case "year":
		return monthsBetween(now, t) / 12, nil
	case "quarter":
		return monthsBetween(now, t) / 3, nil
	case "month":
		return monthsBetween(now, t), nil
	case "week":
		return truncDiv(t.Sub(now), 7*24*time.Hour), nil
	case "day":
		return truncDiv(t.Sub(now), 24*time.Hour), nil
	case "hour":
		return truncDiv(t.Sub(now), time.Hour), nil
	case "minute":
		return truncDiv(t.Sub(now), time.Minute), nil
	case "second":
		return truncDiv(t.Sub(now), time.Second), nil
	case "millisecond":
		return t.Sub(now).Milliseconds(), nil
	default:
		return 0, fmt.Errorf("unsupported difference unit %q", unit)
	}
}

func normalizeUnit(unit string) string {
	u := strings.ToLower(strings.TrimSpace(unit))
	switch u {
	case "y":
		return "year"
	case "q":
		return "quarter"
	case "m":
		return "minute"
	case "w":
		return "week"
	case "d":
		return "day"
	case "h":
		return "hour"
	case "s":
		return "second"
	case "ms":
		return "millisecond"
	}
	return strings.TrimSuffix(u, "s")
}

func truncDiv(d, unit time.Duration) int64 {
	return int64(d / unit)
}

// monthsBetween counts whole calendar months from a to b, truncated toward
// zero.
func monthsBetween(a, b time.Time) int64 {
	b = b.In(a.Location())
	months := int64(b.Year()-a.Year())*12 + int64(b.Month()-a.Month())
	anchor := a.AddDate(0, int(months), 0)
	switch {
	case months > 0 && anchor.After(b):
		months--
	case months < 0 && anchor.Before(b):
		months++
	}
	return months
}
