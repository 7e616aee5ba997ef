package datefmt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

const stored = "2018-04-05T12:30:04.000Z"

func fixedNow() time.Time {
	return time.Date(2018, 4, 8, 12, 30, 4, 0, time.UTC)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name  string
		value any
		kind  Kind
		opts  Options
		want  any
	}{
		{name: "date default", value: stored, kind: Date, want: "2018-04-05"},
		{name: "date ignores zone", value: "2018-04-05T23:30:00Z", kind: Date, opts: Options{Zone: "Asia/Tokyo"}, want: "2018-04-05"},
		{name: "datetime default", value: stored, kind: Datetime, want: "2018-04-05T12:30:04.000Z"},
		{name: "datetime zone", value: stored, kind: Datetime, opts: Options{Zone: "America/New_York"}, want: "2018-04-05T08:30:04.000-04:00"},
		{name: "time value", value: time.Date(2018, 4, 5, 12, 30, 4, 0, time.UTC), kind: Date, want: "2018-04-05"},
		{name: "epoch millis", value: int64(1522931404000), kind: Datetime, want: "2018-04-05T12:30:04.000Z"},
		{name: "format string", value: stored, kind: Datetime, opts: Options{FormatString: "dddd, MMMM Do YYYY h:mm A"}, want: "Thursday, April 5th 2018 12:30 PM"},
		{name: "format string in zone", value: stored, kind: Datetime, opts: Options{FormatString: "HH:mm Z", Zone: "America/New_York"}, want: "08:30 -04:00"},
		{name: "from now", value: stored, kind: Datetime, opts: Options{FromNow: true, Now: fixedNow}, want: "3 days ago"},
		{name: "difference", value: stored, kind: Datetime, opts: Options{Difference: "days", Now: fixedNow}, want: int64(-3)},
		{name: "difference wins over format", value: stored, kind: Date, opts: Options{Difference: "hours", FormatString: "YYYY", Now: fixedNow}, want: int64(-72)},
		{name: "unsupported locale falls back", value: stored, kind: Date, opts: Options{FormatString: "MMMM", Locale: "xx-invalid-tag!"}, want: "April"},
		{name: "nil", value: nil, kind: Date, want: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.value, tt.kind, tt.opts)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRender_Errors(t *testing.T) {
	_, err := Render("not a date", Date, Options{})
	assert.ErrorContains(t, err, "invalid date value")

	_, err = Render(stored, Datetime, Options{Zone: "Mars/Olympus"})
	assert.ErrorContains(t, err, "invalid zone")

	_, err = Render(stored, Datetime, Options{Difference: "fortnights", Now: fixedNow})
	assert.ErrorContains(t, err, "unsupported difference unit")
}

func TestFormatTokens(t *testing.T) {
	ts := time.Date(2024, 1, 2, 0, 5, 9, 7_000_000, time.UTC)
	tests := []struct {
		layout string
		want   string
	}{
		{"YYYY-MM-DD", "2024-01-02"},
		{"YY M D", "24 1 2"},
		{"MMM ddd dd d", "Jan Tue Tu 2"},
		{"Q", "1"},
		{"HH:mm:ss.SSS", "00:05:09.007"},
		{"h hh k a", "12 12 24 am"},
		{"[Today is] dddd", "Today is Tuesday"},
		{"X", "1704153909"},
		{"ZZ", "+0000"},
	}
	for _, tt := range tests {
		t.Run(tt.layout, func(t *testing.T) {
			assert.Equal(t, tt.want, Format(ts, tt.layout, language.English))
		})
	}
}

func TestDifference(t *testing.T) {
	now := time.Date(2020, 1, 31, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		t    time.Time
		unit string
		want int64
	}{
		{time.Date(2020, 2, 29, 0, 0, 0, 0, time.UTC), "months", 0},
		{time.Date(2020, 3, 31, 0, 0, 0, 0, time.UTC), "month", 2},
		{time.Date(2019, 1, 31, 0, 0, 0, 0, time.UTC), "years", -1},
		{time.Date(2020, 2, 14, 0, 0, 0, 0, time.UTC), "weeks", 2},
		{time.Date(2020, 1, 30, 12, 0, 0, 0, time.UTC), "days", 0},
		{time.Date(2020, 1, 30, 12, 0, 0, 0, time.UTC), "h", -12},
		{time.Date(2020, 1, 31, 0, 0, 1, 500_000_000, time.UTC), "ms", 1500},
	}
	for _, tt := range tests {
		got, err := Difference(tt.t, now, tt.unit)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s in %s", tt.t, tt.unit)
	}
}

func TestResolveLocale(t *testing.T) {
	assert.Equal(t, language.English, ResolveLocale(""))
	assert.Equal(t, language.English, ResolveLocale("en-GB"))
	assert.Equal(t, language.English, ResolveLocale("fr"))
	assert.Equal(t, language.English, ResolveLocale("!!"))
}
