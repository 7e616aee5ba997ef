package datefmt

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/text/language"
)

type localeNames struct {
	months   [12]string
	weekdays [7]string
}

var english = localeNames{
	months: [12]string{"January", "February", "March", "April", "May", "June",
		"July", "August", "September", "October", "November", "December"},
	weekdays: [7]string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"},
}

var names = map[language.Tag]localeNames{language.English: english}

// tokens are matched longest first at each position.
var tokens = []string{
	"YYYY", "YY", "Q",
	"MMMM", "MMM", "MM", "M",
	"Do", "DD", "D",
	"dddd", "ddd", "dd", "d",
	"HH", "H", "hh", "h", "kk", "k",
	"mm", "m", "ss", "s", "SSS",
	"A", "a", "ZZ", "Z", "X", "x",
}

// Format renders t with a moment-style format string, e.g.
// "dddd, MMMM Do YYYY h:mm A". Text inside square brackets is literal.
func Format(t time.Time, layout string, lang language.Tag) string {
	ln, ok := names[lang]
	if !ok {
		ln = english
	}

	var b strings.Builder
	for i := 0; i < len(layout); {
		if layout[i] == '[' {
			if end := strings.IndexByte(layout[i:], ']'); end > 0 {
				b.WriteString(layout[i+1 : i+end])
				i += end + 1
				continue
			}
		}
		token := matchToken(layout[i:])
		if token == "" {
			b.WriteByte(layout[i])
			i++
			continue
		}
		b.WriteString(render(t, token, ln))
		i += len(token)
	}
	return b.String()
}

func matchToken(s string) string {
	for _, token := range tokens {
		if strings.HasPrefix(s, token) {
			return token
		}
	}
	return ""
}

func render(t time.Time, token string, ln localeNames) string {
	switch token {
	case "YYYY":
		return fmt.Sprintf("%04d", t.Year())
	case "YY":
		return fmt.Sprintf("%02d", t.Year()%100)
	case "Q":
		return strconv.Itoa((int(t.Month())-1)/3 + 1)
	case "MMMM":
		return ln.months[t.Month()-1]
	case "MMM":
		return ln.months[t.Month()-1][:3]
	case "MM":
		return fmt.Sprintf("%02d", int(t.Month()))
	case "M":
		return strconv.Itoa(int(t.Month()))
	case "Do":
		return humanize.Ordinal(t.Day())
	case "DD":
		return fmt.Sprintf("%02d", t.Day())
	case "D":
		return strconv.Itoa(t.Day())
	case "dddd":
		return ln.weekdays[t.Weekday()]
	case "ddd":
		return ln.weekdays[t.Weekday()][:3]
	case "dd":
		return ln.weekdays[t.Weekday()][:2]
	case "d":
		return strconv.Itoa(int(t.Weekday()))
	case "HH":
		return fmt.Sprintf("%02d", t.Hour())
	case "H":
		return strconv.Itoa(t.Hour())
	case "hh":
		return fmt.Sprintf("%02d", hour12(t))
	case "h":
		return strconv.Itoa(hour12(t))
	case "kk":
		return fmt.Sprintf("%02d", hour24(t))
	case "k":
		return strconv.Itoa(hour24(t))
	case "mm":
		return fmt.Sprintf("%02d", t.Minute())
	case "m":
		return strconv.Itoa(t.Minute())
	case "ss":
		return fmt.Sprintf("%02d", t.Second())
	case "s":
		return strconv.Itoa(t.Second())
	case "SSS":
		return fmt.Sprintf("%03d", t.Nanosecond()/int(time.Millisecond))
	case "A":
		if t.Hour() < 12 {
			return "AM"
		}
		return "PM"
	case "a":
		if t.Hour() < 12 {
			return "am"
		}
		return "pm"
	case "ZZ":
		return t.Format("-0700")
	case "Z":
		return t.Format("-07:00")
	case "X":
		return strconv.FormatInt(t.Unix(), 10)
	case "x":
		return strconv.FormatInt(t.UnixMilli(), 10)
	}
	return token
}

func hour12(t time.Time) int {
	h := t.Hour() % 12
	if h == 0 {
		return 12
	}
	return h
}

// hour24 is the 1-24 hour of the k tokens.
func hour24(t time.Time) int {
	if t.Hour() == 0 {
		return 24
	}
	return t.Hour()
}
