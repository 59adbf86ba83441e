package timeparse

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Rule names reported in Result.Rule.
const (
	RuleRelative    = "relative"
	RuleClock       = "clock"
	RuleTomorrowAt  = "tomorrow_at"
	RuleMonthDay    = "month_day"
	RuleNumericDate = "numeric_date"
	RuleWeekday     = "weekday"
	RuleTomorrow    = "tomorrow"
	RuleLater       = "later"
	RuleNow         = "now"
)

const (
	defaultHour    = 9
	laterOffset    = 2 * time.Hour
	nowOffset      = 30 * time.Second
	timePattern    = `(\d{1,2})(?::(\d{2}))?(?:\s*(a\.m\.|p\.m\.|am\b|pm\b))?`
	monthPattern   = `january|february|march|april|may|june|july|august|september|october|november|december|sept|jan|feb|mar|apr|jun|jul|aug|sep|oct|nov|dec`
	weekdayPattern = `monday|tuesday|wednesday|thursday|friday|saturday|sunday`
	// "at 3pm on friday": the dated rules accept the time on either side
	leadingTime = `(?:at\s+` + timePattern + `\s+)?`
)

// rule is one entry of the ordered rule table. resolve receives the submatches
// of re and returns the due instant, or false when the match is not a valid
// date (hour 25, February 30).
type rule struct {
	name    string
	re      *regexp.Regexp
	guard   func(input string) bool
	resolve func(m []string, now time.Time) (time.Time, bool)
}

// dateQualifier detects phrases that pin the calendar day. A bare "at <time>"
// only means "today" when none of these is present.
var dateQualifier = regexp.MustCompile(`(?i)\b(?:tomorrow|` + weekdayPattern + `)\b|\bon\s+(?:(?:` + monthPattern + `)\b|\d{1,2}/\d{1,2})`)

// rules is evaluated top to bottom and the first match wins. Each entry is at
// least as specific as the ones after it; rule 2 carries a guard so that the
// dated forms below it stay reachable.
var rules = []rule{
	{
		name:    RuleRelative,
		re:      regexp.MustCompile(`(?i)\bin\s+(\d+|an?|one)\s+(seconds?|secs?|minutes?|mins?|hours?|hrs?|days?|weeks?)\b`),
		resolve: resolveRelative,
	},
	{
		name:    RuleClock,
		re:      regexp.MustCompile(`(?i)\b(?:(today|tonight)\s+)?at\s+` + timePattern),
		guard:   func(input string) bool { return !dateQualifier.MatchString(input) },
		resolve: resolveClock,
	},
	{
		name:    RuleTomorrowAt,
		re:      regexp.MustCompile(`(?i)\btomorrow\s+at\s+` + timePattern + `|\bat\s+` + timePattern + `\s+tomorrow\b`),
		resolve: resolveTomorrowAt,
	},
	{
		name:    RuleMonthDay,
		re:      regexp.MustCompile(`(?i)\b` + leadingTime + `on\s+(` + monthPattern + `)\.?\s+(\d{1,2})(?:st|nd|rd|th)?(?:,?\s+at\s+` + timePattern + `)?`),
		resolve: resolveMonthDay,
	},
	{
		name:    RuleNumericDate,
		re:      regexp.MustCompile(`(?i)\b` + leadingTime + `on\s+(\d{1,2})/(\d{1,2})(?:/(\d{4}|\d{2}))?(?:\s+at\s+` + timePattern + `)?`),
		resolve: resolveNumericDate,
	},
	{
		name:    RuleWeekday,
		re:      regexp.MustCompile(`(?i)\b` + leadingTime + `(?:on\s+)?(?:(next|this)\s+)?(` + weekdayPattern + `)(?:\s+at\s+` + timePattern + `)?`),
		resolve: resolveWeekday,
	},
	{
		name: RuleTomorrow,
		re:   regexp.MustCompile(`(?i)\btomorrow\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return at(now, 1, defaultHour, 0), true
		},
	},
	{
		name: RuleLater,
		re:   regexp.MustCompile(`(?i)\blater(?:\s+today)?\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return now.Add(laterOffset), true
		},
	},
	{
		name: RuleNow,
		re:   regexp.MustCompile(`(?i)\b(?:right\s+)?now\b`),
		resolve: func(_ []string, now time.Time) (time.Time, bool) {
			return now.Add(nowOffset), true
		},
	},
}

var units = map[string]time.Duration{
	"second": time.Second, "sec": time.Second,
	"minute": time.Minute, "min": time.Minute,
	"hour": time.Hour, "hr": time.Hour,
	"day":  24 * time.Hour,
	"week": 7 * 24 * time.Hour,
}

var months = map[string]time.Month{
	"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
	"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
	"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
}

var weekdays = map[string]time.Weekday{
	"sunday": time.Sunday, "monday": time.Monday, "tuesday": time.Tuesday, "wednesday": time.Wednesday,
	"thursday": time.Thursday, "friday": time.Friday, "saturday": time.Saturday,
}

func resolveRelative(m []string, now time.Time) (time.Time, bool) {
	n := 1
	switch strings.ToLower(m[1]) {
	case "a", "an", "one":
	default:
		v, err := strconv.Atoi(m[1])
		if err != nil || v <= 0 || v > 100000 {
			return time.Time{}, false
		}
		n = v
	}
	unit := strings.TrimSuffix(strings.ToLower(m[2]), "s")
	d, ok := units[unit]
	if !ok {
		return time.Time{}, false
	}
	return now.Add(time.Duration(n) * d), true
}

func resolveClock(m []string, now time.Time) (time.Time, bool) {
	h, mins, ok := clock(m[2], m[3], m[4])
	if !ok {
		return time.Time{}, false
	}
	if strings.EqualFold(m[1], "tonight") && m[4] == "" && h < 12 {
		h += 12
	}
	t := at(now, 0, h, mins)
	if !t.After(now) {
		t = at(now, 1, h, mins)
	}
	return t, true
}

func resolveTomorrowAt(m []string, now time.Time) (time.Time, bool) {
	// "tomorrow at 3pm" fills groups 1-3, "at 3pm tomorrow" fills 4-6
	parts := m[1:4]
	if parts[0] == "" {
		parts = m[4:7]
	}
	h, mins, ok := clock(parts[0], parts[1], parts[2])
	if !ok {
		return time.Time{}, false
	}
	return at(now, 1, h, mins), true
}

func resolveMonthDay(m []string, now time.Time) (time.Time, bool) {
	month, ok := months[strings.ToLower(m[4])[:3]]
	if !ok {
		return time.Time{}, false
	}
	day, err := strconv.Atoi(m[5])
	if err != nil {
		return time.Time{}, false
	}
	h, mins, ok := eitherClock(m[1:4], m[6:9])
	if !ok {
		return time.Time{}, false
	}
	return resolveDate(now, now.Year(), month, day, h, mins, true)
}

func resolveNumericDate(m []string, now time.Time) (time.Time, bool) {
	a, errA := strconv.Atoi(m[4])
	b, errB := strconv.Atoi(m[5])
	if errA != nil || errB != nil {
		return time.Time{}, false
	}
	// Magnitude decides the order, never the locale
	month, day := a, b
	if a > 12 {
		month, day = b, a
	}
	if month < 1 || month > 12 {
		return time.Time{}, false
	}

	year, rollover := now.Year(), true
	if m[6] != "" {
		y, err := strconv.Atoi(m[6])
		if err != nil {
			return time.Time{}, false
		}
		if y < 100 {
			y += 2000
		}
		year, rollover = y, false
	}

	h, mins, ok := eitherClock(m[1:4], m[7:10])
	if !ok {
		return time.Time{}, false
	}
	return resolveDate(now, year, time.Month(month), day, h, mins, rollover)
}

func resolveWeekday(m []string, now time.Time) (time.Time, bool) {
	target, ok := weekdays[strings.ToLower(m[5])]
	if !ok {
		return time.Time{}, false
	}
	h, mins, ok := eitherClock(m[1:4], m[6:9])
	if !ok {
		return time.Time{}, false
	}
	delta := int(target) - int(now.Weekday())
	if strings.EqualFold(m[4], "next") || delta <= 0 {
		delta += 7
	}
	return at(now, delta, h, mins), true
}

// resolveDate builds year-month-day h:mins in now's location, rejecting dates
// that time.Date would normalise (April 31). With rollover a date that is not
// after now moves to the next year.
func resolveDate(now time.Time, year int, month time.Month, day, h, mins int, rollover bool) (time.Time, bool) {
	build := func(y int) (time.Time, bool) {
		t := time.Date(y, month, day, h, mins, 0, 0, now.Location())
		return t, t.Month() == month && t.Day() == day
	}
	t, ok := build(year)
	if !ok && !rollover {
		return time.Time{}, false
	}
	if rollover && (!ok || !t.After(now)) {
		t, ok = build(year + 1)
	}
	return t, ok
}

// eitherClock reads the time given before the date, else the one after it.
func eitherClock(lead, trail []string) (int, int, bool) {
	if lead[0] != "" {
		return clock(lead[0], lead[1], lead[2])
	}
	return optionalClock(trail[0], trail[1], trail[2])
}

func optionalClock(hour, minute, meridiem string) (int, int, bool) {
	if hour == "" {
		return defaultHour, 0, true
	}
	return clock(hour, minute, meridiem)
}

// clock converts "3", "30", "pm" style parts to a 24h hour and minute.
func clock(hour, minute, meridiem string) (int, int, bool) {
	h, err := strconv.Atoi(hour)
	if err != nil {
		return 0, 0, false
	}
	mins := 0
	if minute != "" {
		if mins, err = strconv.Atoi(minute); err != nil || mins > 59 {
			return 0, 0, false
		}
	}

	mer := strings.ToLower(strings.ReplaceAll(meridiem, ".", ""))
	switch mer {
	case "am", "pm":
		if h < 1 || h > 12 {
			return 0, 0, false
		}
		if mer == "pm" && h < 12 {
			h += 12
		}
		if mer == "am" && h == 12 {
			h = 0
		}
	default:
		if h > 23 {
			return 0, 0, false
		}
	}
	return h, mins, true
}

// at returns the calendar day now+days at h:mins in now's location.
func at(now time.Time, days, h, mins int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+days, h, mins, 0, 0, now.Location())
}
