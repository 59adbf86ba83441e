package timeparse

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 2024-01-01 is a Monday.
var monday10 = time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)

func day(month time.Month, d, h, m int) time.Time {
	return time.Date(2024, month, d, h, m, 0, 0, time.UTC)
}

type parseCase struct {
	name  string
	input string
	now   time.Time
	due   time.Time
	text  string
	rule  string
}

func runCases(t *testing.T, cases []parseCase) {
	t.Helper()
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			now := tc.now
			if now.IsZero() {
				now = monday10
			}
			res, err := Parse(tc.input, now)
			require.NoError(t, err)
			assert.Equal(t, tc.due, res.DueAt)
			assert.Equal(t, tc.text, res.Text)
			assert.Equal(t, tc.rule, res.Rule)
		})
	}
}

func TestParse_RelativeOffset(t *testing.T) {
	for _, n := range []int{1, 30, 1440} {
		res, err := Parse("in "+strconv.Itoa(n)+" minutes stretch", monday10)
		require.NoError(t, err)
		assert.Equal(t, monday10.Add(time.Duration(n)*time.Minute), res.DueAt)
		assert.Equal(t, RuleRelative, res.Rule)
	}

	runCases(t, []parseCase{
		{name: "call mom", input: "remind me in 2 minutes to call mom", due: monday10.Add(120 * time.Second), text: "call mom", rule: RuleRelative},
		{name: "article", input: "in an hour stretch", due: monday10.Add(time.Hour), text: "stretch", rule: RuleRelative},
		{name: "seconds short", input: "in 10 secs check oven", due: monday10.Add(10 * time.Second), text: "check oven", rule: RuleRelative},
		{name: "hrs", input: "in 3 hrs take pills", due: monday10.Add(3 * time.Hour), text: "take pills", rule: RuleRelative},
		{name: "days", input: "water plants in 3 days", due: monday10.Add(72 * time.Hour), text: "water plants", rule: RuleRelative},
		{name: "weeks", input: "in 2 weeks renew passport", due: monday10.Add(14 * 24 * time.Hour), text: "renew passport", rule: RuleRelative},
		{name: "wins over clock", input: "in 5 minutes leave for the 3pm meeting at 2pm", due: monday10.Add(5 * time.Minute), text: "leave for the 3pm meeting at 2pm", rule: RuleRelative},
	})
}

func TestParse_ClockTime(t *testing.T) {
	runCases(t, []parseCase{
		{name: "later today", input: "at 3pm submit report", due: day(1, 1, 15, 0), text: "submit report", rule: RuleClock},
		{name: "rollover when past", input: "at 3pm submit report", now: day(1, 1, 16, 0), due: day(1, 2, 15, 0), text: "submit report", rule: RuleClock},
		{name: "rollover when equal", input: "at 10 standup", due: day(1, 2, 10, 0), text: "standup", rule: RuleClock},
		{name: "minutes and dotted meridiem", input: "meeting at 9:30 a.m.", due: day(1, 2, 9, 30), text: "meeting", rule: RuleClock},
		{name: "midnight", input: "at 12am backup", due: day(1, 2, 0, 0), text: "backup", rule: RuleClock},
		{name: "noon", input: "at 12pm lunch", due: day(1, 1, 12, 0), text: "lunch", rule: RuleClock},
		{name: "tonight", input: "tonight at 8 call dad", due: day(1, 1, 20, 0), text: "call dad", rule: RuleClock},
		{name: "24h", input: "at 17:45 leave", due: day(1, 1, 17, 45), text: "leave", rule: RuleClock},
	})
}

func TestParse_TodayAtWithRepeat(t *testing.T) {
	res, err := Parse("remind me today at 2:00 PM to test 3 times", monday10)
	require.NoError(t, err)
	assert.Equal(t, day(1, 1, 14, 0), res.DueAt)
	assert.Equal(t, "test", res.Text)
	assert.Equal(t, 3, res.RepeatCount)

	res, err = Parse("remind me today at 2:00 PM to test 3 times", day(1, 1, 15, 0))
	require.NoError(t, err)
	assert.Equal(t, day(1, 2, 14, 0), res.DueAt)
}

func TestParse_TomorrowAt(t *testing.T) {
	runCases(t, []parseCase{
		{name: "prefix", input: "tomorrow at 7:15am run", due: day(1, 2, 7, 15), text: "run", rule: RuleTomorrowAt},
		{name: "suffix", input: "call bank at 4pm tomorrow", due: day(1, 2, 16, 0), text: "call bank", rule: RuleTomorrowAt},
		{name: "no rollover check", input: "tomorrow at 9am pay", now: day(1, 1, 23, 0), due: day(1, 2, 9, 0), text: "pay", rule: RuleTomorrowAt},
		{name: "month boundary", input: "tomorrow at 8am pack", now: day(1, 31, 12, 0), due: day(2, 1, 8, 0), text: "pack", rule: RuleTomorrowAt},
	})
}

func TestParse_MonthDay(t *testing.T) {
	runCases(t, []parseCase{
		{name: "with time", input: "on March 5th at 3pm dentist", due: day(3, 5, 15, 0), text: "dentist", rule: RuleMonthDay},
		{name: "default nine", input: "renew lease on sept 30", due: day(9, 30, 9, 0), text: "renew lease", rule: RuleMonthDay},
		{name: "past rolls a year", input: "on jan 1 party", due: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), text: "party", rule: RuleMonthDay},
		{name: "time before date", input: "at 5pm on March 3 to pay rent", due: day(3, 3, 17, 0), text: "pay rent", rule: RuleMonthDay},
		{name: "time before date late in the day", input: "at 5pm on March 3 to pay rent", now: day(1, 1, 16, 0), due: day(3, 3, 17, 0), text: "pay rent", rule: RuleMonthDay},
	})

	_, err := Parse("on February 30 nothing", monday10)
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestParse_NumericDate(t *testing.T) {
	runCases(t, []parseCase{
		{name: "month first", input: "on 3/4 pay rent", due: day(3, 4, 9, 0), text: "pay rent", rule: RuleNumericDate},
		{name: "day first by magnitude", input: "on 25/12 gifts", due: day(12, 25, 9, 0), text: "gifts", rule: RuleNumericDate},
		{name: "thirteen is a day", input: "on 13/1 file taxes", due: day(1, 13, 9, 0), text: "file taxes", rule: RuleNumericDate},
		{name: "past rolls a year", input: "on 1/1 party", due: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC), text: "party", rule: RuleNumericDate},
		{name: "explicit year and time", input: "on 6/7/2025 at 8pm renew", due: time.Date(2025, 6, 7, 20, 0, 0, 0, time.UTC), text: "renew", rule: RuleNumericDate},
		{name: "short year", input: "on 6/7/25 renew", due: time.Date(2025, 6, 7, 9, 0, 0, 0, time.UTC), text: "renew", rule: RuleNumericDate},
		{name: "time before date", input: "at 7:30am on 2/14 buy flowers", due: day(2, 14, 7, 30), text: "buy flowers", rule: RuleNumericDate},
	})
}

func TestParse_Weekday(t *testing.T) {
	runCases(t, []parseCase{
		{name: "later this week", input: "on friday at 5pm review", due: day(1, 5, 17, 0), text: "review", rule: RuleWeekday},
		{name: "next forces a week", input: "next friday review", due: day(1, 12, 9, 0), text: "review", rule: RuleWeekday},
		{name: "same weekday", input: "monday gym", due: day(1, 8, 9, 0), text: "gym", rule: RuleWeekday},
		{name: "this", input: "this wednesday call", due: day(1, 3, 9, 0), text: "call", rule: RuleWeekday},
		{name: "transcript typo", input: "wensday call", due: day(1, 3, 9, 0), text: "call", rule: RuleWeekday},
		{name: "time before weekday", input: "remind me at 3pm on friday to call mom", now: day(1, 1, 16, 0), due: day(1, 5, 15, 0), text: "call mom", rule: RuleWeekday},
		{name: "time before next weekday", input: "at 8 next tuesday standup", due: day(1, 9, 8, 0), text: "standup", rule: RuleWeekday},
	})
}

func TestParse_Fallbacks(t *testing.T) {
	runCases(t, []parseCase{
		{name: "bare tomorrow", input: "tomorrow buy milk", due: day(1, 2, 9, 0), text: "buy milk", rule: RuleTomorrow},
		{name: "misheard tomorrow", input: "tommorow buy milk", due: day(1, 2, 9, 0), text: "buy milk", rule: RuleTomorrow},
		{name: "later", input: "later call back", due: monday10.Add(2 * time.Hour), text: "call back", rule: RuleLater},
		{name: "later today", input: "stretch later today", due: monday10.Add(2 * time.Hour), text: "stretch", rule: RuleLater},
		{name: "right now", input: "right now stand up", due: monday10.Add(30 * time.Second), text: "stand up", rule: RuleNow},
		{name: "now is never exactly now", input: "remind me now to drink water", due: monday10.Add(30 * time.Second), text: "drink water", rule: RuleNow},
	})
}

func TestParse_Precedence(t *testing.T) {
	res, err := Parse("tomorrow at 3pm call", monday10)
	require.NoError(t, err)
	assert.Equal(t, RuleTomorrowAt, res.Rule)

	res, err = Parse("next friday at 3pm call", monday10)
	require.NoError(t, err)
	assert.Equal(t, RuleWeekday, res.Rule)
	assert.Equal(t, day(1, 12, 15, 0), res.DueAt)

	res, err = Parse("on 3/4 at 3pm call", monday10)
	require.NoError(t, err)
	assert.Equal(t, RuleNumericDate, res.Rule)
}

func TestParse_Failures(t *testing.T) {
	_, err := Parse("buy milk", monday10)
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse("", monday10)
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse("at 25pm", monday10)
	assert.ErrorIs(t, err, ErrNoMatch)

	_, err = Parse("in 5 minutes", monday10)
	assert.ErrorIs(t, err, ErrEmptyText)

	_, err = Parse("remind me to at 3pm", monday10)
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestParse_KeepsLocation(t *testing.T) {
	loc := time.FixedZone("UTC+7", 7*3600)
	now := time.Date(2024, 1, 1, 10, 0, 0, 0, loc)

	res, err := Parse("at 3pm tea", now)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 15, 0, 0, 0, loc), res.DueAt)
}

func TestRepeatCount(t *testing.T) {
	cases := map[string]int{
		"ring 5 times":      5,
		"ring 20 times":     10,
		"ring 0 times":      1,
		"ring 1 time":       1,
		"ring":              1,
		"in 2 minutes call": 1,
	}
	for input, want := range cases {
		assert.Equal(t, want, RepeatCount(input), input)
	}
}
