// Package timeparse turns free-text reminder sentences such as
// "remind me in 2 minutes to call mom" into an absolute due time and the
// remaining task text.
//
// Parsing is a pure function of the input and the reference time: nothing
// reads the wall clock or global state, so results are reproducible in tests.
//
// Rules are tried in a fixed order and the first match wins:
//
//  1. "in <N> <unit>"                         now + N*unit
//  2. "[today|tonight] at <time>"             today, rolled to tomorrow if not after now
//  3. "tomorrow at <time>", "at <time> tomorrow"
//  4. "on <Month> <D>[th] [at <time>]"       this year (09:00 default), next year if past
//  5. "on <A>/<B>[/<Y>] [at <time>]"         month/day if A <= 12, else day/month
//  6. "[on] [next|this] <weekday> [at <time>]"
//  7. "tomorrow" (09:00), "later [today]" (+2h), "[right] now" (+30s)
//
// Rule 2 never applies when the sentence also names a day, so the more
// specific dated forms are not shadowed by it.
package timeparse

import (
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"voicelog-backend/pkg/fuzzy"
)

var (
	// ErrNoMatch means no rule recognised a time expression. Callers must ask
	// the user for more detail rather than default to now.
	ErrNoMatch = errors.New("no time expression recognized")
	// ErrEmptyText means a time was found but nothing describes the task.
	ErrEmptyText = errors.New("no task text left after removing the time expression")
)

const (
	minRepeat = 1
	maxRepeat = 10
)

// Result is a successful parse.
type Result struct {
	DueAt       time.Time
	Text        string
	Rule        string
	RepeatCount int
}

var (
	repeatRe = regexp.MustCompile(`(?i)\b(\d+)\s*times?\b`)
	fillerRe = regexp.MustCompile(`(?i)^(?:(?:please\s+)?remind\s+me|to|that)(?:\s+|$)`)
	spaceRe  = regexp.MustCompile(`\s+`)

	// Speech transcripts misspell the long day words; short ones are left alone
	// because common words sit one edit away from them.
	transcriptVocabulary = fuzzy.NewVocabulary(5, "tomorrow", "tuesday", "wednesday", "thursday", "saturday")
)

// Parse resolves the first time expression in input relative to now.
func Parse(input string, now time.Time) (Result, error) {
	text := transcriptVocabulary.CorrectText(input)
	if text == "" {
		return Result{}, ErrNoMatch
	}

	for _, r := range rules {
		if r.guard != nil && !r.guard(text) {
			continue
		}
		due, loc, ok := r.match(text, now)
		if !ok {
			continue
		}
		residual := residualText(text[:loc[0]] + " " + text[loc[1]:])
		if residual == "" {
			return Result{}, ErrEmptyText
		}
		return Result{
			DueAt:       due,
			Text:        residual,
			Rule:        r.name,
			RepeatCount: RepeatCount(input),
		}, nil
	}
	return Result{}, ErrNoMatch
}

// match returns the first occurrence of r in text that resolves to a valid
// instant and is not glued to a following letter or digit.
func (r rule) match(text string, now time.Time) (time.Time, []int, bool) {
	for _, idx := range r.re.FindAllStringSubmatchIndex(text, -1) {
		if end := idx[1]; end < len(text) && isWordByte(text[end]) {
			continue
		}
		m := make([]string, len(idx)/2)
		for i := range m {
			if idx[2*i] >= 0 {
				m[i] = text[idx[2*i]:idx[2*i+1]]
			}
		}
		if due, ok := r.resolve(m, now); ok {
			return due, idx[:2], true
		}
	}
	return time.Time{}, nil, false
}

// RepeatCount extracts "<N> times" from the original sentence, clamped to
// [1, 10]. It never influences the due time.
func RepeatCount(input string) int {
	m := repeatRe.FindStringSubmatch(input)
	if m == nil {
		return minRepeat
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return maxRepeat
	}
	return min(max(n, minRepeat), maxRepeat)
}

func residualText(s string) string {
	s = repeatRe.ReplaceAllString(s, " ")
	s = strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
	for {
		next := strings.TrimLeft(fillerRe.ReplaceAllString(s, ""), " ,")
		if next == s {
			break
		}
		s = next
	}
	return strings.Trim(s, " ,.;:!")
}

func isWordByte(b byte) bool {
	return b >= '0' && b <= '9' || b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}
