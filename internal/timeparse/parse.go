// Package timeparse turns the small grammar of reminder time phrases into
// absolute instants. Everything is computed in the location of the supplied
// reference time, so callers pin the clock by choosing that location.
package timeparse

import (
	"errors"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var ErrUnparseable = errors.New("unparseable time expression")

var (
	relativeRe   = regexp.MustCompile(`(?:^|\s)(?:in|через)\s+(\d+)\s*(hours|hour|hrs|hr|h|minutes|minute|mins|min|m|часов|часа|час|ч|минуту|минуты|минута|минут|мин)(?:$|[^\p{L}])`)
	tomorrowAtRe = regexp.MustCompile(`(?:tomorrow\s+at|завтра\s+в)\s+(\d{1,2}):(\d{2})(?:$|\D)`)
	absoluteRe   = regexp.MustCompile(`(?:^|\D)(\d{1,2})\.(\d{1,2})\.(\d{4})\s+(\d{1,2}):(\d{2})(?:$|\D)`)
)

type fixedPhrase struct {
	phrases   []string
	dayOffset int
	hour      int
}

var fixedPhrases = []fixedPhrase{
	{phrases: []string{"today evening", "сегодня вечером"}, dayOffset: 0, hour: 19},
	{phrases: []string{"today morning", "сегодня утром"}, dayOffset: 0, hour: 9},
	{phrases: []string{"tomorrow morning", "завтра утром"}, dayOffset: 1, hour: 9},
}

// Parse resolves a free-text time phrase relative to now. The first pattern
// that matches wins: relative offset, tomorrow-at, absolute date-time, then
// the fixed day-part phrases.
func Parse(text string, now time.Time) (time.Time, error) {
	input := normalize(text)
	if input == "" {
		return time.Time{}, ErrUnparseable
	}

	if m := relativeRe.FindStringSubmatch(input); m != nil {
		return parseRelative(m[1], m[2], now)
	}

	if m := tomorrowAtRe.FindStringSubmatch(input); m != nil {
		hour, _ := strconv.Atoi(m[1])
		minute, _ := strconv.Atoi(m[2])
		if !validClock(hour, minute) {
			return time.Time{}, ErrUnparseable
		}
		return atDay(now, 1, hour, minute), nil
	}

	if m := absoluteRe.FindStringSubmatch(input); m != nil {
		return parseAbsolute(m[1:], now.Location())
	}

	for _, fp := range fixedPhrases {
		for _, phrase := range fp.phrases {
			if strings.Contains(input, phrase) {
				return atDay(now, fp.dayOffset, fp.hour, 0), nil
			}
		}
	}

	return time.Time{}, ErrUnparseable
}

// Resolve checks the quick-pick labels first and falls back to Parse.
func Resolve(text string, now time.Time) (time.Time, error) {
	if qp, ok := LookupQuickPick(text); ok {
		if t, ok := qp.Resolve(now); ok {
			return t, nil
		}
	}
	return Parse(text, now)
}

func parseRelative(amount, unit string, now time.Time) (time.Time, error) {
	n, err := strconv.ParseInt(amount, 10, 64)
	if err != nil {
		return time.Time{}, ErrUnparseable
	}

	step := time.Minute
	if strings.HasPrefix(unit, "h") || strings.HasPrefix(unit, "ч") {
		step = time.Hour
	}

	if n > int64(math.MaxInt64/step) {
		return time.Time{}, ErrUnparseable
	}
	return now.Add(time.Duration(n) * step), nil
}

func parseAbsolute(parts []string, loc *time.Location) (time.Time, error) {
	nums := make([]int, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, ErrUnparseable
		}
		nums[i] = v
	}
	day, month, year, hour, minute := nums[0], nums[1], nums[2], nums[3], nums[4]

	if month < 1 || month > 12 || day < 1 || !validClock(hour, minute) {
		return time.Time{}, ErrUnparseable
	}

	t := time.Date(year, time.Month(month), day, hour, minute, 0, 0, loc)
	// time.Date normalizes 31.02 into March; reject instead.
	if t.Day() != day || int(t.Month()) != month {
		return time.Time{}, ErrUnparseable
	}
	return t, nil
}

func atDay(now time.Time, dayOffset, hour, minute int) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day()+dayOffset, hour, minute, 0, 0, now.Location())
}

func validClock(hour, minute int) bool {
	return hour >= 0 && hour <= 23 && minute >= 0 && minute <= 59
}

func normalize(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}
