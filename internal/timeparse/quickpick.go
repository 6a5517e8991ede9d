package timeparse

import (
	"strings"
	"time"
)

// QuickPick is one of the fixed one-tap time choices offered next to the
// free-text prompt.
type QuickPick int

const (
	QuickInOneHour QuickPick = iota + 1
	QuickInThreeHours
	QuickTonight
	QuickTomorrowMorning
)

var quickPickLabels = map[string]QuickPick{
	"⏱ Через 1 час":     QuickInOneHour,
	"⏱ Через 3 часа":    QuickInThreeHours,
	"🌆 Сегодня вечером": QuickTonight,
	"🌅 Завтра утром":    QuickTomorrowMorning,
	"inline_1h":         QuickInOneHour,
	"inline_3h":         QuickInThreeHours,
	"+1 hour":           QuickInOneHour,
	"+3 hours":          QuickInThreeHours,
	"+1h":               QuickInOneHour,
	"+3h":               QuickInThreeHours,
}

// QuickPicks lists every option in display order.
func QuickPicks() []QuickPick {
	return []QuickPick{QuickInOneHour, QuickInThreeHours, QuickTonight, QuickTomorrowMorning}
}

// LookupQuickPick matches a label exactly, ignoring surrounding whitespace.
func LookupQuickPick(label string) (QuickPick, bool) {
	qp, ok := quickPickLabels[strings.TrimSpace(label)]
	return qp, ok
}

// Resolve returns the instant the option stands for at now. ok is false
// only for values outside the declared constants.
func (q QuickPick) Resolve(now time.Time) (time.Time, bool) {
	switch q {
	case QuickInOneHour:
		return now.Add(time.Hour), true
	case QuickInThreeHours:
		return now.Add(3 * time.Hour), true
	case QuickTonight:
		return atDay(now, 0, 19, 0), true
	case QuickTomorrowMorning:
		return atDay(now, 1, 9, 0), true
	}
	return time.Time{}, false
}

func (q QuickPick) String() string {
	switch q {
	case QuickInOneHour:
		return "+1 hour"
	case QuickInThreeHours:
		return "+3 hours"
	case QuickTonight:
		return "today evening"
	case QuickTomorrowMorning:
		return "tomorrow morning"
	}
	return "unknown"
}
