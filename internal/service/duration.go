package service

import (
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/msomdec/tasktide/internal/domain"
)

// Duration strings arrive from the backend in three historical shapes:
// a plain seconds count ("3600 seconds"), a clock string ("01:30:00"), and
// a verbose form ("2 hours 15 mins"). Parsing is forgiving: a string that
// matches none of them is worth 0 seconds, never an error, because a bad
// stored value must not take down a rendered view.
var (
	secondsOnlyRe = regexp.MustCompile(`^\s*(\d+)\s+seconds?\s*$`)
	clockRe       = regexp.MustCompile(`^\s*(\d+):(\d{2}):(\d{2})\s*$`)
	verboseHourRe = regexp.MustCompile(`(\d+)\s*hours?`)
	verboseMinRe  = regexp.MustCompile(`(\d+)\s*min(?:ute)?s?`)
	verboseSecRe  = regexp.MustCompile(`(\d+)\s*sec(?:ond)?s?`)
)

// ParseDurationSeconds converts a stored duration string to whole seconds.
// Unparseable input yields 0.
func ParseDurationSeconds(text string) int {
	if text == "" {
		return 0
	}

	if m := secondsOnlyRe.FindStringSubmatch(text); m != nil {
		n, err := strconv.Atoi(m[1])
		if err != nil {
			return 0
		}
		return n
	}

	if m := clockRe.FindStringSubmatch(text); m != nil {
		h, _ := strconv.Atoi(m[1])
		min, _ := strconv.Atoi(m[2])
		sec, _ := strconv.Atoi(m[3])
		return h*3600 + min*60 + sec
	}

	total := 0
	matched := false
	if m := verboseHourRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 3600
		matched = true
	}
	if m := verboseMinRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n * 60
		matched = true
	}
	if m := verboseSecRe.FindStringSubmatch(text); m != nil {
		n, _ := strconv.Atoi(m[1])
		total += n
		matched = true
	}
	if !matched {
		return 0
	}
	return total
}

// FormatClock renders seconds as a zero-padded HH:MM:SS string. Hours do
// not wrap: 5 days formats as "120:00:00".
func FormatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// FormatHuman renders seconds compactly for display: "3h 24m", or "24m"
// when under an hour. Minutes are always shown, even "0m".
func FormatHuman(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h := seconds / 3600
	m := (seconds % 3600) / 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm", h, m)
	}
	return fmt.Sprintf("%dm", m)
}

// EffectiveSeconds resolves the duration actually used for display and
// aggregation, in priority order: a parseable stored duration wins, then
// the end−start gap, then elapsed time against now for a running session.
// Clock skew (a start time in the future) clamps to 0 instead of going
// negative. The function is stateless; live counters re-invoke it on every
// tick.
func EffectiveSeconds(session *domain.TimeSession, now time.Time) int {
	if session == nil {
		return 0
	}

	if session.Duration != "" {
		if stored := ParseDurationSeconds(session.Duration); stored > 0 {
			return stored
		}
	}

	if session.EndTime != nil {
		return max(0, int(session.EndTime.Sub(session.StartTime).Seconds()))
	}

	return max(0, int(now.Sub(session.StartTime).Seconds()))
}
