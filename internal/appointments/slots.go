package appointments

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenerateSlots enumerates slot start times in [from, to) at the given spacing.
// A slot is only produced when it ends within the window.
func GenerateSlots(from, to string, duration time.Duration) ([]string, error) {
	if duration <= 0 {
		return nil, invalid("slot_duration", "must be positive")
	}
	start, err := ParseClock(from)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(to)
	if err != nil {
		return nil, err
	}
	if !end.After(start) {
		return nil, invalid("working_hours", fmt.Sprintf("%s is not after %s", to, from))
	}

	var slots []string
	for t := start; !t.Add(duration).After(end); t = t.Add(duration) {
		slots = append(slots, t.Format(ClockLayout))
	}
	return slots, nil
}

// FreeSlots removes booked times from all, preserving chronological order.
func FreeSlots(all, booked []string) []string {
	taken := make(map[string]struct{}, len(booked))
	for _, b := range booked {
		if normalized, err := NormalizeClock(b); err == nil {
			taken[normalized] = struct{}{}
		}
	}
	free := make([]string, 0, len(all))
	for _, slot := range all {
		if _, ok := taken[slot]; ok {
			continue
		}
		free = append(free, slot)
	}
	sort.Strings(free)
	return free
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	d, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, invalid("date", "expected YYYY-MM-DD")
	}
	return d, nil
}

// ParseClock parses an HH:MM (or H:MM) start time.
func ParseClock(value string) (time.Time, error) {
	v := strings.TrimSpace(value)
	t, err := time.Parse(ClockLayout, v)
	if err != nil {
		t, err = time.Parse("15:04:05", v)
	}
	if err != nil {
		return time.Time{}, invalid("time", "expected HH:MM")
	}
	return t, nil
}

// NormalizeClock rewrites a parsable time as zero-padded HH:MM.
func NormalizeClock(value string) (string, error) {
	t, err := ParseClock(value)
	if err != nil {
		return "", err
	}
	return t.Format(ClockLayout), nil
}

// containsSlot reports whether slot is one of slots.
func containsSlot(slots []string, slot string) bool {
	for _, s := range slots {
		if s == slot {
			return true
		}
	}
	return false
}
