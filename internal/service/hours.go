package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mesaflow/api/internal/database"
)

// NextOpening is the earliest future moment a business opens again.
type NextOpening struct {
	Day       time.Weekday `json:"day"`
	StartTime string       `json:"startTime"`
}

// IsBusinessOpen evaluates weekly opening hours against now. Both interval
// ends are inclusive. An interval whose start is later than its end wraps
// past midnight into the next day, so Friday 18:00-03:00 covers Saturday
// 02:00 as well.
func IsBusinessOpen(hours []database.BusinessHour, now time.Time) bool {
	cur := now.Hour()*60 + now.Minute()
	today := int32(now.Weekday())
	yesterday := (today + 6) % 7

	for _, h := range hours {
		start, err := parseClock(h.StartTime)
		if err != nil {
			continue
		}
		end, err := parseClock(h.EndTime)
		if err != nil {
			continue
		}
		switch {
		case h.Day == today && start <= end:
			if cur >= start && cur <= end {
				return true
			}
		case h.Day == today && start > end:
			if cur >= start {
				return true
			}
		case h.Day == yesterday && start > end:
			if cur <= end {
				return true
			}
		}
	}
	return false
}

// NextOpeningTime scans up to a week ahead for the earliest interval start
// strictly after now. Returns nil when the business never opens.
func NextOpeningTime(hours []database.BusinessHour, now time.Time) *NextOpening {
	cur := now.Hour()*60 + now.Minute()
	today := int32(now.Weekday())

	for offset := int32(0); offset < 7; offset++ {
		day := (today + offset) % 7
		best := -1
		for _, h := range hours {
			if h.Day != day {
				continue
			}
			start, err := parseClock(h.StartTime)
			if err != nil {
				continue
			}
			if offset == 0 && start <= cur {
				continue
			}
			if best == -1 || start < best {
				best = start
			}
		}
		if best != -1 {
			return &NextOpening{
				Day:       time.Weekday(day),
				StartTime: fmt.Sprintf("%02d:%02d", best/60, best%60),
			}
		}
	}
	return nil
}

// parseClock converts "HH:MM" to minutes since midnight.
func parseClock(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	hh, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	mm, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	if hh < 0 || hh > 23 || mm < 0 || mm > 59 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return hh*60 + mm, nil
}
