// Package schedule decides when update cycles run.
//
// A Schedule is an immutable daily or weekly trigger built once from
// configuration. A Runner polls it at a short fixed interval from a single
// loop and runs each cycle inline, so two cycles never overlap.
package schedule

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("blocklist/schedule")

type Frequency string

const (
	Daily  Frequency = "daily"
	Weekly Frequency = "weekly"
)

const (
	defaultHour    = 6
	defaultMinute  = 0
	defaultWeekday = time.Monday
)

var weekdays = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// Schedule is a recurring trigger at a wall-clock time, every day or once a
// week.
type Schedule struct {
	Frequency Frequency
	Hour      int
	Minute    int
	// Weekday is only meaningful for Weekly.
	Weekday time.Weekday
}

// New normalizes operator input into a Schedule. It never fails: an unknown
// frequency means daily, an invalid time means 06:00 and an invalid day means
// Monday. Each fallback is logged as an error.
func New(frequency, hhmm, day string) Schedule {
	s := Schedule{Frequency: Daily, Hour: defaultHour, Minute: defaultMinute, Weekday: defaultWeekday}

	switch f := Frequency(strings.ToLower(strings.TrimSpace(frequency))); f {
	case Daily, Weekly:
		s.Frequency = f
	default:
		log.Errorf("invalid schedule frequency %q, must be daily or weekly. Defaulting to daily", frequency)
	}

	if h, m, err := parseClock(hhmm); err != nil {
		log.Errorf("invalid schedule time %q: %s. Defaulting to %02d:%02d", hhmm, err, defaultHour, defaultMinute)
	} else {
		s.Hour, s.Minute = h, m
	}

	if s.Frequency == Weekly {
		if wd, ok := parseDay(day); ok {
			s.Weekday = wd
		} else {
			log.Errorf("invalid schedule day %q, must be one of mon..sun. Defaulting to Monday", day)
		}
	}

	return s
}

// parseClock accepts H:M with one or two digits per field, so "7:5" is 07:05.
// Signs and inner spaces are rejected.
func parseClock(hhmm string) (int, int, error) {
	hs, ms, ok := strings.Cut(strings.TrimSpace(hhmm), ":")
	if !ok {
		return 0, 0, fmt.Errorf("must be HH:MM")
	}
	h, ok := clockField(hs)
	if !ok || h > 23 {
		return 0, 0, fmt.Errorf("hour out of range")
	}
	m, ok := clockField(ms)
	if !ok || m > 59 {
		return 0, 0, fmt.Errorf("minute out of range")
	}
	return h, m, nil
}

func clockField(s string) (int, bool) {
	if len(s) == 0 || len(s) > 2 {
		return 0, false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}

// parseDay accepts any spelling whose first three letters name a day, so
// "Monday" and "mon" are equivalent.
func parseDay(day string) (time.Weekday, bool) {
	d := strings.ToLower(strings.TrimSpace(day))
	if len(d) < 3 {
		return 0, false
	}
	wd, ok := weekdays[d[:3]]
	return wd, ok
}

// Next returns the first trigger time strictly after after, in after's
// location.
func (s Schedule) Next(after time.Time) time.Time {
	y, mo, d := after.Date()
	next := time.Date(y, mo, d, s.Hour, s.Minute, 0, 0, after.Location())

	step := 1
	if s.Frequency == Weekly {
		step = 7
		days := (int(s.Weekday) - int(next.Weekday()) + 7) % 7
		next = time.Date(y, mo, d+days, s.Hour, s.Minute, 0, 0, after.Location())
	}
	if !next.After(after) {
		y, mo, d = next.Date()
		next = time.Date(y, mo, d+step, s.Hour, s.Minute, 0, 0, after.Location())
	}
	return next
}

func (s Schedule) String() string {
	if s.Frequency == Weekly {
		return fmt.Sprintf("weekly on %s at %02d:%02d", s.Weekday, s.Hour, s.Minute)
	}
	return fmt.Sprintf("daily at %02d:%02d", s.Hour, s.Minute)
}
