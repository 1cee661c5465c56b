package dialer

import (
	"fmt"
	"strings"
	"time"

	"github.com/acme/outbound-dialer/internal/config"
)

var weekdays = map[string]time.Weekday{
	"sun": time.Sunday,
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
}

// Window is a recurring daily calling window. A nil Window is always open.
type Window struct {
	loc   *time.Location
	start int
	end   int
	days  map[time.Weekday]bool
}

// ParseWindow builds a Window from configuration. It returns nil when no
// start time is configured.
func ParseWindow(cfg config.CallingHours) (*Window, error) {
	if strings.TrimSpace(cfg.Start) == "" {
		return nil, nil
	}
	loc := time.UTC
	if cfg.TimeZone != "" {
		l, err := time.LoadLocation(cfg.TimeZone)
		if err != nil {
			return nil, fmt.Errorf("dialer: calling hours time zone: %w", err)
		}
		loc = l
	}
	start, err := minuteOfDay(cfg.Start)
	if err != nil {
		return nil, err
	}
	end, err := minuteOfDay(cfg.End)
	if err != nil {
		return nil, err
	}

	w := &Window{loc: loc, start: start, end: end, days: make(map[time.Weekday]bool)}
	for _, d := range cfg.Days {
		day, ok := parseDay(d)
		if !ok {
			return nil, fmt.Errorf("dialer: unknown calling day %q", d)
		}
		w.days[day] = true
	}
	if len(w.days) == 0 {
		for _, day := range weekdays {
			w.days[day] = true
		}
	}
	return w, nil
}

// parseDay accepts "mon", "Monday" and similar spellings.
func parseDay(raw string) (time.Weekday, bool) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if len(d) < 3 {
		return 0, false
	}
	day, ok := weekdays[d[:3]]
	return day, ok
}

func minuteOfDay(hhmm string) (int, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(hhmm))
	if err != nil {
		return 0, fmt.Errorf("dialer: calling hours %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// Contains reports whether t falls inside the window. For a window that
// spans midnight the day list refers to the day the window opens.
func (w *Window) Contains(t time.Time) bool {
	if w == nil {
		return true
	}
	local := t.In(w.loc)
	minute := local.Hour()*60 + local.Minute()
	weekday := local.Weekday()

	if w.end <= w.start {
		if w.days[weekday] && minute >= w.start {
			return true
		}
		yesterday := (weekday + 6) % 7
		return w.days[yesterday] && minute < w.end
	}
	return w.days[weekday] && minute >= w.start && minute < w.end
}
