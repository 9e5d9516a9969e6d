package markethours

import (
	"fmt"
	"strings"
	"time"

	"github.com/Alias1177/signalwatch/internal/config"
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

type window struct {
	days       map[time.Weekday]bool // nil means every day
	start, end int                   // minutes of day
}

// Gate reports whether monitoring should run at a given instant.
// A gate without windows is always open.
type Gate struct {
	loc     *time.Location
	windows []window
}

// New builds a gate from the configured windows.
func New(cfg config.TradingHoursConfig) (*Gate, error) {
	tz := cfg.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", tz, err)
	}

	g := &Gate{loc: loc}
	for i, w := range cfg.Windows {
		start, err := parseClock(w.Start)
		if err != nil {
			return nil, fmt.Errorf("window %d start: %w", i, err)
		}
		end, err := parseClock(w.End)
		if err != nil {
			return nil, fmt.Errorf("window %d end: %w", i, err)
		}
		win := window{start: start, end: end}
		if len(w.Days) > 0 {
			win.days = make(map[time.Weekday]bool, len(w.Days))
			for _, d := range w.Days {
				wd, ok := weekdays[strings.ToLower(d)]
				if !ok {
					return nil, fmt.Errorf("window %d: unknown day %q", i, d)
				}
				win.days[wd] = true
			}
		}
		g.windows = append(g.windows, win)
	}
	return g, nil
}

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, err
	}
	return t.Hour()*60 + t.Minute(), nil
}

// IsOpen returns true if t falls inside any window. Start is inclusive and
// end exclusive; a window whose end precedes its start wraps past midnight
// and belongs to the day it starts on.
func (g *Gate) IsOpen(t time.Time) bool {
	if len(g.windows) == 0 {
		return true
	}
	local := t.In(g.loc)
	hm := local.Hour()*60 + local.Minute()
	today := local.Weekday()
	yesterday := (today + 6) % 7

	for _, w := range g.windows {
		switch {
		case w.start == w.end:
			if w.allows(today) {
				return true
			}
		case w.start < w.end:
			if w.allows(today) && hm >= w.start && hm < w.end {
				return true
			}
		default:
			if w.allows(today) && hm >= w.start {
				return true
			}
			if w.allows(yesterday) && hm < w.end {
				return true
			}
		}
	}
	return false
}

func (w window) allows(d time.Weekday) bool {
	return w.days == nil || w.days[d]
}
