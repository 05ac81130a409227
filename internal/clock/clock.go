// Package clock supplies wall-clock time in the tracker's timezone plus the
// quiet-hours and workday predicates every scheduled component consults.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Clock interface {
	Now() time.Time
}

// Func adapts a plain function to the Clock interface (handy in tests).
type Func func() time.Time

func (f Func) Now() time.Time { return f() }

type system struct {
	loc *time.Location
}

func (s system) Now() time.Time { return time.Now().In(s.loc) }

func NewSystem(loc *time.Location) Clock {
	if loc == nil {
		loc = time.UTC
	}
	return system{loc: loc}
}

// Window is a daily quiet-hours window. A window whose start is later than
// its end crosses midnight (21:00-09:00 covers evening and early morning).
type Window struct {
	startMin int // minutes since midnight
	endMin   int
}

func ParseWindow(start, end string) (Window, error) {
	s, err := parseHHMM(start)
	if err != nil {
		return Window{}, fmt.Errorf("quiet window start: %w", err)
	}
	e, err := parseHHMM(end)
	if err != nil {
		return Window{}, fmt.Errorf("quiet window end: %w", err)
	}
	return Window{startMin: s, endMin: e}, nil
}

func (w Window) Contains(t time.Time) bool {
	m := t.Hour()*60 + t.Minute()
	if w.startMin == w.endMin {
		return false
	}
	if w.startMin < w.endMin {
		return m >= w.startMin && m < w.endMin
	}
	return m >= w.startMin || m < w.endMin
}

// Start and End return the window boundaries as "HH:MM" hour/minute pairs.
func (w Window) Start() (hour, min int) { return w.startMin / 60, w.startMin % 60 }
func (w Window) End() (hour, min int)   { return w.endMin / 60, w.endMin % 60 }

func IsWorkday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

func parseHHMM(s string) (int, error) {
	parts := strings.SplitN(strings.TrimSpace(s), ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("bad hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("bad minute in %q", s)
	}
	return h*60 + m, nil
}
