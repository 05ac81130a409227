// Package stale flags in-progress work that outlived its priority's time
// budget. The monitor only reports; it never mutates task state and it does
// not remember what it already reported — every scan recomputes from scratch.
package stale

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

// Budgets holds the per-priority age limits for in-progress tasks.
type Budgets struct {
	High   time.Duration
	Medium time.Duration
	Low    time.Duration
}

func (b Budgets) For(p task.Priority) time.Duration {
	switch p {
	case task.PriorityHigh:
		return b.High
	case task.PriorityLow:
		return b.Low
	default:
		return b.Medium
	}
}

// Overdue pairs a stale task with how far past its budget it is.
type Overdue struct {
	Task    task.Task
	Age     time.Duration
	Budget  time.Duration
	Overage time.Duration
}

type Monitor struct {
	store    *store.Client
	clk      clock.Clock
	quiet    clock.Window
	loc      *time.Location
	budgets  Budgets
	interval time.Duration
	notify   func(text string)
}

type Options struct {
	Store    *store.Client
	Clock    clock.Clock
	Quiet    clock.Window
	Location *time.Location
	Budgets  Budgets
	Interval time.Duration
	Notify   func(text string)
}

func New(opts Options) *Monitor {
	m := &Monitor{
		store:    opts.Store,
		clk:      opts.Clock,
		quiet:    opts.Quiet,
		loc:      opts.Location,
		budgets:  opts.Budgets,
		interval: opts.Interval,
		notify:   opts.Notify,
	}
	if m.loc == nil {
		m.loc = time.UTC
	}
	if m.notify == nil {
		m.notify = func(string) {}
	}
	return m
}

// Start runs the periodic scan until ctx is done. Scans are skipped outside
// workdays and inside the quiet window.
func (m *Monitor) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		log.Printf("[stale] monitor started, scanning every %s", m.interval)
		for {
			select {
			case <-ticker.C:
				now := m.clk.Now()
				if !clock.IsWorkday(now) || m.quiet.Contains(now) {
					continue
				}
				m.runScan(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (m *Monitor) runScan(ctx context.Context) {
	overdue, err := m.Scan(ctx)
	if err != nil {
		log.Printf("[stale] scan: %v", err)
		return
	}
	if len(overdue) == 0 {
		return
	}
	m.notify(Report(overdue))
}

// Scan returns every InProgress task older than its budget, most overdue
// first. Operational tasks are exempt; rows with unparseable assignment
// stamps are skipped, never fatal.
func (m *Monitor) Scan(ctx context.Context) ([]Overdue, error) {
	rows, err := m.store.Rows(ctx)
	if err != nil {
		return nil, fmt.Errorf("read store: %w", err)
	}

	now := m.clk.Now()
	var overdue []Overdue
	for _, t := range task.ParseAll(rows) {
		if t.Status != task.StatusInProgress {
			continue
		}
		assignedAt, err := t.AssignedTime(m.loc)
		if err != nil {
			log.Printf("[stale] skip %s: bad assignment stamp %q", t.ID, t.AssignedAt)
			continue
		}
		age := now.Sub(assignedAt)
		budget := m.budgets.For(t.Priority)
		if age <= budget {
			continue
		}
		overdue = append(overdue, Overdue{
			Task:    t,
			Age:     age,
			Budget:  budget,
			Overage: age - budget,
		})
	}

	sort.Slice(overdue, func(i, j int) bool {
		return overdue[i].Overage > overdue[j].Overage
	})
	return overdue, nil
}

// Report renders one batch message for a scan's findings.
func Report(overdue []Overdue) string {
	lines := []string{fmt.Sprintf("⏳ Зависшие задачи (%d):", len(overdue)), ""}
	for _, o := range overdue {
		line := fmt.Sprintf("• %s [%s] — %s — в работе %s (лимит %s, просрочка %s)",
			o.Task.ID, o.Task.Priority, o.Task.Topic,
			FormatDuration(o.Age), FormatDuration(o.Budget), FormatDuration(o.Overage))
		if o.Task.Executor != "" {
			line += " — " + o.Task.Executor
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// FormatDuration renders a duration as "5ч 30м" / "45м".
func FormatDuration(d time.Duration) string {
	total := int(d.Minutes())
	h := total / 60
	m := total % 60
	if h == 0 {
		return fmt.Sprintf("%dм", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dч", h)
	}
	return fmt.Sprintf("%dч %dм", h, m)
}
