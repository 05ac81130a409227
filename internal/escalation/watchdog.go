// Package escalation keeps repeating alerts on unassigned high-priority
// tasks until somebody takes them. Alerts pause over the quiet window and
// weekends and the cadence survives both the pause and process restarts.
package escalation

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

type entry struct {
	taskID    string
	topic     string
	createdAt time.Time
	count     int
	timer     *time.Timer
}

type pausedEntry struct {
	taskID         string
	topic          string
	createdAt      time.Time
	count          int
	elapsedAtPause time.Duration
}

// Watchdog owns the escalation registry and the paused set. Registry access
// is mutex-serialized; store and transport I/O never run under the lock.
type Watchdog struct {
	store        *store.Client
	clk          clock.Clock
	quiet        clock.Window
	loc          *time.Location
	notify       func(text string)
	initialDelay time.Duration
	interval     time.Duration

	mu      sync.Mutex
	entries map[string]*entry
	paused  map[string]pausedEntry
}

type Options struct {
	Store        *store.Client
	Clock        clock.Clock
	Quiet        clock.Window
	Location     *time.Location
	Notify       func(text string)
	InitialDelay time.Duration
	Interval     time.Duration
}

func New(opts Options) *Watchdog {
	w := &Watchdog{
		store:        opts.Store,
		clk:          opts.Clock,
		quiet:        opts.Quiet,
		loc:          opts.Location,
		notify:       opts.Notify,
		initialDelay: opts.InitialDelay,
		interval:     opts.Interval,
		entries:      make(map[string]*entry),
		paused:       make(map[string]pausedEntry),
	}
	if w.loc == nil {
		w.loc = time.UTC
	}
	if w.notify == nil {
		w.notify = func(string) {}
	}
	return w
}

// Register starts watching a freshly created High task. The first check
// fires after the initial delay.
func (w *Watchdog) Register(taskID, topic string, createdAt time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[taskID]; ok {
		return
	}
	e := &entry{taskID: taskID, topic: topic, createdAt: createdAt}
	e.timer = time.AfterFunc(w.initialDelay, func() { w.fire(taskID) })
	w.entries[taskID] = e
	log.Printf("[watchdog] watching %s, first check in %s", taskID, w.initialDelay)
}

// Cancel drops the entry for a task that left Unassigned (or vanished).
// After Cancel no further alert mentions the task.
func (w *Watchdog) Cancel(taskID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[taskID]; ok {
		e.timer.Stop()
		delete(w.entries, taskID)
		log.Printf("[watchdog] stopped watching %s", taskID)
	}
	delete(w.paused, taskID)
}

// fire runs one scheduled check. The registry, not the timer, is
// authoritative: a cancel that raced the firing wins here.
func (w *Watchdog) fire(taskID string) {
	w.mu.Lock()
	e, ok := w.entries[taskID]
	w.mu.Unlock()
	if !ok {
		return
	}

	now := w.clk.Now()
	if w.quiet.Contains(now) || !clock.IsWorkday(now) {
		// A firing that slipped into the quiet window parks its entry so
		// ResumeAll restores the cadence at the window's end.
		w.park(taskID, now)
		return
	}

	eligible, err := w.stillEligible(context.Background(), taskID)
	if err != nil {
		log.Printf("[watchdog] check %s: %v", taskID, err)
		w.reschedule(taskID, w.interval)
		return
	}
	if !eligible {
		w.Cancel(taskID)
		return
	}

	w.mu.Lock()
	e, ok = w.entries[taskID]
	if !ok {
		w.mu.Unlock()
		return
	}
	e.count++
	n := e.count
	topic := e.topic
	elapsed := now.Sub(e.createdAt)
	e.timer = time.AfterFunc(w.interval, func() { w.fire(taskID) })
	w.mu.Unlock()

	w.notify(alertText(taskID, topic, elapsed, n))
}

// park moves an active entry into the paused set, recording elapsed time the
// same way PauseAll does.
func (w *Watchdog) park(taskID string, now time.Time) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.entries[taskID]
	if !ok {
		return
	}
	e.timer.Stop()
	w.paused[taskID] = pausedEntry{
		taskID:         taskID,
		topic:          e.topic,
		createdAt:      e.createdAt,
		count:          e.count,
		elapsedAtPause: now.Sub(e.createdAt),
	}
	delete(w.entries, taskID)
}

func (w *Watchdog) reschedule(taskID string, d time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if e, ok := w.entries[taskID]; ok {
		e.timer = time.AfterFunc(d, func() { w.fire(taskID) })
	}
}

// stillEligible re-reads the authoritative row: only an existing
// Unassigned High task keeps its escalation.
func (w *Watchdog) stillEligible(ctx context.Context, taskID string) (bool, error) {
	rows, err := w.store.FreshRows(ctx)
	if err != nil {
		return false, fmt.Errorf("read store: %w", err)
	}
	idx := task.FindRow(rows, taskID)
	if idx == 0 {
		return false, nil
	}
	t := task.FromRow(rows[idx-1])
	return t.Status == task.StatusUnassigned && t.Priority == task.PriorityHigh, nil
}

// PauseAll cancels every active timer at the quiet-hours boundary, recording
// elapsed time so ResumeAll can restore the original cadence.
func (w *Watchdog) PauseAll() {
	now := w.clk.Now()
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range w.entries {
		e.timer.Stop()
		w.paused[id] = pausedEntry{
			taskID:         id,
			topic:          e.topic,
			createdAt:      e.createdAt,
			count:          e.count,
			elapsedAtPause: now.Sub(e.createdAt),
		}
		delete(w.entries, id)
	}
	if len(w.paused) > 0 {
		log.Printf("[watchdog] paused %d escalations", len(w.paused))
	}
}

// ResumeAll reinstates paused entries so the next firing lands on the next
// boundary of the pre-pause cadence, not a full fresh interval.
func (w *Watchdog) ResumeAll() {
	w.mu.Lock()
	defer w.mu.Unlock()
	resumed := 0
	for id, p := range w.paused {
		e := &entry{taskID: p.taskID, topic: p.topic, createdAt: p.createdAt, count: p.count}
		delay := w.nextDelay(p.elapsedAtPause)
		taskID := id
		e.timer = time.AfterFunc(delay, func() { w.fire(taskID) })
		w.entries[id] = e
		delete(w.paused, id)
		resumed++
	}
	if resumed > 0 {
		log.Printf("[watchdog] resumed %d escalations", resumed)
	}
}

// nextDelay places the next check on the cadence grid
// (initialDelay + k*interval from creation) given active elapsed time.
func (w *Watchdog) nextDelay(elapsed time.Duration) time.Duration {
	if elapsed < w.initialDelay {
		return w.initialDelay - elapsed
	}
	rem := (elapsed - w.initialDelay) % w.interval
	return w.interval - rem
}

// Recover rebuilds the registry from the store after a restart. Tasks whose
// age already passed the initial delay get one catch-up alert immediately
// and their next check at the correct phase of the original cadence. A
// restart during quiet hours or a weekend parks everything in the paused set
// instead, silent until ResumeAll.
func (w *Watchdog) Recover(ctx context.Context) error {
	rows, err := w.store.FreshRows(ctx)
	if err != nil {
		return fmt.Errorf("recover escalations: %w", err)
	}

	now := w.clk.Now()
	inQuiet := w.quiet.Contains(now) || !clock.IsWorkday(now)
	recovered := 0
	for _, t := range task.ParseAll(rows) {
		if t.Status != task.StatusUnassigned || t.Priority != task.PriorityHigh {
			continue
		}
		createdAt, err := t.CreatedAt(w.loc)
		if err != nil {
			log.Printf("[watchdog] skip %s: bad creation stamp %q", t.ID, t.CreatedStamp())
			continue
		}
		elapsed := now.Sub(createdAt)

		w.mu.Lock()
		if _, ok := w.entries[t.ID]; ok {
			w.mu.Unlock()
			continue
		}
		if _, ok := w.paused[t.ID]; ok {
			w.mu.Unlock()
			continue
		}
		if inQuiet {
			// A restart inside the quiet window parks the entry right away;
			// the catch-up alert waits for the first firing after ResumeAll.
			w.paused[t.ID] = pausedEntry{
				taskID:         t.ID,
				topic:          t.Topic,
				createdAt:      createdAt,
				elapsedAtPause: elapsed,
			}
			w.mu.Unlock()
			recovered++
			continue
		}
		e := &entry{taskID: t.ID, topic: t.Topic, createdAt: createdAt}
		taskID := t.ID
		if elapsed >= w.initialDelay {
			// The catch-up alert joins the sequence as notification #1.
			e.count = 1
			e.timer = time.AfterFunc(w.nextDelay(elapsed), func() { w.fire(taskID) })
			w.entries[t.ID] = e
			w.mu.Unlock()
			w.notify(alertText(t.ID, t.Topic, elapsed, 1))
		} else {
			e.timer = time.AfterFunc(w.initialDelay-elapsed, func() { w.fire(taskID) })
			w.entries[t.ID] = e
			w.mu.Unlock()
		}
		recovered++
	}
	log.Printf("[watchdog] recovered %d escalations from store", recovered)
	return nil
}

// Stop cancels all timers; used at shutdown.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range w.entries {
		e.timer.Stop()
		delete(w.entries, id)
	}
}

// ActiveCount and PausedCount expose registry sizes for status reporting.
func (w *Watchdog) ActiveCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.entries)
}

func (w *Watchdog) PausedCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.paused)
}

func alertText(taskID, topic string, elapsed time.Duration, n int) string {
	return fmt.Sprintf("🔔 %s не распределена уже %d мин — %s (напоминание №%d)",
		taskID, int(elapsed.Minutes()), topic, n)
}
