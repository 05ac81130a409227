// Package digest runs the tracker's scheduled jobs: morning summary, evening
// report, overdue and non-urgent reminders, the weekly digest, and the quiet
// hours boundary that pauses and resumes escalation timers.
package digest

import (
	"context"
	"fmt"
	"log"
	"time"

	rcron "github.com/robfig/cron/v3"

	"github.com/rpz-tools/taskbot/internal/analytics"
	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/config"
	"github.com/rpz-tools/taskbot/internal/escalation"
	"github.com/rpz-tools/taskbot/internal/report"
	"github.com/rpz-tools/taskbot/internal/stale"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

// Service owns the cron runner and the job bodies.
type Service struct {
	store   *store.Client
	watch   *escalation.Watchdog
	metrics *analytics.Log
	clk     clock.Clock
	loc     *time.Location
	quiet   clock.Window
	budgets stale.Budgets
	reports config.ReportsConfig

	// Notify posts to the ops channel.
	Notify func(text string)
	// Announce posts to the discussion chat.
	Announce func(text string)

	cron *rcron.Cron
}

type Options struct {
	Store    *store.Client
	Watchdog *escalation.Watchdog
	Metrics  *analytics.Log
	Clock    clock.Clock
	Location *time.Location
	Quiet    clock.Window
	Budgets  stale.Budgets
	Reports  config.ReportsConfig
	Notify   func(text string)
	Announce func(text string)
}

func New(opts Options) *Service {
	return &Service{
		store:    opts.Store,
		watch:    opts.Watchdog,
		metrics:  opts.Metrics,
		clk:      opts.Clock,
		loc:      opts.Location,
		quiet:    opts.Quiet,
		budgets:  opts.Budgets,
		reports:  opts.Reports,
		Notify:   opts.Notify,
		Announce: opts.Announce,
	}
}

// Start registers all jobs and starts the cron runner.
func (s *Service) Start(ctx context.Context) error {
	s.cron = rcron.New(rcron.WithSeconds(), rcron.WithLocation(s.loc))

	jobs := []struct {
		name string
		expr string
		run  func(context.Context)
	}{
		{"morning summary", dailyExpr(s.reports.MorningTime), s.morningSummary},
		{"daily report", dailyExpr(s.reports.DailyTime), s.dailyReport},
		{"overdue check", dailyExpr(s.reports.OverdueTime), s.overdueCheck},
		{"weekly digest", weeklyExpr(s.reports.WeeklyTime, s.reports.WeeklyWeekday), s.weeklyDigest},
		{"non-urgent reminder", everyExpr(config.Duration(s.reports.NonUrgentEvery, 4*time.Hour)), s.nonUrgentReminder},
		{"quiet start", atExpr(s.quiet.Start), s.quietStart},
		{"quiet end", atExpr(s.quiet.End), s.quietEnd},
	}

	for _, j := range jobs {
		j := j
		if _, err := s.cron.AddFunc(j.expr, func() {
			jobCtx, cancel := context.WithTimeout(ctx, time.Minute)
			defer cancel()
			j.run(jobCtx)
		}); err != nil {
			return fmt.Errorf("register %s (%s): %w", j.name, j.expr, err)
		}
	}

	s.cron.Start()
	log.Printf("[digest] started with %d jobs", len(jobs))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Stop halts the cron runner and waits for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

func dailyExpr(hhmm string) string {
	var h, m int
	fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return fmt.Sprintf("0 %d %d * * *", m, h)
}

func weeklyExpr(hhmm string, weekday int) string {
	var h, m int
	fmt.Sscanf(hhmm, "%d:%d", &h, &m)
	return fmt.Sprintf("0 %d %d * * %d", m, h, weekday)
}

func everyExpr(d time.Duration) string {
	return "@every " + d.String()
}

func atExpr(hm func() (int, int)) string {
	h, m := hm()
	return fmt.Sprintf("0 %d %d * * *", m, h)
}

func (s *Service) loadTasks(ctx context.Context) ([]task.Task, bool) {
	rows, err := s.store.FreshRows(ctx)
	if err != nil {
		log.Printf("[digest] load tasks: %v", err)
		s.Notify("⚠️ Не удалось загрузить таблицу задач для отчёта.")
		return nil, false
	}
	return task.ParseAll(rows), true
}

func (s *Service) morningSummary(ctx context.Context) {
	if !clock.IsWorkday(s.clk.Now()) {
		return
	}
	tasks, ok := s.loadTasks(ctx)
	if !ok {
		return
	}
	today := s.clk.Now().Format(task.DateLayout)
	s.Notify("☀️ Доброе утро!\n\n" + report.Today(tasks, today))
}

func (s *Service) dailyReport(ctx context.Context) {
	tasks, ok := s.loadTasks(ctx)
	if !ok {
		return
	}
	s.Notify(report.Daily(tasks, s.clk.Now().Format(task.DateLayout)))
}

func (s *Service) overdueCheck(ctx context.Context) {
	if !clock.IsWorkday(s.clk.Now()) {
		return
	}
	tasks, ok := s.loadTasks(ctx)
	if !ok {
		return
	}
	if text := report.OverdueUnassigned(tasks, s.clk.Now().Format(task.DateLayout)); text != "" {
		s.Notify(text)
	}
}

func (s *Service) nonUrgentReminder(ctx context.Context) {
	now := s.clk.Now()
	if !clock.IsWorkday(now) || s.quiet.Contains(now) {
		return
	}
	tasks, ok := s.loadTasks(ctx)
	if !ok {
		return
	}
	if text := report.NonUrgent(tasks); text != "" {
		s.Notify(text)
	}
}

func (s *Service) weeklyDigest(ctx context.Context) {
	tasks, ok := s.loadTasks(ctx)
	if !ok {
		return
	}
	text, m := report.Weekly(tasks, s.clk.Now(), s.loc, s.budgets)
	s.Notify(text)
	if s.metrics != nil {
		if err := s.metrics.Record(ctx, m); err != nil {
			log.Printf("[digest] record weekly metrics: %v", err)
		}
	}
}

func (s *Service) quietStart(ctx context.Context) {
	s.watch.PauseAll()
	log.Printf("[digest] quiet hours: paused %d escalation timers", s.watch.PausedCount())
	s.Announce("🌙 Тихие часы. Напоминания приостановлены до утра.")
}

func (s *Service) quietEnd(ctx context.Context) {
	s.watch.ResumeAll()
	log.Printf("[digest] quiet hours over: resumed %d escalation timers", s.watch.ActiveCount())
	s.Announce("☀️ Тихие часы закончились. Напоминания возобновлены.")
}
