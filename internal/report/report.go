// Package report builds the tracker's summary texts from a table snapshot.
// Every function is pure: tasks in, string out.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/rpz-tools/taskbot/internal/stale"
	"github.com/rpz-tools/taskbot/internal/task"
)

// Today groups today's tasks by status and executor, with a trailing block
// of unassigned carry-overs from previous days.
func Today(tasks []task.Task, today string) string {
	var pending []string
	inProgress := map[string][]string{}
	var progressOrder []string
	completed := map[string][]string{}
	var completedOrder []string

	for _, t := range tasks {
		if t.CreatedDate != today {
			continue
		}
		line := fmt.Sprintf("• %s %s", t.ID, t.Topic)
		switch t.Status {
		case task.StatusUnassigned:
			pending = append(pending, line)
		case task.StatusInProgress, task.StatusOperational:
			if _, ok := inProgress[t.Executor]; !ok {
				progressOrder = append(progressOrder, t.Executor)
			}
			inProgress[t.Executor] = append(inProgress[t.Executor], line)
		case task.StatusDone:
			if _, ok := completed[t.Executor]; !ok {
				completedOrder = append(completedOrder, t.Executor)
			}
			completed[t.Executor] = append(completed[t.Executor], line)
		}
	}

	var overdue []string
	for _, t := range tasks {
		if t.Status == task.StatusUnassigned && t.CreatedDate != today {
			overdue = append(overdue, fmt.Sprintf("• %s %s", t.ID, t.Topic))
		}
	}

	lines := []string{fmt.Sprintf("📅 Дата: %s", today), ""}
	if len(pending) > 0 {
		lines = append(lines, "⏳ Не распределено:")
		lines = append(lines, pending...)
		lines = append(lines, "")
	}
	if len(progressOrder) > 0 {
		lines = append(lines, "🔄 В работе:")
		for _, executor := range progressOrder {
			lines = append(lines, displayExecutor(executor))
			lines = append(lines, inProgress[executor]...)
		}
		lines = append(lines, "")
	}
	if len(completedOrder) > 0 {
		lines = append(lines, "✅ Выполнено:")
		for _, executor := range completedOrder {
			lines = append(lines, displayExecutor(executor))
			lines = append(lines, completed[executor]...)
		}
		lines = append(lines, "")
	}
	if len(overdue) > 0 {
		lines = append(lines, "⚠️ Просроченные (нераспределённые за прошлые дни):")
		lines = append(lines, overdue...)
	}

	if len(lines) <= 2 {
		return "📅 Нет задач за сегодня."
	}
	return strings.Join(lines, "\n")
}

func displayExecutor(executor string) string {
	if executor == "" {
		return "—"
	}
	if strings.HasPrefix(executor, "@") {
		return executor
	}
	return "@" + executor
}

// Pending lists every unassigned task, numbered.
func Pending(tasks []task.Task) string {
	var pending []task.Task
	for _, t := range tasks {
		if t.Status == task.StatusUnassigned {
			pending = append(pending, t)
		}
	}
	if len(pending) == 0 {
		return "⏳ Нет нераспределённых задач."
	}
	lines := []string{"⏳ Нераспределённые задачи:", ""}
	for i, t := range pending {
		lines = append(lines, fmt.Sprintf("%d. %s %s", i+1, t.ID, t.Topic))
	}
	return strings.Join(lines, "\n")
}

// Stats sums the whole table plus today's creations.
func Stats(tasks []task.Task, today string) string {
	total := len(tasks)
	var done, pending, createdToday int
	for _, t := range tasks {
		switch t.Status {
		case task.StatusDone:
			done++
		case task.StatusUnassigned:
			pending++
		}
		if t.CreatedDate == today {
			createdToday++
		}
	}
	inProgress := total - done - pending

	return strings.Join([]string{
		"📊 Статистика по задачам",
		"",
		fmt.Sprintf("Всего задач: %d", total),
		fmt.Sprintf("✅ Выполнено: %d", done),
		fmt.Sprintf("🔄 В работе: %d", inProgress),
		fmt.Sprintf("⏳ Не распределено: %d", pending),
		fmt.Sprintf("📅 Создано сегодня: %d", createdToday),
	}, "\n")
}

// Daily is the evening report for the ops channel.
func Daily(tasks []task.Task, today string) string {
	var created, assigned, completed, open int
	for _, t := range tasks {
		if t.CreatedDate == today {
			created++
			if t.Status != task.StatusDone {
				open++
			}
		}
		if strings.HasPrefix(t.AssignedAt, today) {
			assigned++
		}
		if strings.HasPrefix(t.CompletedAt, today) {
			completed++
		}
	}
	return strings.Join([]string{
		fmt.Sprintf("📆 Отчёт за %s", today),
		"",
		fmt.Sprintf("📥 Создано задач: %d", created),
		fmt.Sprintf("📤 Назначено: %d", assigned),
		fmt.Sprintf("✅ Выполнено: %d", completed),
		fmt.Sprintf("⏳ В работе / не распределено: %d", open),
	}, "\n")
}

// NonUrgent lists unassigned tasks that are not high priority; the watchdog
// covers the high ones.
func NonUrgent(tasks []task.Task) string {
	var items []string
	for _, t := range tasks {
		if t.Status == task.StatusUnassigned && t.Priority != task.PriorityHigh {
			items = append(items, fmt.Sprintf("• %s [%s] %s", t.ID, t.Priority, t.Topic))
		}
	}
	if len(items) == 0 {
		return ""
	}
	lines := append([]string{fmt.Sprintf("📋 Нераспределённые несрочные задачи (%d):", len(items)), ""}, items...)
	return strings.Join(lines, "\n")
}

// OverdueUnassigned lists unassigned tasks created before today.
func OverdueUnassigned(tasks []task.Task, today string) string {
	var items []string
	for _, t := range tasks {
		if t.Status == task.StatusUnassigned && t.CreatedDate != "" && t.CreatedDate < today {
			items = append(items, fmt.Sprintf("• %s (%s) %s", t.ID, t.CreatedDate, t.Topic))
		}
	}
	if len(items) == 0 {
		return ""
	}
	lines := append([]string{fmt.Sprintf("⚠️ Просроченные нераспределённые задачи (%d):", len(items)), ""}, items...)
	return strings.Join(lines, "\n")
}

// WeekMetrics are the aggregate counts the weekly digest reports and the
// analytics log records.
type WeekMetrics struct {
	WeekStart   string
	Created     int
	Assigned    int
	Completed   int
	Overdue     int
	Stale       int
	Operational int
}

// Weekly computes metrics for the 7 days ending at now and renders the
// digest text. Stale counting reuses the monitor's budgets.
func Weekly(tasks []task.Task, now time.Time, loc *time.Location, budgets stale.Budgets) (string, WeekMetrics) {
	weekStart := now.AddDate(0, 0, -7)
	m := WeekMetrics{WeekStart: weekStart.Format(task.DateLayout)}

	inWeek := func(stamp string) bool {
		t, err := time.ParseInLocation(task.StampLayout, stamp, loc)
		if err != nil {
			return false
		}
		return !t.Before(weekStart) && !t.After(now)
	}

	for _, t := range tasks {
		if created, err := t.CreatedAt(loc); err == nil &&
			!created.Before(weekStart) && !created.After(now) {
			m.Created++
		}
		if t.AssignedAt != "" && inWeek(t.AssignedAt) {
			m.Assigned++
		}
		if t.CompletedAt != "" && inWeek(t.CompletedAt) {
			m.Completed++
		}
		switch t.Status {
		case task.StatusUnassigned:
			if t.CreatedDate != "" && t.CreatedDate < now.Format(task.DateLayout) {
				m.Overdue++
			}
		case task.StatusOperational:
			m.Operational++
		case task.StatusInProgress:
			if assignedAt, err := t.AssignedTime(loc); err == nil &&
				now.Sub(assignedAt) > budgets.For(t.Priority) {
				m.Stale++
			}
		}
	}

	text := strings.Join([]string{
		fmt.Sprintf("📈 Итоги недели с %s", m.WeekStart),
		"",
		fmt.Sprintf("📥 Создано задач: %d", m.Created),
		fmt.Sprintf("📤 Назначено: %d", m.Assigned),
		fmt.Sprintf("✅ Выполнено: %d", m.Completed),
		fmt.Sprintf("⚠️ Просроченных нераспределённых: %d", m.Overdue),
		fmt.Sprintf("⏳ Зависших в работе: %d", m.Stale),
		fmt.Sprintf("♻️ Операционных: %d", m.Operational),
	}, "\n")
	return text, m
}

// Thresholds reports the currently effective stale budgets.
func Thresholds(budgets stale.Budgets, scanInterval time.Duration) string {
	return strings.Join([]string{
		"⚙️ Лимиты времени в работе:",
		"",
		fmt.Sprintf("Высокий: %s", stale.FormatDuration(budgets.High)),
		fmt.Sprintf("Средний: %s", stale.FormatDuration(budgets.Medium)),
		fmt.Sprintf("Низкий: %s", stale.FormatDuration(budgets.Low)),
		"",
		fmt.Sprintf("Проверка каждые %s", stale.FormatDuration(scanInterval)),
	}, "\n")
}
