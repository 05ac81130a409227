package stale

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rpz-tools/taskbot/internal/clock"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

func testBudgets() Budgets {
	return Budgets{High: 2 * time.Hour, Medium: 5 * time.Hour, Low: 8 * time.Hour}
}

func TestBudgets_For(t *testing.T) {
	b := testBudgets()
	if b.For(task.PriorityHigh) != 2*time.Hour {
		t.Error("high budget")
	}
	if b.For(task.PriorityLow) != 8*time.Hour {
		t.Error("low budget")
	}
	if b.For(task.Priority("что-то")) != 5*time.Hour {
		t.Error("unknown priority should use the medium budget")
	}
}

func newMonitorFixture(t *testing.T, rows []task.Task) *Monitor {
	t.Helper()
	fs := store.NewFileStore(filepath.Join(t.TempDir(), "tasks.csv"))
	for _, tk := range rows {
		if err := fs.Append(context.Background(), tk.Row()); err != nil {
			t.Fatal(err)
		}
	}
	clk := clock.Func(func() time.Time {
		return time.Date(2024, 3, 11, 18, 0, 0, 0, time.UTC)
	})
	quiet, _ := clock.ParseWindow("21:00", "09:00")
	return New(Options{
		Store:    store.NewClient(fs, time.Minute, clk),
		Clock:    clk,
		Quiet:    quiet,
		Location: time.UTC,
		Budgets:  testBudgets(),
		Interval: 30 * time.Minute,
	})
}

func inProgress(id string, priority task.Priority, assignedAt string) task.Task {
	return task.Task{
		ID:          id,
		CreatedDate: "2024-03-11",
		CreatedTime: "09:00:00",
		Topic:       "Тема " + id,
		Executor:    "Иван",
		Status:      task.StatusInProgress,
		AssignedAt:  assignedAt,
		Priority:    priority,
	}
}

func TestMonitor_ScanFindsOverdue(t *testing.T) {
	m := newMonitorFixture(t, []task.Task{
		// Medium, in work 6h against a 5h budget: 1h over.
		inProgress("TASK-0001", task.PriorityMedium, "2024-03-11 12:00:00"),
		// High, in work 5h against a 2h budget: 3h over.
		inProgress("TASK-0002", task.PriorityHigh, "2024-03-11 13:00:00"),
		// Medium, in work 1h: inside budget.
		inProgress("TASK-0003", task.PriorityMedium, "2024-03-11 17:00:00"),
		// Operational tasks are exempt however old.
		{
			ID: "TASK-0004", CreatedDate: "2024-03-11", CreatedTime: "09:00:00",
			Status: task.StatusOperational, AssignedAt: "2024-03-10 09:00:00",
			Priority: task.PriorityMedium,
		},
		// Done tasks are exempt.
		{
			ID: "TASK-0005", CreatedDate: "2024-03-11", CreatedTime: "09:00:00",
			Status: task.StatusDone, AssignedAt: "2024-03-10 09:00:00",
			Priority: task.PriorityMedium,
		},
	})

	overdue, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(overdue) != 2 {
		t.Fatalf("got %d overdue, want 2: %+v", len(overdue), overdue)
	}
	// Sorted by overage, worst first.
	if overdue[0].Task.ID != "TASK-0002" {
		t.Errorf("first = %s, want the 3h-over task", overdue[0].Task.ID)
	}
	if overdue[0].Overage != 3*time.Hour {
		t.Errorf("overage = %s, want 3h", overdue[0].Overage)
	}
	if overdue[1].Task.ID != "TASK-0001" || overdue[1].Overage != time.Hour {
		t.Errorf("second = %s over %s", overdue[1].Task.ID, overdue[1].Overage)
	}
}

func TestMonitor_ScanSkipsBadStamp(t *testing.T) {
	m := newMonitorFixture(t, []task.Task{
		inProgress("TASK-0001", task.PriorityMedium, "вчера, примерно"),
	})
	overdue, err := m.Scan(context.Background())
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if len(overdue) != 0 {
		t.Errorf("overdue = %+v, bad stamp should be skipped", overdue)
	}
}

func TestReport_Format(t *testing.T) {
	got := Report([]Overdue{{
		Task: task.Task{
			ID: "TASK-0002", Topic: "Сервер", Priority: task.PriorityHigh,
			Executor: "Иван",
		},
		Age:     5 * time.Hour,
		Budget:  2 * time.Hour,
		Overage: 3 * time.Hour,
	}})

	for _, part := range []string{
		"⏳ Зависшие задачи (1):",
		"TASK-0002 [Высокий] — Сервер",
		"в работе 5ч (лимит 2ч, просрочка 3ч)",
		"— Иван",
	} {
		if !strings.Contains(got, part) {
			t.Errorf("report missing %q:\n%s", part, got)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{45 * time.Minute, "45м"},
		{2 * time.Hour, "2ч"},
		{5*time.Hour + 30*time.Minute, "5ч 30м"},
		{0, "0м"},
	}
	for _, tt := range tests {
		if got := FormatDuration(tt.d); got != tt.want {
			t.Errorf("FormatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
