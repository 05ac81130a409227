package analytics

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/rpz-tools/taskbot/internal/report"
)

func openTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Close() })
	return l
}

func TestLog_RecordAndLast(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	weeks := []report.WeekMetrics{
		{WeekStart: "2024-03-04", Created: 5, Assigned: 4, Completed: 3, Overdue: 1, Stale: 0, Operational: 2},
		{WeekStart: "2024-03-11", Created: 7, Assigned: 6, Completed: 5, Overdue: 2, Stale: 1, Operational: 1},
	}
	for _, m := range weeks {
		if err := l.Record(ctx, m); err != nil {
			t.Fatalf("Record(%s): %v", m.WeekStart, err)
		}
	}

	got, err := l.Last(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Last returned %d rows, want 2", len(got))
	}
	// Newest first.
	if got[0] != weeks[1] || got[1] != weeks[0] {
		t.Errorf("Last = %+v", got)
	}
}

func TestLog_RecordUpsertsSameWeek(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	m := report.WeekMetrics{WeekStart: "2024-03-04", Created: 5}
	if err := l.Record(ctx, m); err != nil {
		t.Fatal(err)
	}
	m.Created = 9
	m.Completed = 4
	if err := l.Record(ctx, m); err != nil {
		t.Fatal(err)
	}

	got, err := l.Last(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("Last returned %d rows, want 1 after upsert", len(got))
	}
	if got[0].Created != 9 || got[0].Completed != 4 {
		t.Errorf("upserted row = %+v", got[0])
	}
}

func TestLog_LastLimit(t *testing.T) {
	l := openTestLog(t)
	ctx := context.Background()

	for _, ws := range []string{"2024-02-26", "2024-03-04", "2024-03-11"} {
		if err := l.Record(ctx, report.WeekMetrics{WeekStart: ws}); err != nil {
			t.Fatal(err)
		}
	}

	got, err := l.Last(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("Last(2) returned %d rows", len(got))
	}
	if got[0].WeekStart != "2024-03-11" || got[1].WeekStart != "2024-03-04" {
		t.Errorf("weeks = %s, %s", got[0].WeekStart, got[1].WeekStart)
	}
}
