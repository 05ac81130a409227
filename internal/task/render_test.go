package task

import (
	"strings"
	"testing"
)

func TestRender_FreshTask(t *testing.T) {
	got := Render(Task{
		ID:          "TASK-0001",
		CreatedDate: "2024-03-11",
		CreatedTime: "10:30:00",
		Topic:       "Починить принтер",
		Description: "На третьем этаже",
		Author:      "Пётр Петров",
		Status:      StatusUnassigned,
		Priority:    PriorityMedium,
	}, "")

	want := strings.Join([]string{
		"Задача #TASK-0001\n",
		"Автор: Пётр Петров",
		"Тема: Починить принтер",
		"Описание: ",
		"На третьем этаже",
		"\nПриоритет: Средний",
		"Статус: Не распределено",
		"______________________",
		"Оформлено: 2024-03-11 10:30:00",
	}, "\n")

	if got != want {
		t.Errorf("Render mismatch:\n got:\n%s\nwant:\n%s", got, want)
	}
}

func TestRender_EmptyDescriptionDash(t *testing.T) {
	got := Render(Task{ID: "TASK-0002", Status: StatusUnassigned, Priority: PriorityLow}, "")
	if !strings.Contains(got, "Описание: \n—") {
		t.Errorf("empty description should render as dash:\n%s", got)
	}
}

func TestRender_TimestampsAndStatusLine(t *testing.T) {
	got := Render(Task{
		ID:          "TASK-0003",
		CreatedDate: "2024-03-11",
		CreatedTime: "10:00:00",
		Status:      StatusDone,
		Priority:    PriorityHigh,
		AssignedAt:  "2024-03-11 11:00:00",
		CompletedAt: "2024-03-11 12:00:00",
	}, "Выполнил Иван")

	for _, part := range []string{
		"Взято в работу: 2024-03-11 11:00:00",
		"Выполнено: 2024-03-11 12:00:00",
		"______________________\nВыполнил Иван",
	} {
		if !strings.Contains(got, part) {
			t.Errorf("missing %q in:\n%s", part, got)
		}
	}

	// The id must survive a render -> quote -> match round trip.
	if MatchID(got) != "TASK-0003" {
		t.Error("rendered card lost its matchable id")
	}
}
