package task

import "strings"

// Render produces the canonical announcement card for a task snapshot. The
// layout is fixed: replies quote this text and the id is matched back out of
// it, so the first line must keep the "Задача #TASK-XXXX" form.
func Render(t Task, statusLine string) string {
	description := t.Description
	if description == "" {
		description = "—"
	}

	lines := []string{
		"Задача #" + t.ID + "\n",
		"Автор: " + t.Author,
		"Тема: " + t.Topic,
		"Описание: ",
		description,
		"\nПриоритет: " + string(t.Priority),
		"Статус: " + string(t.Status),
		"______________________",
		"Оформлено: " + t.CreatedStamp(),
	}

	if t.AssignedAt != "" {
		lines = append(lines, "Взято в работу: "+t.AssignedAt)
	}
	if t.CompletedAt != "" {
		lines = append(lines, "Выполнено: "+t.CompletedAt)
	}
	if statusLine != "" {
		lines = append(lines, "______________________", statusLine)
	}

	return strings.Join(lines, "\n")
}
