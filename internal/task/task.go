// Package task holds the task model, its wire vocabulary and the state
// machine driven by chat replies. Status and priority strings are exactly
// the values the shared table uses; do not translate them.
package task

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

type Status string

const (
	StatusUnassigned  Status = "Не распределено"
	StatusInProgress  Status = "В работе"
	StatusOperational Status = "Операционная задача"
	StatusDone        Status = "Выполнено"
)

type Priority string

const (
	PriorityHigh   Priority = "Высокий"
	PriorityMedium Priority = "Средний"
	PriorityLow    Priority = "Низкий"
)

// Table columns, 1-indexed to match the spreadsheet contract.
const (
	ColID              = 1
	ColCreatedDate     = 2
	ColCreatedTime     = 3
	ColTopic           = 4
	ColDescription     = 5
	ColAuthor          = 6
	ColExecutor        = 7
	ColStatus          = 8
	ColAssignedAt      = 9
	ColCompletedAt     = 10
	ColTags            = 11
	ColAnnouncementRef = 12
	ColThreadRef       = 13
	ColPriority        = 14
	ColClosedBy        = 15
)

const (
	DateLayout  = "2006-01-02"
	TimeLayout  = "15:04:05"
	StampLayout = "2006-01-02 15:04:05"

	// CreationTag opens a new task in the discussion chat.
	CreationTag = "#З"

	idPattern = `TASK-(\d{4})`
)

var (
	taskIDRe = regexp.MustCompile(idPattern)
	handleRe = regexp.MustCompile(`@[A-Za-z0-9_]+`)

	completionKeywords  = []string{"#выполнено", "готово", "решено"}
	operationalKeywords = []string{"#операционная", "#опер"}
	highMarkers         = []string{"#высокий", "#срочно"}
	lowMarkers          = []string{"#низкий"}
)

type Task struct {
	ID              string
	CreatedDate     string
	CreatedTime     string
	Topic           string
	Description     string
	Author          string
	Executor        string
	Status          Status
	AssignedAt      string
	CompletedAt     string
	Tags            string
	AnnouncementRef string
	ThreadRef       string
	Priority        Priority
	ClosedBy        string
}

// FromRow decodes a table row. Short rows decode with empty trailing fields;
// the caller decides whether a row without a TASK id is worth keeping.
func FromRow(row []string) Task {
	cell := func(col int) string {
		if col >= 1 && col <= len(row) {
			return strings.TrimSpace(row[col-1])
		}
		return ""
	}
	t := Task{
		ID:              cell(ColID),
		CreatedDate:     cell(ColCreatedDate),
		CreatedTime:     cell(ColCreatedTime),
		Topic:           cell(ColTopic),
		Description:     cell(ColDescription),
		Author:          cell(ColAuthor),
		Executor:        cell(ColExecutor),
		Status:          Status(cell(ColStatus)),
		AssignedAt:      cell(ColAssignedAt),
		CompletedAt:     cell(ColCompletedAt),
		Tags:            cell(ColTags),
		AnnouncementRef: cell(ColAnnouncementRef),
		ThreadRef:       cell(ColThreadRef),
		Priority:        Priority(cell(ColPriority)),
		ClosedBy:        cell(ColClosedBy),
	}
	if t.Priority == "" {
		t.Priority = PriorityMedium
	}
	return t
}

func (t Task) Row() []string {
	return []string{
		t.ID,
		t.CreatedDate,
		t.CreatedTime,
		t.Topic,
		t.Description,
		t.Author,
		t.Executor,
		string(t.Status),
		t.AssignedAt,
		t.CompletedAt,
		t.Tags,
		t.AnnouncementRef,
		t.ThreadRef,
		string(t.Priority),
		t.ClosedBy,
	}
}

// ParseAll decodes every row that carries a task id, skipping the header and
// anything malformed enough to have no TASK- prefix.
func ParseAll(rows [][]string) []Task {
	tasks := make([]Task, 0, len(rows))
	for _, r := range rows {
		if len(r) == 0 || !strings.HasPrefix(strings.TrimSpace(r[0]), "TASK-") {
			continue
		}
		tasks = append(tasks, FromRow(r))
	}
	return tasks
}

// FindRow returns the 1-based row index of the task id, or 0.
func FindRow(rows [][]string, id string) int {
	for i, r := range rows {
		if len(r) > 0 && strings.TrimSpace(r[0]) == id {
			return i + 1
		}
	}
	return 0
}

func (t Task) CreatedStamp() string {
	return strings.TrimSpace(t.CreatedDate + " " + t.CreatedTime)
}

func (t Task) CreatedAt(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(StampLayout, t.CreatedStamp(), loc)
}

func (t Task) AssignedTime(loc *time.Location) (time.Time, error) {
	return time.ParseInLocation(StampLayout, t.AssignedAt, loc)
}

// IsCreationTag reports whether the text opens a new task. The tag must be
// the whole message or a "#З " prefix; "#Задача про..." does not count.
func IsCreationTag(text string) bool {
	return text == CreationTag || strings.HasPrefix(text, CreationTag+" ")
}

// SplitTopic separates the creation message into topic (first line after the
// tag) and the initial description fragment.
func SplitTopic(text string) (topic, desc string) {
	if text == CreationTag {
		return "", ""
	}
	content := strings.TrimLeft(strings.TrimPrefix(text, CreationTag+" "), " ")
	if i := strings.Index(content, "\n"); i >= 0 {
		return strings.TrimSpace(content[:i]), strings.TrimSpace(content[i+1:])
	}
	return strings.TrimSpace(content), ""
}

// PriorityFromText derives the priority from hashtags in the full creation
// text. Computed once at creation; replies never change it.
func PriorityFromText(text string) Priority {
	lower := strings.ToLower(text)
	for _, m := range highMarkers {
		if strings.Contains(lower, m) {
			return PriorityHigh
		}
	}
	for _, m := range lowMarkers {
		if strings.Contains(lower, m) {
			return PriorityLow
		}
	}
	return PriorityMedium
}

// MatchID extracts a TASK-XXXX id from arbitrary text, or "".
func MatchID(text string) string {
	m := taskIDRe.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return fmt.Sprintf("TASK-%s", m[1])
}

// ExtractHandle returns the first @handle in the text, or "".
func ExtractHandle(text string) string {
	return handleRe.FindString(text)
}

func HasCompletionKeyword(text string) bool {
	return containsAny(text, completionKeywords)
}

func HasOperationalKeyword(text string) bool {
	return containsAny(text, operationalKeywords)
}

func containsAny(text string, keywords []string) bool {
	lower := strings.ToLower(text)
	for _, k := range keywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
