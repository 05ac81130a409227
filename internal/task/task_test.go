package task

import (
	"testing"
)

func TestIsCreationTag(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"#З", true},
		{"#З Починить принтер", true},
		{"#Задача про принтер", false},
		{"принтер #З", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsCreationTag(tt.text); got != tt.want {
			t.Errorf("IsCreationTag(%q) = %v, want %v", tt.text, got, tt.want)
		}
	}
}

func TestSplitTopic(t *testing.T) {
	tests := []struct {
		text, topic, desc string
	}{
		{"#З", "", ""},
		{"#З Починить принтер", "Починить принтер", ""},
		{"#З Починить принтер\nНа третьем этаже", "Починить принтер", "На третьем этаже"},
		{"#З  Тема  \n  описание ", "Тема", "описание"},
	}
	for _, tt := range tests {
		topic, desc := SplitTopic(tt.text)
		if topic != tt.topic || desc != tt.desc {
			t.Errorf("SplitTopic(%q) = (%q, %q), want (%q, %q)",
				tt.text, topic, desc, tt.topic, tt.desc)
		}
	}
}

func TestPriorityFromText(t *testing.T) {
	tests := []struct {
		text string
		want Priority
	}{
		{"обычная задача", PriorityMedium},
		{"починить #срочно", PriorityHigh},
		{"тема\n#высокий приоритет", PriorityHigh},
		{"когда-нибудь #низкий", PriorityLow},
		// high marker beats low marker
		{"#срочно но вообще #низкий", PriorityHigh},
		{"#СРОЧНО капсом", PriorityHigh},
	}
	for _, tt := range tests {
		if got := PriorityFromText(tt.text); got != tt.want {
			t.Errorf("PriorityFromText(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestMatchID(t *testing.T) {
	tests := []struct {
		text, want string
	}{
		{"Задача #TASK-0042\n\nАвтор: кто-то", "TASK-0042"},
		{"без номера", ""},
		{"TASK-123", ""}, // ids are always four digits
		{"в середине TASK-0007 текста", "TASK-0007"},
	}
	for _, tt := range tests {
		if got := MatchID(tt.text); got != tt.want {
			t.Errorf("MatchID(%q) = %q, want %q", tt.text, got, tt.want)
		}
	}
}

func TestExtractHandle(t *testing.T) {
	if got := ExtractHandle("передаю @ivanov_2"); got != "@ivanov_2" {
		t.Errorf("ExtractHandle = %q", got)
	}
	if got := ExtractHandle("никого нет"); got != "" {
		t.Errorf("ExtractHandle = %q, want empty", got)
	}
}

func TestKeywords(t *testing.T) {
	if !HasCompletionKeyword("всё, ГОТОВО") {
		t.Error("case-insensitive completion keyword missed")
	}
	if !HasCompletionKeyword("#выполнено") {
		t.Error("#выполнено missed")
	}
	if HasCompletionKeyword("в процессе") {
		t.Error("false completion match")
	}
	if !HasOperationalKeyword("это #опер задача") {
		t.Error("#опер missed")
	}
	if HasOperationalKeyword("оперативно отвечу") {
		t.Error("plain word should not trigger operational")
	}
}

func TestFromRow_Defaults(t *testing.T) {
	t1 := FromRow([]string{"TASK-0001"})
	if t1.Priority != PriorityMedium {
		t.Errorf("short row priority = %q, want medium default", t1.Priority)
	}
	if t1.Status != "" {
		t.Errorf("short row status = %q, want empty", t1.Status)
	}

	t2 := FromRow([]string{" TASK-0002 ", "2024-03-11", "10:00:00", "тема"})
	if t2.ID != "TASK-0002" {
		t.Errorf("ID = %q, cells should be trimmed", t2.ID)
	}
}

func TestRowRoundTrip(t *testing.T) {
	in := Task{
		ID:          "TASK-0010",
		CreatedDate: "2024-03-11",
		CreatedTime: "10:30:00",
		Topic:       "Тема",
		Status:      StatusInProgress,
		Priority:    PriorityHigh,
		Executor:    "Иван",
	}
	out := FromRow(in.Row())
	if out != in {
		t.Errorf("round trip mismatch:\n got %+v\nwant %+v", out, in)
	}
}

func TestParseAll_SkipsHeaderAndJunk(t *testing.T) {
	rows := [][]string{
		{"ID", "Дата"},
		{"TASK-0001", "2024-03-11"},
		{},
		{"случайная строка"},
		{"TASK-0002"},
	}
	tasks := ParseAll(rows)
	if len(tasks) != 2 {
		t.Fatalf("got %d tasks, want 2", len(tasks))
	}
	if tasks[0].ID != "TASK-0001" || tasks[1].ID != "TASK-0002" {
		t.Errorf("ids = %s, %s", tasks[0].ID, tasks[1].ID)
	}
}

func TestFindRow(t *testing.T) {
	rows := [][]string{
		{"ID"},
		{"TASK-0001"},
		{"TASK-0002"},
	}
	if got := FindRow(rows, "TASK-0002"); got != 3 {
		t.Errorf("FindRow = %d, want 3 (1-based)", got)
	}
	if got := FindRow(rows, "TASK-0099"); got != 0 {
		t.Errorf("FindRow missing = %d, want 0", got)
	}
}

func TestCounter_SeedAndNext(t *testing.T) {
	c := NewCounter()
	c.Seed([]string{"ID", "TASK-0003", "TASK-0017", "мусор", "TASK-0005"})
	if got := c.Next(); got != "TASK-0018" {
		t.Errorf("Next = %q, want TASK-0018", got)
	}
	if got := c.Next(); got != "TASK-0019" {
		t.Errorf("Next = %q, want TASK-0019", got)
	}
}

func TestCounter_EmptySeed(t *testing.T) {
	c := NewCounter()
	c.Seed(nil)
	if got := c.Next(); got != "TASK-0001" {
		t.Errorf("Next = %q, want TASK-0001", got)
	}
}
