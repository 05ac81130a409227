package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfigFrom_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := loadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("loadConfigFrom: %v", err)
	}
	if cfg.Tracker.Timezone != DefaultTimezone {
		t.Errorf("Timezone = %q, want %q", cfg.Tracker.Timezone, DefaultTimezone)
	}
	if cfg.Quiet.Start != DefaultQuietStart || cfg.Quiet.End != DefaultQuietEnd {
		t.Errorf("quiet window = %s-%s, want %s-%s",
			cfg.Quiet.Start, cfg.Quiet.End, DefaultQuietStart, DefaultQuietEnd)
	}
	if cfg.Store.RetryAttempts != DefaultRetryAttempts {
		t.Errorf("RetryAttempts = %d, want %d", cfg.Store.RetryAttempts, DefaultRetryAttempts)
	}
}

func TestLoadConfigFrom_PartialFileFillsBlanks(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	data := `{"tracker": {"timezone": "UTC"}, "escalation": {"initialDelay": "10m"}}`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadConfigFrom(path)
	if err != nil {
		t.Fatalf("loadConfigFrom: %v", err)
	}
	if cfg.Tracker.Timezone != "UTC" {
		t.Errorf("Timezone = %q, want UTC", cfg.Tracker.Timezone)
	}
	if cfg.Escalation.InitialDelay != "10m" {
		t.Errorf("InitialDelay = %q, want 10m", cfg.Escalation.InitialDelay)
	}
	if cfg.Escalation.Interval != DefaultAlertInterval {
		t.Errorf("Interval = %q, want default %q", cfg.Escalation.Interval, DefaultAlertInterval)
	}
}

func TestLoadConfigFrom_EnvOverrides(t *testing.T) {
	t.Setenv("TASKBOT_TELEGRAM_TOKEN", "env-token")
	t.Setenv("TASKBOT_DISCUSSION_CHAT_ID", "-100123")

	cfg, err := loadConfigFrom(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatalf("loadConfigFrom: %v", err)
	}
	if cfg.Telegram.Token != "env-token" {
		t.Errorf("Token = %q, want env-token", cfg.Telegram.Token)
	}
	if cfg.Chats.DiscussionChatID != -100123 {
		t.Errorf("DiscussionChatID = %d, want -100123", cfg.Chats.DiscussionChatID)
	}
}

func TestNormalize_ClampsBudgetFloor(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Stale.HighBudget = "5m" // below the floor
	cfg.Stale.MediumBudget = "bogus"
	cfg.normalize()

	if cfg.Stale.HighBudget != BudgetFloor.String() {
		t.Errorf("HighBudget = %q, want clamped %q", cfg.Stale.HighBudget, BudgetFloor.String())
	}
	if cfg.Stale.MediumBudget != DefaultMediumBudget {
		t.Errorf("MediumBudget = %q, want fallback %q", cfg.Stale.MediumBudget, DefaultMediumBudget)
	}
}

func TestDuration_Fallbacks(t *testing.T) {
	if d := Duration("", time.Minute); d != time.Minute {
		t.Errorf("empty = %s, want 1m", d)
	}
	if d := Duration("junk", time.Minute); d != time.Minute {
		t.Errorf("junk = %s, want 1m", d)
	}
	if d := Duration("-5s", time.Minute); d != time.Minute {
		t.Errorf("negative = %s, want 1m", d)
	}
	if d := Duration("90s", time.Minute); d != 90*time.Second {
		t.Errorf("90s = %s, want 1m30s", d)
	}
}

func TestDataPaths(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Store.DataDir = "/data"
	if got := cfg.TasksPath(); got != filepath.Join("/data", "tasks.csv") {
		t.Errorf("TasksPath = %q", got)
	}
	if got := cfg.AnalyticsPath(); got != filepath.Join("/data", "analytics.db") {
		t.Errorf("AnalyticsPath = %q", got)
	}
}
