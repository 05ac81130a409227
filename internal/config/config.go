package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

const (
	DefaultTimezone       = "Europe/Moscow"
	DefaultDebounceWindow = "20s"
	DefaultInitialDelay   = "5m"
	DefaultAlertInterval  = "5m"
	DefaultScanInterval   = "30m"
	DefaultHighBudget     = "2h"
	DefaultMediumBudget   = "5h"
	DefaultLowBudget      = "8h"
	DefaultCacheTTL       = "60s"
	DefaultRetryAttempts  = 4
	DefaultQuietStart     = "21:00"
	DefaultQuietEnd       = "09:00"
	DefaultDailyTime      = "20:00"
	DefaultMorningTime    = "09:05"
	DefaultOverdueTime    = "10:00"
	DefaultWeeklyTime     = "09:10"
	DefaultWeeklyWeekday  = 1 // Monday
	DefaultNonUrgentEvery = "4h"
	DefaultBufSize        = 100

	// BudgetFloor is the minimum accepted stale budget; anything lower is a
	// misconfiguration that would flood the ops channel.
	BudgetFloor = 30 * time.Minute
)

type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Chats      ChatsConfig      `json:"chats"`
	Tracker    TrackerConfig    `json:"tracker"`
	Escalation EscalationConfig `json:"escalation"`
	Stale      StaleConfig      `json:"stale"`
	Quiet      QuietConfig      `json:"quiet"`
	Reports    ReportsConfig    `json:"reports"`
	Store      StoreConfig      `json:"store"`
}

type TelegramConfig struct {
	Token     string   `json:"token"`
	AllowFrom []string `json:"allowFrom"`
	Proxy     string   `json:"proxy,omitempty"`
}

type ChatsConfig struct {
	DiscussionChatID  int64 `json:"discussionChatId"`
	AnnounceChannelID int64 `json:"announceChannelId"`
	OpsChannelID      int64 `json:"opsChannelId"`
}

type TrackerConfig struct {
	Timezone             string `json:"timezone"`
	DebounceWindow       string `json:"debounceWindow"`
	PrincipalUserID      int64  `json:"principalUserId,omitempty"`
	PrincipalTag         string `json:"principalTag,omitempty"`
	RecreateAnnouncement bool   `json:"recreateAnnouncement"`
}

type EscalationConfig struct {
	InitialDelay string `json:"initialDelay"`
	Interval     string `json:"interval"`
}

type StaleConfig struct {
	ScanInterval string `json:"scanInterval"`
	HighBudget   string `json:"highBudget"`
	MediumBudget string `json:"mediumBudget"`
	LowBudget    string `json:"lowBudget"`
}

type QuietConfig struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type ReportsConfig struct {
	DailyTime      string `json:"dailyTime"`
	MorningTime    string `json:"morningTime"`
	OverdueTime    string `json:"overdueTime"`
	WeeklyWeekday  int    `json:"weeklyWeekday"`
	WeeklyTime     string `json:"weeklyTime"`
	NonUrgentEvery string `json:"nonUrgentEvery"`
}

type StoreConfig struct {
	DataDir       string `json:"dataDir"`
	CacheTTL      string `json:"cacheTtl"`
	RetryAttempts int    `json:"retryAttempts"`
}

func DefaultConfig() *Config {
	return &Config{
		Tracker: TrackerConfig{
			Timezone:             DefaultTimezone,
			DebounceWindow:       DefaultDebounceWindow,
			PrincipalTag:         "#От Сорокина",
			RecreateAnnouncement: true,
		},
		Escalation: EscalationConfig{
			InitialDelay: DefaultInitialDelay,
			Interval:     DefaultAlertInterval,
		},
		Stale: StaleConfig{
			ScanInterval: DefaultScanInterval,
			HighBudget:   DefaultHighBudget,
			MediumBudget: DefaultMediumBudget,
			LowBudget:    DefaultLowBudget,
		},
		Quiet: QuietConfig{
			Start: DefaultQuietStart,
			End:   DefaultQuietEnd,
		},
		Reports: ReportsConfig{
			DailyTime:      DefaultDailyTime,
			MorningTime:    DefaultMorningTime,
			OverdueTime:    DefaultOverdueTime,
			WeeklyWeekday:  DefaultWeeklyWeekday,
			WeeklyTime:     DefaultWeeklyTime,
			NonUrgentEvery: DefaultNonUrgentEvery,
		},
		Store: StoreConfig{
			DataDir:       filepath.Join(ConfigDir(), "data"),
			CacheTTL:      DefaultCacheTTL,
			RetryAttempts: DefaultRetryAttempts,
		},
	}
}

func ConfigDir() string {
	home := os.Getenv("HOME")
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return filepath.Join(home, ".taskbot")
}

func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.json")
}

func LoadConfig() (*Config, error) {
	return loadConfigFrom(ConfigPath())
}

func loadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if token := os.Getenv("TASKBOT_TELEGRAM_TOKEN"); token != "" {
		cfg.Telegram.Token = token
	}
	if dir := os.Getenv("TASKBOT_DATA_DIR"); dir != "" {
		cfg.Store.DataDir = dir
	}
	if id := os.Getenv("TASKBOT_DISCUSSION_CHAT_ID"); id != "" {
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chats.DiscussionChatID = parsed
		}
	}
	if id := os.Getenv("TASKBOT_ANNOUNCE_CHANNEL_ID"); id != "" {
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chats.AnnounceChannelID = parsed
		}
	}
	if id := os.Getenv("TASKBOT_OPS_CHANNEL_ID"); id != "" {
		if parsed, err := strconv.ParseInt(id, 10, 64); err == nil {
			cfg.Chats.OpsChannelID = parsed
		}
	}

	cfg.normalize()
	return cfg, nil
}

// normalize fills blanks with defaults and clamps out-of-range values. Bad
// durations never fail the load; they fall back with a warning.
func (c *Config) normalize() {
	def := DefaultConfig()
	if c.Tracker.Timezone == "" {
		c.Tracker.Timezone = def.Tracker.Timezone
	}
	if c.Tracker.DebounceWindow == "" {
		c.Tracker.DebounceWindow = def.Tracker.DebounceWindow
	}
	if c.Escalation.InitialDelay == "" {
		c.Escalation.InitialDelay = def.Escalation.InitialDelay
	}
	if c.Escalation.Interval == "" {
		c.Escalation.Interval = def.Escalation.Interval
	}
	if c.Stale.ScanInterval == "" {
		c.Stale.ScanInterval = def.Stale.ScanInterval
	}
	if c.Quiet.Start == "" {
		c.Quiet.Start = def.Quiet.Start
	}
	if c.Quiet.End == "" {
		c.Quiet.End = def.Quiet.End
	}
	if c.Reports.DailyTime == "" {
		c.Reports.DailyTime = def.Reports.DailyTime
	}
	if c.Reports.MorningTime == "" {
		c.Reports.MorningTime = def.Reports.MorningTime
	}
	if c.Reports.OverdueTime == "" {
		c.Reports.OverdueTime = def.Reports.OverdueTime
	}
	if c.Reports.WeeklyTime == "" {
		c.Reports.WeeklyTime = def.Reports.WeeklyTime
	}
	if c.Reports.WeeklyWeekday < 0 || c.Reports.WeeklyWeekday > 6 {
		c.Reports.WeeklyWeekday = def.Reports.WeeklyWeekday
	}
	if c.Reports.NonUrgentEvery == "" {
		c.Reports.NonUrgentEvery = def.Reports.NonUrgentEvery
	}
	if c.Store.DataDir == "" {
		c.Store.DataDir = def.Store.DataDir
	}
	if c.Store.CacheTTL == "" {
		c.Store.CacheTTL = def.Store.CacheTTL
	}
	if c.Store.RetryAttempts <= 0 {
		c.Store.RetryAttempts = DefaultRetryAttempts
	}

	c.Stale.HighBudget = clampBudget("high", c.Stale.HighBudget, DefaultHighBudget)
	c.Stale.MediumBudget = clampBudget("medium", c.Stale.MediumBudget, DefaultMediumBudget)
	c.Stale.LowBudget = clampBudget("low", c.Stale.LowBudget, DefaultLowBudget)
}

func clampBudget(name, raw, fallback string) string {
	if raw == "" {
		return fallback
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("[config] invalid %s stale budget %q, using %s", name, raw, fallback)
		return fallback
	}
	if d < BudgetFloor {
		log.Printf("[config] %s stale budget %s below floor, clamped to %s", name, d, BudgetFloor)
		return BudgetFloor.String()
	}
	return raw
}

// Duration parses one of the config's duration strings, falling back to def
// when the string is missing or malformed.
func Duration(raw string, def time.Duration) time.Duration {
	if raw == "" {
		return def
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		log.Printf("[config] invalid duration %q, using %s", raw, def)
		return def
	}
	return d
}

func SaveConfig(cfg *Config) error {
	dir := ConfigDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	return os.WriteFile(ConfigPath(), data, 0644)
}

// TasksPath, UsersPath and AnalyticsPath locate the data files under DataDir.
func (c *Config) TasksPath() string     { return filepath.Join(c.Store.DataDir, "tasks.csv") }
func (c *Config) UsersPath() string     { return filepath.Join(c.Store.DataDir, "users.csv") }
func (c *Config) AnalyticsPath() string { return filepath.Join(c.Store.DataDir, "analytics.db") }
