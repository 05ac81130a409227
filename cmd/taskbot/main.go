package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rpz-tools/taskbot/internal/config"
	"github.com/rpz-tools/taskbot/internal/gateway"
	"github.com/rpz-tools/taskbot/internal/store"
	"github.com/rpz-tools/taskbot/internal/task"
)

var rootCmd = &cobra.Command{
	Use:   "taskbot",
	Short: "taskbot - chat-driven task tracker",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the bot (channels + escalation + scheduled reports)",
	RunE:  runBot,
}

var onboardCmd = &cobra.Command{
	Use:   "onboard",
	Short: "Initialize config and data directory",
	RunE:  runOnboard,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show taskbot status",
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(runCmd, onboardCmd, statusCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runBot(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token not set. Run 'taskbot onboard' or set TASKBOT_TELEGRAM_TOKEN")
	}
	if cfg.Chats.DiscussionChatID == 0 {
		return fmt.Errorf("discussion chat id not set. Edit %s or set TASKBOT_DISCUSSION_CHAT_ID", config.ConfigPath())
	}

	gw, err := gateway.New(cfg)
	if err != nil {
		return fmt.Errorf("create gateway: %w", err)
	}

	return gw.Run(context.Background())
}

func runOnboard(cmd *cobra.Command, args []string) error {
	cfgDir := config.ConfigDir()
	cfgPath := config.ConfigPath()

	if err := os.MkdirAll(cfgDir, 0755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		cfg := config.DefaultConfig()
		data, _ := json.MarshalIndent(cfg, "", "  ")
		if err := os.WriteFile(cfgPath, data, 0644); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		fmt.Printf("Created config: %s\n", cfgPath)
	} else {
		fmt.Printf("Config already exists: %s\n", cfgPath)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := os.MkdirAll(cfg.Store.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	touchIfNotExists(cfg.TasksPath())
	touchIfNotExists(cfg.UsersPath())

	fmt.Printf("Data directory ready: %s\n", cfg.Store.DataDir)
	fmt.Println("\nNext steps:")
	fmt.Printf("  1. Edit %s to set the telegram token and chat ids\n", cfgPath)
	fmt.Println("  2. Or set TASKBOT_TELEGRAM_TOKEN / TASKBOT_DISCUSSION_CHAT_ID")
	fmt.Println("  3. Run 'taskbot run' to start the bot")

	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Printf("Config: error (%v)\n", err)
		return nil
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Data dir: %s\n", cfg.Store.DataDir)
	fmt.Printf("Timezone: %s\n", cfg.Tracker.Timezone)
	if cfg.Telegram.Token != "" && len(cfg.Telegram.Token) > 8 {
		masked := cfg.Telegram.Token[:4] + "..." + cfg.Telegram.Token[len(cfg.Telegram.Token)-4:]
		fmt.Printf("Telegram token: %s\n", masked)
	} else if cfg.Telegram.Token != "" {
		fmt.Println("Telegram token: set")
	} else {
		fmt.Println("Telegram token: not set")
	}
	fmt.Printf("Discussion chat: %d\n", cfg.Chats.DiscussionChatID)
	fmt.Printf("Announce channel: %d\n", cfg.Chats.AnnounceChannelID)
	fmt.Printf("Ops channel: %d\n", cfg.Chats.OpsChannelID)

	if _, err := os.Stat(cfg.TasksPath()); err != nil {
		fmt.Println("Tasks: file not found (run 'taskbot onboard')")
		return nil
	}

	fs := store.NewFileStore(cfg.TasksPath())
	rows, err := fs.Rows(context.Background())
	if err != nil {
		fmt.Printf("Tasks: error (%v)\n", err)
		return nil
	}
	tasks := task.ParseAll(rows)
	var pending, inProgress, done int
	for _, t := range tasks {
		switch t.Status {
		case task.StatusUnassigned:
			pending++
		case task.StatusDone:
			done++
		default:
			inProgress++
		}
	}
	fmt.Printf("Tasks: %d total (%d pending, %d in progress, %d done)\n",
		len(tasks), pending, inProgress, done)

	return nil
}

func touchIfNotExists(path string) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		_ = os.WriteFile(path, nil, 0644)
		fmt.Printf("  Created: %s\n", path)
	}
}
