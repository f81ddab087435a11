// Command notify is the terminal notification center for the school
// administration system: it keeps a local cache in sync with the remote
// notification API and renders it as a bell badge plus a full list.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/notification-sync/internal/app"
	"github.com/nhle/notification-sync/internal/cache"
	"github.com/nhle/notification-sync/internal/coordinator"
	"github.com/nhle/notification-sync/internal/credential"
	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
	"github.com/nhle/notification-sync/internal/producer/mailwatch"
	"github.com/nhle/notification-sync/internal/store"
	appsync "github.com/nhle/notification-sync/internal/sync"
	"github.com/nhle/notification-sync/internal/ui"
	"github.com/nhle/notification-sync/internal/ui/setup"
)

const tokenKey = "api-token"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "notify: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	token := os.Getenv("NOTIFY_API_TOKEN")
	if token == "" {
		token, _ = credential.Get(tokenKey)
	}

	// First run: ask for the server URL and token before starting.
	if cfg.Server.BaseURL == "" || token == "" {
		cfg, token, err = runSetup(*configPath, cfg)
		if err != nil {
			return err
		}
	}

	logger, closeLog, err := openLogger(*configPath)
	if err != nil {
		return err
	}
	defer closeLog()

	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = model.DefaultDBPath()
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	snapshots, err := store.NewSQLiteStore(dbPath)
	if err != nil {
		return fmt.Errorf("opening snapshot store: %w", err)
	}
	defer snapshots.Close()

	c := cache.New()

	// Warm start: render the previous snapshot until the first fetch.
	primed := false
	if records, loadErr := snapshots.LoadSnapshot(context.Background()); loadErr != nil {
		logger.Warn("loading persisted snapshot failed", "error", loadErr)
	} else if len(records) > 0 {
		c.Replace(records)
		primed = true
	}

	gw := gateway.New(cfg.Server.BaseURL, token,
		time.Duration(cfg.Server.TimeoutSec)*time.Second)
	coord := coordinator.New(c, gw)
	refresher := appsync.New(c, gw, appsync.Options{
		ListInterval:  time.Duration(cfg.Poll.ListIntervalSec) * time.Second,
		CountInterval: time.Duration(cfg.Poll.CountIntervalSec) * time.Second,
		PageSize:      cfg.Poll.PageSize,
		Saver:         snapshots,
		Logger:        logger,
		Primed:        primed,
	})

	watcher := buildMailWatcher(cfg, gw, logger)

	p := tea.NewProgram(
		app.New(coord, refresher.TriggerList, cfg.Display.BellLimit),
		tea.WithAltScreen(),
	)

	// Bridge cache fan-out into the Tea runtime.
	subToken := c.Subscribe(func(snap cache.Snapshot) {
		p.Send(ui.SnapshotMsg{Snapshot: snap})
	})
	defer c.Unsubscribe(subToken)
	countToken := c.SubscribeCount(func(n int) {
		p.Send(ui.CountMsg{Count: n})
	})
	defer c.UnsubscribeCount(countToken)

	refresher.Start()
	defer refresher.Stop()
	if watcher != nil {
		watcher.Start()
		defer watcher.Stop()
	}

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running program: %w", err)
	}
	return nil
}

// runSetup runs the first-run wizard, persists its results, and returns
// the updated config and token.
func runSetup(configPath string, cfg *model.AppConfig) (*model.AppConfig, string, error) {
	p := tea.NewProgram(setup.New(cfg.Server.BaseURL, 80, 24))
	final, err := p.Run()
	if err != nil {
		return nil, "", fmt.Errorf("running setup: %w", err)
	}

	m, ok := final.(setup.Model)
	if !ok || !m.Done {
		return nil, "", fmt.Errorf("setup cancelled")
	}

	cfg.Server.BaseURL = m.BaseURL
	if err := model.SaveConfig(configPath, cfg); err != nil {
		return nil, "", err
	}
	if err := credential.Set(tokenKey, m.Token); err != nil {
		return nil, "", fmt.Errorf("storing token: %w", err)
	}
	return cfg, m.Token, nil
}

// openLogger logs to a file next to the config; stdout belongs to the TUI.
func openLogger(configPath string) (*slog.Logger, func(), error) {
	logPath := filepath.Join(filepath.Dir(configPath), "notify.log")
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return nil, nil, fmt.Errorf("creating log directory: %w", err)
	}
	f, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}
	logger := slog.New(slog.NewTextHandler(f, nil))
	return logger, func() { _ = f.Close() }, nil
}

// buildMailWatcher wires the optional IMAP producer when configured.
func buildMailWatcher(cfg *model.AppConfig, gw *gateway.Client, logger *slog.Logger) *mailwatch.Watcher {
	if !cfg.Mail.Enabled || cfg.Mail.Host == "" {
		return nil
	}

	password, err := credential.Get("mail-password")
	if err != nil || password == "" {
		logger.Warn("mail watcher disabled: no mail-password credential")
		return nil
	}

	inbox := mailwatch.NewIMAPClient(
		cfg.Mail.Host, cfg.Mail.Port,
		cfg.Mail.Username, password, cfg.Mail.TLS,
	)
	return mailwatch.NewWatcher(inbox, gw,
		time.Duration(cfg.Mail.PollIntervalSec)*time.Second, logger)
}
