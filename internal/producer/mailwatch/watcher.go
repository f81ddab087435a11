package mailwatch

import (
	"context"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/notification-sync/internal/gateway"
	"github.com/nhle/notification-sync/internal/model"
)

// Creator is the producer slice of the gateway the watcher needs.
type Creator interface {
	Create(ctx context.Context, req gateway.CreateRequest) (*model.Notification, error)
}

// Inbox abstracts the IMAP client so tests can substitute a fake.
type Inbox interface {
	FetchUnseen(ctx context.Context, limit int) ([]Envelope, error)
	MarkSeen(ctx context.Context, uid uint32) error
}

// fetchLimit bounds how many unseen messages a single poll processes.
const fetchLimit = 25

// Watcher polls the inbox and creates one notification per new message.
type Watcher struct {
	inbox    Inbox
	creator  Creator
	logger   *slog.Logger
	interval time.Duration

	mu      gosync.Mutex
	seen    map[string]struct{}
	stopCh  chan struct{}
	running bool
	stopped bool
}

// NewWatcher creates a watcher polling the inbox at the given interval.
func NewWatcher(inbox Inbox, creator Creator, interval time.Duration, logger *slog.Logger) *Watcher {
	if interval <= 0 {
		interval = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Watcher{
		inbox:    inbox,
		creator:  creator,
		logger:   logger,
		interval: interval,
		seen:     make(map[string]struct{}),
		stopCh:   make(chan struct{}),
	}
}

// Start launches the polling loop. Calling Start twice is a no-op.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.running || w.stopped {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.run()
}

// Stop halts the polling loop.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.stopCh)
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.poll()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.poll()
		}
	}
}

// poll fetches unseen messages and creates a notification for each one
// not already handled. Messages are flagged seen only after the
// notification was accepted, so a failed create is retried next poll.
func (w *Watcher) poll() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	envelopes, err := w.inbox.FetchUnseen(ctx, fetchLimit)
	if err != nil {
		w.logger.Warn("fetching inbox failed", "error", err)
		return
	}

	for _, env := range envelopes {
		key := env.MessageID
		if key == "" {
			// Some senders omit Message-ID; synthesize a stable-enough
			// dedup key for this process lifetime.
			key = uuid.NewString()
		}

		w.mu.Lock()
		_, handled := w.seen[key]
		if !handled {
			w.seen[key] = struct{}{}
		}
		w.mu.Unlock()
		if handled {
			continue
		}

		if err := w.notify(ctx, env); err != nil {
			w.logger.Warn("creating mail notification failed",
				"message_id", env.MessageID, "error", err)
			w.mu.Lock()
			delete(w.seen, key)
			w.mu.Unlock()
			continue
		}

		if err := w.inbox.MarkSeen(ctx, env.UID); err != nil {
			w.logger.Warn("marking message seen failed",
				"uid", env.UID, "error", err)
		}
	}
}

func (w *Watcher) notify(ctx context.Context, env Envelope) error {
	title := fmt.Sprintf("New message from %s", env.From)
	body := env.Subject
	if env.Preview != "" {
		body = fmt.Sprintf("%s: %s", env.Subject, env.Preview)
	}

	_, err := w.creator.Create(ctx, gateway.CreateRequest{
		Title: title,
		Body:  body,
		Kind:  model.KindInfo,
	})
	return err
}
