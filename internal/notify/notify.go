// Package notify delivers account notification payloads (password reset,
// email confirmation) to whatever sends the actual mail.
package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Notification is the payload handed to the mailer.
type Notification struct {
	AccountEmail string `json:"account_email"`
	Purpose      string `json:"purpose"`
	Token        string `json:"token"`
}

// Notifier delivers a single notification.
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Dispatcher sends notifications in the background. Dispatch never blocks
// the caller; failures are logged and dropped.
type Dispatcher struct {
	notifier Notifier
	timeout  time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a new Dispatcher
func NewDispatcher(notifier Notifier, timeout time.Duration, logger *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		notifier: notifier,
		timeout:  timeout,
		logger:   logger.With("component", "notify"),
	}
}

// Dispatch queues n for delivery on its own goroutine.
func (d *Dispatcher) Dispatch(n Notification) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		d.logger.Warn("dispatcher closed, dropping notification", "purpose", n.Purpose)
		return
	}

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()

		if err := d.notifier.Send(ctx, n); err != nil {
			d.logger.Error("failed to send notification", "purpose", n.Purpose, "error", err)
			return
		}
		d.logger.Debug("notification sent", "purpose", n.Purpose)
	}()
}

// Close stops accepting notifications and waits for in-flight sends until
// ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// LogNotifier writes notifications to the log. It is meant for local
// development where no mail worker is running.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a new LogNotifier
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger.With("component", "notify.log")}
}

func (l *LogNotifier) Send(ctx context.Context, n Notification) error {
	l.logger.InfoContext(ctx, "notification",
		"account_email", n.AccountEmail,
		"purpose", n.Purpose,
		"token", n.Token,
	)
	return nil
}
