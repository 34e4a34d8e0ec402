package infra

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// DefaultNotifyTimeout bounds a single notify-send invocation.
const DefaultNotifyTimeout = 5 * time.Second

// NotifySend implements domain.Notifier with notify-send. Deliveries run in
// the background and failures are only logged.
type NotifySend struct {
	runner  CommandRunner
	timeout time.Duration
	logger  *zap.Logger
	wg      sync.WaitGroup
}

// NewNotifySend creates a notifier.
func NewNotifySend(runner CommandRunner, timeout time.Duration, logger *zap.Logger) *NotifySend {
	if timeout <= 0 {
		timeout = DefaultNotifyTimeout
	}
	return &NotifySend{
		runner:  runner,
		timeout: timeout,
		logger:  logger,
	}
}

// Notify shows a desktop notification without blocking the caller.
func (n *NotifySend) Notify(title, message string) {
	n.logger.Info("notify", zap.String("title", title), zap.String("message", message))

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), n.timeout)
		defer cancel()
		if err := n.runner.Run(ctx, "notify-send", title, message); err != nil {
			n.logger.Debug("notification not delivered",
				zap.String("title", title),
				zap.Error(err))
		}
	}()
}

// Wait blocks until in-flight notifications finish.
func (n *NotifySend) Wait() {
	n.wg.Wait()
}

// Ensure NotifySend implements domain.Notifier.
var _ domain.Notifier = (*NotifySend)(nil)
