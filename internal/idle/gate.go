// Package idle wraps the idle-time collaborator behind a bounded query.
package idle

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/timetrack/internal/domain"
)

// DefaultTimeout bounds a single idle probe.
const DefaultTimeout = 2 * time.Second

// Gate queries an IdleSource with a timeout and never reports negative idle time.
type Gate struct {
	source  domain.IdleSource
	timeout time.Duration
	logger  *zap.Logger
}

// NewGate creates an idle gate. A non-positive timeout means DefaultTimeout.
func NewGate(source domain.IdleSource, timeout time.Duration, logger *zap.Logger) *Gate {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Gate{
		source:  source,
		timeout: timeout,
		logger:  logger,
	}
}

// IdleTime returns the current idle duration.
func (g *Gate) IdleTime(ctx context.Context) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	d, err := g.source.IdleTime(ctx)
	if err != nil {
		g.logger.Warn("idle probe failed", zap.Error(err))
		return 0, fmt.Errorf("failed to query idle time: %w", err)
	}
	if d < 0 {
		return 0, nil
	}
	return d, nil
}

// Ensure Gate can stand in for the raw source.
var _ domain.IdleSource = (*Gate)(nil)
