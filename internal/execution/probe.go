package execution

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Default probe settings.
const (
	DefaultProbeInterval    = time.Second
	DefaultProbeMaxDuration = 60 * time.Second
)

// RouteChecker checks whether a SOL route to a mint exists.
type RouteChecker interface {
	CheckRoute(ctx context.Context, mint string) error
}

var _ RouteChecker = (*QuoteGateway)(nil)

// ProbeConfig holds availability probe settings.
type ProbeConfig struct {
	Interval    time.Duration
	MaxDuration time.Duration
}

// Probe waits for a mint to become tradable.
type Probe struct {
	routes RouteChecker
	cfg    ProbeConfig
	logger *zap.Logger
}

// NewProbe creates an availability probe.
func NewProbe(routes RouteChecker, cfg ProbeConfig, logger *zap.Logger) *Probe {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultProbeInterval
	}
	if cfg.MaxDuration <= 0 {
		cfg.MaxDuration = DefaultProbeMaxDuration
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Probe{
		routes: routes,
		cfg:    cfg,
		logger: logger.Named("probe"),
	}
}

// IsAvailable checks the route every Interval until one exists or MaxDuration elapses.
func (p *Probe) IsAvailable(ctx context.Context, mint string) bool {
	start := time.Now()
	log := p.logger.With(zap.String("mint", mint))

	for checks := 1; ; checks++ {
		err := p.routes.CheckRoute(ctx, mint)
		if err == nil {
			log.Info("route available", zap.Int("checks", checks), zap.Duration("elapsed", time.Since(start)))
			return true
		}
		log.Debug("route not available yet", zap.Int("check", checks), zap.Error(err))

		if time.Since(start)+p.cfg.Interval > p.cfg.MaxDuration {
			log.Warn("route unavailable", zap.Int("checks", checks), zap.Duration("elapsed", time.Since(start)))
			return false
		}
		if err := wait(ctx, p.cfg.Interval); err != nil {
			return false
		}
	}
}
