package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpillora/backoff"

	"krakenTrailBot/internal/metrics"
	"krakenTrailBot/internal/ports"
)

// Service is the cycle orchestrator: it runs reconciliation cycles back to
// back with a fixed sleep in between, forever. Cycles never overlap, a failed
// cycle is retried with exponential backoff, and a termination signal is
// observed between cycles so no position is left mid-transition.
type Service struct {
	logger       ports.Logger
	reconciler   *Reconciler
	pollInterval time.Duration
	retryMin     time.Duration
	retryMax     time.Duration
}

// NewService creates a new Service instance.
func NewService(logger ports.Logger, reconciler *Reconciler, pollInterval, retryMin, retryMax time.Duration) (*Service, error) {
	if logger == nil || reconciler == nil {
		return nil, fmt.Errorf("missing required dependencies for Service")
	}
	if pollInterval <= 0 {
		return nil, fmt.Errorf("poll interval must be positive")
	}
	if retryMin <= 0 || retryMax < retryMin {
		return nil, fmt.Errorf("invalid retry delays (min=%s, max=%s)", retryMin, retryMax)
	}
	return &Service{
		logger:       logger,
		reconciler:   reconciler,
		pollInterval: pollInterval,
		retryMin:     retryMin,
		retryMax:     retryMax,
	}, nil
}

// Start runs the polling loop until the context is canceled or a termination
// signal arrives. It returns nil on graceful shutdown.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info(ctx, "Starting reconciliation service", map[string]interface{}{"pollInterval": s.pollInterval.String()})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			s.logger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})
			cancel()
		case <-ctx.Done():
		}
	}()

	retry := &backoff.Backoff{Min: s.retryMin, Max: s.retryMax, Factor: 2, Jitter: true}

	for {
		if err := s.reconciler.RunCycle(ctx); err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				s.logger.Info(ctx, "Shutdown requested, stopping service")
				return nil
			}
			// Cycle-level fatal: the whole cycle was abandoned, previous
			// persisted state is untouched. Sleep and retry, never crash.
			metrics.IncCycle("error")
			delay := retry.Duration()
			s.logger.Error(ctx, err, "Cycle failed, will retry", map[string]interface{}{"retryIn": delay.String()})
			if !s.sleep(ctx, delay) {
				return nil
			}
			continue
		}

		metrics.IncCycle("ok")
		retry.Reset()
		if !s.sleep(ctx, s.pollInterval) {
			s.logger.Info(ctx, "Shutdown requested, stopping service")
			return nil
		}
	}
}

// sleep waits for d or until the context is canceled; it reports false on
// cancellation.
func (s *Service) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
