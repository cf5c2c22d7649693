// Package audit records one free-text action per generated file. Audit
// failures are reported to the caller but never fail a generation.
package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moe-roll/rollreturn/pkg/logger"
)

// Sink receives audit actions.
type Sink interface {
	Record(ctx context.Context, action string) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, action string) error

// Record implements Sink.
func (f SinkFunc) Record(ctx context.Context, action string) error {
	return f(ctx, action)
}

// LogSink writes actions to the structured log.
type LogSink struct {
	logger *logger.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(l *logger.Logger) *LogSink {
	return &LogSink{logger: l.With(logger.Component("audit"))}
}

// Record implements Sink.
func (s *LogSink) Record(_ context.Context, action string) error {
	s.logger.Info("audit", logger.String("action", action))
	return nil
}

// Multi fans an action out to every sink and joins their errors.
type Multi []Sink

// Record implements Sink.
func (m Multi) Record(ctx context.Context, action string) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, action); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Bounded caps how long a remote sink may take per action. When the limit
// passes, Record returns without waiting for next to finish.
type Bounded struct {
	next    Sink
	timeout time.Duration
}

// NewBounded wraps next. A non-positive timeout disables the limit.
func NewBounded(next Sink, timeout time.Duration) *Bounded {
	return &Bounded{next: next, timeout: timeout}
}

// Record implements Sink.
func (b *Bounded) Record(ctx context.Context, action string) error {
	if b.timeout <= 0 {
		return b.next.Record(ctx, action)
	}

	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- b.next.Record(ctx, action) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("audit record after %s: %w", b.timeout, ctx.Err())
	}
}
