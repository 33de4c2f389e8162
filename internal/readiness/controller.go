// Package readiness wraps initialization of an external dependency in a
// small state machine with a bounded number of explicit retries.
package readiness

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

const (
	DefaultMaxRetries  = 3
	DefaultSettleDelay = 500 * time.Millisecond
)

// InitFunc выполняет инициализацию зависимости.
type InitFunc func(ctx context.Context) error

// Options настраивает Controller.
type Options struct {
	MaxRetries  int
	SettleDelay time.Duration
	Clock       clock.Clock
	// OnChange вызывается после каждого перехода, вне блокировки.
	OnChange func(Status)
}

// DefaultOptions возвращает настройки по умолчанию.
func DefaultOptions() Options {
	return Options{
		MaxRetries:  DefaultMaxRetries,
		SettleDelay: DefaultSettleDelay,
		Clock:       clock.New(),
	}
}

// Controller владеет единственным экземпляром состояния готовности.
// Status не блокируется на время инициализации: mu удерживается только при
// чтении и смене полей, сама попытка выполняется вне блокировки.
type Controller struct {
	mu         sync.Mutex
	state      State
	err        error
	retryCount int
	updatedAt  time.Time
	inflight   chan struct{}

	init    InitFunc
	opts    Options
	logger  *zap.Logger
	metrics *metrics.Collector
}

// New создает контроллер в состоянии Idle.
func New(init InitFunc, opts Options, collector *metrics.Collector, logger *zap.Logger) *Controller {
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if opts.SettleDelay < 0 {
		opts.SettleDelay = 0
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := &Controller{
		init:    init,
		opts:    opts,
		logger:  logger.Named("readiness"),
		metrics: collector,
	}
	c.updatedAt = opts.Clock.Now()
	collector.SetReadinessState(int(Idle))
	return c
}

// Status возвращает текущий снимок состояния.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// CanRetry сообщает, допустим ли сейчас Retry.
func (c *Controller) CanRetry() bool {
	return c.Status().CanRetry()
}

// EnsureReady запускает инициализацию из Idle и ждет ее завершения.
// Если попытка уже идет, ждет ее результата. Из Failed автоматически не
// повторяет: для этого есть Retry. При отмене ctx возвращает текущий снимок.
func (c *Controller) EnsureReady(ctx context.Context) Status {
	c.mu.Lock()
	switch {
	case c.state == Idle:
		done, st := c.beginLocked(Initializing)
		c.mu.Unlock()
		c.notify(st)
		c.attempt(ctx, done)
		return c.Status()
	case c.state.InProgress():
		done := c.inflight
		c.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return c.Status()
	default:
		st := c.statusLocked()
		c.mu.Unlock()
		return st
	}
}

// Retry повторяет инициализацию из Failed, пока не исчерпан лимит.
// Конкурентный вызов во время перехода ничего не делает и возвращает ErrInProgress.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.state.InProgress() {
		c.mu.Unlock()
		return ErrInProgress
	}
	if !c.statusLocked().CanRetry() {
		c.mu.Unlock()
		return ErrRetryNotAllowed
	}
	c.retryCount++
	done, st := c.beginLocked(Retrying)
	c.mu.Unlock()
	c.notify(st)

	c.attempt(ctx, done)

	if st = c.Status(); st.State == Failed {
		return st.Err
	}
	return nil
}

// RetryUntilReady повторяет Retry с экспоненциальной задержкой, пока
// зависимость не станет Ready или попытки не закончатся.
func (c *Controller) RetryUntilReady(ctx context.Context) (Status, error) {
	if st := c.EnsureReady(ctx); st.State == Ready {
		return st, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.SettleDelay
	policy.MaxInterval = c.opts.SettleDelay * 10

	notify := func(err error, d time.Duration) {
		c.logger.Info("Readiness retry scheduled", zap.Error(err), zap.Duration("backoff", d))
	}

	operation := func() (Status, error) {
		err := c.Retry(ctx)
		switch {
		case err == nil:
			return c.Status(), nil
		case errors.Is(err, ErrRetryNotAllowed):
			return c.Status(), backoff.Permanent(err)
		}
		return c.Status(), err
	}

	st, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(c.opts.MaxRetries)+1),
		backoff.WithNotify(notify))
	if err != nil {
		return c.Status(), err
	}
	return st, nil
}

// Reset переводит Ready в Idle, когда зависимость перестала работать;
// следующий EnsureReady инициализирует ее заново. В остальных состояниях
// ничего не делает и возвращает false: Failed покидается только через Retry.
func (c *Controller) Reset(reason error) bool {
	c.mu.Lock()
	if c.state != Ready {
		c.mu.Unlock()
		return false
	}
	c.state = Idle
	c.err = nil
	c.retryCount = 0
	c.updatedAt = c.opts.Clock.Now()
	st := c.statusLocked()
	c.mu.Unlock()

	c.logger.Warn("Readiness reset", zap.Error(reason))
	c.notify(st)
	return true
}

func (c *Controller) beginLocked(next State) (chan struct{}, Status) {
	c.state = next
	c.err = nil
	c.updatedAt = c.opts.Clock.Now()
	done := make(chan struct{})
	c.inflight = done
	return done, c.statusLocked()
}

func (c *Controller) attempt(ctx context.Context, done chan struct{}) {
	err := c.settle(ctx)
	if err == nil {
		err = c.init(ctx)
	}

	c.mu.Lock()
	if err == nil {
		c.state = Ready
		c.err = nil
		c.retryCount = 0
	} else {
		c.state = Failed
		c.err = err
	}
	c.updatedAt = c.opts.Clock.Now()
	c.inflight = nil
	close(done)
	st := c.statusLocked()
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("Dependency initialization failed",
			zap.Int("retry_count", st.RetryCount),
			zap.Bool("can_retry", st.CanRetry()),
			zap.Error(err))
	} else {
		c.logger.Info("Dependency ready")
	}
	c.notify(st)
}

// settle выдерживает паузу перед попыткой инициализации.
func (c *Controller) settle(ctx context.Context) error {
	if c.opts.SettleDelay <= 0 {
		return ctx.Err()
	}
	timer := c.opts.Clock.Timer(c.opts.SettleDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) notify(st Status) {
	c.metrics.SetReadinessState(int(st.State))
	if c.opts.OnChange != nil {
		c.opts.OnChange(st)
	}
}

func (c *Controller) statusLocked() Status {
	return Status{
		State:      c.state,
		Err:        c.err,
		RetryCount: c.retryCount,
		MaxRetries: c.opts.MaxRetries,
		UpdatedAt:  c.updatedAt,
	}
}
