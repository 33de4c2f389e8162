// internal/blockchain/solbc/rpc/manager.go
package rpc

import (
	"context"
	"sync/atomic"
	"time"

	solanarpc "github.com/gagliardetto/solana-go/rpc"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/rovshanmuradov/solana-query/internal/utils/logger"
	"github.com/rovshanmuradov/solana-query/internal/utils/metrics"
)

// Manager выбирает первый рабочий эндпоинт из пула и запоминает соединение.
// После успешной проверки чтение соединения не требует блокировок.
type Manager struct {
	pool         *Pool
	dial         Dialer
	probeTimeout time.Duration
	logger       *logger.Logger
	metrics      *metrics.Collector

	group   singleflight.Group
	current atomic.Pointer[Connection]

	rounds   atomic.Uint64
	probes   atomic.Uint64
	failures atomic.Uint64
	resets   atomic.Uint64
}

// NewManager создает менеджер соединений.
func NewManager(pool *Pool, opts ManagerOptions, collector *metrics.Collector, log *zap.Logger) *Manager {
	if opts.ProbeTimeout <= 0 {
		opts.ProbeTimeout = DefaultProbeTimeout
	}
	if opts.Dialer == nil {
		opts.Dialer = DefaultDialer
	}
	return &Manager{
		pool:         pool,
		dial:         opts.Dialer,
		probeTimeout: opts.ProbeTimeout,
		logger:       logger.Wrap(log.Named("rpc-manager")),
		metrics:      collector,
	}
}

// GetConnection возвращает запомненное соединение или проводит раунд проверки.
// Конкурентные вызовы во время раунда ждут его результата, включая ошибку.
func (m *Manager) GetConnection(ctx context.Context) (*Connection, error) {
	if conn := m.current.Load(); conn != nil {
		return conn, nil
	}

	// Раунд ограничен probeTimeout на каждый эндпоинт и не зависит от отмены
	// контекста конкретного вызывающего: остальные ожидающие получат результат.
	ch := m.group.DoChan(probeRoundKey, func() (interface{}, error) {
		if conn := m.current.Load(); conn != nil {
			return conn, nil
		}
		conn, err := m.probeRound(context.WithoutCancel(ctx))
		if err != nil {
			m.logger.Error("All RPC endpoints failed", zap.Error(err))
			return nil, err
		}
		m.current.Store(conn)
		return conn, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Connection), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reset сбрасывает запомненное соединение; следующий GetConnection
// проверяет эндпоинты с начала списка. Идущий раунд не отменяется.
func (m *Manager) Reset() {
	if prev := m.current.Swap(nil); prev != nil {
		m.resets.Add(1)
		m.logger.WithEndpoint(prev.Endpoint.URL).Info("Connection reset")
	}
}

// ReportFailure сбрасывает соединение, если ошибка могла быть вызвана текущим эндпоинтом.
func (m *Manager) ReportFailure(err error) bool {
	if !IsRetryableError(err) {
		return false
	}
	m.logger.Debug("Upstream failure reported",
		zap.String("class", string(Classify(err))),
		zap.Error(err))
	m.Reset()
	return true
}

// CurrentEndpoint возвращает эндпоинт запомненного соединения.
func (m *Manager) CurrentEndpoint() (Endpoint, bool) {
	conn := m.current.Load()
	if conn == nil {
		return Endpoint{}, false
	}
	return conn.Endpoint, true
}

// Stats возвращает диагностические счетчики.
func (m *Manager) Stats() Stats {
	s := Stats{
		Rounds:   m.rounds.Load(),
		Probes:   m.probes.Load(),
		Failures: m.failures.Load(),
		Resets:   m.resets.Load(),
	}
	if ep, ok := m.CurrentEndpoint(); ok {
		s.CurrentEndpoint = ep.URL
	}
	return s
}

// probeRound проверяет эндпоинты строго по порядку, по одному.
func (m *Manager) probeRound(ctx context.Context) (*Connection, error) {
	m.rounds.Add(1)
	endpoints := m.pool.Endpoints()
	failures := make([]EndpointFailure, 0, len(endpoints))

	for _, ep := range endpoints {
		client := m.dial(ep.URL)

		start := time.Now()
		err := m.probe(ctx, ep, client)
		duration := time.Since(start)
		m.probes.Add(1)

		if err == nil {
			m.metrics.RecordProbe(ep.URL, "ok", duration)
			m.logger.WithEndpoint(ep.URL).Info("RPC endpoint selected",
				zap.Int("priority", ep.Priority),
				zap.Duration("probe_duration", duration))
			return &Connection{
				Client:    client,
				Endpoint:  ep,
				CreatedAt: time.Now(),
			}, nil
		}

		class := Classify(err)
		m.failures.Add(1)
		m.metrics.RecordProbe(ep.URL, string(class), duration)
		m.logger.WithEndpoint(ep.URL).Warn("RPC endpoint probe failed",
			zap.String("class", string(class)),
			zap.Duration("probe_duration", duration),
			zap.Error(err))

		failures = append(failures, EndpointFailure{
			Endpoint: ep.URL,
			Class:    class,
			Err:      err,
			Duration: duration,
		})
	}

	return nil, &ProbeError{Failures: failures}
}

type probeResult struct {
	out *solanarpc.GetLatestBlockhashResult
	err error
}

// probe гоняет вызов против таймаута; результат проигравшего вызова отбрасывается.
func (m *Manager) probe(ctx context.Context, ep Endpoint, client Client) error {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	done := make(chan probeResult, 1)
	go func() {
		out, err := client.GetLatestBlockhash(probeCtx, solanarpc.CommitmentFinalized)
		done <- probeResult{out: out, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return NewError(res.err, ep.URL, probeMethod)
		}
		if res.out == nil || res.out.Value == nil {
			return NewError(ErrInvalidResponse, ep.URL, probeMethod)
		}
		return nil
	case <-probeCtx.Done():
		return NewError(ErrTimeout, ep.URL, probeMethod)
	}
}
