package service

import (
	"errors"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/solana-query/internal/blockchain/solbc/rpc"
	"github.com/rovshanmuradov/solana-query/internal/events"
	"github.com/rovshanmuradov/solana-query/internal/readiness"
)

// notifyingConnections publishes a ConnectionResetEvent whenever a reported
// failure drops the memoized connection. When no endpoint answers at all the
// dependency is invalidated too, so the next call initializes it again.
type notifyingConnections struct {
	Connections
	readiness *readiness.Controller
	publisher events.Publisher
	clock     clock.Clock
	logger    *zap.Logger
}

func (n *notifyingConnections) ReportFailure(err error) bool {
	endpoint := ""
	if ep, ok := n.Connections.CurrentEndpoint(); ok {
		endpoint = ep.URL
	}
	if !n.Connections.ReportFailure(err) {
		return false
	}

	ev := events.ConnectionResetEvent{
		BaseEvent: events.BaseEvent{EventType: events.ConnectionReset, EventTime: n.clock.Now()},
		Endpoint:  endpoint,
		Reason:    string(rpc.Classify(err)),
	}
	if pubErr := n.publisher.Publish(ev); pubErr != nil {
		n.logger.Debug("Connection reset not published", zap.Error(pubErr))
	}

	if errors.Is(err, rpc.ErrAllEndpointsFailed) {
		n.readiness.Reset(err)
	}
	return true
}

// ReadinessPublisher returns a readiness.Options.OnChange hook that
// publishes every transition.
func ReadinessPublisher(pub events.Publisher, logger *zap.Logger) func(readiness.Status) {
	return func(st readiness.Status) {
		ev := events.ReadinessChangedEvent{
			BaseEvent:  events.BaseEvent{EventType: events.ReadinessChanged, EventTime: st.UpdatedAt},
			State:      st.State.String(),
			RetryCount: st.RetryCount,
			Error:      st.Message(),
		}
		if err := pub.Publish(ev); err != nil {
			logger.Debug("Readiness change not published", zap.String("state", ev.State), zap.Error(err))
		}
	}
}
