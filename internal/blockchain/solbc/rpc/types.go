// internal/blockchain/solbc/rpc/types.go
package rpc

import (
	"time"
)

const (
	DefaultProbeTimeout = 3 * time.Second

	probeMethod   = "getLatestBlockhash"
	probeRoundKey = "probe-round"
)

// Endpoint – адрес узла и его приоритет (позиция в списке).
type Endpoint struct {
	URL      string
	Priority int
}

// Connection выдается менеджером по ссылке; вызывающий код не создает и не изменяет его.
type Connection struct {
	Client
	Endpoint  Endpoint
	CreatedAt time.Time
}

// ManagerOptions настраивает Manager.
type ManagerOptions struct {
	ProbeTimeout time.Duration
	Dialer       Dialer
}

// DefaultManagerOptions возвращает настройки по умолчанию.
func DefaultManagerOptions() ManagerOptions {
	return ManagerOptions{
		ProbeTimeout: DefaultProbeTimeout,
		Dialer:       DefaultDialer,
	}
}

// Stats – диагностические счетчики менеджера.
type Stats struct {
	Rounds          uint64
	Probes          uint64
	Failures        uint64
	Resets          uint64
	CurrentEndpoint string
}
