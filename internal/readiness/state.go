package readiness

import (
	"errors"
	"time"
)

// State – состояние готовности зависимости
type State int

const (
	Idle State = iota
	Initializing
	Ready
	Retrying
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Initializing:
		return "initializing"
	case Ready:
		return "ready"
	case Retrying:
		return "retrying"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// InProgress сообщает, идет ли сейчас попытка инициализации.
func (s State) InProgress() bool {
	return s == Initializing || s == Retrying
}

var (
	// ErrRetryNotAllowed – retry вызван не из Failed или лимит попыток исчерпан
	ErrRetryNotAllowed = errors.New("retry not allowed")

	// ErrInProgress – переход уже выполняется
	ErrInProgress = errors.New("initialization already in progress")
)

// Status – снимок состояния для вызывающего кода.
type Status struct {
	State      State
	Err        error
	RetryCount int
	MaxRetries int
	UpdatedAt  time.Time
}

// Message возвращает текст ошибки без изменений или пустую строку.
func (s Status) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

// CanRetry сообщает, допустим ли сейчас Retry.
func (s Status) CanRetry() bool {
	return s.State == Failed && s.RetryCount < s.MaxRetries
}
