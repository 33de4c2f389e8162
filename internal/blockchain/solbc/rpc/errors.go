// internal/blockchain/solbc/rpc/errors.go
package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
)

var (
	// ErrNoEndpoints возникает, когда список эндпоинтов пуст
	ErrNoEndpoints = errors.New("no RPC endpoints configured")

	// ErrAllEndpointsFailed возникает, когда ни один эндпоинт не прошел health-probe
	ErrAllEndpointsFailed = errors.New("all RPC endpoints failed")

	// ErrRateLimit возникает при превышении лимита запросов
	ErrRateLimit = errors.New("rate limit exceeded")

	// ErrTimeout возникает при превышении времени ожидания
	ErrTimeout = errors.New("request timeout")

	// ErrForbidden возникает, когда узел отклоняет запрос (401/403)
	ErrForbidden = errors.New("access forbidden")

	// ErrServerError возникает при ошибке на стороне узла (5xx)
	ErrServerError = errors.New("server error")

	// ErrInvalidResponse возникает при получении некорректного ответа
	ErrInvalidResponse = errors.New("invalid RPC response")

	// ErrConnectionFailed возникает при ошибке подключения
	ErrConnectionFailed = errors.New("connection failed")
)

// FailureClass классифицирует ошибку транспорта для диагностики.
type FailureClass string

const (
	FailureNone        FailureClass = ""
	FailureTimeout     FailureClass = "timeout"
	FailureRateLimited FailureClass = "rate_limited"
	FailureForbidden   FailureClass = "forbidden"
	FailureServer      FailureClass = "server_error"
	FailureMalformed   FailureClass = "malformed_response"
	FailureUnreachable FailureClass = "unreachable"
	FailureOther       FailureClass = "other"
)

// Sentinel возвращает sentinel-ошибку, соответствующую классу.
func (c FailureClass) Sentinel() error {
	switch c {
	case FailureTimeout:
		return ErrTimeout
	case FailureRateLimited:
		return ErrRateLimit
	case FailureForbidden:
		return ErrForbidden
	case FailureServer:
		return ErrServerError
	case FailureMalformed:
		return ErrInvalidResponse
	case FailureUnreachable:
		return ErrConnectionFailed
	}
	return nil
}

// Error представляет ошибку RPC с дополнительным контекстом
type Error struct {
	Err     error
	NodeURL string
	Method  string
}

// Error реализует интерфейс error
func (e *Error) Error() string {
	return fmt.Sprintf("RPC error [%s] at %s: %v", e.Method, e.NodeURL, e.Err)
}

// Unwrap возвращает оригинальную ошибку
func (e *Error) Unwrap() error {
	return e.Err
}

// Is позволяет сравнивать ошибку с sentinel-ошибкой ее класса.
func (e *Error) Is(target error) bool {
	sentinel := Classify(e.Err).Sentinel()
	return sentinel != nil && target == sentinel
}

// NewError создает новую ошибку RPC
func NewError(err error, nodeURL, method string) error {
	return &Error{
		Err:     err,
		NodeURL: nodeURL,
		Method:  method,
	}
}

// EndpointFailure описывает неудачный probe одного эндпоинта.
type EndpointFailure struct {
	Endpoint string
	Class    FailureClass
	Err      error
	Duration time.Duration
}

// ProbeError возвращается, когда раунд проверки не нашел рабочий эндпоинт.
type ProbeError struct {
	Failures []EndpointFailure
}

func (e *ProbeError) Error() string {
	if len(e.Failures) == 0 {
		return ErrAllEndpointsFailed.Error()
	}
	parts := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		parts = append(parts, fmt.Sprintf("%s: %s: %v", f.Endpoint, f.Class, f.Err))
	}
	return fmt.Sprintf("%s (%d tried): %s", ErrAllEndpointsFailed, len(e.Failures), strings.Join(parts, "; "))
}

// Is сопоставляет ProbeError с ErrAllEndpointsFailed.
func (e *ProbeError) Is(target error) bool {
	return target == ErrAllEndpointsFailed
}

// Classify определяет класс ошибки транспорта.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureNone
	}

	switch {
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, ErrRateLimit):
		return FailureRateLimited
	case errors.Is(err, ErrForbidden):
		return FailureForbidden
	case errors.Is(err, ErrServerError):
		return FailureServer
	case errors.Is(err, ErrInvalidResponse):
		return FailureMalformed
	case errors.Is(err, ErrConnectionFailed):
		return FailureUnreachable
	}

	var rpcErr *jsonrpc.RPCError
	if errors.As(err, &rpcErr) {
		if class := classifyCode(rpcErr.Code); class != FailureNone {
			return class
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureUnreachable
	}

	return classifyMessage(strings.ToLower(err.Error()))
}

func classifyCode(code int) FailureClass {
	switch {
	case code == 429:
		return FailureRateLimited
	case code == 401 || code == 403:
		return FailureForbidden
	case code >= 500 && code < 600:
		return FailureServer
	case code == -32700 || code == -32600:
		return FailureMalformed
	case code == -32603 || code == -32005:
		// internal error / node is behind
		return FailureServer
	}
	return FailureNone
}

func classifyMessage(msg string) FailureClass {
	switch {
	case strings.Contains(msg, "429"), strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return FailureRateLimited
	case strings.Contains(msg, "401"), strings.Contains(msg, "403"),
		strings.Contains(msg, "forbidden"), strings.Contains(msg, "unauthorized"):
		return FailureForbidden
	case strings.Contains(msg, "timeout"), strings.Contains(msg, "deadline exceeded"):
		return FailureTimeout
	case strings.Contains(msg, "connection refused"), strings.Contains(msg, "no such host"),
		strings.Contains(msg, "network is unreachable"), strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "eof"):
		return FailureUnreachable
	case strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"),
		strings.Contains(msg, "500"), strings.Contains(msg, "bad gateway"), strings.Contains(msg, "service unavailable"):
		return FailureServer
	case strings.Contains(msg, "invalid character"), strings.Contains(msg, "unexpected end of json"),
		strings.Contains(msg, "cannot unmarshal"):
		return FailureMalformed
	}
	return FailureOther
}

// IsRetryableError сообщает, могла ли ошибка быть вызвана текущим эндпоинтом,
// то есть стоит ли сбросить соединение и повторить проверку.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAllEndpointsFailed) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	switch Classify(err) {
	case FailureTimeout, FailureRateLimited, FailureServer, FailureUnreachable, FailureMalformed, FailureForbidden:
		return true
	}
	return false
}
