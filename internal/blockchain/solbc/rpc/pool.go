// internal/blockchain/solbc/rpc/pool.go
package rpc

import (
	"fmt"
	"strings"
)

// Pool – статический упорядоченный список эндпоинтов.
type Pool struct {
	endpoints []Endpoint
}

// NewPool создает пул из адресов; порядок адресов задает приоритет.
func NewPool(urls []string) (*Pool, error) {
	endpoints := make([]Endpoint, 0, len(urls))
	seen := make(map[string]struct{}, len(urls))
	for _, raw := range urls {
		url := strings.TrimSpace(raw)
		if url == "" {
			continue
		}
		if _, dup := seen[url]; dup {
			continue
		}
		seen[url] = struct{}{}
		endpoints = append(endpoints, Endpoint{URL: url, Priority: len(endpoints)})
	}
	if len(endpoints) == 0 {
		return nil, ErrNoEndpoints
	}
	return &Pool{endpoints: endpoints}, nil
}

// MustPool паникует при пустом списке. Используется в тестах.
func MustPool(urls ...string) *Pool {
	p, err := NewPool(urls)
	if err != nil {
		panic(fmt.Sprintf("rpc pool: %v", err))
	}
	return p
}

// Endpoints возвращает копию списка в порядке приоритета.
func (p *Pool) Endpoints() []Endpoint {
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// Len возвращает количество эндпоинтов.
func (p *Pool) Len() int {
	return len(p.endpoints)
}
