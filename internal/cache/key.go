package cache

import (
	"strconv"
	"strings"
	"time"
)

// Kind names the operation a cached value belongs to.
type Kind string

const (
	KindPoolInfo   Kind = "pool_info"
	KindPairList   Kind = "pair_list"
	KindSimulation Kind = "simulation"
	KindQuote      Kind = "quote"
	KindBalance    Kind = "balance"
)

// Key identifies one logical query. Two keys are equal exactly when
// their kind, identifier and argument list are equal.
type Key struct {
	Kind Kind
	ID   string
	Args string
}

// KeyFor builds a key from an identifier and ordered arguments.
func KeyFor(kind Kind, id string, args ...string) Key {
	return Key{Kind: kind, ID: id, Args: encodeParts(args)}
}

// String returns a length-prefixed encoding, so no separator inside
// a component can make two different keys collide.
func (k Key) String() string {
	return encodeParts([]string{string(k.Kind), k.ID, k.Args})
}

func encodeParts(parts []string) string {
	var b strings.Builder
	for _, p := range parts {
		b.WriteString(strconv.Itoa(len(p)))
		b.WriteByte(':')
		b.WriteString(p)
	}
	return b.String()
}

// TTLClass selects a TTL from TTLs.
type TTLClass int

const (
	ClassPoolInfo TTLClass = iota
	ClassPairList
	ClassSimulation
	ClassBalance
)

func (c TTLClass) String() string {
	switch c {
	case ClassPoolInfo:
		return "pool_info"
	case ClassPairList:
		return "pair_list"
	case ClassSimulation:
		return "simulation"
	case ClassBalance:
		return "balance"
	}
	return "unknown"
}

// TTLs holds the per-class time-to-live policy.
type TTLs struct {
	PoolInfo   time.Duration
	PairList   time.Duration
	Simulation time.Duration
	Balance    time.Duration
}

// DefaultTTLs returns the default policy.
func DefaultTTLs() TTLs {
	return TTLs{
		PoolInfo:   10 * time.Second,
		PairList:   30 * time.Second,
		Simulation: 2 * time.Second,
		Balance:    5 * time.Second,
	}
}

// For returns the TTL configured for class.
func (t TTLs) For(class TTLClass) time.Duration {
	switch class {
	case ClassPoolInfo:
		return t.PoolInfo
	case ClassPairList:
		return t.PairList
	case ClassSimulation:
		return t.Simulation
	case ClassBalance:
		return t.Balance
	}
	return 0
}
