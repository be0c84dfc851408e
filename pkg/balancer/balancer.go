/*
Copyright 2021 The KEDA Authors

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package balancer implements the cooperative partition load balancer: the
// decentralized convergence algorithm every fleet instance runs on each
// tick against a shared, optimistic-concurrency ownership store.
//
// A Balancer instance is private to one process. Instances coordinate only
// through the store.Store they are each given; there is no direct
// communication between them.
package balancer

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/go-logr/logr"

	"github.com/kedacore/partbalance/pkg/ownership"
	"github.com/kedacore/partbalance/pkg/store"
	"github.com/kedacore/partbalance/pkg/telemetry"
)

// Config holds the fixed configuration for one Balancer instance.
type Config struct {
	// OwnerID identifies this process uniquely in the fleet. It must
	// persist for the lifetime of this Balancer instance.
	OwnerID string
	// Namespace, Hub, ConsumerGroup scope every record this instance
	// reads and writes.
	Namespace     string
	Hub           string
	ConsumerGroup string
	// ExpirationWindow is the duration after which an un-renewed record
	// is considered an orphan, claimable by any instance.
	ExpirationWindow time.Duration

	// Logger receives unstructured diagnostic logs. The zero value
	// (logr.Logger{}) discards everything.
	Logger logr.Logger
	// Telemetry receives the advisory per-tick events described in the
	// package's design notes. A nil value is replaced with a recorder
	// that discards everything.
	Telemetry telemetry.Recorder
}

func (c Config) validate() error {
	if c.OwnerID == "" {
		return newPreconditionError("OwnerID", "must not be empty")
	}
	if c.Namespace == "" {
		return newPreconditionError("Namespace", "must not be empty")
	}
	if c.Hub == "" {
		return newPreconditionError("Hub", "must not be empty")
	}
	if c.ConsumerGroup == "" {
		return newPreconditionError("ConsumerGroup", "must not be empty")
	}
	if c.ExpirationWindow <= 0 {
		return newPreconditionError("ExpirationWindow", "must be positive")
	}
	return nil
}

func (c Config) scope() store.Scope {
	return store.Scope{Namespace: c.Namespace, Hub: c.Hub, ConsumerGroup: c.ConsumerGroup}
}

// Balancer runs the per-tick convergence algorithm for one fleet instance.
// It is not safe for concurrent ticks: RunTick and Relinquish both return
// ErrTickInProgress if called while another tick is in flight on the same
// instance. A Balancer may be read from (OwnedPartitionIDs) at any time.
type Balancer struct {
	cfg   Config
	store store.Store
	rng   *mathrand.Rand

	mu       sync.RWMutex
	ticking  bool
	holdings map[string]ownership.Record
}

// New constructs a Balancer. It returns a PreconditionError if cfg is
// incomplete.
func New(cfg Config, st store.Store) (*Balancer, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Telemetry == nil {
		cfg.Telemetry = telemetry.NopRecorder{}
	}

	seed, err := seedFromEntropy()
	if err != nil {
		return nil, err
	}

	return &Balancer{
		cfg:      cfg,
		store:    st,
		rng:      mathrand.New(mathrand.NewSource(seed)), //nolint:gosec // selection need not be cryptographically random, only uncorrelated
		holdings: make(map[string]ownership.Record),
	}, nil
}

// seedFromEntropy draws a PRNG seed from crypto/rand so that two Balancer
// instances constructed at the same wall-clock instant still diverge; see
// the package design notes on per-instance PRNG independence.
func seedFromEntropy() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(0).SetUint64(^uint64(0)>>1))
	if err != nil {
		return 0, err
	}
	var buf [8]byte
	n.FillBytes(buf[:])
	return int64(binary.BigEndian.Uint64(buf[:])), nil
}

// OwnedPartitionIDs returns the set of partition IDs this instance
// currently believes it holds. Safe to call between ticks.
func (b *Balancer) OwnedPartitionIDs() map[string]struct{} {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make(map[string]struct{}, len(b.holdings))
	for id := range b.holdings {
		out[id] = struct{}{}
	}
	return out
}

func (b *Balancer) beginTick() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ticking {
		return ErrTickInProgress
	}
	b.ticking = true
	return nil
}

func (b *Balancer) endTick() {
	b.mu.Lock()
	b.ticking = false
	b.mu.Unlock()
}

func (b *Balancer) holdingsSnapshot() []ownership.Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]ownership.Record, 0, len(b.holdings))
	for _, r := range b.holdings {
		out = append(out, r)
	}
	return out
}

func (b *Balancer) setHoldings(records []ownership.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings = make(map[string]ownership.Record, len(records))
	for _, r := range records {
		b.holdings[r.PartitionID] = r
	}
}

func (b *Balancer) insertHolding(r ownership.Record) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings[r.PartitionID] = r
}

func (b *Balancer) clearHoldings() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.holdings = make(map[string]ownership.Record)
}
