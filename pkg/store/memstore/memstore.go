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

// Package memstore is an in-memory store.Store used by tests and the demo
// driver: a fake ownership backend in the spirit of a fake broker, built to
// exercise the same optimistic-concurrency contract a real backend has to
// honor, without any network.
package memstore

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/kedacore/partbalance/pkg/ownership"
	"github.com/kedacore/partbalance/pkg/store"
)

// Store is a concurrency-safe, in-memory implementation of store.Store.
// The zero value is not usable; construct with New.
type Store struct {
	mu      sync.Mutex
	records map[ownership.Key]ownership.Record
	seq     uint64

	// FailNextList and FailNextClaim, when non-nil, are returned (and
	// cleared) by the next List/Claim call respectively. Tests use this
	// to simulate a single transient store failure.
	FailNextList  error
	FailNextClaim error
}

// New returns an empty Store.
func New() *Store {
	return &Store{records: make(map[ownership.Key]ownership.Record)}
}

// Seed inserts records directly, bypassing the optimistic-concurrency
// check, for test setup. Each seeded record is assigned a fresh version
// token.
func (s *Store) Seed(records ...ownership.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range records {
		s.seq++
		token := strconv.FormatUint(s.seq, 10)
		r.VersionToken = &token
		s.records[r.Key()] = r
	}
}

func (s *Store) List(ctx context.Context, scope store.Scope) ([]ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextList != nil {
		err := s.FailNextList
		s.FailNextList = nil
		return nil, store.NewTransientError("list", err)
	}

	out := make([]ownership.Record, 0, len(s.records))
	for k, r := range s.records {
		if k.Namespace != scope.Namespace || k.Hub != scope.Hub || k.ConsumerGroup != scope.ConsumerGroup {
			continue
		}
		out = append(out, r)
	}
	return out, nil
}

func (s *Store) Claim(ctx context.Context, batch []ownership.Record) ([]ownership.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailNextClaim != nil {
		err := s.FailNextClaim
		s.FailNextClaim = nil
		return nil, store.NewTransientError("claim", err)
	}

	accepted := make([]ownership.Record, 0, len(batch))
	for _, proposed := range batch {
		current, exists := s.records[proposed.Key()]

		if proposed.VersionToken == nil {
			if exists {
				continue // a record already exists; a "new record" write is rejected
			}
		} else {
			if !exists || current.VersionToken == nil || *current.VersionToken != *proposed.VersionToken {
				continue // stale or unknown token
			}
		}

		s.seq++
		token := strconv.FormatUint(s.seq, 10)
		proposed.VersionToken = &token
		s.records[proposed.Key()] = proposed
		accepted = append(accepted, proposed)
	}
	return accepted, nil
}

var _ fmt.Stringer = (*Store)(nil)

// String renders a compact summary of the store's contents, useful in test
// failure output.
func (s *Store) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("memstore{%d records}", len(s.records))
}
