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

// Package store defines the ownership store contract the balancer depends
// on. No concrete store implementation belongs in the balancer itself; see
// the memstore and blobstore subpackages for two interchangeable
// implementations.
package store

import (
	"context"
	"fmt"

	"github.com/kedacore/partbalance/pkg/ownership"
)

// Scope identifies the namespace/hub/consumer-group tuple a Store call is
// scoped to. Every record returned by List, and every record accepted by
// Claim, belongs to exactly one Scope.
type Scope struct {
	Namespace     string
	Hub           string
	ConsumerGroup string
}

// Store is the abstract ownership backend. Both methods are synchronous
// from the caller's point of view: the balancer suspends until the call
// completes. Implementations must treat ctx cancellation as a request to
// abort and return ctx.Err() (or a wrapped form of it) rather than partial
// results.
type Store interface {
	// List returns every record under scope, including expired and
	// empty-owner ones. No filtering, no sorting guarantee. A
	// transport-level failure returns a non-nil error; List does not
	// distinguish "scope has no records" from "scope never existed" —
	// both return an empty, nil-error slice.
	List(ctx context.Context, scope Scope) ([]ownership.Record, error)

	// Claim submits a batch of proposed writes. Each record is evaluated
	// against the store's optimistic-concurrency rule independently: a
	// record with a non-nil VersionToken is accepted only if it matches
	// the store's current token for that key; a record with a nil token
	// is accepted only if no record yet exists for that key. The
	// returned slice contains exactly the accepted records, each
	// carrying the store-assigned VersionToken. Rejected records are
	// omitted, not reported as errors. A transport-level failure fails
	// the whole call and returns no partial results.
	Claim(ctx context.Context, batch []ownership.Record) ([]ownership.Record, error)
}

// TransientError wraps a transport-level failure from a Store
// implementation (network failure, throttling, a 5xx-equivalent). It is
// always retryable: the caller is expected to try again on its next tick.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("partition store: %s: %s", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as a TransientError tagged with the
// operation name that failed ("list" or "claim"). Returns nil if err is
// nil.
func NewTransientError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &TransientError{Op: op, Err: err}
}
