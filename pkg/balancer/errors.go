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

package balancer

import (
	"context"
	"errors"
	"fmt"
)

// CanceledError wraps a context cancellation observed during a tick. It is
// distinct from a wrapped store.TransientError: there is no retry expectation
// attached to it beyond "the driver decided to stop".
type CanceledError struct {
	Err error
}

func (e *CanceledError) Error() string {
	return fmt.Sprintf("balancer: tick canceled: %s", e.Err)
}

func (e *CanceledError) Unwrap() error { return e.Err }

func newCanceledError(err error) error {
	if err == nil {
		return nil
	}
	return &CanceledError{Err: err}
}

// PreconditionError reports a construction-time configuration mistake: an
// empty owner ID, an empty scope field, a non-positive expiration window.
// It is fatal and never produced mid-tick.
type PreconditionError struct {
	Field  string
	Reason string
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("balancer: invalid %s: %s", e.Field, e.Reason)
}

func newPreconditionError(field, reason string) error {
	return &PreconditionError{Field: field, Reason: reason}
}

// ErrTickInProgress is returned by RunTick and Relinquish when the driver
// violates the single-tick-at-a-time contract documented on Balancer.
var ErrTickInProgress = errors.New("balancer: a tick is already in progress on this instance")

// canceledFrom converts a context error observed at a suspension point
// into a CanceledError, leaving non-cancellation errors untouched.
func canceledFrom(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctx.Err() != nil {
		return newCanceledError(ctx.Err())
	}
	return err
}

// wrapTransient tags a store error with tick-level context. The
// underlying store.TransientError (or whatever error the Store
// implementation returned) remains reachable via errors.As/errors.Unwrap.
func wrapTransient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("balancer: %w", err)
}
