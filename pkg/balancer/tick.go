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
	"time"

	"github.com/kedacore/partbalance/pkg/ownership"
)

// RunTick performs one pass of the convergence algorithm: renew this
// instance's current holdings, read a fresh snapshot of the store,
// classify it, decide whether to attempt a claim this tick, and make at
// most one claim attempt.
//
// RunTick returns the newly claimed record if this tick's claim attempt
// was accepted, nil if no claim was attempted or the attempt was
// rejected, and a non-nil error on a wrapped store failure or
// cancellation. RunTick must not be called concurrently with another
// RunTick or Relinquish call on the same Balancer; doing so returns
// ErrTickInProgress without touching any state.
func (b *Balancer) RunTick(ctx context.Context, allPartitionIDs []string) (*ownership.Record, error) {
	if err := b.beginTick(); err != nil {
		return nil, err
	}
	defer b.endTick()

	if err := ctx.Err(); err != nil {
		return nil, newCanceledError(err)
	}

	if err := b.renew(ctx); err != nil {
		b.cfg.Logger.Error(err, "tick aborted during renewal")
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, newCanceledError(err)
	}

	snapshot, err := b.store.List(ctx, b.cfg.scope())
	if err != nil {
		wrapped := canceledFrom(ctx, wrapTransient(err))
		b.cfg.Logger.Error(wrapped, "tick aborted during list")
		return nil, wrapped
	}

	dist := analyze(snapshot, allPartitionIDs, b.cfg.OwnerID, time.Now(), b.cfg.ExpirationWindow)
	b.cfg.Telemetry.CurrentHoldings(len(dist.active[b.cfg.OwnerID]))
	b.cfg.Telemetry.UnclaimedCount(len(dist.unclaimed))

	p := decidePlan(dist, b.cfg.OwnerID, len(allPartitionIDs), b.rng)
	b.cfg.Telemetry.MinShareComputed(p.minShare, p.maxShare, len(dist.active))
	b.cfg.Telemetry.StealDecision(p.tier)

	return b.attemptClaim(ctx, dist, p)
}
