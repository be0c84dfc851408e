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

	"github.com/kedacore/partbalance/pkg/ownership"
)

// Relinquish releases every partition this instance currently holds: each
// held record is written back with an empty owner ID, preserving its
// LastModified timestamp (the owner is stepping down, not renewing).
// Holdings are cleared unconditionally once the call returns, regardless
// of which individual writes the store accepted — the process is exiting,
// and peers will reclaim any write that was rejected once the record
// expires.
//
// Calling Relinquish twice with no intervening tick is a no-op the second
// time: holdings are already empty, so the second call returns without
// making any store call.
func (b *Balancer) Relinquish(ctx context.Context) error {
	if err := b.beginTick(); err != nil {
		return err
	}
	defer b.endTick()
	defer b.clearHoldings()

	if err := ctx.Err(); err != nil {
		return newCanceledError(err)
	}

	held := b.holdingsSnapshot()
	if len(held) == 0 {
		return nil
	}

	batch := make([]ownership.Record, 0, len(held))
	for _, r := range held {
		batch = append(batch, r.Released())
	}

	_, err := b.store.Claim(ctx, batch)
	if err != nil {
		return canceledFrom(ctx, wrapTransient(err))
	}
	return nil
}
