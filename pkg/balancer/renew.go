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

// renew submits a claim batch refreshing the timestamp on every entry this
// instance currently holds. On success, holdings are replaced wholesale
// with the accepted records: anything silently rejected (a peer claimed it
// concurrently) simply drops out, which is how the instance learns it lost
// a partition. On a transport error, holdings are left untouched so the
// next tick can retry.
func (b *Balancer) renew(ctx context.Context) error {
	current := b.holdingsSnapshot()
	b.cfg.Telemetry.RenewalStarted(len(current))

	if err := ctx.Err(); err != nil {
		wrapped := newCanceledError(err)
		b.cfg.Telemetry.RenewalFailed(wrapped)
		return wrapped
	}

	if len(current) == 0 {
		b.cfg.Telemetry.RenewalCompleted(0)
		return nil
	}

	now := time.Now()
	batch := make([]ownership.Record, 0, len(current))
	for _, r := range current {
		batch = append(batch, r.WithOwner(b.cfg.OwnerID, now))
	}

	accepted, err := b.store.Claim(ctx, batch)
	if err != nil {
		wrapped := canceledFrom(ctx, wrapTransient(err))
		b.cfg.Telemetry.RenewalFailed(wrapped)
		return wrapped
	}

	b.setHoldings(accepted)
	b.cfg.Telemetry.RenewalCompleted(len(accepted))
	return nil
}
