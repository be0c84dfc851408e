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
	"time"

	"github.com/kedacore/partbalance/pkg/ownership"
)

// distribution is the transient, per-tick view the Planner consumes. It
// carries no state beyond the tick that built it.
type distribution struct {
	// active maps owner ID to that owner's active (non-expired,
	// non-empty-owner) records. Always contains the self key, possibly
	// with an empty slice.
	active map[string][]ownership.Record
	// unclaimed is the set of partition IDs with no active record.
	unclaimed map[string]struct{}
	// snapshot is the raw, unfiltered list() result, kept around so the
	// Planner can recover version tokens for expired records it wants
	// to claim.
	snapshot []ownership.Record
}

// analyze partitions a fresh store snapshot into the active ownership
// distribution and the unclaimed set, per the Distribution Analyzer
// design: every partition ID starts unclaimed and is removed as an active
// record for it is found; every active record is filed under its owner.
func analyze(snapshot []ownership.Record, allPartitionIDs []string, selfOwnerID string, now time.Time, expiration time.Duration) distribution {
	unclaimed := make(map[string]struct{}, len(allPartitionIDs))
	for _, id := range allPartitionIDs {
		unclaimed[id] = struct{}{}
	}

	active := map[string][]ownership.Record{selfOwnerID: {}}

	for _, r := range snapshot {
		if !r.Active(now, expiration) {
			continue
		}
		active[r.OwnerID] = append(active[r.OwnerID], r)
		delete(unclaimed, r.PartitionID)
	}

	return distribution{active: active, unclaimed: unclaimed, snapshot: snapshot}
}

// latestFor returns the most recent record in the raw snapshot for
// partitionID, if any. Multiple records for the same partition should
// never appear (invariant 1 in the data model), but the Planner only ever
// needs one, so the first match is returned.
func (d distribution) latestFor(partitionID string) (ownership.Record, bool) {
	for _, r := range d.snapshot {
		if r.PartitionID == partitionID {
			return r, true
		}
	}
	return ownership.Record{}, false
}
