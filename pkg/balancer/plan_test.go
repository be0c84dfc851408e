package balancer

import (
	mathrand "math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedacore/partbalance/pkg/ownership"
)

func newRNG() *mathrand.Rand { return mathrand.New(mathrand.NewSource(1)) }

func TestDecidePlanOrphanClaimWhenShort(t *testing.T) {
	now := time.Now()
	snapshot := []ownership.Record{rec("A", "0", now)}
	dist := analyze(snapshot, []string{"0", "1"}, "self", now, time.Minute)

	p := decidePlan(dist, "self", 2, newRNG())
	assert.Equal(t, tierOrphan, p.tier)
	assert.Equal(t, "1", p.partitionID)
	assert.Equal(t, 1, p.minShare)
	assert.Equal(t, 2, p.maxShare)
}

func TestDecidePlanNoActionWhenAtShareAndNoneBelowMin(t *testing.T) {
	now := time.Now()
	snapshot := []ownership.Record{rec("A", "0", now), rec("self", "1", now)}
	dist := analyze(snapshot, []string{"0", "1"}, "self", now, time.Minute)

	p := decidePlan(dist, "self", 2, newRNG())
	assert.Equal(t, tierNone, p.tier)
}

func TestDecidePlanStealsFromOversizedOwner(t *testing.T) {
	now := time.Now()
	// P=6, N=2 (self, A): self holds 1, A holds 5 -> min=3, max=4, self short.
	snapshot := []ownership.Record{rec("self", "0", now)}
	for i := 1; i <= 5; i++ {
		snapshot = append(snapshot, rec("A", itoa(i), now))
	}
	dist := analyze(snapshot, []string{"0", "1", "2", "3", "4", "5"}, "self", now, time.Minute)

	p := decidePlan(dist, "self", 6, newRNG())
	require.Equal(t, tierOver, p.tier)
	assert.Contains(t, []string{"1", "2", "3", "4", "5"}, p.partitionID)
}

func TestDecidePlanNeverTargetsOwnHoldingsWhenStealing(t *testing.T) {
	now := time.Now()
	// self already holds partition "1" (somehow double counted under A too
	// would violate invariant 1, so this models self's own active record
	// being excluded from the oversized-owner pool by identity, not owner).
	snapshot := []ownership.Record{
		rec("self", "0", now),
		rec("A", "1", now), rec("A", "2", now), rec("A", "3", now), rec("A", "4", now),
	}
	dist := analyze(snapshot, []string{"0", "1", "2", "3", "4"}, "self", now, time.Minute)
	// P=5, N=2 -> min=2, max=3. self has 1 (< min) -> eligible, unclaimed empty, A has 4 (>3) -> steal.
	p := decidePlan(dist, "self", 5, newRNG())
	require.Equal(t, tierOver, p.tier)
	assert.NotEqual(t, "0", p.partitionID)
}

func TestDecidePlanAtMaxStealOnlyWhenStrictlyShort(t *testing.T) {
	now := time.Now()
	// P=5, N=2: self 2, A 3 -> min=2, max=3. self == min, A == max (not > max)
	// so no "over" tier. self is NOT < min, so eligibility via the
	// no-owner-below-min clause only -> at_max branch must not fire.
	snapshot := []ownership.Record{
		rec("self", "0", now), rec("self", "1", now),
		rec("A", "2", now), rec("A", "3", now), rec("A", "4", now),
	}
	dist := analyze(snapshot, []string{"0", "1", "2", "3", "4"}, "self", now, time.Minute)
	p := decidePlan(dist, "self", 5, newRNG())
	assert.Equal(t, tierNone, p.tier)
}

func TestPickUnclaimedIsUniformOverMaterializedSet(t *testing.T) {
	dist := distribution{unclaimed: map[string]struct{}{"a": {}, "b": {}, "c": {}}}
	seen := map[string]int{}
	for seed := int64(0); seed < 200; seed++ {
		id, ok := pickUnclaimed(dist, mathrand.New(mathrand.NewSource(seed)))
		require.True(t, ok)
		seen[id]++
	}
	assert.Len(t, seen, 3, "expected all three partitions to be picked across enough seeds")
}

func itoa(i int) string {
	digits := "0123456789"
	if i < 10 {
		return string(digits[i])
	}
	return string(digits[i/10]) + string(digits[i%10])
}
