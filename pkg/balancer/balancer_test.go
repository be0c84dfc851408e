package balancer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedacore/partbalance/pkg/balancer"
	"github.com/kedacore/partbalance/pkg/ownership"
	"github.com/kedacore/partbalance/pkg/store"
	"github.com/kedacore/partbalance/pkg/store/memstore"
)

func testConfig(ownerID string) balancer.Config {
	return balancer.Config{
		OwnerID:          ownerID,
		Namespace:        "ns",
		Hub:              "hub",
		ConsumerGroup:    "cg",
		ExpirationWindow: 30 * time.Second,
	}
}

func TestNewRejectsIncompleteConfig(t *testing.T) {
	cases := []struct {
		name string
		cfg  balancer.Config
	}{
		{"empty owner", balancer.Config{Namespace: "n", Hub: "h", ConsumerGroup: "c", ExpirationWindow: time.Second}},
		{"empty namespace", balancer.Config{OwnerID: "o", Hub: "h", ConsumerGroup: "c", ExpirationWindow: time.Second}},
		{"empty hub", balancer.Config{OwnerID: "o", Namespace: "n", ConsumerGroup: "c", ExpirationWindow: time.Second}},
		{"empty consumer group", balancer.Config{OwnerID: "o", Namespace: "n", Hub: "h", ExpirationWindow: time.Second}},
		{"non-positive expiration", balancer.Config{OwnerID: "o", Namespace: "n", Hub: "h", ConsumerGroup: "c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := balancer.New(tc.cfg, memstore.New())
			require.Error(t, err)
			var precondition *balancer.PreconditionError
			assert.ErrorAs(t, err, &precondition)
		})
	}
}

func TestRunTickClaimsAnOrphanPartitionWhenShort(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	claimed, err := b.RunTick(context.Background(), []string{"0", "1"})
	require.NoError(t, err)
	require.NotNil(t, claimed)
	assert.Contains(t, []string{"0", "1"}, claimed.PartitionID)
	assert.Equal(t, "self", claimed.OwnerID)
	assert.Len(t, b.OwnedPartitionIDs(), 1)
}

func TestRunTickNoActionWhenAlreadyBalanced(t *testing.T) {
	st := memstore.New()
	st.Seed(
		ownedRecord("self", "0"),
		ownedRecord("peer", "1"),
	)
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	claimed, err := b.RunTick(context.Background(), []string{"0", "1"})
	require.NoError(t, err)
	assert.Nil(t, claimed)
}

func TestRunTickPropagatesTransientStoreErrorAndLeavesHoldingsUntouched(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	// First tick: holdings start empty, so the Renewer has nothing to
	// submit and the tick goes on to claim partition "0" as an orphan.
	claimed, err := b.RunTick(context.Background(), []string{"0"})
	require.NoError(t, err)
	require.NotNil(t, claimed)

	// Second tick: holdings are now non-empty, so the Renewer's claim
	// batch is the first store call this tick to fail.
	boom := errors.New("boom")
	st.FailNextClaim = boom

	_, err = b.RunTick(context.Background(), []string{"0"})
	require.Error(t, err)
	var transient *store.TransientError
	assert.ErrorAs(t, err, &transient)
	assert.Len(t, b.OwnedPartitionIDs(), 1, "renewal failure must not mutate holdings")
}

func TestRunTickPropagatesTransientErrorFromList(t *testing.T) {
	st := memstore.New()
	boom := errors.New("boom")
	st.FailNextList = boom

	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	_, err = b.RunTick(context.Background(), []string{"0"})
	require.Error(t, err)
	var transient *store.TransientError
	assert.ErrorAs(t, err, &transient)
}

func TestRunTickSurfacesCancellation(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = b.RunTick(ctx, []string{"0"})
	require.Error(t, err)
	var canceled *balancer.CanceledError
	assert.ErrorAs(t, err, &canceled)
}

func TestRunTickReleasesTheGuardEvenOnCancellation(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _ = b.RunTick(ctx, []string{"0"})

	_, err = b.RunTick(context.Background(), []string{"0"})
	assert.NoError(t, err)
}

func TestRunTickForbidsConcurrentTicks(t *testing.T) {
	st := memstore.New()
	release := make(chan struct{})
	blocking := &blockingListStore{Store: st, onList: release, listStarted: make(chan struct{})}

	b, err := balancer.New(testConfig("self"), blocking)
	require.NoError(t, err)

	firstDone := make(chan error, 1)
	go func() {
		_, err := b.RunTick(context.Background(), []string{"0"})
		firstDone <- err
	}()

	<-blocking.listStarted
	_, err = b.RunTick(context.Background(), []string{"0"})
	assert.ErrorIs(t, err, balancer.ErrTickInProgress)

	close(release)
	require.NoError(t, <-firstDone)
}

// blockingListStore wraps a store.Store and blocks inside List until
// onList is closed, so a test can reliably observe a tick "in flight".
type blockingListStore struct {
	*memstore.Store
	onList      chan struct{}
	listStarted chan struct{}
}

func (s *blockingListStore) List(ctx context.Context, scope store.Scope) ([]ownership.Record, error) {
	close(s.listStarted)
	<-s.onList
	return s.Store.List(ctx, scope)
}

func ownedRecord(owner, partitionID string) ownership.Record {
	return ownership.Record{
		Namespace: "ns", Hub: "hub", ConsumerGroup: "cg",
		PartitionID: partitionID, OwnerID: owner, LastModified: time.Now(),
	}
}
