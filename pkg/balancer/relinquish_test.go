package balancer_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedacore/partbalance/pkg/balancer"
	"github.com/kedacore/partbalance/pkg/store"
	"github.com/kedacore/partbalance/pkg/store/memstore"
)

func TestRelinquishReleasesAllHoldingsAndClearsLocalState(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, err := b.RunTick(context.Background(), []string{"0", "1", "2"})
		require.NoError(t, err)
	}
	require.Len(t, b.OwnedPartitionIDs(), 3)

	require.NoError(t, b.Relinquish(context.Background()))
	assert.Len(t, b.OwnedPartitionIDs(), 0)

	records, err := st.List(context.Background(), store.Scope{Namespace: "ns", Hub: "hub", ConsumerGroup: "cg"})
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, r := range records {
		assert.Empty(t, r.OwnerID)
	}
}

func TestRelinquishIsIdempotent(t *testing.T) {
	st := memstore.New()
	b, err := balancer.New(testConfig("self"), st)
	require.NoError(t, err)

	_, err = b.RunTick(context.Background(), []string{"0"})
	require.NoError(t, err)

	require.NoError(t, b.Relinquish(context.Background()))
	before, err := st.List(context.Background(), store.Scope{Namespace: "ns", Hub: "hub", ConsumerGroup: "cg"})
	require.NoError(t, err)

	require.NoError(t, b.Relinquish(context.Background()))
	after, err := st.List(context.Background(), store.Scope{Namespace: "ns", Hub: "hub", ConsumerGroup: "cg"})
	require.NoError(t, err)

	assert.Equal(t, before, after)
}
