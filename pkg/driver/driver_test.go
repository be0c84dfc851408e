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

package driver_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kedacore/partbalance/pkg/driver"
	"github.com/kedacore/partbalance/pkg/ownership"
)

type fakeTicker struct {
	mu           sync.Mutex
	claims       []*ownership.Record
	tickCalls    int
	relinquished bool
}

func (f *fakeTicker) RunTick(_ context.Context, _ []string) (*ownership.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickCalls++
	if len(f.claims) == 0 {
		return nil, nil
	}
	next := f.claims[0]
	f.claims = f.claims[1:]
	return next, nil
}

func (f *fakeTicker) Relinquish(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.relinquished = true
	return nil
}

type fakeReader struct {
	mu      sync.Mutex
	started []string
	stopped []string
}

func (f *fakeReader) Start(_ context.Context, partitionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started = append(f.started, partitionID)
	return nil
}

func (f *fakeReader) Stop(partitionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped = append(f.stopped, partitionID)
	return nil
}

func TestDriverDispatchesNewlyClaimedPartitions(t *testing.T) {
	ticker := &fakeTicker{claims: []*ownership.Record{
		{PartitionID: "0"},
		{PartitionID: "1"},
	}}
	reader := &fakeReader{}
	d := driver.New(driver.Config{
		TickInterval: 5 * time.Millisecond,
		PartitionIDs: []string{"0", "1"},
	}, ticker, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	require.NoError(t, d.Run(ctx))

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Contains(t, reader.started, "0")
	assert.Contains(t, reader.started, "1")
}

func TestDriverRelinquishesAndStopsReadersOnShutdown(t *testing.T) {
	ticker := &fakeTicker{claims: []*ownership.Record{{PartitionID: "0"}}}
	reader := &fakeReader{}
	d := driver.New(driver.Config{
		TickInterval: 5 * time.Millisecond,
		PartitionIDs: []string{"0"},
	}, ticker, reader)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.NoError(t, d.Run(ctx))

	ticker.mu.Lock()
	defer ticker.mu.Unlock()
	assert.True(t, ticker.relinquished)

	reader.mu.Lock()
	defer reader.mu.Unlock()
	assert.Contains(t, reader.stopped, "0")
}
