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

// Package driver runs a Balancer's tick loop and dispatches newly claimed
// partitions to a pluggable reader. The balancer package itself never
// schedules anything; driver is the thin process-level loop that calls
// RunTick on an interval and reacts to what it returns.
package driver

import (
	"context"
	"time"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/kedacore/partbalance/pkg/ownership"
)

// PartitionReader is the abstract event-stream consumer collaborator. Start
// is called once per partition this instance newly claims; Stop is called
// when the instance relinquishes it (or the driver shuts down). Driver does
// not know or care how a reader consumes events — no codec, no transport.
type PartitionReader interface {
	Start(ctx context.Context, partitionID string) error
	Stop(partitionID string) error
}

// Ticker is the subset of *Balancer the driver depends on, narrowed so the
// driver can be tested against a fake.
type Ticker interface {
	RunTick(ctx context.Context, allPartitionIDs []string) (*ownership.Record, error)
	Relinquish(ctx context.Context) error
}

// Config holds the fixed configuration for one Driver.
type Config struct {
	// TickInterval is the delay between RunTick calls.
	TickInterval time.Duration
	// PartitionIDs is the full, fixed set of partitions in scope.
	PartitionIDs []string
	Logger       logr.Logger
}

// Driver owns a tick loop around a Ticker (normally a *balancer.Balancer)
// and dispatches newly claimed partitions to a Reader.
type Driver struct {
	cfg     Config
	ticker  Ticker
	reader  PartitionReader
	started map[string]struct{}
}

// New constructs a Driver. cfg.TickInterval must be positive.
func New(cfg Config, ticker Ticker, reader PartitionReader) *Driver {
	return &Driver{
		cfg:     cfg,
		ticker:  ticker,
		reader:  reader,
		started: make(map[string]struct{}),
	}
}

// Run blocks, ticking on cfg.TickInterval, until ctx is canceled. On
// cancellation it relinquishes held partitions and stops any readers it
// started before returning. A tick error is logged and does not stop the
// loop: a transient store failure on one tick should not bring down the
// whole process, mirroring the teacher's reconciliation loop, which logs
// and keeps polling rather than exiting on a single failed iteration.
func (d *Driver) Run(ctx context.Context) error {
	logger := d.cfg.Logger
	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		d.loop(ctx, logger)
		return nil
	})

	return group.Wait()
}

func (d *Driver) loop(ctx context.Context, logger logr.Logger) {
	tmr := time.NewTimer(d.cfg.TickInterval)
	defer tmr.Stop()

	for {
		select {
		case <-tmr.C:
			d.tick(ctx, logger)
			tmr.Reset(d.cfg.TickInterval)
		case <-ctx.Done():
			d.shutdown(logger)
			return
		}
	}
}

func (d *Driver) tick(ctx context.Context, logger logr.Logger) {
	claimed, err := d.ticker.RunTick(ctx, d.cfg.PartitionIDs)
	if err != nil {
		logger.Error(err, "tick failed")
		return
	}
	if claimed == nil {
		return
	}
	if _, already := d.started[claimed.PartitionID]; already {
		return
	}
	if err := d.reader.Start(ctx, claimed.PartitionID); err != nil {
		logger.Error(err, "reader failed to start", "partitionID", claimed.PartitionID)
		return
	}
	d.started[claimed.PartitionID] = struct{}{}
}

func (d *Driver) shutdown(logger logr.Logger) {
	// Use a fresh context: the one the loop was running under is already
	// canceled, but Relinquish still needs to make store calls.
	releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := d.ticker.Relinquish(releaseCtx); err != nil {
		logger.Error(err, "relinquish failed during shutdown")
	}
	for partitionID := range d.started {
		if err := d.reader.Stop(partitionID); err != nil {
			logger.Error(err, "reader failed to stop", "partitionID", partitionID)
		}
	}
}
