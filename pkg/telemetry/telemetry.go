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

// Package telemetry defines the advisory event sink the balancer reports
// into. None of these events are part of the correctness contract; a nil
// Recorder (the zero value of Balancer's Config) is always safe to use.
package telemetry

// Recorder receives the balancer's advisory events. Implementations must
// not block the tick loop; the logr- and Prometheus-backed recorders in
// this package are both non-blocking.
type Recorder interface {
	// MinShareComputed reports the fair-share arithmetic for a tick.
	MinShareComputed(minShare, maxShare, activeOwners int)
	// CurrentHoldings reports this instance's holdings count for a tick.
	CurrentHoldings(count int)
	// UnclaimedCount reports the size of the unclaimed set for a tick.
	UnclaimedCount(count int)
	// StealDecision reports whether this tick attempted a steal, and
	// from which tier ("orphan", "over", "at_max", "none").
	StealDecision(tier string)
	// RenewalStarted, RenewalCompleted, RenewalFailed bracket the
	// per-tick renewal call.
	RenewalStarted(holdings int)
	RenewalCompleted(accepted int)
	RenewalFailed(err error)
	// ClaimStarted, ClaimCompleted, ClaimFailed bracket a single claim
	// attempt, if the tick makes one.
	ClaimStarted(partitionID string)
	ClaimCompleted(partitionID string, accepted bool)
	ClaimFailed(partitionID string, err error)
}

// NopRecorder discards every event. It is the Recorder used when a caller
// does not configure one.
type NopRecorder struct{}

func (NopRecorder) MinShareComputed(int, int, int) {}
func (NopRecorder) CurrentHoldings(int)            {}
func (NopRecorder) UnclaimedCount(int)             {}
func (NopRecorder) StealDecision(string)           {}
func (NopRecorder) RenewalStarted(int)             {}
func (NopRecorder) RenewalCompleted(int)           {}
func (NopRecorder) RenewalFailed(error)             {}
func (NopRecorder) ClaimStarted(string)             {}
func (NopRecorder) ClaimCompleted(string, bool)     {}
func (NopRecorder) ClaimFailed(string, error)       {}

var _ Recorder = NopRecorder{}
