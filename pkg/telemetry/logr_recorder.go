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

package telemetry

import "github.com/go-logr/logr"

// LogRecorder emits every balancer event as a structured logr log line, the
// same way the teacher threads a logr.Logger through its scalers.
type LogRecorder struct {
	Logger logr.Logger
}

// NewLogRecorder returns a Recorder that logs through logger.
func NewLogRecorder(logger logr.Logger) LogRecorder {
	return LogRecorder{Logger: logger}
}

func (r LogRecorder) MinShareComputed(minShare, maxShare, activeOwners int) {
	r.Logger.V(1).Info("fair share computed", "minShare", minShare, "maxShare", maxShare, "activeOwners", activeOwners)
}

func (r LogRecorder) CurrentHoldings(count int) {
	r.Logger.V(1).Info("current holdings", "count", count)
}

func (r LogRecorder) UnclaimedCount(count int) {
	r.Logger.V(1).Info("unclaimed partitions", "count", count)
}

func (r LogRecorder) StealDecision(tier string) {
	r.Logger.V(1).Info("claim target tier selected", "tier", tier)
}

func (r LogRecorder) RenewalStarted(holdings int) {
	r.Logger.V(1).Info("renewal started", "holdings", holdings)
}

func (r LogRecorder) RenewalCompleted(accepted int) {
	r.Logger.V(1).Info("renewal completed", "accepted", accepted)
}

func (r LogRecorder) RenewalFailed(err error) {
	r.Logger.Error(err, "renewal failed")
}

func (r LogRecorder) ClaimStarted(partitionID string) {
	r.Logger.V(1).Info("claim attempt started", "partitionID", partitionID)
}

func (r LogRecorder) ClaimCompleted(partitionID string, accepted bool) {
	r.Logger.V(1).Info("claim attempt completed", "partitionID", partitionID, "accepted", accepted)
}

func (r LogRecorder) ClaimFailed(partitionID string, err error) {
	r.Logger.Error(err, "claim attempt failed", "partitionID", partitionID)
}

var _ Recorder = LogRecorder{}
