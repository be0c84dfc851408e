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

import "github.com/prometheus/client_golang/prometheus"

// PromRecorder exposes the same advisory events as Prometheus gauges and
// counters, grounded on the teacher's pkg/prommetrics.Server interface: a
// handful of Record* methods backed by a registry the caller owns.
type PromRecorder struct {
	minShare      prometheus.Gauge
	maxShare      prometheus.Gauge
	activeOwners  prometheus.Gauge
	holdings      prometheus.Gauge
	unclaimed     prometheus.Gauge
	steals        *prometheus.CounterVec
	renewals      *prometheus.CounterVec
	renewalErrors prometheus.Counter
	claims        *prometheus.CounterVec
	claimErrors   prometheus.Counter
}

// NewPromRecorder registers the balancer's metrics against reg under the
// given owner label and returns a Recorder backed by them.
func NewPromRecorder(reg prometheus.Registerer, ownerID string) (*PromRecorder, error) {
	constLabels := prometheus.Labels{"owner_id": ownerID}

	p := &PromRecorder{
		minShare: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partbalance", Name: "min_share", ConstLabels: constLabels,
			Help: "Floor of the balanced per-owner partition count for the most recent tick.",
		}),
		maxShare: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partbalance", Name: "max_share", ConstLabels: constLabels,
			Help: "Ceiling of the balanced per-owner partition count for the most recent tick.",
		}),
		activeOwners: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partbalance", Name: "active_owners", ConstLabels: constLabels,
			Help: "Number of distinct owners observed active in the most recent tick.",
		}),
		holdings: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partbalance", Name: "holdings", ConstLabels: constLabels,
			Help: "Number of partitions this instance currently holds.",
		}),
		unclaimed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "partbalance", Name: "unclaimed", ConstLabels: constLabels,
			Help: "Size of the unclaimed set observed in the most recent tick.",
		}),
		steals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partbalance", Name: "steal_decisions_total", ConstLabels: constLabels,
			Help: "Claim target tier selected per tick.",
		}, []string{"tier"}),
		renewals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partbalance", Name: "renewals_total", ConstLabels: constLabels,
			Help: "Renewal outcomes: records accepted by completed renewal batches (outcome=accepted) and failed renewal batches (outcome=error).",
		}, []string{"outcome"}),
		renewalErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partbalance", Name: "renewal_errors_total", ConstLabels: constLabels,
			Help: "Renewal calls that failed with a transient store error.",
		}),
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "partbalance", Name: "claims_total", ConstLabels: constLabels,
			Help: "Claim attempts completed, labeled by outcome.",
		}, []string{"outcome"}),
		claimErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "partbalance", Name: "claim_errors_total", ConstLabels: constLabels,
			Help: "Claim attempts that failed with a transient store error.",
		}),
	}

	collectors := []prometheus.Collector{
		p.minShare, p.maxShare, p.activeOwners, p.holdings, p.unclaimed,
		p.steals, p.renewals, p.renewalErrors, p.claims, p.claimErrors,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return p, nil
}

func (p *PromRecorder) MinShareComputed(minShare, maxShare, activeOwners int) {
	p.minShare.Set(float64(minShare))
	p.maxShare.Set(float64(maxShare))
	p.activeOwners.Set(float64(activeOwners))
}

func (p *PromRecorder) CurrentHoldings(count int) { p.holdings.Set(float64(count)) }
func (p *PromRecorder) UnclaimedCount(count int)   { p.unclaimed.Set(float64(count)) }
func (p *PromRecorder) StealDecision(tier string)  { p.steals.WithLabelValues(tier).Inc() }

func (p *PromRecorder) RenewalStarted(int) {}
func (p *PromRecorder) RenewalCompleted(accepted int) {
	p.renewals.WithLabelValues("accepted").Add(float64(accepted))
}
func (p *PromRecorder) RenewalFailed(error) {
	p.renewals.WithLabelValues("error").Inc()
	p.renewalErrors.Inc()
}

func (p *PromRecorder) ClaimStarted(string) {}
func (p *PromRecorder) ClaimCompleted(_ string, accepted bool) {
	outcome := "rejected"
	if accepted {
		outcome = "accepted"
	}
	p.claims.WithLabelValues(outcome).Inc()
}
func (p *PromRecorder) ClaimFailed(string, error) {
	p.claims.WithLabelValues("error").Inc()
	p.claimErrors.Inc()
}

var _ Recorder = (*PromRecorder)(nil)
