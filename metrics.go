// Copyright 2020 Ahmad Sameh(asmsh)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package promise

import "github.com/prometheus/client_golang/prometheus"

var (
	settledTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "promise_settled_total",
		Help: "Number of promises settled, labeled by terminal state.",
	}, []string{"state"})

	undeliveredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "promise_undelivered_total",
		Help: "Number of rejected promises whose error was never observed by a dependent.",
	})

	inflight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "promise_inflight",
		Help: "Number of promises created but not yet settled.",
	})
)

func init() {
	registerMetric(settledTotal)
	registerMetric(undeliveredTotal)
	registerMetric(inflight)
}

// registerMetric registers c against the current registerer, ignoring an
// AlreadyRegisteredError so repeated test-process init doesn't panic.
func registerMetric(c prometheus.Collector) {
	if err := registerer.Register(c); err != nil {
		if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
			currentLogger().Warn("failed to register promise metric", "error", err)
		}
	}
}
