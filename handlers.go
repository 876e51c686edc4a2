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

import (
	"os"
	"sync"

	"github.com/hashicorp/go-hclog"
	"github.com/prometheus/client_golang/prometheus"
)

// UndeliveredErrorHandlerFunc is invoked, at most once per promise, when a
// rejected promise is garbage collected without any dependent ever having
// observed its error.
type UndeliveredErrorHandlerFunc func(err error)

// TypeMismatchHandlerFunc is invoked when a callback's declared argument
// type does not match the actual type of the value it is being invoked
// with. It runs before the mismatch is captured as a Rejected outcome; a
// handler that panics propagates out of the settle call that triggered it
// instead of being captured.
type TypeMismatchHandlerFunc func(mismatch *TypeMismatchError)

var (
	handlersMu sync.Mutex

	undeliveredHandler  UndeliveredErrorHandlerFunc = defaultUndeliveredErrorHandler
	typeMismatchHandler TypeMismatchHandlerFunc     = defaultTypeMismatchHandler
	logger              hclog.Logger                = hclog.Default().Named("promise")
	registerer          prometheus.Registerer        = prometheus.DefaultRegisterer
)

// SetUndeliveredErrorHandler installs a new process-global handler for
// undelivered rejections and returns the previous one.
func SetUndeliveredErrorHandler(h UndeliveredErrorHandlerFunc) UndeliveredErrorHandlerFunc {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	prev := undeliveredHandler
	if h == nil {
		h = defaultUndeliveredErrorHandler
	}
	undeliveredHandler = h
	return prev
}

// SetTypeMismatchHandler installs a new process-global handler for
// TypeMismatch diagnostics and returns the previous one.
func SetTypeMismatchHandler(h TypeMismatchHandlerFunc) TypeMismatchHandlerFunc {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	prev := typeMismatchHandler
	if h == nil {
		h = defaultTypeMismatchHandler
	}
	typeMismatchHandler = h
	return prev
}

// SetLogger replaces the logger used by the default handlers and for
// metric registration warnings. Passing nil resets it to hclog.Default().
func SetLogger(l hclog.Logger) {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	if l == nil {
		l = hclog.Default()
	}
	logger = l.Named("promise")
}

// SetRegisterer replaces the Prometheus registerer used for the package's
// metrics. Passing nil resets it to prometheus.DefaultRegisterer.
func SetRegisterer(r prometheus.Registerer) {
	handlersMu.Lock()
	if r == nil {
		r = prometheus.DefaultRegisterer
	}
	prev := registerer
	registerer = r
	handlersMu.Unlock()
	for _, c := range []prometheus.Collector{settledTotal, undeliveredTotal, inflight} {
		prev.Unregister(c)
		registerMetric(c)
	}
}

func currentUndeliveredHandler() UndeliveredErrorHandlerFunc {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	return undeliveredHandler
}

func currentTypeMismatchHandler() TypeMismatchHandlerFunc {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	return typeMismatchHandler
}

func currentLogger() hclog.Logger {
	handlersMu.Lock()
	defer handlersMu.Unlock()
	return logger
}

// defaultUndeliveredErrorHandler logs the undelivered rejection and aborts
// the process, matching the source's default behavior.
func defaultUndeliveredErrorHandler(err error) {
	currentLogger().Warn("undelivered promise rejection", "error", err)
	os.Exit(2)
}

// defaultTypeMismatchHandler logs the mismatch and returns normally, which
// lets settlement capture it as a Rejected(TypeMismatch) outcome.
func defaultTypeMismatchHandler(mismatch *TypeMismatchError) {
	currentLogger().Debug("callback type mismatch", "from", mismatch.From, "to", mismatch.To)
}

func handleTypeMismatch(tme *TypeMismatchError) {
	currentTypeMismatchHandler()(tme)
}

func reportUndelivered(err error) {
	currentUndeliveredHandler()(err)
}
