/*
 * MIT License
 *
 * Copyright (c) 2022 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 */

// Package metrics exposes optional Prometheus instrumentation for the
// transaction loop: cycle count, header retries, bytes moved per
// direction, and channels currently open. Entirely additive — nothing
// in internal/bridge blocks on these calls, and the HTTP listener
// they're served from is only started when SPIBRIDGE_METRICS_ADDR is
// set (see cmd/spid).
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tessel/spid/internal/health"
)

// Registry groups the counters/gauges the transaction loop updates.
type Registry struct {
	Cycles       prometheus.Counter
	HeaderRetry  prometheus.Counter
	BytesOut     prometheus.Counter
	BytesIn      prometheus.Counter
	ChannelsOpen prometheus.Gauge

	reg *prometheus.Registry
}

// New builds a fresh, process-local registry (not the global default
// registerer, so tests can create more than one without collisions).
func New() *Registry {
	reg := prometheus.NewRegistry()
	ns := "spibridge"

	r := &Registry{
		reg: reg,
		Cycles: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "cycles_total",
			Help:      "Transaction loop iterations completed.",
		}),
		HeaderRetry: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "header_retries_total",
			Help:      "Header exchanges that did not carry the expected reply magic.",
		}),
		BytesOut: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_out_total",
			Help:      "Bytes transferred from client sockets to the co-processor.",
		}),
		BytesIn: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "bytes_in_total",
			Help:      "Bytes transferred from the co-processor to client sockets.",
		}),
		ChannelsOpen: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "channels_open",
			Help:      "Logical channels currently holding an accepted connection.",
		}),
	}

	return r
}

// Serve starts an HTTP listener on addr (bound exactly as given)
// exposing /metrics and /healthz, returning once ctx is cancelled. addr empty means "do not
// serve" — callers should not invoke Serve in that case.
func Serve(ctx context.Context, addr string, reg *Registry, snap *health.Snapshot) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.reg, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		st := snap.Get()
		if st == health.KO {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_, _ = w.Write([]byte(st.String()))
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		return err
	}
}
