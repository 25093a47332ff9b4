// Package metrics holds the prometheus collectors of the pipeline.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const NAMESPACE = "zkpipe"

var (
	proofsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: "prover",
			Name:      "proofs_total",
			Help:      "Total number of proving calls by outcome",
		},
		[]string{"outcome"}, // ok, unsatisfied, error
	)

	proveDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: NAMESPACE,
		Subsystem: "prover",
		Name:      "prove_duration_seconds",
		Help:      "Duration of proving calls in seconds",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms ~ 102s
	})

	verificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: NAMESPACE,
			Subsystem: "verifier",
			Name:      "verifications_total",
			Help:      "Total number of verifications by backend and verdict",
		},
		[]string{"backend", "verdict"},
	)

	gasUsed = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: NAMESPACE,
		Subsystem: "verifier",
		Name:      "gas_used",
		Help:      "Gas used by on-chain verifications",
		Buckets:   prometheus.ExponentialBuckets(100_000, 1.5, 10),
	})
)

// Registry holds every collector of the package plus the Go runtime ones.
var Registry = func() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		proofsTotal,
		proveDuration,
		verificationsTotal,
		gasUsed,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}()

// ObserveProof records a proving call that started at start.
func ObserveProof(start time.Time, outcome string) {
	proveDuration.Observe(time.Since(start).Seconds())
	proofsTotal.WithLabelValues(outcome).Inc()
}

func ObserveVerification(backend string, accepted bool, gas uint64) {
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	verificationsTotal.WithLabelValues(backend, verdict).Inc()
	if gas > 0 {
		gasUsed.Observe(float64(gas))
	}
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())
	server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdown)
	}()
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
