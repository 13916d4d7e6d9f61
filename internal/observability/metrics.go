// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Result label values.
const (
	ResultSuccess     = "success"
	ResultRejected    = "rejected"
	ResultConflict    = "conflict"
	ResultInvalid     = "invalid"
	ResultUnavailable = "unavailable"
)

// Metrics holds the auth counters and the hash-slot wait histogram.
type Metrics struct {
	LoginsTotal    *prometheus.CounterVec
	SignupsTotal   *prometheus.CounterVec
	RefreshesTotal *prometheus.CounterVec
	HashWait       prometheus.Histogram
	KeyRotations   *prometheus.CounterVec
}

// NewMetrics creates the auth metrics and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		LoginsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_auth_logins_total",
			Help: "Login attempts by result",
		}, []string{"result"}),
		SignupsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_auth_signups_total",
			Help: "Signup attempts by result",
		}, []string{"result"}),
		RefreshesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_auth_refreshes_total",
			Help: "Token refresh attempts by result",
		}, []string{"result"}),
		HashWait: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "gatehouse_auth_hash_wait_seconds",
			Help:    "Time spent waiting for a password hashing slot",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
		KeyRotations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gatehouse_token_key_rotations_total",
			Help: "Signing key rotations by result",
		}, []string{"result"}),
	}
	reg.MustRegister(m.LoginsTotal, m.SignupsTotal, m.RefreshesTotal, m.HashWait, m.KeyRotations)
	return m
}

// ObserveHashWait records how long a caller queued for a hashing slot. It
// matches the observe callback of auth.NewHashLimiter.
func (m *Metrics) ObserveHashWait(d time.Duration) {
	m.HashWait.Observe(d.Seconds())
}
