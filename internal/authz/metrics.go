// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hearthgate Contributors

package authz

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the decision audit counters. Every authorization branch
// increments exactly one of the outcome counters; they are the primary
// observability signal for this package. Counters are injected handles
// constructed once at startup, never package-level state.
type Metrics struct {
	Authorized       prometheus.Counter
	NoPlace          prometheus.Counter
	WrongPerson      prometheus.Counter
	NonAccountHolder prometheus.Counter
	WrongPlace       prometheus.Counter
	BlockedSupportOp prometheus.Counter

	// Unclassified counts permission-strategy decisions for message types
	// with no registered requirement (the deliberate fail-open path).
	Unclassified prometheus.Counter
}

// NewMetrics creates and registers the decision counters with reg.
// Panics if registration fails, following prometheus convention.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Authorized: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_authorized_total",
			Help: "Total number of authorized requests",
		}),
		NoPlace: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_no_place_total",
			Help: "Total number of requests denied for missing place header",
		}),
		WrongPerson: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_wrong_person_total",
			Help: "Total number of self-only requests denied for actor/destination mismatch",
		}),
		NonAccountHolder: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_non_account_holder_total",
			Help: "Total number of requests denied for missing account ownership or place access",
		}),
		WrongPlace: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_wrong_place_total",
			Help: "Total number of requests denied for session/message place mismatch",
		}),
		BlockedSupportOp: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_blocked_support_operation_total",
			Help: "Total number of blocked support operations",
		}),
		Unclassified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "hearthgate_authz_unclassified_total",
			Help: "Total number of permission-strategy decisions for unclassified message types",
		}),
	}
	reg.MustRegister(
		m.Authorized,
		m.NoPlace,
		m.WrongPerson,
		m.NonAccountHolder,
		m.WrongPlace,
		m.BlockedSupportOp,
		m.Unclassified,
	)
	return m
}

// NewUnregisteredMetrics creates counters without a registry, for tests and
// for callers that register selectively.
func NewUnregisteredMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
