// Package metrics holds the prometheus collectors for reachkit. Counters
// increment unconditionally; nothing is registered until the consumer opts
// in, so the library never touches a registry it does not own.
package metrics

import "github.com/prometheus/client_golang/prometheus"

var verificationsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reachkit",
		Name:      "verifications_total",
		Help:      "Completed verifications by final verdict",
	},
	[]string{"reachable"},
)

var dialogsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reachkit",
		Subsystem: "smtp",
		Name:      "dialogs_total",
		Help:      "SMTP dialogs by deliverability answer and error kind",
	},
	[]string{"deliverable", "kind"},
)

var cacheRequestsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reachkit",
		Subsystem: "cache",
		Name:      "requests_total",
		Help:      "Cache lookups by namespace and result",
	},
	[]string{"namespace", "result"},
)

var probesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "reachkit",
		Subsystem: "probe",
		Name:      "requests_total",
		Help:      "Provider probe runs by provider and outcome",
	},
	[]string{"provider", "outcome"},
)

// Register attaches all collectors to reg. Safe to call more than once;
// an already-registered collector is not an error.
func Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		verificationsTotal,
		dialogsTotal,
		cacheRequestsTotal,
		probesTotal,
	} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Verification records one completed verification.
func Verification(reachable string) {
	verificationsTotal.WithLabelValues(reachable).Inc()
}

// Dialog records one finished SMTP dialog.
func Dialog(deliverable, kind string) {
	if kind == "" {
		kind = "none"
	}
	dialogsTotal.WithLabelValues(deliverable, kind).Inc()
}

// CacheRequest records one cache lookup.
func CacheRequest(namespace string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheRequestsTotal.WithLabelValues(namespace, result).Inc()
}

// Probe records one provider probe run.
func Probe(provider string, deliverable bool, failed bool) {
	outcome := "no"
	switch {
	case failed:
		outcome = "error"
	case deliverable:
		outcome = "yes"
	}
	probesTotal.WithLabelValues(provider, outcome).Inc()
}
