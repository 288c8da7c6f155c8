package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the claim-exchange core.
type Metrics struct {
	ClaimLinksIssued    prometheus.Counter
	ClaimLinksConsumed  prometheus.Counter
	ExchangesInitiated  prometheus.Counter
	ExchangesCompleted  prometheus.Counter
	InboxIssued         *prometheus.CounterVec
	InboxClaimed        prometheus.Counter
	CredentialsRevoked  prometheus.Counter
	DeliveryFailures    prometheus.Counter
	ExchangeDurationsMs prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ClaimLinksIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_claim_links_issued_total",
			Help: "Total number of claim links issued",
		}),
		ClaimLinksConsumed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_claim_links_consumed_total",
			Help: "Total number of claim link redemptions that won the consume race",
		}),
		ExchangesInitiated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_exchanges_initiated_total",
			Help: "Total number of VC-API exchange initiations",
		}),
		ExchangesCompleted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_exchanges_completed_total",
			Help: "Total number of VC-API exchanges completed with a credential issued",
		}),
		InboxIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "boostnet_inbox_issued_total",
			Help: "Total number of inbox issuances by delivery outcome",
		}, []string{"status"}),
		InboxClaimed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_inbox_claimed_total",
			Help: "Total number of inbox credentials claimed via token",
		}),
		CredentialsRevoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_credentials_revoked_total",
			Help: "Total number of credentials revoked",
		}),
		DeliveryFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "boostnet_delivery_failures_total",
			Help: "Claim notification deliveries that failed after issuance was recorded",
		}),
		ExchangeDurationsMs: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "boostnet_exchange_duration_ms",
			Help:    "Latency of VC-API exchange operations in milliseconds",
			Buckets: []float64{1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000},
		}),
	}
}
