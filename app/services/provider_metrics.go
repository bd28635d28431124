package services

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Provider calls partitioned by operation and outcome (success or error kind)
	mspaceRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mspace_requests_total",
			Help: "Total number of Mspace provider calls",
		},
		[]string{"operation", "outcome"},
	)

	mspaceRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mspace_request_duration_seconds",
			Help:    "Mspace provider call latencies in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Per-recipient campaign outcomes
	campaignRecipientsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "campaign_recipients_total",
			Help: "Campaign recipients processed partitioned by outcome",
		},
		[]string{"outcome"},
	)
)

func observeProviderCall(operation string, start time.Time, err *error) {
	outcome := "success"
	if err != nil && *err != nil {
		outcome = string(ErrorKindUnknown)
		if perr, ok := AsProviderError(*err); ok {
			outcome = string(perr.Kind)
		}
	}
	mspaceRequestsTotal.WithLabelValues(operation, outcome).Inc()
	mspaceRequestDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// ObserveCampaignRecipient counts one processed campaign recipient
func ObserveCampaignRecipient(outcome string) {
	campaignRecipientsTotal.WithLabelValues(outcome).Inc()
}
