package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	WebhookAuthFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbot_webhook_auth_failures_total",
			Help: "Rejected webhook deliveries by reason",
		},
		[]string{"reason"},
	)

	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbot_notifications_total",
			Help: "Notification envelopes by resource kind, change type and outcome",
		},
		[]string{"kind", "change", "outcome"}, // handled|unhandled|malformed|failed|panic
	)

	CallTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbot_call_transitions_total",
			Help: "Call lifecycle transitions by target state",
		},
		[]string{"state"},
	)

	TrackedCalls = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callbot_tracked_calls",
			Help: "Calls currently held in the lifecycle registry",
		},
	)

	PlatformCommandsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbot_platform_commands_total",
			Help: "Outbound platform commands by command and outcome",
		},
		[]string{"command", "outcome"}, // ok|rejected|error|breaker_open
	)

	PlatformBreakerOpen = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "callbot_platform_breaker_open",
			Help: "1 while the platform circuit breaker holds commands back, 0 when closed",
		},
	)

	CallEventsFlushed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callbot_call_events_flushed_total",
			Help: "Call lifecycle events written to the report store",
		},
		[]string{"outcome"},
	)
)

var once sync.Once

// MustRegister is safe to call from several entry points; collectors are registered once.
func MustRegister(r prometheus.Registerer) {
	once.Do(func() {
		r.MustRegister(
			WebhookAuthFailures,
			NotificationsTotal,
			CallTransitionsTotal,
			TrackedCalls,
			PlatformCommandsTotal,
			PlatformBreakerOpen,
			CallEventsFlushed,
		)
	})
}
