package monitoring

import (
	"context"
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	paymentsInitiated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_initiated_total",
			Help: "Total payment initiations per provider",
		},
		[]string{"provider"},
	)

	paymentsSettled = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "payments_settled_total",
			Help: "Total payments reaching a terminal state",
		},
		[]string{"provider", "status"},
	)

	ticketsIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "tickets_issued_total",
			Help: "Total tickets issued per event",
		},
		[]string{"event_id"},
	)

	inventoryRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "inventory_rejections_total",
			Help: "Total issuances rejected for insufficient inventory",
		},
		[]string{"event_id"},
	)

	notificationQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "notification_queue_depth",
			Help: "Current length of the notification queues",
		},
		[]string{"queue"},
	)

	notificationDeliveries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notification_deliveries_total",
			Help: "Total notification deliveries by type and outcome",
		},
		[]string{"type", "status"},
	)

	goroutineCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "active_goroutines_total",
			Help: "Current number of active goroutines",
		},
	)

	verifyDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "payment_verify_duration_seconds",
			Help:    "Duration of payment verification calls",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
		[]string{"provider"},
	)
)

type Monitor struct {
	redis     *redis.Client
	queueKeys []string
}

func NewMonitor(redisClient *redis.Client, queueKeys ...string) *Monitor {
	monitor := &Monitor{redis: redisClient, queueKeys: queueKeys}

	go monitor.collectMetrics()

	return monitor
}

func (m *Monitor) collectMetrics() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		ctx := context.Background()
		m.collectQueueMetrics(ctx)
		goroutineCount.Set(float64(runtime.NumGoroutine()))
	}
}

func (m *Monitor) collectQueueMetrics(ctx context.Context) {
	for _, key := range m.queueKeys {
		length, err := m.redis.LLen(ctx, key).Result()
		if err != nil {
			continue
		}
		notificationQueueDepth.WithLabelValues(key).Set(float64(length))
	}
}

// TrackPaymentInitiated counts one started payment.
func (m *Monitor) TrackPaymentInitiated(provider string) {
	paymentsInitiated.WithLabelValues(provider).Inc()
}

// TrackPaymentSettled counts one payment reaching a terminal state.
func (m *Monitor) TrackPaymentSettled(provider, status string) {
	paymentsSettled.WithLabelValues(provider, status).Inc()
}

// TrackTicketsIssued counts issued tickets for an event.
func (m *Monitor) TrackTicketsIssued(eventID string, count int) {
	ticketsIssued.WithLabelValues(eventID).Add(float64(count))
}

// TrackInventoryRejection counts one sold-out rejection.
func (m *Monitor) TrackInventoryRejection(eventID string) {
	inventoryRejections.WithLabelValues(eventID).Inc()
}

// TrackNotification counts one delivery attempt outcome.
func (m *Monitor) TrackNotification(notifType, status string) {
	notificationDeliveries.WithLabelValues(notifType, status).Inc()
}

// TrackVerifyDuration records how long a gateway verification took.
func (m *Monitor) TrackVerifyDuration(provider string, duration time.Duration) {
	verifyDuration.WithLabelValues(provider).Observe(duration.Seconds())
}
