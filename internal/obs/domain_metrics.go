package obs

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	domainOnce sync.Once

	// DisplayFramesTotal counts inbound customer-display frames by type and outcome.
	DisplayFramesTotal *prometheus.CounterVec
	// DisplayReconnectsTotal counts reconnect attempts against the backend event channel.
	DisplayReconnectsTotal prometheus.Counter
	// DisplayKioskClients tracks the number of kiosk screens attached to the hub.
	DisplayKioskClients prometheus.Gauge
	// DisplayQRExpiredTotal counts QR payment payloads dropped by the expiry timer.
	DisplayQRExpiredTotal prometheus.Counter
	// RelayTasksTotal counts offline relay task outcomes by kind.
	RelayTasksTotal *prometheus.CounterVec
	// BreakerState exposes the current circuit state per upstream target.
	BreakerState *prometheus.GaugeVec
	// BreakerOpenedTotal counts transitions into the open state.
	BreakerOpenedTotal *prometheus.CounterVec
)

// MustRegisterDomainMetrics initialises and registers domain-specific Prometheus collectors.
func MustRegisterDomainMetrics(namespace string, reg prometheus.Registerer) {
	domainOnce.Do(func() {
		if reg == nil {
			reg = prometheus.DefaultRegisterer
		}
		DisplayFramesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_frames_total",
			Help:      "Count of customer-display frames by type and processing outcome.",
		}, []string{"type", "result"})
		DisplayReconnectsTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_reconnects_total",
			Help:      "Number of reconnect attempts against the backend event channel.",
		})
		DisplayKioskClients = prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "display_kiosk_clients",
			Help:      "Kiosk screens currently attached to the display hub.",
		})
		DisplayQRExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "display_qr_expired_total",
			Help:      "QR payment payloads cleared by the expiry timer.",
		})
		RelayTasksTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_tasks_total",
			Help:      "Offline relay task outcomes by kind.",
		}, []string{"kind", "result"})
		BreakerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "breaker_state",
			Help:      "Circuit breaker state per target (0 closed, 1 open, 2 half-open).",
		}, []string{"target"})
		BreakerOpenedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "breaker_opened_total",
			Help:      "Count of circuit breaker transitions into the open state.",
		}, []string{"target"})

		registerCounterVec(reg, &DisplayFramesTotal)
		registerCounter(reg, &DisplayReconnectsTotal)
		registerGauge(reg, &DisplayKioskClients)
		registerCounter(reg, &DisplayQRExpiredTotal)
		registerCounterVec(reg, &RelayTasksTotal)
		registerGaugeVec(reg, &BreakerState)
		registerCounterVec(reg, &BreakerOpenedTotal)
	})
}

func registerCounter(reg prometheus.Registerer, c *prometheus.Counter) {
	if err := reg.Register(*c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				*c = existing
				return
			}
		}
		panic(err)
	}
}
