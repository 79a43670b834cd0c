package allocation

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"hostel-allocation-backend/internal/store"
)

// Metrics counts coordinator operations by outcome.
type Metrics struct {
	operations *prometheus.CounterVec

	// registerOnce ensures Prometheus metrics are only registered once
	registerOnce sync.Once
}

// Register registers Prometheus metrics with the given registry.
// If registry is nil, this is a no-op.
func (m *Metrics) Register(registry prometheus.Registerer) {
	if registry == nil {
		return
	}

	m.registerOnce.Do(func() {
		factory := promauto.With(registry)

		m.operations = factory.NewCounterVec(prometheus.CounterOpts{
			Name: "hostel_coordinator_operations_total",
			Help: "Total number of coordinator operations by operation and result kind",
		}, []string{"operation", "result"})
	})
}

func (m *Metrics) observe(op string, err error) {
	if m == nil || m.operations == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(store.KindOf(err))
	}
	m.operations.WithLabelValues(op, result).Inc()
}
