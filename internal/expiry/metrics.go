package expiry

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts scheduler transitions. A nil *Metrics records nothing.
type Metrics struct {
	Scheduled        prometheus.Counter
	Replaced         prometheus.Counter
	Fired            prometheus.Counter
	Cancelled        prometheus.Counter
	CallbackFailures prometheus.Counter
	Pending          prometheus.Gauge
}

// NewMetrics creates the scheduler collectors and registers them on reg when reg is non-nil.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "securecore",
			Subsystem: "expiry",
			Name:      name,
			Help:      help,
		})
	}
	m := &Metrics{
		Scheduled:        counter("scheduled_total", "Self-destruct registrations created."),
		Replaced:         counter("replaced_total", "Registrations replaced by a later schedule for the same message."),
		Fired:            counter("fired_total", "Destruction callbacks dispatched."),
		Cancelled:        counter("cancelled_total", "Registrations cancelled before their deadline."),
		CallbackFailures: counter("callback_failures_total", "Destruction callbacks that returned an error or panicked."),
		Pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "securecore",
			Subsystem: "expiry",
			Name:      "pending",
			Help:      "Registrations waiting for their deadline.",
		}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.Scheduled, m.Replaced, m.Fired, m.Cancelled, m.CallbackFailures, m.Pending} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

type event int

const (
	eventScheduled event = iota
	eventReplaced
	eventFired
	eventCancelled
	eventCallbackFailed
)

func (m *Metrics) record(ev event) {
	if m == nil {
		return
	}
	switch ev {
	case eventScheduled:
		m.Scheduled.Inc()
	case eventReplaced:
		m.Replaced.Inc()
	case eventFired:
		m.Fired.Inc()
	case eventCancelled:
		m.Cancelled.Inc()
	case eventCallbackFailed:
		m.CallbackFailures.Inc()
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.Pending.Set(float64(n))
}
