// Package metrics exports instance lifecycle events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/extbind/storage"
)

// Collector is a storage.Observer that counts lifecycle events per class.
type Collector struct {
	InstancesCreated *prometheus.CounterVec
	InstancesFreed   *prometheus.CounterVec
	ReferenceOps     *prometheus.CounterVec
	Callbacks        *prometheus.CounterVec
	InstancesLive    *prometheus.GaugeVec
}

// NewCollector creates the lifecycle metrics and registers them with reg.
// A nil reg leaves them unregistered.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		InstancesCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extbind_instances_created_total",
				Help: "Total number of native instances handed to the foreign runtime",
			},
			[]string{"class"},
		),
		InstancesFreed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extbind_instances_freed_total",
				Help: "Total number of native instances freed by the foreign runtime",
			},
			[]string{"class"},
		),
		ReferenceOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extbind_reference_ops_total",
				Help: "Total number of reference and unreference callbacks",
			},
			[]string{"class", "op"},
		),
		Callbacks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "extbind_callbacks_total",
				Help: "Total number of to_string and virtual callbacks",
			},
			[]string{"class", "callback"},
		),
		InstancesLive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "extbind_instances_live",
				Help: "Number of native instances not yet freed",
			},
			[]string{"class"},
		),
	}

	if reg != nil {
		reg.MustRegister(
			c.InstancesCreated,
			c.InstancesFreed,
			c.ReferenceOps,
			c.Callbacks,
			c.InstancesLive,
		)
	}
	return c
}

var _ storage.Observer = (*Collector)(nil)

// OnInstanceEvent implements storage.Observer.
func (c *Collector) OnInstanceEvent(e storage.Event) {
	switch e.Type {
	case storage.EventCreated:
		c.InstancesCreated.WithLabelValues(e.Class).Inc()
		c.InstancesLive.WithLabelValues(e.Class).Inc()
	case storage.EventFreed:
		c.InstancesFreed.WithLabelValues(e.Class).Inc()
		c.InstancesLive.WithLabelValues(e.Class).Dec()
	case storage.EventReferenced:
		c.ReferenceOps.WithLabelValues(e.Class, "reference").Inc()
	case storage.EventUnreferenced:
		c.ReferenceOps.WithLabelValues(e.Class, "unreference").Inc()
	case storage.EventStringified:
		c.Callbacks.WithLabelValues(e.Class, "to_string").Inc()
	case storage.EventVirtualCalled:
		c.Callbacks.WithLabelValues(e.Class, "virtual").Inc()
	}
}

// Attach subscribes c to table and returns a function that detaches it.
func (c *Collector) Attach(table *storage.Table) func() {
	table.Subscribe(c)
	return func() { table.Unsubscribe(c) }
}
