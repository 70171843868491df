package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/wippyai/extbind/abi"
	"github.com/wippyai/extbind/storage"
)

type sample struct{}

func TestCollectorCountsEvents(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)

	table := storage.NewTable()
	detach := c.Attach(table)
	defer detach()

	a := storage.New(table, "Sample", abi.ObjectPtr(1), sample{})
	pa := a.IntoRaw()
	b := storage.New(table, "Sample", abi.ObjectPtr(2), sample{})
	pb := b.IntoRaw()

	a.IncRef()
	a.IncRef()
	a.DecRef()
	a.Touch(storage.EventStringified)
	b.Touch(storage.EventVirtualCalled)
	storage.Free[sample](table, pa)

	tests := []struct {
		name      string
		collector prometheus.Collector
		want      float64
	}{
		{"created", c.InstancesCreated.WithLabelValues("Sample"), 2},
		{"freed", c.InstancesFreed.WithLabelValues("Sample"), 1},
		{"live", c.InstancesLive.WithLabelValues("Sample"), 1},
		{"reference", c.ReferenceOps.WithLabelValues("Sample", "reference"), 2},
		{"unreference", c.ReferenceOps.WithLabelValues("Sample", "unreference"), 1},
		{"to_string", c.Callbacks.WithLabelValues("Sample", "to_string"), 1},
		{"virtual", c.Callbacks.WithLabelValues("Sample", "virtual"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.collector); got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, got, tt.want)
			}
		})
	}

	storage.Free[sample](table, pb)
	if got := testutil.ToFloat64(c.InstancesLive.WithLabelValues("Sample")); got != 0 {
		t.Fatalf("live after freeing all = %v, want 0", got)
	}
}

func TestCollectorRegisters(t *testing.T) {
	registry := prometheus.NewRegistry()
	c := NewCollector(registry)
	c.InstancesCreated.WithLabelValues("Counter").Inc()

	expected := `
# HELP extbind_instances_created_total Total number of native instances handed to the foreign runtime
# TYPE extbind_instances_created_total counter
extbind_instances_created_total{class="Counter"} 1
`
	if err := testutil.GatherAndCompare(registry, strings.NewReader(expected), "extbind_instances_created_total"); err != nil {
		t.Fatal(err)
	}
}

func TestDetach(t *testing.T) {
	c := NewCollector(nil)
	table := storage.NewTable()
	detach := c.Attach(table)
	detach()

	s := storage.New(table, "Sample", abi.ObjectPtr(1), sample{})
	ptr := s.IntoRaw()
	storage.Free[sample](table, ptr)

	if got := testutil.CollectAndCount(c.InstancesCreated); got != 0 {
		t.Fatalf("created series after detach = %d, want 0", got)
	}
}
