package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(prometheus.Labels{"app_name": "test"})
	if err := m.Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	m.BytesSent.Add(10)
	m.CallsActive.Set(3)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatalf("expected at least one metric family")
	}
}
