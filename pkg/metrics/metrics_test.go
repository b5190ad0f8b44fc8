package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNewRegistersAllCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(WithRegistry(reg), WithNamespace("testns"))

	m.EventsTotal.WithLabelValues("TodoList", "add_todo").Inc()
	m.PatchesTotal.WithLabelValues("bindUpdate").Inc()
	m.ErrorPatchesTotal.Inc()
	m.EventDuration.Observe(0.01)
	m.StreamClients.Inc()
	m.SocketClients.Inc()
	m.DroppedPatches.Inc()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) != 7 {
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		t.Errorf("gathered %d families, want 7: %v", len(families), names)
	}
	for _, f := range families {
		if got := f.GetName(); len(got) < len("testns_") || got[:len("testns_")] != "testns_" {
			t.Errorf("family %q missing namespace prefix", got)
		}
	}
}

func TestSeparateRegistriesDoNotCollide(t *testing.T) {
	a := New(WithRegistry(prometheus.NewRegistry()))
	b := New(WithRegistry(prometheus.NewRegistry()))
	a.ErrorPatchesTotal.Inc()
	b.ErrorPatchesTotal.Inc()
}
