package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestNoopCollectorSatisfiesInterface(t *testing.T) {
	var c Collector = &NoopCollector{}
	c.SessionOpened()
	c.SessionClosed()
	c.RegistrationAttempt(true)
	c.AuthAttempt(false)
	c.RegistrySaturated()
	c.MessageCodeProcessed("REQUEST_SEND_MESSAGE")
	c.MessageDelivered(128)
	c.MessageFetched(128)
	c.MessageDeleted()
}

func TestPrometheusCollectorRecordsWithoutPanicking(t *testing.T) {
	reg := prometheus.NewRegistry()
	var c Collector = NewPrometheusCollector(reg)

	c.SessionOpened()
	c.MessageCodeProcessed("REQUEST_SEND_MESSAGE")
	c.MessageDelivered(42)
	c.RegistrySaturated()

	metricFamilies, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(metricFamilies) == 0 {
		t.Fatal("expected at least one registered metric family")
	}
}
