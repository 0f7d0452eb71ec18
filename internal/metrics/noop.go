package metrics

// NoopCollector is a no-op implementation of the Collector interface. All
// methods are empty stubs, used when PGM_METRICS_ADDR is unset.
type NoopCollector struct{}

func (n *NoopCollector) SessionOpened()                   {}
func (n *NoopCollector) SessionClosed()                   {}
func (n *NoopCollector) RegistrationAttempt(success bool) {}
func (n *NoopCollector) AuthAttempt(success bool)         {}
func (n *NoopCollector) RegistrySaturated()               {}
func (n *NoopCollector) MessageCodeProcessed(code string) {}
func (n *NoopCollector) MessageDelivered(sizeBytes int64) {}
func (n *NoopCollector) MessageFetched(sizeBytes int64)   {}
func (n *NoopCollector) MessageDeleted()                  {}
