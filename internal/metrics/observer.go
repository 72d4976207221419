package metrics

// DeliveryObserver receives delivery pipeline events. The prometheus
// implementation is the production one; tests use a no-op or a counter fake.
type DeliveryObserver interface {
	RecordSend(channel, outcome string)
	ObserveSendLatency(channel string, seconds float64)
	RecordRetry(channel string)
	RecordFallback()
	RecordWebhookEvent(event, result string)
	RecordEnqueue(result string)
	SetPendingBacklog(n int64)
}

type noopObserver struct{}

func NewNoopObserver() DeliveryObserver { return noopObserver{} }

func (noopObserver) RecordSend(string, string)            {}
func (noopObserver) ObserveSendLatency(string, float64)   {}
func (noopObserver) RecordRetry(string)                   {}
func (noopObserver) RecordFallback()                      {}
func (noopObserver) RecordWebhookEvent(string, string)    {}
func (noopObserver) RecordEnqueue(string)                 {}
func (noopObserver) SetPendingBacklog(int64)              {}
