package provider

import (
	"context"

	"notiflow/internal/model"
)

// SendResult is the uniform outcome of a transport send. A failed send is a
// result, not an error: errors are reserved for the call not completing at
// all (timeout, transport failure), and both count as retryable upstream.
type SendResult struct {
	Success    bool
	ExternalID string
	Error      string
}

// Adapter is the capability boundary each transport implements. The
// dispatcher and the webhook ingestor depend on this surface only; vendor
// wire formats stay behind it.
type Adapter interface {
	Name() string
	Channel() string
	Send(ctx context.Context, msg *model.OutboxMessage) (SendResult, error)
	// GetStatus is best effort; webhooks are the authoritative status source.
	GetStatus(ctx context.Context, externalID string) (string, error)
	VerifySignature(messageID, timestamp, sigHeader string, rawBody []byte) bool
}

// Registry holds the configured adapters by name and by channel.
type Registry struct {
	byName    map[string]Adapter
	byChannel map[string]Adapter
}

func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{
		byName:    make(map[string]Adapter),
		byChannel: make(map[string]Adapter),
	}
	for _, a := range adapters {
		r.byName[a.Name()] = a
		r.byChannel[a.Channel()] = a
	}
	return r
}

func (r *Registry) ByName(name string) (Adapter, bool) {
	a, ok := r.byName[name]
	return a, ok
}

func (r *Registry) ByChannel(channel string) (Adapter, bool) {
	a, ok := r.byChannel[channel]
	return a, ok
}
