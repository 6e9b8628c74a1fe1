// Package channels owns the registered channel adapters and bridges them to
// the event bus: inbound messages become MESSAGE_RECEIVED events, reply tool
// calls route back out to the adapter matching the origin channel type.
package channels

import (
	"context"
	"sync"

	"github.com/prismbot/prism/internal/bus"
	"github.com/prismbot/prism/internal/observability"
	"github.com/prismbot/prism/pkg/models"
)

// SendFunc injects an inbound message onto the bus. The mux hands one to
// each adapter at start.
type SendFunc func(inbound models.Inbound)

// Adapter is the contract for one channel family (cli, telegram, project).
type Adapter interface {
	// Type is the stable channel type this adapter serves.
	Type() models.ChannelType

	// Start begins listening; inbound messages go through send.
	Start(ctx context.Context, send SendFunc) error

	// Deliver ships one outbound message.
	Deliver(ctx context.Context, msg models.Outbound) error

	// Stop shuts the adapter down. Idempotent.
	Stop(ctx context.Context) error
}

// Mux routes inbound messages onto the bus and outbound replies to the
// adapter matching the destination channel type. Registering two adapters
// of the same type keeps the last one.
type Mux struct {
	mu       sync.RWMutex
	adapters map[models.ChannelType]Adapter
	bus      *bus.Bus
	log      *observability.Logger

	// onReply, when set, observes every outbound delivery. Test scenarios
	// with no adapters rely on it.
	onReply func(models.Outbound)
}

// NewMux creates a channel multiplexer bridging the given bus.
func NewMux(b *bus.Bus, log *observability.Logger) *Mux {
	if log == nil {
		log = observability.NewTestLogger()
	}
	return &Mux{
		adapters: make(map[models.ChannelType]Adapter),
		bus:      b,
		log:      log,
	}
}

// Register adds an adapter. A later registration for the same type replaces
// the earlier one.
func (m *Mux) Register(adapter Adapter) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.adapters[adapter.Type()]; exists {
		m.log.Warn("replacing channel adapter", "type", string(adapter.Type()))
	}
	m.adapters[adapter.Type()] = adapter
}

// OnReply installs a direct observer for outbound deliveries.
func (m *Mux) OnReply(fn func(models.Outbound)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onReply = fn
}

// StartAll starts every registered adapter with a send function that wraps
// inbound messages as MESSAGE_RECEIVED events.
func (m *Mux) StartAll(ctx context.Context) error {
	m.mu.RLock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.RUnlock()

	for _, adapter := range adapters {
		if err := adapter.Start(ctx, m.Send); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops every adapter, logging failures and continuing.
func (m *Mux) StopAll(ctx context.Context) {
	m.mu.RLock()
	adapters := make([]Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		adapters = append(adapters, a)
	}
	m.mu.RUnlock()

	for _, adapter := range adapters {
		if err := adapter.Stop(ctx); err != nil {
			m.log.Warn("channel adapter stop failed",
				"type", string(adapter.Type()), "error", err)
		}
	}
}

// Send wraps an inbound message as a MESSAGE_RECEIVED event and emits it.
func (m *Mux) Send(inbound models.Inbound) {
	m.bus.Emit(models.NewEvent(
		models.EventMessageReceived,
		string(inbound.Channel.Type),
		"",
		models.Payload{Message: &models.MessagePayload{Inbound: inbound}},
	))
}

// Deliver routes an outbound message to the adapter matching its channel
// type. A missing adapter logs and drops; a delivery failure logs and is
// not re-driven.
func (m *Mux) Deliver(ctx context.Context, msg models.Outbound) {
	m.mu.RLock()
	adapter := m.adapters[msg.Channel.Type]
	onReply := m.onReply
	m.mu.RUnlock()

	if onReply != nil {
		onReply(msg)
	}
	if adapter == nil {
		m.log.Warn("unknown channel type, dropping outbound",
			"type", string(msg.Channel.Type), "channel_id", msg.Channel.ChannelID)
		return
	}
	if err := adapter.Deliver(ctx, msg); err != nil {
		m.log.Error("outbound delivery failed",
			"type", string(msg.Channel.Type),
			"channel_id", msg.Channel.ChannelID,
			"error", err)
	}
}
