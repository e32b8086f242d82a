package connections

import (
	"context"
	"sync/atomic"

	"unshub/internal/api"
)

// Handle is one subscriber's view of a shared connection. Inputs and
// outputs configured through a handle are namespaced onto the underlying
// connection, so two subscribers never collide and a reconfiguration by
// one never invalidates the other's subscriptions.
type Handle struct {
	manager      *Manager
	connectionID string
	subscriberID string
	released     atomic.Bool
}

// ConnectionID returns the shared connection's id.
func (h *Handle) ConnectionID() string { return h.connectionID }

// OnData installs the subscriber's data consumer. The subscriber only
// receives points matched by its own inputs (plus connection-owned inputs,
// which fan out to everyone).
func (h *Handle) OnData(cb DataCallback) {
	h.manager.mu.Lock()
	defer h.manager.mu.Unlock()
	if mc, ok := h.manager.conns[h.connectionID]; ok {
		if sub, ok := mc.subscribers[h.subscriberID]; ok {
			sub.dataCb = cb
		}
	}
}

// ConfigureInput attaches a subscriber-owned input.
func (h *Handle) ConfigureInput(ctx context.Context, cfg api.InputConfiguration) error {
	conn, err := h.conn()
	if err != nil {
		return err
	}
	cfg.ID = h.subscriberID + subscriberSeparator + cfg.ID
	return conn.ConfigureInput(ctx, cfg)
}

// RemoveInput detaches a subscriber-owned input by its bare id.
func (h *Handle) RemoveInput(ctx context.Context, id string) error {
	conn, err := h.conn()
	if err != nil {
		return err
	}
	return conn.RemoveInput(ctx, h.subscriberID+subscriberSeparator+id)
}

// ConfigureOutput attaches a subscriber-owned output.
func (h *Handle) ConfigureOutput(ctx context.Context, cfg api.OutputConfiguration) error {
	conn, err := h.conn()
	if err != nil {
		return err
	}
	cfg.ID = h.subscriberID + subscriberSeparator + cfg.ID
	return conn.ConfigureOutput(ctx, cfg)
}

// RemoveOutput detaches a subscriber-owned output by its bare id.
func (h *Handle) RemoveOutput(ctx context.Context, id string) error {
	conn, err := h.conn()
	if err != nil {
		return err
	}
	return conn.RemoveOutput(ctx, h.subscriberID+subscriberSeparator+id)
}

// SendData publishes through the shared connection. A non-empty outputID
// addresses one of this subscriber's outputs.
func (h *Handle) SendData(ctx context.Context, dp api.DataPoint, outputID string) error {
	conn, err := h.conn()
	if err != nil {
		return err
	}
	if outputID != "" {
		outputID = h.subscriberID + subscriberSeparator + outputID
	}
	return conn.SendData(ctx, dp, outputID)
}

// State returns the shared connection's lifecycle state.
func (h *Handle) State() api.ConnectionState {
	conn, err := h.conn()
	if err != nil {
		return api.ConnDisabled
	}
	return conn.State()
}

// Release drops this subscriber's reference, removing its inputs and
// outputs. The last release tears the transport down. Release is
// idempotent.
func (h *Handle) Release(ctx context.Context) {
	if !h.released.CompareAndSwap(false, true) {
		return
	}
	h.manager.release(ctx, h.connectionID, h.subscriberID)
}

func (h *Handle) conn() (Connection, error) {
	if h.released.Load() {
		return nil, api.NewValidationError("handle", "released")
	}
	mc, err := h.manager.get(h.connectionID)
	if err != nil {
		return nil, err
	}
	return mc.conn, nil
}
