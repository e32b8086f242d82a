package connections

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"unshub/internal/api"
	"unshub/internal/publish"
	"unshub/pkg/logging"
)

// subscriberSeparator namespaces per-subscriber input/output ids on the
// shared connection so subscribers never collide and never see each other.
const subscriberSeparator = "::"

// managed is one shared connection plus its subscriber bookkeeping.
type managed struct {
	conn Connection
	cfg  api.ConnectionConfiguration

	refs        int
	subscribers map[string]*subscriberEntry
}

type subscriberEntry struct {
	dataCb DataCallback
}

// Manager owns at most one live connection per connection id and shares it
// among subscribers. Subscribers acquire handles, attach their own inputs
// and outputs (namespaced onto the shared instance) and receive only the
// data points their inputs matched.
type Manager struct {
	mu       sync.Mutex
	registry *TypeRegistry
	conns    map[string]*managed

	statusCb StatusCallback
}

// NewManager creates a manager resolving connection types from registry.
func NewManager(registry *TypeRegistry) *Manager {
	return &Manager{
		registry: registry,
		conns:    make(map[string]*managed),
	}
}

// SetStatusCallback observes status changes of every managed connection.
func (m *Manager) SetStatusCallback(cb StatusCallback) {
	m.mu.Lock()
	m.statusCb = cb
	for _, mc := range m.conns {
		mc.conn.SetStatusCallback(cb)
	}
	m.mu.Unlock()
}

// Apply creates or reconfigures a connection from its configuration. An
// existing connection is stopped, re-initialised and restarted when it was
// running (or marked autoStart); subscribers and their handles survive the
// cycle.
func (m *Manager) Apply(ctx context.Context, cfg api.ConnectionConfiguration) error {
	if cfg.ID == "" {
		return api.NewValidationError("connection configuration", "empty id")
	}

	m.mu.Lock()
	mc, exists := m.conns[cfg.ID]
	statusCb := m.statusCb
	m.mu.Unlock()

	if !exists {
		desc, ok := m.registry.Get(cfg.ConnectionType)
		if !ok {
			return api.NewValidationError("connection "+cfg.ID,
				fmt.Sprintf("unknown connection type %q", cfg.ConnectionType))
		}
		conn := desc.NewConnection(cfg.ID)
		if statusCb != nil {
			conn.SetStatusCallback(statusCb)
		}

		mc = &managed{conn: conn, cfg: cfg, subscribers: make(map[string]*subscriberEntry)}
		conn.SetDataCallback(m.routeData(cfg.ID))

		m.mu.Lock()
		if _, raced := m.conns[cfg.ID]; raced {
			m.mu.Unlock()
			return fmt.Errorf("connection %s created concurrently", cfg.ID)
		}
		m.conns[cfg.ID] = mc
		m.mu.Unlock()

		if err := mc.conn.Initialize(ctx, cfg); err != nil {
			return err
		}
		if cfg.IsEnabled && cfg.AutoStart {
			return mc.conn.Start(ctx)
		}
		return nil
	}

	// Reconfigure in place.
	wasRunning := mc.conn.State() == api.ConnConnected || mc.conn.State() == api.ConnConnecting
	if err := mc.conn.Stop(ctx); err != nil {
		logging.Warn("ConnectionManager", "stop during reconfigure of %s: %v", cfg.ID, err)
	}
	if err := mc.conn.Initialize(ctx, cfg); err != nil {
		return err
	}
	m.mu.Lock()
	mc.cfg = cfg
	m.mu.Unlock()

	if cfg.IsEnabled && (wasRunning || cfg.AutoStart) {
		return mc.conn.Start(ctx)
	}
	return nil
}

// Remove stops and forgets a connection regardless of subscribers.
func (m *Manager) Remove(ctx context.Context, id string) error {
	m.mu.Lock()
	mc, ok := m.conns[id]
	if ok {
		delete(m.conns, id)
	}
	m.mu.Unlock()

	if !ok {
		return api.NewConnectionNotFoundError(id)
	}
	return mc.conn.Dispose(ctx)
}

// Start starts a managed connection by id.
func (m *Manager) Start(ctx context.Context, id string) error {
	mc, err := m.get(id)
	if err != nil {
		return err
	}
	return mc.conn.Start(ctx)
}

// Stop stops a managed connection by id.
func (m *Manager) Stop(ctx context.Context, id string) error {
	mc, err := m.get(id)
	if err != nil {
		return err
	}
	return mc.conn.Stop(ctx)
}

// StopAll stops every managed connection; used at shutdown.
func (m *Manager) StopAll(ctx context.Context) {
	for _, info := range m.List() {
		m.mu.Lock()
		mc := m.conns[info.ID]
		m.mu.Unlock()
		if mc == nil {
			continue
		}
		if err := mc.conn.Dispose(ctx); err != nil {
			logging.Warn("ConnectionManager", "dispose %s: %v", info.ID, err)
		}
	}
}

// Acquire returns a subscriber handle on the shared connection, creating
// nothing: the connection must have been Applied first. The first acquire
// of a stopped, enabled connection starts it.
func (m *Manager) Acquire(ctx context.Context, connectionID, subscriberID string) (*Handle, error) {
	m.mu.Lock()
	mc, ok := m.conns[connectionID]
	if !ok {
		m.mu.Unlock()
		return nil, api.NewConnectionNotFoundError(connectionID)
	}
	if _, dup := mc.subscribers[subscriberID]; dup {
		m.mu.Unlock()
		return nil, api.NewValidationError("subscriber "+subscriberID,
			fmt.Sprintf("already subscribed to %s", connectionID))
	}
	mc.refs++
	refs := mc.refs
	mc.subscribers[subscriberID] = &subscriberEntry{}
	first := refs == 1
	enabled := mc.cfg.IsEnabled
	m.mu.Unlock()

	if first && enabled && mc.conn.State() == api.ConnDisconnected {
		if err := mc.conn.Start(ctx); err != nil {
			logging.Warn("ConnectionManager", "start of %s on first acquire: %v", connectionID, err)
		}
	}

	logging.Debug("ConnectionManager", "%s acquired by %s (refs=%d)", connectionID, subscriberID, refs)
	return &Handle{manager: m, connectionID: connectionID, subscriberID: subscriberID}, nil
}

// release drops one subscriber. When the refcount reaches zero the
// connection is stopped (immediate teardown; the instance and its
// configuration stay registered for re-acquisition).
func (m *Manager) release(ctx context.Context, connectionID, subscriberID string) {
	m.mu.Lock()
	mc, ok := m.conns[connectionID]
	if !ok {
		m.mu.Unlock()
		return
	}
	if _, subscribed := mc.subscribers[subscriberID]; !subscribed {
		m.mu.Unlock()
		return
	}
	delete(mc.subscribers, subscriberID)
	mc.refs--
	refs := mc.refs
	last := refs == 0
	m.mu.Unlock()

	// Subscriber-owned inputs and outputs leave with the subscriber.
	prefix := subscriberID + subscriberSeparator
	for _, in := range mc.conn.Inputs() {
		if strings.HasPrefix(in.ID, prefix) {
			if err := mc.conn.RemoveInput(ctx, in.ID); err != nil {
				logging.Warn("ConnectionManager", "remove input %s: %v", in.ID, err)
			}
		}
	}
	for _, out := range mc.conn.Outputs() {
		if strings.HasPrefix(out.ID, prefix) {
			if err := mc.conn.RemoveOutput(ctx, out.ID); err != nil {
				logging.Warn("ConnectionManager", "remove output %s: %v", out.ID, err)
			}
		}
	}

	if last {
		if err := mc.conn.Stop(ctx); err != nil {
			logging.Warn("ConnectionManager", "stop of %s after last release: %v", connectionID, err)
		}
	}
	logging.Debug("ConnectionManager", "%s released by %s (refs=%d)", connectionID, subscriberID, refs)
}

// routeData builds the shared connection's data callback: points from a
// subscriber-owned input go to that subscriber alone (with the bare input
// id); points from connection-owned inputs fan out to every subscriber.
func (m *Manager) routeData(connectionID string) DataCallback {
	return func(dp api.DataPoint, inputID string) {
		m.mu.Lock()
		mc, ok := m.conns[connectionID]
		if !ok {
			m.mu.Unlock()
			return
		}
		type target struct {
			cb      DataCallback
			inputID string
		}
		var targets []target
		if owner, bare, owned := splitInputID(inputID); owned {
			if sub, exists := mc.subscribers[owner]; exists && sub.dataCb != nil {
				targets = append(targets, target{cb: sub.dataCb, inputID: bare})
			}
		} else {
			for _, sub := range mc.subscribers {
				if sub.dataCb != nil {
					targets = append(targets, target{cb: sub.dataCb, inputID: inputID})
				}
			}
		}
		m.mu.Unlock()

		for _, t := range targets {
			t.cb(dp, t.inputID)
		}
	}
}

// List returns the management view of every connection.
func (m *Manager) List() []api.ConnectionInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]api.ConnectionInfo, 0, len(m.conns))
	for id, mc := range m.conns {
		info := api.ConnectionInfo{
			ID:          id,
			Type:        mc.cfg.ConnectionType,
			Name:        mc.cfg.Name,
			State:       mc.conn.State(),
			Subscribers: mc.refs,
		}
		if err := mc.conn.LastError(); err != nil {
			info.LastError = err.Error()
		}
		if h, ok := mc.conn.(interface{ StateSince() time.Time }); ok {
			info.Since = h.StateSince()
		}
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// States returns connectionID -> state for the status view.
func (m *Manager) States() map[string]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]string, len(m.conns))
	for id, mc := range m.conns {
		out[id] = string(mc.conn.State())
	}
	return out
}

// ModelTargets enumerates every enabled model-exporting output for the
// model publisher.
func (m *Manager) ModelTargets() []publish.ModelTarget {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []publish.ModelTarget
	for id, mc := range m.conns {
		for _, o := range mc.conn.Outputs() {
			if o.IsEnabled && o.ExportModel {
				out = append(out, publish.ModelTarget{ConnectionID: id, Output: o})
			}
		}
	}
	return out
}

// Broadcast offers a data point to every connected connection's outputs;
// the export path drives this from TopicDataUpdated events.
func (m *Manager) Broadcast(ctx context.Context, dp api.DataPoint) {
	m.mu.Lock()
	conns := make([]Connection, 0, len(m.conns))
	for _, mc := range m.conns {
		conns = append(conns, mc.conn)
	}
	m.mu.Unlock()

	for _, conn := range conns {
		if conn.State() != api.ConnConnected {
			continue
		}
		if err := conn.SendData(ctx, dp, ""); err != nil {
			logging.Debug("ConnectionManager", "broadcast via %s: %v", conn.ID(), err)
		}
	}
}

// SendVia publishes through one connection and output; the model publisher
// and explicit exports use it.
func (m *Manager) SendVia(ctx context.Context, connectionID string, topic string, payload []byte, qos int) error {
	mc, err := m.get(connectionID)
	if err != nil {
		return err
	}
	transport, ok := mc.conn.(interface {
		PublishRaw(ctx context.Context, topic string, payload []byte, qos int) error
	})
	if !ok {
		return api.NewValidationError("connection "+connectionID, "does not support raw publishing")
	}
	return transport.PublishRaw(ctx, topic, payload, qos)
}

func (m *Manager) get(id string) (*managed, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mc, ok := m.conns[id]
	if !ok {
		return nil, api.NewConnectionNotFoundError(id)
	}
	return mc, nil
}

func splitInputID(id string) (subscriber, bare string, owned bool) {
	idx := strings.Index(id, subscriberSeparator)
	if idx < 0 {
		return "", id, false
	}
	return id[:idx], id[idx+len(subscriberSeparator):], true
}
