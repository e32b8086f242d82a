package connections

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"unshub/internal/api"
	"unshub/internal/publish"
	"unshub/pkg/logging"
)

// disposeTimeout bounds how long Dispose waits for a graceful stop before
// the transport is force-closed.
const disposeTimeout = 10 * time.Second

// Schemas bundles a connection type's three configuration schemas for the
// harness's validation.
type Schemas struct {
	Connection api.ConfigSchema
	Input      api.ConfigSchema
	Output     api.ConfigSchema
}

// Harness is the reusable lifecycle core every concrete connection
// composes: the state machine, input/output bookkeeping, message intake
// with default JSON decoding, and outgoing publication through the
// change-detection gate.
//
// Internal state is guarded by one mutex; callbacks and transport calls
// always fire outside it.
type Harness struct {
	id      string
	typeID  string
	schemas Schemas

	transport Transport
	gate      *publish.Gate

	mu         sync.Mutex
	state      api.ConnectionState
	stateSince time.Time
	lastError  error
	config     api.ConnectionConfiguration
	inputs     map[string]api.InputConfiguration
	outputs    map[string]api.OutputConfiguration
	dataCb     DataCallback
	statusCb   StatusCallback

	decodeErrors  atomic.Int64
	publishErrors atomic.Int64
	received      atomic.Int64

	reconnecting atomic.Bool
}

// NewHarness creates the lifecycle core for one connection instance.
func NewHarness(id, typeID string, transport Transport, schemas Schemas) *Harness {
	return &Harness{
		id:        id,
		typeID:    typeID,
		schemas:   schemas,
		transport: transport,
		gate:      publish.NewGate(),
		state:     api.ConnDisabled,
		inputs:    make(map[string]api.InputConfiguration),
		outputs:   make(map[string]api.OutputConfiguration),
	}
}

// ID returns the connection id.
func (h *Harness) ID() string { return h.id }

// Type returns the connection type id.
func (h *Harness) Type() string { return h.typeID }

// State returns the current lifecycle state.
func (h *Harness) State() api.ConnectionState {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// StateSince returns when the current state was entered.
func (h *Harness) StateSince() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stateSince
}

// Config returns the configuration the connection was initialised with.
func (h *Harness) Config() api.ConnectionConfiguration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.config
}

// LastError returns the most recent error observed by the lifecycle.
func (h *Harness) LastError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.lastError
}

// SetDataCallback installs the DataReceived consumer.
func (h *Harness) SetDataCallback(cb DataCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dataCb = cb
}

// SetStatusCallback installs the StatusChanged observer.
func (h *Harness) SetStatusCallback(cb StatusCallback) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.statusCb = cb
}

// Initialize validates the configuration and moves the connection to
// "configured" (disconnected). Validation failure moves to Error.
func (h *Harness) Initialize(ctx context.Context, cfg api.ConnectionConfiguration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	result := h.ValidateConfiguration(cfg)
	if !result.Valid {
		err := api.NewValidationError("connection "+h.id, result.Errors...)
		h.setState(api.ConnError, err.Error(), err)
		return err
	}

	cfg.Config = h.schemas.Connection.ApplyDefaults(cfg.Config)

	h.mu.Lock()
	h.config = cfg
	h.inputs = make(map[string]api.InputConfiguration, len(cfg.Inputs))
	for _, in := range cfg.Inputs {
		h.inputs[in.ID] = in
	}
	h.outputs = make(map[string]api.OutputConfiguration, len(cfg.Outputs))
	for _, out := range cfg.Outputs {
		h.outputs[out.ID] = out
	}
	h.mu.Unlock()

	h.setState(api.ConnDisconnected, "configured", nil)
	return nil
}

// Start dials the transport: disconnected → connecting → connected, or
// error on failure.
func (h *Harness) Start(ctx context.Context) error {
	h.mu.Lock()
	if h.state != api.ConnDisconnected && h.state != api.ConnError {
		state := h.state
		h.mu.Unlock()
		return api.NewValidationError("connection "+h.id,
			fmt.Sprintf("cannot start from state %s", state))
	}
	h.mu.Unlock()

	h.setState(api.ConnConnecting, "dialing transport", nil)

	if err := h.transport.Dial(ctx); err != nil {
		terr := api.NewTransportError(h.id, err)
		h.setState(api.ConnError, terr.Error(), terr)
		return terr
	}

	h.setState(api.ConnConnected, "transport up", nil)
	h.subscribeEnabledInputs(ctx)
	return nil
}

// Stop disconnects: any active state → stopping → disconnected.
func (h *Harness) Stop(ctx context.Context) error {
	h.mu.Lock()
	state := h.state
	h.mu.Unlock()

	switch state {
	case api.ConnDisconnected, api.ConnDisabled:
		return nil
	}

	h.setState(api.ConnStopping, "stopping", nil)
	err := h.transport.Close(ctx)
	if err != nil {
		logging.Warn("Connection", "%s: transport close: %v", h.id, err)
	}
	h.setState(api.ConnDisconnected, "stopped", nil)
	return err
}

// Dispose forces a stop with a bounded wait, then releases the connection.
func (h *Harness) Dispose(ctx context.Context) error {
	stopCtx, cancel := context.WithTimeout(ctx, disposeTimeout)
	defer cancel()
	err := h.Stop(stopCtx)
	h.setState(api.ConnDisabled, "disposed", nil)
	return err
}

// ConfigureInput accepts and persists an input configuration. While
// connected, enabling drives a transport subscription; adding a disabled
// input is accepted but does not subscribe.
func (h *Harness) ConfigureInput(ctx context.Context, cfg api.InputConfiguration) error {
	if cfg.ID == "" {
		return api.NewValidationError("input", "empty id")
	}

	h.mu.Lock()
	prev, existed := h.inputs[cfg.ID]
	h.inputs[cfg.ID] = cfg
	connected := h.state == api.ConnConnected
	h.mu.Unlock()

	if !connected {
		return nil
	}
	if existed && prev.IsEnabled {
		if err := h.transport.Unsubscribe(ctx, prev); err != nil {
			logging.Warn("Connection", "%s: unsubscribe %s: %v", h.id, prev.ID, err)
		}
	}
	if cfg.IsEnabled {
		if err := h.transport.Subscribe(ctx, cfg); err != nil {
			return api.NewTransportError(h.id, err)
		}
	}
	return nil
}

// RemoveInput drops an input and its wire subscription.
func (h *Harness) RemoveInput(ctx context.Context, id string) error {
	h.mu.Lock()
	cfg, ok := h.inputs[id]
	if ok {
		delete(h.inputs, id)
	}
	connected := h.state == api.ConnConnected
	h.mu.Unlock()

	if !ok {
		return api.NewInputNotFoundError(id)
	}
	if connected && cfg.IsEnabled {
		if err := h.transport.Unsubscribe(ctx, cfg); err != nil {
			return api.NewTransportError(h.id, err)
		}
	}
	return nil
}

// ConfigureOutput accepts and persists a publication rule.
func (h *Harness) ConfigureOutput(_ context.Context, cfg api.OutputConfiguration) error {
	if cfg.ID == "" {
		return api.NewValidationError("output", "empty id")
	}
	h.mu.Lock()
	_, existed := h.outputs[cfg.ID]
	h.outputs[cfg.ID] = cfg
	h.mu.Unlock()

	if existed {
		// Reconfigured outputs restart change detection from scratch.
		h.gate.Forget(cfg.ID)
	}
	return nil
}

// RemoveOutput drops a publication rule and its gate state.
func (h *Harness) RemoveOutput(_ context.Context, id string) error {
	h.mu.Lock()
	_, ok := h.outputs[id]
	delete(h.outputs, id)
	h.mu.Unlock()

	if !ok {
		return api.NewOutputNotFoundError(id)
	}
	h.gate.Forget(id)
	return nil
}

// Inputs returns a snapshot of the configured inputs.
func (h *Harness) Inputs() []api.InputConfiguration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]api.InputConfiguration, 0, len(h.inputs))
	for _, in := range h.inputs {
		out = append(out, in)
	}
	return out
}

// Outputs returns a snapshot of the configured outputs.
func (h *Harness) Outputs() []api.OutputConfiguration {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]api.OutputConfiguration, 0, len(h.outputs))
	for _, o := range h.outputs {
		out = append(out, o)
	}
	return out
}

// SendData publishes a data point through one output (outputID != "") or
// through every enabled output whose filters match. Change detection and
// rate limiting apply per (output, topic); gate state only advances after
// the transport accepted the payload.
func (h *Harness) SendData(ctx context.Context, dp api.DataPoint, outputID string) error {
	h.mu.Lock()
	var targets []api.OutputConfiguration
	if outputID != "" {
		out, ok := h.outputs[outputID]
		if !ok {
			h.mu.Unlock()
			return api.NewOutputNotFoundError(outputID)
		}
		targets = append(targets, out)
	} else {
		for _, out := range h.outputs {
			if out.IsEnabled && out.MatchesTopic(dp.Topic) {
				targets = append(targets, out)
			}
		}
	}
	h.mu.Unlock()

	now := time.Now()
	var firstErr error
	for _, out := range targets {
		if outputID == "" && !out.IsEnabled {
			continue
		}
		switch h.gate.Evaluate(out, dp, now) {
		case publish.Emit:
		default:
			continue
		}

		payload, err := publish.Serialize(out, dp)
		if err != nil {
			logging.Warn("Connection", "%s: serialise for output %s: %v", h.id, out.ID, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}

		topic := publish.OutputTopic(out, dp, h.unsNameFor(dp, out))
		if err := h.transport.Publish(ctx, topic, payload, out.QoS); err != nil {
			h.publishErrors.Add(1)
			perr := &api.PublishError{OutputID: out.ID, Topic: dp.Topic, Err: err}
			logging.Warn("Connection", "%s: %v", h.id, perr)
			if firstErr == nil {
				firstErr = perr
			}
			// No Confirm: a future point retries naturally.
			continue
		}
		h.gate.Confirm(out.ID, dp, now)
	}
	return firstErr
}

// unsNameFor resolves the UNS name for UNS-path topics via the registered
// topic repository; the wire topic fills in when no registration exists.
func (h *Harness) unsNameFor(dp api.DataPoint, out api.OutputConfiguration) string {
	if !out.UseUNSPathAsTopic {
		return ""
	}
	if repo := api.GetTopicRepository(); repo != nil {
		if tc, ok := repo.GetByTopic(dp.Topic); ok {
			return tc.UNSName
		}
	}
	return ""
}

// ValidateConfiguration checks the typed config against the connection
// schema plus structural basics of the attached inputs and outputs.
func (h *Harness) ValidateConfiguration(cfg api.ConnectionConfiguration) api.ValidationResult {
	result := h.schemas.Connection.Validate(h.schemas.Connection.ApplyDefaults(cfg.Config))

	if cfg.ConnectionType != "" && cfg.ConnectionType != h.typeID {
		result.AddError(fmt.Sprintf("configuration is for type %s, connection is %s", cfg.ConnectionType, h.typeID))
	}
	seen := make(map[string]bool)
	for _, in := range cfg.Inputs {
		if in.ID == "" {
			result.AddError("input with empty id")
			continue
		}
		if seen["i"+in.ID] {
			result.AddError("duplicate input id " + in.ID)
		}
		seen["i"+in.ID] = true
		switch in.PayloadFormat {
		case "", PayloadJSON, PayloadSparkplugB:
		default:
			result.AddError(fmt.Sprintf("input %s: unknown payload format %q", in.ID, in.PayloadFormat))
		}
	}
	for _, out := range cfg.Outputs {
		if out.ID == "" {
			result.AddError("output with empty id")
			continue
		}
		if seen["o"+out.ID] {
			result.AddError("duplicate output id " + out.ID)
		}
		seen["o"+out.ID] = true
		switch out.DataFormat {
		case api.FormatRaw, api.FormatJSON, api.FormatXML, api.FormatSparkplugB, api.FormatMessagePack, "":
		default:
			result.AddError(fmt.Sprintf("output %s: unknown data format %q", out.ID, out.DataFormat))
		}
	}
	return result
}

// HandleMessage is the transport's entry point for inbound traffic: match
// inputs, decode the payload through each input's codec into leaf data
// points, fire DataReceived per point. Decode failures increment a counter
// and drop the message.
func (h *Harness) HandleMessage(wireTopic, eventName string, payload []byte) {
	h.mu.Lock()
	inputs := make([]api.InputConfiguration, 0, len(h.inputs))
	for _, in := range h.inputs {
		inputs = append(inputs, in)
	}
	cb := h.dataCb
	h.mu.Unlock()

	if cb == nil {
		return
	}
	receivedAt := time.Now().UTC()

	for _, in := range inputs {
		if !inputMatches(in, wireTopic, eventName) {
			continue
		}

		base := in.BasePath
		if base == "" {
			base = wireTopic
		}
		points, err := CodecFor(in).Decode(payload, base, receivedAt)
		if err != nil {
			h.decodeErrors.Add(1)
			logging.Warn("Connection", "%s: dropping message on %s: %v",
				h.id, logging.TruncateTopic(wireTopic), err)
			continue
		}

		for _, dp := range points {
			dp.ConnectionID = h.id
			dp.SourceSystem = h.typeID
			h.received.Add(1)
			cb(dp, in.ID)
		}
	}
}

func inputMatches(in api.InputConfiguration, wireTopic, eventName string) bool {
	if !in.IsEnabled {
		return false
	}
	if in.EventName != "" && in.EventName != eventName {
		return false
	}
	if in.TopicFilter != "" && !api.MatchTopicFilter(in.TopicFilter, wireTopic) {
		return false
	}
	return true
}

// TransportLost drives the reconnection policy after an unexpected
// transport failure. Exhausted retries land the connection in Error.
func (h *Harness) TransportLost(err error) {
	h.mu.Lock()
	state := h.state
	policy := h.config.Reconnect
	h.mu.Unlock()

	if state != api.ConnConnected && state != api.ConnConnecting {
		return
	}
	if !h.reconnecting.CompareAndSwap(false, true) {
		return
	}

	terr := api.NewTransportError(h.id, err)
	h.setState(api.ConnConnecting, "transport lost, reconnecting", terr)

	go func() {
		defer h.reconnecting.Store(false)

		attempts := policy.MaxAttempts
		if attempts <= 0 {
			attempts = 5
		}
		delay := policy.InitialDelay
		if delay <= 0 {
			delay = time.Second
		}
		maxDelay := policy.MaxDelay
		if maxDelay <= 0 {
			maxDelay = 30 * time.Second
		}

		b := backoff.NewExponentialBackOff()
		b.InitialInterval = delay
		b.MaxInterval = maxDelay

		for attempt := 1; attempt <= attempts; attempt++ {
			if h.State() == api.ConnStopping || h.State() == api.ConnDisconnected || h.State() == api.ConnDisabled {
				return
			}
			time.Sleep(b.NextBackOff())

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			err := h.transport.Dial(ctx)
			cancel()
			if err == nil {
				h.setState(api.ConnConnected, fmt.Sprintf("reconnected after %d attempts", attempt), nil)
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				h.subscribeEnabledInputs(ctx)
				cancel()
				return
			}
			logging.Warn("Connection", "%s: reconnect attempt %d/%d failed: %v", h.id, attempt, attempts, err)
		}

		final := api.NewTransportError(h.id, fmt.Errorf("reconnect attempts exhausted"))
		h.setState(api.ConnError, final.Error(), final)
	}()
}

// PublishRaw sends an already-serialised payload straight through the
// transport, bypassing outputs and change detection. Model publishing uses
// it.
func (h *Harness) PublishRaw(ctx context.Context, topic string, payload []byte, qos int) error {
	return h.transport.Publish(ctx, topic, payload, qos)
}

// DecodeErrors returns the decode failure counter.
func (h *Harness) DecodeErrors() int64 { return h.decodeErrors.Load() }

// Received returns the count of data points emitted by intake.
func (h *Harness) Received() int64 { return h.received.Load() }

func (h *Harness) subscribeEnabledInputs(ctx context.Context) {
	for _, in := range h.Inputs() {
		if !in.IsEnabled {
			continue
		}
		if err := h.transport.Subscribe(ctx, in); err != nil {
			logging.Warn("Connection", "%s: subscribe %s: %v", h.id, in.ID, err)
		}
	}
}

// setState transitions the machine and notifies the status callback
// outside the lock.
func (h *Harness) setState(state api.ConnectionState, message string, err error) {
	h.mu.Lock()
	old := h.state
	h.state = state
	h.stateSince = time.Now().UTC()
	if err != nil {
		h.lastError = err
	}
	cb := h.statusCb
	h.mu.Unlock()

	if old != state {
		logging.Debug("Connection", "%s: %s -> %s (%s)", h.id, old, state, message)
		if cb != nil {
			cb(api.StatusChange{
				ConnectionID: h.id,
				OldState:     old,
				NewState:     state,
				Message:      message,
				Timestamp:    time.Now().UTC(),
			})
		}
	}
}
