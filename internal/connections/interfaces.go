package connections

import (
	"context"

	"unshub/internal/api"
)

// DataCallback receives one decoded data point and the id of the input that
// matched it. Callbacks fire outside all connection locks and must be
// short; heavy work belongs on the queue processor.
type DataCallback func(dp api.DataPoint, inputID string)

// StatusCallback observes connection state transitions.
type StatusCallback func(change api.StatusChange)

// Connection is the uniform lifecycle surface every connection type
// implements. Concrete connections compose the Harness and plug in a
// Transport; none of them reimplements the state machine.
type Connection interface {
	ID() string
	Type() string

	// Lifecycle. Initialize validates and stores the configuration
	// ("configured" == disconnected); Start dials the transport; Stop
	// disconnects; Dispose forces a bounded-wait stop and releases
	// resources.
	Initialize(ctx context.Context, cfg api.ConnectionConfiguration) error
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Dispose(ctx context.Context) error

	State() api.ConnectionState
	LastError() error

	// Dynamic reconfiguration while connected.
	ConfigureInput(ctx context.Context, cfg api.InputConfiguration) error
	RemoveInput(ctx context.Context, id string) error
	ConfigureOutput(ctx context.Context, cfg api.OutputConfiguration) error
	RemoveOutput(ctx context.Context, id string) error
	Inputs() []api.InputConfiguration
	Outputs() []api.OutputConfiguration

	// SendData publishes through one output (outputID != "") or through
	// every enabled output whose filters match the data point.
	SendData(ctx context.Context, dp api.DataPoint, outputID string) error

	ValidateConfiguration(cfg api.ConnectionConfiguration) api.ValidationResult

	SetDataCallback(cb DataCallback)
	SetStatusCallback(cb StatusCallback)
}

// Descriptor is the static half of a connection type: identity, display
// metadata, the three configuration schemas and the instance factory.
type Descriptor interface {
	TypeID() string
	DisplayName() string
	Description() string

	ConnectionSchema() api.ConfigSchema
	InputSchema() api.ConfigSchema
	OutputSchema() api.ConfigSchema

	// DefaultConfig returns a fresh typed-config map with schema defaults
	// applied.
	DefaultConfig() map[string]interface{}

	// NewConnection constructs an uninitialised connection instance.
	NewConnection(id string) Connection
}

// Transport is the wire half a concrete connection supplies to the
// Harness. Implementations own their read loops and deliver inbound
// traffic through the harness's HandleMessage / TransportLost.
type Transport interface {
	// Dial establishes the transport. Called from Connecting.
	Dial(ctx context.Context) error

	// Close tears the transport down. Called from Stopping and on dispose.
	Close(ctx context.Context) error

	// Subscribe and Unsubscribe drive the wire-level effect of input
	// configuration changes while connected.
	Subscribe(ctx context.Context, input api.InputConfiguration) error
	Unsubscribe(ctx context.Context, input api.InputConfiguration) error

	// Publish sends one serialised payload.
	Publish(ctx context.Context, topic string, payload []byte, qos int) error
}
