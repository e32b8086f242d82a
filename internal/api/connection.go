package api

import (
	"path"
	"strings"
	"time"
)

// ConnectionState is one state of the connection lifecycle machine:
//
//	disabled → connecting → {connected | error} → stopping → disconnected
//
// with error reachable from any non-terminal state. A successfully
// initialized but not yet started connection sits in "disconnected".
type ConnectionState string

const (
	ConnDisabled     ConnectionState = "disabled"
	ConnDisconnected ConnectionState = "disconnected"
	ConnConnecting   ConnectionState = "connecting"
	ConnConnected    ConnectionState = "connected"
	ConnStopping     ConnectionState = "stopping"
	ConnError        ConnectionState = "error"
)

// StatusChange describes one observed connection state transition.
type StatusChange struct {
	ConnectionID string          `json:"connectionId"`
	OldState     ConnectionState `json:"oldState"`
	NewState     ConnectionState `json:"newState"`
	Message      string          `json:"message,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// DataFormat selects the serialisation applied to outgoing data points.
type DataFormat string

const (
	FormatRaw         DataFormat = "raw"
	FormatJSON        DataFormat = "json"
	FormatXML         DataFormat = "xml"
	FormatSparkplugB  DataFormat = "sparkplugb"
	FormatMessagePack DataFormat = "messagepack"
)

// InputConfiguration is a per-connection subscription rule.
type InputConfiguration struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	IsEnabled bool   `json:"isEnabled" yaml:"isEnabled"`

	// TopicFilter is a glob over wire topics ("factory/+/temp", "plc/#" for
	// MQTT; NATS subject wildcards are translated by the NATS connection).
	TopicFilter string `json:"topicFilter,omitempty" yaml:"topicFilter,omitempty"`

	// EventName selects a named event stream for event-oriented transports
	// (Socket.IO). Empty means all events.
	EventName string `json:"eventName,omitempty" yaml:"eventName,omitempty"`

	QoS int `json:"qos,omitempty" yaml:"qos,omitempty"`

	// PayloadFormat selects the inbound payload codec: "json" (default
	// leaf-walking decode) or "sparkplugb" (stub codec passing the raw
	// bytes through until a protobuf definition is supplied).
	PayloadFormat string `json:"payloadFormat,omitempty" yaml:"payloadFormat,omitempty"`

	// BasePath is prepended to decoded leaf topics.
	BasePath string `json:"basePath,omitempty" yaml:"basePath,omitempty"`

	// DisableLeafHeuristic turns off the {value,timestamp} two-key leaf rule
	// for payloads whose objects legitimately carry those keys.
	DisableLeafHeuristic bool `json:"disableLeafHeuristic,omitempty" yaml:"disableLeafHeuristic,omitempty"`

	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// OutputConfiguration is a per-connection publication rule.
type OutputConfiguration struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	IsEnabled bool   `json:"isEnabled" yaml:"isEnabled"`

	// TopicFilters select which data point topics this output publishes.
	// Empty means match everything.
	TopicFilters []string `json:"topicFilters,omitempty" yaml:"topicFilters,omitempty"`

	QoS        int        `json:"qos,omitempty" yaml:"qos,omitempty"`
	DataFormat DataFormat `json:"dataFormat" yaml:"dataFormat"`

	EmitOnChange      bool  `json:"emitOnChange" yaml:"emitOnChange"`
	MinEmitIntervalMs int64 `json:"minEmitIntervalMs,omitempty" yaml:"minEmitIntervalMs,omitempty"`

	IncludeTimestamp bool `json:"includeTimestamp" yaml:"includeTimestamp"`
	IncludeQuality   bool `json:"includeQuality" yaml:"includeQuality"`

	// UseUNSPathAsTopic publishes under hierarchicalPath.fullPath + "/" +
	// unsName instead of the original wire topic.
	UseUNSPathAsTopic bool   `json:"useUNSPathAsTopic" yaml:"useUNSPathAsTopic"`
	TopicPrefix       string `json:"topicPrefix,omitempty" yaml:"topicPrefix,omitempty"`

	// ExportModel marks this output as a namespace-model exporter for the
	// periodic model publisher.
	ExportModel        bool   `json:"exportModel,omitempty" yaml:"exportModel,omitempty"`
	ModelAttributeName string `json:"modelAttributeName,omitempty" yaml:"modelAttributeName,omitempty"`
	ModelTopic         string `json:"modelTopic,omitempty" yaml:"modelTopic,omitempty"`
}

// MatchesTopic reports whether the output's filters select the given topic.
func (o OutputConfiguration) MatchesTopic(topic string) bool {
	if len(o.TopicFilters) == 0 {
		return true
	}
	for _, filter := range o.TopicFilters {
		if MatchTopicFilter(filter, topic) {
			return true
		}
	}
	return false
}

// ReconnectPolicy bounds transport reconnection attempts.
type ReconnectPolicy struct {
	MaxAttempts  int           `json:"maxAttempts,omitempty" yaml:"maxAttempts,omitempty"`
	InitialDelay time.Duration `json:"initialDelay,omitempty" yaml:"initialDelay,omitempty"`
	MaxDelay     time.Duration `json:"maxDelay,omitempty" yaml:"maxDelay,omitempty"`
}

// ConnectionConfiguration carries connection-type-specific settings plus the
// attached inputs and outputs.
type ConnectionConfiguration struct {
	ID             string                 `json:"id" yaml:"id"`
	ConnectionType string                 `json:"connectionType" yaml:"connectionType"`
	Name           string                 `json:"name" yaml:"name"`
	IsEnabled      bool                   `json:"isEnabled" yaml:"isEnabled"`
	AutoStart      bool                   `json:"autoStart" yaml:"autoStart"`
	Config         map[string]interface{} `json:"config,omitempty" yaml:"config,omitempty"`
	Inputs         []InputConfiguration   `json:"inputs,omitempty" yaml:"inputs,omitempty"`
	Outputs        []OutputConfiguration  `json:"outputs,omitempty" yaml:"outputs,omitempty"`
	Reconnect      ReconnectPolicy        `json:"reconnect,omitempty" yaml:"reconnect,omitempty"`
}

// ValidationResult is the outcome of configuration validation. A result with
// warnings but no errors is valid.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

// AddError appends an error and marks the result invalid.
func (v *ValidationResult) AddError(msg string) {
	v.Errors = append(v.Errors, msg)
	v.Valid = false
}

// AddWarning appends a warning without affecting validity.
func (v *ValidationResult) AddWarning(msg string) {
	v.Warnings = append(v.Warnings, msg)
}

// OKValidation returns a fresh valid result.
func OKValidation() ValidationResult {
	return ValidationResult{Valid: true}
}

// MatchTopicFilter matches a topic against a filter supporting MQTT-style
// wildcards: "+" matches exactly one segment, "#" matches the remainder.
// Plain shell globs ("*") are accepted per segment as well.
func MatchTopicFilter(filter, topic string) bool {
	if filter == "" || filter == "#" {
		return true
	}
	fsegs := strings.Split(filter, "/")
	tsegs := strings.Split(topic, "/")

	for i, fs := range fsegs {
		if fs == "#" {
			return true
		}
		if i >= len(tsegs) {
			return false
		}
		switch {
		case fs == "+" || fs == "*":
			continue
		case strings.ContainsAny(fs, "*?["):
			ok, err := path.Match(fs, tsegs[i])
			if err != nil || !ok {
				return false
			}
		case fs != tsegs[i]:
			return false
		}
	}
	return len(fsegs) == len(tsegs)
}
