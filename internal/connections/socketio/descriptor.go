package socketio

import (
	"unshub/internal/api"
	"unshub/internal/connections"
)

// TypeID identifies the Socket.IO connection type.
const TypeID = "socketio"

// Descriptor declares the Socket.IO connection type. The transport speaks
// the event-frame dialect UNS-style Socket.IO bridges emit over a plain
// WebSocket.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return TypeID }
func (Descriptor) DisplayName() string { return "Socket.IO Server" }
func (Descriptor) Description() string {
	return "Receives named events from a Socket.IO-style WebSocket endpoint"
}

func (Descriptor) ConnectionSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "serverUrl", DisplayName: "Server URL", Type: api.FieldURL, Required: true,
				Group: "connection", Order: 0, Description: "ws://host:port/socket.io or wss://..."},
			{Name: "authToken", DisplayName: "Auth Token", Type: api.FieldPassword,
				Group: "connection", Order: 1, IsSecret: true},
			{Name: "pingIntervalSeconds", DisplayName: "Ping Interval (s)", Type: api.FieldNumber,
				Group: "connection", Order: 2, Default: 25},
		},
		Groups: []api.SchemaGroup{{Name: "connection", DisplayName: "Connection", Order: 0}},
	}
}

func (Descriptor) InputSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "eventName", DisplayName: "Event Name", Type: api.FieldText, Required: true,
				Group: "subscription", Order: 0, Description: "Socket.IO event to listen for, e.g. update"},
			{Name: "topicFilter", DisplayName: "Topic Filter", Type: api.FieldText,
				Group: "subscription", Order: 1},
			{Name: "payloadFormat", DisplayName: "Payload Format", Type: api.FieldSelect,
				Options: []string{"json", "sparkplugb"}, Group: "subscription", Order: 2, Default: "json"},
		},
		Groups: []api.SchemaGroup{{Name: "subscription", DisplayName: "Subscription", Order: 0}},
	}
}

func (Descriptor) OutputSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "eventName", DisplayName: "Event Name", Type: api.FieldText,
				Group: "publication", Order: 0, Default: "publish"},
		},
		Groups: []api.SchemaGroup{{Name: "publication", DisplayName: "Publication", Order: 0}},
	}
}

func (d Descriptor) DefaultConfig() map[string]interface{} {
	return d.ConnectionSchema().ApplyDefaults(nil)
}

func (d Descriptor) NewConnection(id string) connections.Connection {
	return New(id)
}
