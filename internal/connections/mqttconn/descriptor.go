package mqttconn

import (
	"unshub/internal/api"
	"unshub/internal/connections"
)

// TypeID identifies the MQTT connection type.
const TypeID = "mqtt"

// Descriptor declares the MQTT connection type: display metadata, the three
// configuration schemas and the instance factory.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return TypeID }
func (Descriptor) DisplayName() string { return "MQTT Broker" }
func (Descriptor) Description() string {
	return "Subscribes to and publishes on an MQTT broker (3.1.1)"
}

func (Descriptor) ConnectionSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "brokerUrl", DisplayName: "Broker URL", Type: api.FieldURL, Required: true,
				Group: "connection", Order: 0, Description: "tcp://host:1883 or ssl://host:8883"},
			{Name: "clientId", DisplayName: "Client ID", Type: api.FieldText,
				Group: "connection", Order: 1, Default: "unshub"},
			{Name: "keepAliveSeconds", DisplayName: "Keep Alive (s)", Type: api.FieldNumber,
				Group: "connection", Order: 2, Default: 30},
			{Name: "cleanSession", DisplayName: "Clean Session", Type: api.FieldBoolean,
				Group: "connection", Order: 3, Default: true},
			{Name: "username", DisplayName: "Username", Type: api.FieldText,
				Group: "auth", Order: 0},
			{Name: "password", DisplayName: "Password", Type: api.FieldPassword,
				Group: "auth", Order: 1, IsSecret: true},
		},
		Groups: []api.SchemaGroup{
			{Name: "connection", DisplayName: "Connection", Order: 0},
			{Name: "auth", DisplayName: "Authentication", Order: 1, Collapsible: true, Collapsed: true},
		},
	}
}

func (Descriptor) InputSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "topicFilter", DisplayName: "Topic Filter", Type: api.FieldText, Required: true,
				Group: "subscription", Order: 0, Description: "MQTT filter, e.g. plant/+/temperature or plant/#"},
			{Name: "qos", DisplayName: "QoS", Type: api.FieldSelect, Options: []string{"0", "1", "2"},
				Group: "subscription", Order: 1, Default: "0"},
			{Name: "payloadFormat", DisplayName: "Payload Format", Type: api.FieldSelect,
				Options: []string{"json", "sparkplugb"}, Group: "subscription", Order: 2, Default: "json"},
		},
		Groups: []api.SchemaGroup{{Name: "subscription", DisplayName: "Subscription", Order: 0}},
	}
}

func (Descriptor) OutputSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "topicPrefix", DisplayName: "Topic Prefix", Type: api.FieldText, Group: "publication", Order: 0},
			{Name: "qos", DisplayName: "QoS", Type: api.FieldSelect, Options: []string{"0", "1", "2"},
				Group: "publication", Order: 1, Default: "0"},
			{Name: "retain", DisplayName: "Retain", Type: api.FieldBoolean, Group: "publication", Order: 2, Default: false},
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
