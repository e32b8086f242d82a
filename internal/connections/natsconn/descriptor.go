package natsconn

import (
	"unshub/internal/api"
	"unshub/internal/connections"
)

// TypeID identifies the NATS connection type.
const TypeID = "nats"

// Descriptor declares the NATS connection type. Topic filters use the
// hub's "/"-separated form and are translated to NATS subject wildcards.
type Descriptor struct{}

func (Descriptor) TypeID() string      { return TypeID }
func (Descriptor) DisplayName() string { return "NATS" }
func (Descriptor) Description() string {
	return "Subscribes to and publishes on NATS subjects"
}

func (Descriptor) ConnectionSchema() api.ConfigSchema {
	return api.ConfigSchema{
		Fields: []api.SchemaField{
			{Name: "serverUrl", DisplayName: "Server URL", Type: api.FieldURL, Required: true,
				Group: "connection", Order: 0, Description: "nats://host:4222"},
			{Name: "name", DisplayName: "Connection Name", Type: api.FieldText,
				Group: "connection", Order: 1, Default: "unshub"},
			{Name: "credentialsFile", DisplayName: "Credentials File", Type: api.FieldFile,
				Group: "auth", Order: 0},
			{Name: "token", DisplayName: "Token", Type: api.FieldPassword,
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
				Group: "subscription", Order: 0, Description: "plant/+/temp maps to plant.*.temp"},
			{Name: "queueGroup", DisplayName: "Queue Group", Type: api.FieldText,
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
			{Name: "topicPrefix", DisplayName: "Topic Prefix", Type: api.FieldText,
				Group: "publication", Order: 0},
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
