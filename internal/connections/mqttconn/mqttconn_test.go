package mqttconn

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"unshub/internal/api"
)

func TestDescriptorMetadata(t *testing.T) {
	d := Descriptor{}
	assert.Equal(t, "mqtt", d.TypeID())
	assert.NotEmpty(t, d.DisplayName())

	defaults := d.DefaultConfig()
	assert.Equal(t, "unshub", defaults["clientId"])
	assert.Equal(t, true, defaults["cleanSession"])
}

func TestConnectionSchemaValidation(t *testing.T) {
	schema := Descriptor{}.ConnectionSchema()

	res := schema.Validate(schema.ApplyDefaults(nil))
	assert.False(t, res.Valid) // brokerUrl is required and has no default

	res = schema.Validate(schema.ApplyDefaults(map[string]interface{}{
		"brokerUrl": "tcp://broker:1883",
	}))
	assert.True(t, res.Valid)

	masked := schema.MaskSecrets(map[string]interface{}{"password": "hunter2", "username": "ops"})
	assert.Equal(t, "********", masked["password"])
	assert.Equal(t, "ops", masked["username"])
}

func TestInitializeRequiresBrokerURL(t *testing.T) {
	conn := New("m1")
	err := conn.Initialize(context.Background(), api.ConnectionConfiguration{
		ID: "m1", ConnectionType: TypeID,
	})
	assert.True(t, api.IsValidation(err))
	assert.Equal(t, api.ConnError, conn.State())
}

func TestOptionCoercion(t *testing.T) {
	cfg := map[string]interface{}{
		"cleanSession":     false,
		"keepAliveSeconds": float64(45), // YAML/JSON numbers decode as float64
	}
	assert.False(t, boolOpt(cfg, "cleanSession", true))
	assert.Equal(t, 45, intOpt(cfg, "keepAliveSeconds", 30))
	assert.Equal(t, 30, intOpt(cfg, "missing", 30))
}

func TestDialTimeoutFromContext(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	d := dialTimeout(ctx)
	assert.Greater(t, d, 50*time.Second)
	assert.LessOrEqual(t, d, time.Minute)

	assert.Equal(t, 10*time.Second, dialTimeout(context.Background()))
}
