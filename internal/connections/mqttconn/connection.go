package mqttconn

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"unshub/internal/api"
	"unshub/internal/connections"
	"unshub/pkg/logging"
)

// Connection is the MQTT connection instance: the shared lifecycle harness
// plus a paho-backed transport.
type Connection struct {
	*connections.Harness
	transport *mqttTransport
}

// New constructs an uninitialised MQTT connection.
func New(id string) *Connection {
	t := &mqttTransport{}
	c := &Connection{transport: t}
	desc := Descriptor{}
	c.Harness = connections.NewHarness(id, TypeID, t, connections.Schemas{
		Connection: desc.ConnectionSchema(),
		Input:      desc.InputSchema(),
		Output:     desc.OutputSchema(),
	})
	t.harness = c.Harness
	return c
}

// mqttTransport adapts the paho client to the harness Transport contract.
// The harness owns reconnection; paho's auto-reconnect stays off so the
// lifecycle state machine remains the single authority.
type mqttTransport struct {
	harness *connections.Harness

	mu     sync.Mutex
	client mqtt.Client
}

func (t *mqttTransport) Dial(ctx context.Context) error {
	cfg := t.harness.Config().Config

	brokerURL, _ := cfg["brokerUrl"].(string)
	if brokerURL == "" {
		return fmt.Errorf("brokerUrl not configured")
	}
	clientID, _ := cfg["clientId"].(string)
	if clientID == "" {
		clientID = "unshub"
	}
	clientID = clientID + "-" + t.harness.ID()

	opts := mqtt.NewClientOptions().
		AddBroker(brokerURL).
		SetClientID(clientID).
		SetAutoReconnect(false).
		SetCleanSession(boolOpt(cfg, "cleanSession", true)).
		SetKeepAlive(time.Duration(intOpt(cfg, "keepAliveSeconds", 30)) * time.Second).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			t.harness.TransportLost(err)
		})
	if username, _ := cfg["username"].(string); username != "" {
		opts.SetUsername(username)
	}
	if password, _ := cfg["password"].(string); password != "" {
		opts.SetPassword(password)
	}

	client := mqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(dialTimeout(ctx)) {
		client.Disconnect(0)
		return fmt.Errorf("connect to %s timed out", brokerURL)
	}
	if err := token.Error(); err != nil {
		return err
	}

	t.mu.Lock()
	t.client = client
	t.mu.Unlock()
	return nil
}

func (t *mqttTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.client = nil
	t.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250)
	}
	return nil
}

func (t *mqttTransport) Subscribe(ctx context.Context, input api.InputConfiguration) error {
	client, err := t.connected()
	if err != nil {
		return err
	}

	inputID := input.ID
	token := client.Subscribe(input.TopicFilter, byte(input.QoS), func(_ mqtt.Client, msg mqtt.Message) {
		t.harness.HandleMessage(msg.Topic(), "", msg.Payload())
	})
	if !token.WaitTimeout(dialTimeout(ctx)) {
		return fmt.Errorf("subscribe %s timed out", input.TopicFilter)
	}
	if err := token.Error(); err != nil {
		return err
	}
	logging.Debug("MQTT", "%s: subscribed input %s to %s", t.harness.ID(), inputID, input.TopicFilter)
	return nil
}

func (t *mqttTransport) Unsubscribe(ctx context.Context, input api.InputConfiguration) error {
	client, err := t.connected()
	if err != nil {
		return err
	}
	token := client.Unsubscribe(input.TopicFilter)
	if !token.WaitTimeout(dialTimeout(ctx)) {
		return fmt.Errorf("unsubscribe %s timed out", input.TopicFilter)
	}
	return token.Error()
}

func (t *mqttTransport) Publish(ctx context.Context, topic string, payload []byte, qos int) error {
	client, err := t.connected()
	if err != nil {
		return err
	}
	token := client.Publish(topic, byte(qos), false, payload)
	if !token.WaitTimeout(dialTimeout(ctx)) {
		return fmt.Errorf("publish to %s timed out", topic)
	}
	return token.Error()
}

func (t *mqttTransport) connected() (mqtt.Client, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client == nil {
		return nil, fmt.Errorf("not connected")
	}
	return t.client, nil
}

// dialTimeout derives a paho wait bound from the context deadline.
func dialTimeout(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		if d := time.Until(deadline); d > 0 {
			return d
		}
		return time.Millisecond
	}
	return 10 * time.Second
}

func boolOpt(cfg map[string]interface{}, key string, def bool) bool {
	if v, ok := cfg[key].(bool); ok {
		return v
	}
	return def
}

func intOpt(cfg map[string]interface{}, key string, def int) int {
	switch v := cfg[key].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return def
}
