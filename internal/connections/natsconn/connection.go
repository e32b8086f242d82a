package natsconn

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"

	"unshub/internal/api"
	"unshub/internal/connections"
	"unshub/pkg/logging"
)

// Connection is the NATS connection instance.
type Connection struct {
	*connections.Harness
	transport *natsTransport
}

// New constructs an uninitialised NATS connection.
func New(id string) *Connection {
	t := &natsTransport{subs: make(map[string]*nats.Subscription)}
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

// natsTransport adapts nats.go to the harness Transport contract. NATS's
// own reconnect machinery stays off; the harness drives reconnection so the
// lifecycle state stays authoritative.
type natsTransport struct {
	harness *connections.Harness

	mu   sync.Mutex
	nc   *nats.Conn
	subs map[string]*nats.Subscription // input id -> subscription
}

func (t *natsTransport) Dial(ctx context.Context) error {
	cfg := t.harness.Config().Config

	serverURL, _ := cfg["serverUrl"].(string)
	if serverURL == "" {
		return fmt.Errorf("serverUrl not configured")
	}

	opts := []nats.Option{
		nats.NoReconnect(),
		nats.ClosedHandler(func(nc *nats.Conn) {
			if err := nc.LastError(); err != nil {
				t.harness.TransportLost(err)
			}
		}),
	}
	if name, _ := cfg["name"].(string); name != "" {
		opts = append(opts, nats.Name(name+"-"+t.harness.ID()))
	}
	if creds, _ := cfg["credentialsFile"].(string); creds != "" {
		opts = append(opts, nats.UserCredentials(creds))
	}
	if token, _ := cfg["token"].(string); token != "" {
		opts = append(opts, nats.Token(token))
	}

	nc, err := nats.Connect(serverURL, opts...)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.nc = nc
	t.subs = make(map[string]*nats.Subscription)
	t.mu.Unlock()
	return nil
}

func (t *natsTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	nc := t.nc
	t.nc = nil
	t.subs = make(map[string]*nats.Subscription)
	t.mu.Unlock()

	if nc == nil {
		return nil
	}
	if err := nc.Drain(); err != nil {
		nc.Close()
		return err
	}
	return nil
}

func (t *natsTransport) Subscribe(ctx context.Context, input api.InputConfiguration) error {
	t.mu.Lock()
	nc := t.nc
	t.mu.Unlock()
	if nc == nil {
		return fmt.Errorf("not connected")
	}

	subject := topicToSubject(input.TopicFilter)
	handler := func(msg *nats.Msg) {
		t.harness.HandleMessage(subjectToTopic(msg.Subject), "", msg.Data)
	}

	var sub *nats.Subscription
	var err error
	if queue, _ := input.Metadata["queueGroup"].(string); queue != "" {
		sub, err = nc.QueueSubscribe(subject, queue, handler)
	} else {
		sub, err = nc.Subscribe(subject, handler)
	}
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.subs[input.ID] = sub
	t.mu.Unlock()
	logging.Debug("NATS", "%s: subscribed input %s to %s", t.harness.ID(), input.ID, subject)
	return nil
}

func (t *natsTransport) Unsubscribe(ctx context.Context, input api.InputConfiguration) error {
	t.mu.Lock()
	sub, ok := t.subs[input.ID]
	delete(t.subs, input.ID)
	t.mu.Unlock()

	if !ok {
		return nil
	}
	return sub.Unsubscribe()
}

func (t *natsTransport) Publish(ctx context.Context, topic string, payload []byte, _ int) error {
	t.mu.Lock()
	nc := t.nc
	t.mu.Unlock()
	if nc == nil {
		return fmt.Errorf("not connected")
	}
	return nc.Publish(topicToSubject(topic), payload)
}

// topicToSubject maps the hub's "/"-separated topics and MQTT-style
// wildcards onto NATS subjects: "/" -> ".", "+" -> "*", trailing "#" -> ">".
func topicToSubject(topic string) string {
	segments := strings.Split(strings.Trim(topic, "/"), "/")
	for i, seg := range segments {
		switch seg {
		case "+":
			segments[i] = "*"
		case "#":
			segments[i] = ">"
		}
	}
	return strings.Join(segments, ".")
}

// subjectToTopic is the inverse mapping for inbound subjects.
func subjectToTopic(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
