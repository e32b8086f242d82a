package connections

import (
	"context"
	"sync"

	"unshub/internal/api"
)

// fakeTransport records transport activity for the harness and manager
// tests.
type fakeTransport struct {
	mu         sync.Mutex
	dials      int
	closes     int
	subscribed map[string]api.InputConfiguration
	published  []fakePublish

	dialErr    error
	publishErr error
}

type fakePublish struct {
	topic   string
	payload string
	qos     int
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{subscribed: make(map[string]api.InputConfiguration)}
}

func (f *fakeTransport) Dial(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.dialErr != nil {
		return f.dialErr
	}
	f.dials++
	return nil
}

func (f *fakeTransport) Close(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) Subscribe(ctx context.Context, input api.InputConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subscribed[input.ID] = input
	return nil
}

func (f *fakeTransport) Unsubscribe(ctx context.Context, input api.InputConfiguration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.subscribed, input.ID)
	return nil
}

func (f *fakeTransport) Publish(ctx context.Context, topic string, payload []byte, qos int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, fakePublish{topic: topic, payload: string(payload), qos: qos})
	return nil
}

func (f *fakeTransport) dialCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dials
}

func (f *fakeTransport) publishCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.published)
}

func (f *fakeTransport) subscriptionIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.subscribed))
	for id := range f.subscribed {
		out = append(out, id)
	}
	return out
}

// fakeConnection composes the Harness with a fakeTransport, the way real
// connection types do.
type fakeConnection struct {
	*Harness
	transport *fakeTransport
}

func newFakeConnection(id string) *fakeConnection {
	transport := newFakeTransport()
	return &fakeConnection{
		Harness:   NewHarness(id, "fake", transport, Schemas{}),
		transport: transport,
	}
}

// fakeDescriptor registers the fake type with the registry/manager.
type fakeDescriptor struct {
	created map[string]*fakeConnection
}

func newFakeDescriptor() *fakeDescriptor {
	return &fakeDescriptor{created: make(map[string]*fakeConnection)}
}

func (d *fakeDescriptor) TypeID() string      { return "fake" }
func (d *fakeDescriptor) DisplayName() string { return "Fake" }
func (d *fakeDescriptor) Description() string { return "In-memory test transport" }

func (d *fakeDescriptor) ConnectionSchema() api.ConfigSchema { return api.ConfigSchema{} }
func (d *fakeDescriptor) InputSchema() api.ConfigSchema      { return api.ConfigSchema{} }
func (d *fakeDescriptor) OutputSchema() api.ConfigSchema     { return api.ConfigSchema{} }

func (d *fakeDescriptor) DefaultConfig() map[string]interface{} { return map[string]interface{}{} }

func (d *fakeDescriptor) NewConnection(id string) Connection {
	conn := newFakeConnection(id)
	d.created[id] = conn
	return conn
}
