package socketio

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"unshub/internal/api"
	"unshub/internal/connections"
	"unshub/pkg/logging"
)

// Connection is the Socket.IO connection instance.
type Connection struct {
	*connections.Harness
	transport *wsTransport
}

// New constructs an uninitialised Socket.IO connection.
func New(id string) *Connection {
	t := &wsTransport{}
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

// frame is the event envelope exchanged with the server: inbound frames
// carry an event name, a topic and a payload; outbound frames mirror the
// shape for subscribe/publish requests.
type frame struct {
	Type  string          `json:"type,omitempty"`
	Event string          `json:"event"`
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// wsTransport adapts a gorilla WebSocket to the harness Transport contract.
// Gorilla allows one concurrent writer, so every write goes through writeMu;
// the read loop is the sole reader and reports failures to the harness.
type wsTransport struct {
	harness *connections.Harness

	mu      sync.Mutex
	writeMu sync.Mutex
	conn    *websocket.Conn
	done    chan struct{}
}

func (t *wsTransport) Dial(ctx context.Context) error {
	cfg := t.harness.Config().Config

	serverURL, _ := cfg["serverUrl"].(string)
	if serverURL == "" {
		return fmt.Errorf("serverUrl not configured")
	}

	header := http.Header{}
	if token, _ := cfg["authToken"].(string); token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, serverURL, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", serverURL, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", serverURL, err)
	}

	done := make(chan struct{})
	t.mu.Lock()
	t.conn = conn
	t.done = done
	t.mu.Unlock()

	go t.readLoop(conn, done)
	go t.pingLoop(conn, done, time.Duration(intOpt(cfg, "pingIntervalSeconds", 25))*time.Second)
	return nil
}

func (t *wsTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	conn := t.conn
	done := t.done
	t.conn = nil
	t.done = nil
	t.mu.Unlock()

	if conn == nil {
		return nil
	}
	close(done)

	t.writeMu.Lock()
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	t.writeMu.Unlock()
	return conn.Close()
}

// Subscribe announces interest in an event stream to the server.
func (t *wsTransport) Subscribe(ctx context.Context, input api.InputConfiguration) error {
	return t.writeFrame(frame{Type: "subscribe", Event: input.EventName, Topic: input.TopicFilter})
}

// Unsubscribe withdraws interest.
func (t *wsTransport) Unsubscribe(ctx context.Context, input api.InputConfiguration) error {
	return t.writeFrame(frame{Type: "unsubscribe", Event: input.EventName, Topic: input.TopicFilter})
}

// Publish emits an event frame carrying the serialised payload.
func (t *wsTransport) Publish(ctx context.Context, topic string, payload []byte, _ int) error {
	return t.writeFrame(frame{Type: "publish", Event: "publish", Topic: topic, Data: payload})
}

func (t *wsTransport) writeFrame(f frame) error {
	t.mu.Lock()
	conn := t.conn
	t.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}

	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, data)
}

// readLoop is the sole reader of the socket. Each inbound frame becomes one
// HandleMessage call with the frame's topic (falling back to the event
// name) and raw data.
func (t *wsTransport) readLoop(conn *websocket.Conn, done chan struct{}) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-done:
				return // deliberate close
			default:
				t.harness.TransportLost(err)
				return
			}
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			// Not an event frame; hand the raw message to intake under the
			// connection's own id so filters still apply.
			t.harness.HandleMessage(t.harness.ID(), "", data)
			continue
		}

		topic := f.Topic
		if topic == "" {
			topic = f.Event
		}
		t.harness.HandleMessage(topic, f.Event, f.Data)
	}
}

// pingLoop keeps the connection alive; write failures surface through the
// read loop's error path.
func (t *wsTransport) pingLoop(conn *websocket.Conn, done chan struct{}, interval time.Duration) {
	if interval <= 0 {
		interval = 25 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			t.writeMu.Lock()
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second))
			t.writeMu.Unlock()
			if err != nil {
				logging.Debug("SocketIO", "%s: ping failed: %v", t.harness.ID(), err)
				return
			}
		}
	}
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
