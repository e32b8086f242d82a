package connections

import (
	"time"

	"unshub/internal/api"
)

// Payload format names accepted on an input configuration.
const (
	PayloadJSON       = "json"
	PayloadSparkplugB = "sparkplugb"
)

// PayloadCodec turns one wire payload into leaf data points. The default
// codec is the JSON leaf walker; Sparkplug B ships as a stub until a proper
// protobuf definition is supplied.
type PayloadCodec interface {
	Decode(payload []byte, basePath string, receivedAt time.Time) ([]api.DataPoint, error)
}

// CodecFor resolves the codec for an input. Unknown formats fall back to
// JSON, which keeps a typo from silently discarding a stream.
func CodecFor(input api.InputConfiguration) PayloadCodec {
	switch input.PayloadFormat {
	case PayloadSparkplugB:
		return sparkplugCodec{}
	default:
		return jsonCodec{disableLeafHeuristic: input.DisableLeafHeuristic}
	}
}

// jsonCodec applies the default wire decoding policy.
type jsonCodec struct {
	disableLeafHeuristic bool
}

func (c jsonCodec) Decode(payload []byte, basePath string, receivedAt time.Time) ([]api.DataPoint, error) {
	return DecodePayload(payload, basePath, receivedAt, c.disableLeafHeuristic)
}

// sparkplugCodec is the Sparkplug B placeholder: one data point carrying
// the raw payload bytes, quality uncertain, tagged so downstream consumers
// can recognise the undecoded form.
type sparkplugCodec struct{}

func (sparkplugCodec) Decode(payload []byte, basePath string, receivedAt time.Time) ([]api.DataPoint, error) {
	raw := make([]byte, len(payload))
	copy(raw, payload)
	return []api.DataPoint{{
		Topic:     basePath,
		Value:     raw,
		Timestamp: receivedAt.UTC(),
		Quality:   api.QualityUncertain,
		Metadata:  map[string]interface{}{"encoding": "sparkplugb-stub"},
	}}, nil
}
