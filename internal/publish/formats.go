package publish

import (
	"encoding/json"
	"encoding/xml"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"unshub/internal/api"
)

// envelope is the serialised shape shared by the structured formats.
type envelope struct {
	Topic     string      `json:"topic" msgpack:"topic"`
	Value     interface{} `json:"value" msgpack:"value"`
	Timestamp string      `json:"timestamp,omitempty" msgpack:"timestamp,omitempty"`
	Quality   string      `json:"quality,omitempty" msgpack:"quality,omitempty"`
}

// xmlEnvelope mirrors envelope for the XML rendering.
type xmlEnvelope struct {
	XMLName   xml.Name `xml:"dataPoint"`
	Topic     string   `xml:"topic"`
	Value     string   `xml:"value"`
	Timestamp string   `xml:"timestamp,omitempty"`
	Quality   string   `xml:"quality,omitempty"`
}

// sparkplugStub wraps the envelope until a proper Sparkplug B protobuf
// codec is plugged in. The encoding marker lets downstream consumers
// recognise the placeholder.
type sparkplugStub struct {
	Encoding string   `json:"encoding"`
	Payload  envelope `json:"payload"`
}

// Serialize renders a data point per the output's format and envelope
// options.
func Serialize(out api.OutputConfiguration, dp api.DataPoint) ([]byte, error) {
	switch out.DataFormat {
	case api.FormatRaw, "":
		return []byte(fmt.Sprintf("%v", dp.Value)), nil

	case api.FormatJSON:
		return json.Marshal(buildEnvelope(out, dp))

	case api.FormatXML:
		env := buildEnvelope(out, dp)
		return xml.Marshal(xmlEnvelope{
			Topic:     env.Topic,
			Value:     fmt.Sprintf("%v", env.Value),
			Timestamp: env.Timestamp,
			Quality:   env.Quality,
		})

	case api.FormatMessagePack:
		return msgpack.Marshal(buildEnvelope(out, dp))

	case api.FormatSparkplugB:
		// Not fully specified; emit the stub envelope until a protobuf
		// definition is supplied.
		return json.Marshal(sparkplugStub{Encoding: "sparkplugb-stub", Payload: buildEnvelope(out, dp)})

	default:
		return nil, api.NewValidationError("output "+out.ID, fmt.Sprintf("unknown data format %q", out.DataFormat))
	}
}

func buildEnvelope(out api.OutputConfiguration, dp api.DataPoint) envelope {
	env := envelope{Topic: dp.Topic, Value: dp.Value}
	if out.IncludeTimestamp {
		env.Timestamp = dp.Timestamp.UTC().Format("2006-01-02T15:04:05.000Z07:00")
	}
	if out.IncludeQuality && dp.Quality != "" {
		env.Quality = string(dp.Quality)
	}
	return env
}
