package connections

import (
	"encoding/json"
	"sort"
	"strconv"
	"strings"
	"time"

	"unshub/internal/api"
)

// DecodePayload applies the default wire decoding policy: parse the payload
// as JSON, descend through objects and arrays, and emit one data point per
// leaf scalar. The data point topic is the "/"-joined path from basePath
// through the JSON keys and array indices.
//
// An object with exactly the two keys "value" and "timestamp"
// (case-insensitive) is a leaf, not descended — unless the input disabled
// that heuristic.
func DecodePayload(payload []byte, basePath string, receivedAt time.Time, disableLeafHeuristic bool) ([]api.DataPoint, error) {
	var root interface{}
	decoder := json.NewDecoder(strings.NewReader(string(payload)))
	decoder.UseNumber()
	if err := decoder.Decode(&root); err != nil {
		return nil, &api.DecodeError{Topic: basePath, Err: err}
	}

	var points []api.DataPoint
	walkJSON(root, basePath, receivedAt, disableLeafHeuristic, &points)
	return points, nil
}

func walkJSON(node interface{}, topic string, receivedAt time.Time, disableLeafHeuristic bool, out *[]api.DataPoint) {
	switch v := node.(type) {
	case map[string]interface{}:
		if !disableLeafHeuristic {
			if value, ts, ok := valueTimestampLeaf(v); ok {
				*out = append(*out, leafPoint(topic, value, ts, receivedAt))
				return
			}
		}
		// Deterministic emission order regardless of map iteration.
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walkJSON(v[k], joinTopic(topic, k), receivedAt, disableLeafHeuristic, out)
		}

	case []interface{}:
		for i, item := range v {
			walkJSON(item, joinTopic(topic, strconv.Itoa(i)), receivedAt, disableLeafHeuristic, out)
		}

	default:
		*out = append(*out, leafPoint(topic, api.CoerceLeafValue(v), nil, receivedAt))
	}
}

// valueTimestampLeaf detects the two-key {value, timestamp} leaf shape.
func valueTimestampLeaf(obj map[string]interface{}) (value interface{}, ts *time.Time, ok bool) {
	if len(obj) != 2 {
		return nil, nil, false
	}
	var haveValue, haveTS bool
	var rawTS interface{}
	for k, v := range obj {
		switch strings.ToLower(k) {
		case "value":
			haveValue = true
			value = v
		case "timestamp":
			haveTS = true
			rawTS = v
		}
	}
	if !haveValue || !haveTS {
		return nil, nil, false
	}
	if parsed, ok := parseTimestamp(rawTS); ok {
		ts = &parsed
	}
	return api.CoerceLeafValue(value), ts, true
}

// parseTimestamp accepts RFC 3339 strings and unix epoch numbers (seconds
// or milliseconds).
func parseTimestamp(raw interface{}) (time.Time, bool) {
	switch v := raw.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UTC(), true
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return epochToTime(n), true
		}
		if f, err := v.Float64(); err == nil {
			return epochToTime(int64(f)), true
		}
	case float64:
		return epochToTime(int64(v)), true
	}
	return time.Time{}, false
}

// epochToTime guesses seconds vs milliseconds by magnitude.
func epochToTime(n int64) time.Time {
	if n > 1e12 {
		return time.UnixMilli(n).UTC()
	}
	return time.Unix(n, 0).UTC()
}

func leafPoint(topic string, value interface{}, ts *time.Time, receivedAt time.Time) api.DataPoint {
	at := receivedAt
	if ts != nil {
		at = *ts
	}
	return api.DataPoint{
		Topic:     topic,
		Value:     value,
		Timestamp: at.UTC(),
		Quality:   api.QualityGood,
	}
}

func joinTopic(base, segment string) string {
	if base == "" {
		return segment
	}
	return base + "/" + segment
}
