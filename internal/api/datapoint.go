package api

import (
	"encoding/json"
	"time"
)

// Quality qualifies a data point the way industrial historians do.
type Quality string

const (
	QualityGood      Quality = "good"
	QualityBad       Quality = "bad"
	QualityUncertain Quality = "uncertain"
)

// DataPoint is one timestamped leaf value for a topic. Timestamps are UTC
// with millisecond resolution.
type DataPoint struct {
	Topic        string                 `json:"topic"`
	Value        interface{}            `json:"value"`
	Timestamp    time.Time              `json:"timestamp"`
	Quality      Quality                `json:"quality,omitempty"`
	SourceSystem string                 `json:"sourceSystem,omitempty"`
	ConnectionID string                 `json:"connectionId,omitempty"`
	Path         HierarchicalPath       `json:"path,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// ValueEquals compares two data point values the way change detection needs:
// deep equality for scalars, string comparison for anything structured.
func ValueEquals(a, b interface{}) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case int64:
		switch bv := b.(type) {
		case int64:
			return av == bv
		case float64:
			return float64(av) == bv
		}
		return false
	case float64:
		switch bv := b.(type) {
		case float64:
			return av == bv
		case int64:
			return av == float64(bv)
		}
		return false
	default:
		// Structured values: compare serialised form.
		aj, aerr := json.Marshal(a)
		bj, berr := json.Marshal(b)
		if aerr != nil || berr != nil {
			return false
		}
		return string(aj) == string(bj)
	}
}

// CoerceLeafValue applies the default wire typing rules to a decoded JSON
// leaf: string stays string, integer-parsable numbers become int64, other
// numbers float64, booleans stay bool, nil stays nil.
func CoerceLeafValue(v interface{}) interface{} {
	switch val := v.(type) {
	case float64:
		if val == float64(int64(val)) {
			return int64(val)
		}
		return val
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	default:
		return v
	}
}
