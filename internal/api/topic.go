package api

import "time"

// TopicConfiguration is a registered topic binding: the wire topic, its UNS
// name, and its placement in the hierarchy and namespace tree.
//
// Topics are created by discovery or auto-mapping as unverified and are
// promoted to verified by an operator or by namespace rule.
type TopicConfiguration struct {
	ID         string                 `json:"id" yaml:"id"`
	Topic      string                 `json:"topic" yaml:"topic"`
	UNSName    string                 `json:"unsName" yaml:"unsName"`
	Path       HierarchicalPath       `json:"path" yaml:"path"`
	NSPath     string                 `json:"nsPath" yaml:"nsPath"`
	SourceType string                 `json:"sourceType" yaml:"sourceType"`
	IsVerified bool                   `json:"isVerified" yaml:"isVerified"`
	CreatedAt  time.Time              `json:"createdAt" yaml:"createdAt"`
	ModifiedAt time.Time              `json:"modifiedAt" yaml:"modifiedAt"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// Clone returns a deep-enough copy for handing out of the repository:
// metadata is copied, the path segment slice is copied.
func (t TopicConfiguration) Clone() TopicConfiguration {
	out := t
	if t.Metadata != nil {
		out.Metadata = make(map[string]interface{}, len(t.Metadata))
		for k, v := range t.Metadata {
			out.Metadata[k] = v
		}
	}
	if t.Path.Segments != nil {
		out.Path.Segments = make([]PathSegment, len(t.Path.Segments))
		copy(out.Path.Segments, t.Path.Segments)
	}
	return out
}

// SystemStatus is the aggregate status view consumed by query layers.
type SystemStatus struct {
	TotalTopics      int               `json:"totalTopics"`
	ActiveTopics     int               `json:"activeTopics"`
	AssignedTopics   int               `json:"assignedTopics"`
	VerifiedTopics   int               `json:"verifiedTopics"`
	NamespaceCount   int               `json:"namespaceCount"`
	TopicsPerSource  map[string]int    `json:"topicsPerSource"`
	ConnectionStates map[string]string `json:"connectionStates"`
	GeneratedAt      time.Time         `json:"generatedAt"`
}

// AggregationKind selects how history queries fold points into buckets.
type AggregationKind string

const (
	AggregateNone  AggregationKind = ""
	AggregateAvg   AggregationKind = "avg"
	AggregateMin   AggregationKind = "min"
	AggregateMax   AggregationKind = "max"
	AggregateFirst AggregationKind = "first"
	AggregateLast  AggregationKind = "last"
)
