package automap

import (
	"context"
	"strings"

	"unshub/internal/api"
	"unshub/pkg/logging"
)

// Discovery is the fallback for topics the auto-mapper could not place: it
// registers an unverified TopicConfiguration with an empty hierarchical
// path so operators can triage it later.
type Discovery struct {
	topics api.TopicRepositoryHandler
}

// NewDiscovery creates the fallback discovery service.
func NewDiscovery(topics api.TopicRepositoryHandler) *Discovery {
	return &Discovery{topics: topics}
}

// Register creates the unverified placeholder configuration for a topic.
// Registering an already-known (topic, sourceType) pair returns the
// existing configuration unchanged.
func (d *Discovery) Register(ctx context.Context, topic, sourceType string) (api.TopicConfiguration, error) {
	if existing, ok := d.topics.GetByTopicAndSource(topic, sourceType); ok {
		return existing, nil
	}

	segs := strings.Split(strings.Trim(topic, "/"), "/")
	created, err := d.topics.Create(ctx, api.TopicConfiguration{
		Topic:      topic,
		UNSName:    segs[len(segs)-1],
		Path:       api.HierarchicalPath{},
		NSPath:     "",
		SourceType: sourceType,
		IsVerified: false,
		Metadata:   map[string]interface{}{"mappedBy": "discovery"},
	})
	if err != nil {
		return api.TopicConfiguration{}, err
	}
	logging.Debug("Discovery", "registered unverified topic %s (source=%s)",
		logging.TruncateTopic(topic), sourceType)
	return created, nil
}
