package topics

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"unshub/internal/api"
	"unshub/internal/events"
)

func newRepo() (*Repository, *events.Bus) {
	bus := events.NewBus()
	return NewRepository(bus, nil), bus
}

func sampleTopic(topic, source string) api.TopicConfiguration {
	return api.TopicConfiguration{
		Topic:      topic,
		UNSName:    "value",
		NSPath:     "Acme/Plant1/OEE",
		SourceType: source,
	}
}

func TestCreateEmitsTopicAdded(t *testing.T) {
	repo, bus := newRepo()
	var added []string
	bus.Subscribe(events.KindTopicAdded, "t", func(e events.Event) {
		added = append(added, e.(events.TopicAddedEvent).Topic.Topic)
	})

	created, err := repo.Create(context.Background(), sampleTopic("plant/line/temp", "mqtt"))
	require.NoError(t, err)
	assert.NotEmpty(t, created.ID)
	assert.False(t, created.CreatedAt.IsZero())
	assert.Equal(t, []string{"plant/line/temp"}, added)
}

func TestCreateRejectsDuplicatePair(t *testing.T) {
	repo, _ := newRepo()
	_, err := repo.Create(context.Background(), sampleTopic("plant/temp", "mqtt"))
	require.NoError(t, err)

	// Same topic, same source: rejected (case-insensitive).
	_, err = repo.Create(context.Background(), sampleTopic("Plant/Temp", "mqtt"))
	assert.True(t, api.IsValidation(err))

	// Same topic, different source: allowed.
	_, err = repo.Create(context.Background(), sampleTopic("plant/temp", "socketio"))
	assert.NoError(t, err)
}

func TestGetByTopicIsCaseInsensitive(t *testing.T) {
	repo, _ := newRepo()
	_, err := repo.Create(context.Background(), sampleTopic("Plant/Line/Temp", "mqtt"))
	require.NoError(t, err)

	got, ok := repo.GetByTopic("plant/line/temp")
	assert.True(t, ok)
	assert.Equal(t, "Plant/Line/Temp", got.Topic)

	_, ok = repo.GetByTopic("plant/line/other")
	assert.False(t, ok)
}

func TestUpdateEmitsConfigurationUpdated(t *testing.T) {
	repo, bus := newRepo()
	var updated int
	bus.Subscribe(events.KindTopicConfigurationUpdated, "t", func(e events.Event) { updated++ })

	created, err := repo.Create(context.Background(), sampleTopic("plant/temp", "mqtt"))
	require.NoError(t, err)

	created.UNSName = "temperature"
	after, err := repo.Update(context.Background(), created)
	require.NoError(t, err)
	assert.Equal(t, "temperature", after.UNSName)
	assert.Equal(t, 1, updated)
	assert.True(t, after.ModifiedAt.After(after.CreatedAt) || after.ModifiedAt.Equal(after.CreatedAt))
}

func TestDeleteEmitsTopicRemoved(t *testing.T) {
	repo, bus := newRepo()
	var removed []string
	bus.Subscribe(events.KindTopicRemoved, "t", func(e events.Event) {
		removed = append(removed, e.(events.TopicRemovedEvent).Topic)
	})

	_, err := repo.Create(context.Background(), sampleTopic("plant/temp", "mqtt"))
	require.NoError(t, err)
	require.NoError(t, repo.Delete(context.Background(), "plant/temp", "mqtt"))
	assert.Equal(t, []string{"plant/temp"}, removed)

	err = repo.Delete(context.Background(), "plant/temp", "mqtt")
	assert.True(t, api.IsNotFound(err))
}

func TestBulkQueries(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()

	a := sampleTopic("plant/a", "mqtt")
	a.NSPath = "Acme/Plant1/OEE"
	b := sampleTopic("plant/b", "socketio")
	b.NSPath = "Acme/Plant1/Energy"
	b.IsVerified = true
	c := sampleTopic("other/c", "mqtt")
	c.NSPath = "Acme/Plant2"

	for _, tc := range []api.TopicConfiguration{a, b, c} {
		_, err := repo.Create(ctx, tc)
		require.NoError(t, err)
	}

	assert.Len(t, repo.List(), 3)
	assert.Equal(t, 3, repo.Count())

	byNS := repo.ByNamespace("Acme/Plant1")
	require.Len(t, byNS, 2)
	assert.Equal(t, "plant/a", byNS[0].Topic)

	// Prefix match is segment-wise, not character-wise.
	assert.Len(t, repo.ByNamespace("Acme/Plant"), 0)

	bySource := repo.BySource("mqtt")
	assert.Len(t, bySource, 2)

	unverified := repo.UnverifiedOnly()
	assert.Len(t, unverified, 2)

	found := repo.Search("plant")
	assert.Len(t, found, 2)

	found = repo.Search("plant/#")
	assert.Len(t, found, 2)
}

func TestVerifyPromotes(t *testing.T) {
	repo, _ := newRepo()
	ctx := context.Background()
	_, err := repo.Create(ctx, sampleTopic("plant/temp", "mqtt"))
	require.NoError(t, err)

	after, err := repo.Verify(ctx, "plant/temp", "mqtt")
	require.NoError(t, err)
	assert.True(t, after.IsVerified)

	_, err = repo.Verify(ctx, "nope", "mqtt")
	assert.True(t, api.IsNotFound(err))
}

func TestGetByID(t *testing.T) {
	repo, _ := newRepo()
	created, err := repo.Create(context.Background(), sampleTopic("plant/temp", "mqtt"))
	require.NoError(t, err)

	got, ok := repo.GetByID(created.ID)
	assert.True(t, ok)
	assert.Equal(t, created.Topic, got.Topic)

	_, ok = repo.GetByID("missing")
	assert.False(t, ok)
}

func TestClonedResultsDoNotAliasRepositoryState(t *testing.T) {
	repo, _ := newRepo()
	cfg := sampleTopic("plant/temp", "mqtt")
	cfg.Metadata = map[string]interface{}{"unit": "C"}
	created, err := repo.Create(context.Background(), cfg)
	require.NoError(t, err)

	created.Metadata["unit"] = "F"
	again, _ := repo.GetByTopic("plant/temp")
	assert.Equal(t, "C", again.Metadata["unit"])
}
