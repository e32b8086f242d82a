package app

import (
	"context"
	"time"

	"unshub/internal/api"
)

// GetSystemStatus assembles the aggregate status view from the topic
// repository, the hierarchy registry and the connection manager. The App
// itself is the registered StatusHandler.
func (a *App) GetSystemStatus(ctx context.Context) (api.SystemStatus, error) {
	if err := ctx.Err(); err != nil {
		return api.SystemStatus{}, err
	}

	status := api.SystemStatus{
		TopicsPerSource:  make(map[string]int),
		ConnectionStates: a.connManager.States(),
		NamespaceCount:   len(a.hierarchyReg.ListNamespaces()),
		GeneratedAt:      time.Now().UTC(),
	}

	for _, t := range a.topicRepo.List() {
		status.TotalTopics++
		status.TopicsPerSource[t.SourceType]++
		if t.IsVerified {
			status.VerifiedTopics++
		}
		if !t.Path.IsEmpty() || t.NSPath != "" {
			status.AssignedTopics++
		}
	}

	// Active topics are those with a current value in the realtime store.
	for _, t := range a.topicRepo.List() {
		if dp, err := a.realtime.GetLatest(ctx, t.Topic); err == nil && dp != nil {
			status.ActiveTopics++
		}
	}
	return status, nil
}
