package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"unshub/internal/api"
)

func (s *Server) tools() []mcpserver.ServerTool {
	return []mcpserver.ServerTool{
		{
			Tool: mcp.Tool{
				Name:        "uns_list_topics",
				Description: "List all registered UNS topics",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
			},
			Handler: s.handleListTopics,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_get_topic",
				Description: "Get one topic configuration by wire topic name",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"topic": map[string]interface{}{"type": "string", "description": "Wire topic name"},
					},
					Required: []string{"topic"},
				},
			},
			Handler: s.handleGetTopic,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_topics_by_namespace",
				Description: "List topics whose NS path equals or descends from a prefix",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"prefix": map[string]interface{}{"type": "string", "description": "NS path prefix"},
					},
					Required: []string{"prefix"},
				},
			},
			Handler: s.handleTopicsByNamespace,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_search_topics",
				Description: "Search topics by substring or wildcard pattern",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"pattern": map[string]interface{}{"type": "string"},
					},
					Required: []string{"pattern"},
				},
			},
			Handler: s.handleSearchTopics,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_topics_by_source",
				Description: "List topics for one source type (mqtt, socketio, nats)",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"sourceType": map[string]interface{}{"type": "string"},
					},
					Required: []string{"sourceType"},
				},
			},
			Handler: s.handleTopicsBySource,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_active_topics",
				Description: "List topics that currently have a value in the realtime store",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
			},
			Handler: s.handleActiveTopics,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_unverified_topics",
				Description: "List unverified topics awaiting operator triage",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
			},
			Handler: s.handleUnverified,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_namespace_structure",
				Description: "Return the composed namespace tree, including empty namespaces",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
			},
			Handler: s.handleNamespaceStructure,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_system_status",
				Description: "Aggregate system status: topic totals and per-connection states",
				InputSchema: mcp.ToolInputSchema{Type: "object", Properties: map[string]interface{}{}},
			},
			Handler: s.handleSystemStatus,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_latest_value",
				Description: "Latest data point for a topic",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"topic": map[string]interface{}{"type": "string"},
					},
					Required: []string{"topic"},
				},
			},
			Handler: s.handleLatestValue,
		},
		{
			Tool: mcp.Tool{
				Name:        "uns_history",
				Description: "Historical data points for a topic, optionally downsampled",
				InputSchema: mcp.ToolInputSchema{
					Type: "object",
					Properties: map[string]interface{}{
						"topic":       map[string]interface{}{"type": "string"},
						"from":        map[string]interface{}{"type": "string", "description": "RFC 3339 start"},
						"to":          map[string]interface{}{"type": "string", "description": "RFC 3339 end"},
						"maxPoints":   map[string]interface{}{"type": "number"},
						"aggregation": map[string]interface{}{"type": "string", "enum": []string{"avg", "min", "max", "first", "last"}},
					},
					Required: []string{"topic", "from", "to"},
				},
			},
			Handler: s.handleHistory,
		},
	}
}

func (s *Server) handleListTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	return jsonResult(repo.List())
}

func (s *Server) handleGetTopic(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	topic, ok := stringArg(req, "topic")
	if !ok {
		return mcp.NewToolResultError("topic is required"), nil
	}
	cfg, found := repo.GetByTopic(topic)
	if !found {
		return mcp.NewToolResultError(fmt.Sprintf("topic %s not found", topic)), nil
	}
	return jsonResult(cfg)
}

func (s *Server) handleTopicsByNamespace(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	prefix, ok := stringArg(req, "prefix")
	if !ok {
		return mcp.NewToolResultError("prefix is required"), nil
	}
	return jsonResult(repo.ByNamespace(prefix))
}

func (s *Server) handleSearchTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	pattern, ok := stringArg(req, "pattern")
	if !ok {
		return mcp.NewToolResultError("pattern is required"), nil
	}
	return jsonResult(repo.Search(pattern))
}

func (s *Server) handleTopicsBySource(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	source, ok := stringArg(req, "sourceType")
	if !ok {
		return mcp.NewToolResultError("sourceType is required"), nil
	}
	return jsonResult(repo.BySource(source))
}

func (s *Server) handleActiveTopics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	store := api.GetRealtimeStore()
	if store == nil {
		return mcp.NewToolResultError(api.ErrRealtimeStoreNotRegistered.Error()), nil
	}

	var active []api.TopicConfiguration
	for _, t := range repo.List() {
		if dp, err := store.GetLatest(ctx, t.Topic); err == nil && dp != nil {
			active = append(active, t)
		}
	}
	return jsonResult(active)
}

func (s *Server) handleUnverified(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repo := api.GetTopicRepository()
	if repo == nil {
		return mcp.NewToolResultError(api.ErrTopicRepositoryNotRegistered.Error()), nil
	}
	return jsonResult(repo.UnverifiedOnly())
}

func (s *Server) handleNamespaceStructure(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	hierarchy := api.GetHierarchy()
	if hierarchy == nil {
		return mcp.NewToolResultError(api.ErrHierarchyNotRegistered.Error()), nil
	}
	forest, err := hierarchy.GetNamespaceStructure()
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(forest)
}

func (s *Server) handleSystemStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status := api.GetStatus()
	if status == nil {
		return mcp.NewToolResultError("status handler not registered"), nil
	}
	out, err := status.GetSystemStatus(ctx)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(out)
}

func (s *Server) handleLatestValue(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cache := api.GetCache()
	store := api.GetRealtimeStore()
	topic, ok := stringArg(req, "topic")
	if !ok {
		return mcp.NewToolResultError("topic is required"), nil
	}

	var dp *api.DataPoint
	var err error
	switch {
	case cache != nil:
		dp, err = cache.GetLatest(ctx, topic)
	case store != nil:
		dp, err = store.GetLatest(ctx, topic)
	default:
		return mcp.NewToolResultError(api.ErrRealtimeStoreNotRegistered.Error()), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if dp == nil {
		return mcp.NewToolResultError(fmt.Sprintf("no value for topic %s", topic)), nil
	}
	return jsonResult(dp)
}

func (s *Server) handleHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	history := api.GetHistoricalStore()
	if history == nil {
		return mcp.NewToolResultError(api.ErrHistoryNotRegistered.Error()), nil
	}

	topic, ok := stringArg(req, "topic")
	if !ok {
		return mcp.NewToolResultError("topic is required"), nil
	}
	from, err := timeArg(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := timeArg(req, "to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	points, err := history.GetHistory(ctx, topic, from, to)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	maxPoints := intArg(req, "maxPoints")
	agg, _ := stringArg(req, "aggregation")
	if maxPoints > 0 && len(points) > maxPoints {
		points = Downsample(points, maxPoints, api.AggregationKind(agg))
	}
	return jsonResult(points)
}

func stringArg(req mcp.CallToolRequest, name string) (string, bool) {
	args, ok := req.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", false
	}
	v, ok := args[name].(string)
	return v, ok && v != ""
}

func intArg(req mcp.CallToolRequest, name string) int {
	args, ok := req.Params.Arguments.(map[string]interface{})
	if !ok {
		return 0
	}
	switch v := args[name].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func timeArg(req mcp.CallToolRequest, name string) (time.Time, error) {
	v, ok := stringArg(req, name)
	if !ok {
		return time.Time{}, fmt.Errorf("%s is required", name)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s must be RFC 3339: %w", name, err)
	}
	return t, nil
}

func jsonResult(v interface{}) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
