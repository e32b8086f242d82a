package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"unshub/internal/api"
	"unshub/internal/config"
)

var (
	topicsNamespace  string
	topicsSource     string
	topicsSearch     string
	topicsUnverified bool
	topicsEndpoint   string
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List registered UNS topics from a running hub",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := resolveEndpoint(topicsEndpoint)
		if err != nil {
			return err
		}

		qc, err := connectQueryClient(cmd.Context(), endpoint)
		if err != nil {
			return err
		}
		defer qc.close()

		tool := "uns_list_topics"
		toolArgs := map[string]interface{}{}
		switch {
		case topicsUnverified:
			tool = "uns_unverified_topics"
		case topicsNamespace != "":
			tool = "uns_topics_by_namespace"
			toolArgs["prefix"] = topicsNamespace
		case topicsSource != "":
			tool = "uns_topics_by_source"
			toolArgs["sourceType"] = topicsSource
		case topicsSearch != "":
			tool = "uns_search_topics"
			toolArgs["pattern"] = topicsSearch
		}

		raw, err := qc.callText(cmd.Context(), tool, toolArgs)
		if err != nil {
			return err
		}

		var topics []api.TopicConfiguration
		if err := json.Unmarshal([]byte(raw), &topics); err != nil {
			return fmt.Errorf("unexpected response: %w", err)
		}

		renderTopicsTable(topics)
		return nil
	},
}

func renderTopicsTable(topics []api.TopicConfiguration) {
	if len(topics) == 0 {
		fmt.Println("No topics found.")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Topic", "UNS Name", "NS Path", "Source", "Verified", "Modified"})
	for _, topic := range topics {
		t.AppendRow(table.Row{
			topic.Topic,
			topic.UNSName,
			topic.NSPath,
			topic.SourceType,
			topic.IsVerified,
			topic.ModifiedAt.Format("2006-01-02 15:04:05"),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	fmt.Printf("%d topics\n", len(topics))
}

// resolveEndpoint prefers the explicit flag and falls back to the
// configured query server address.
func resolveEndpoint(flag string) (string, error) {
	if flag != "" {
		return flag, nil
	}
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("http://%s:%d/mcp", cfg.MCP.Host, cfg.MCP.Port), nil
}

func init() {
	topicsCmd.Flags().StringVar(&topicsNamespace, "namespace", "", "Filter by NS path prefix")
	topicsCmd.Flags().StringVar(&topicsSource, "source", "", "Filter by source type (mqtt, socketio, nats)")
	topicsCmd.Flags().StringVar(&topicsSearch, "search", "", "Search by substring or wildcard pattern")
	topicsCmd.Flags().BoolVar(&topicsUnverified, "unverified", false, "Show only topics awaiting triage")
	topicsCmd.Flags().StringVar(&topicsEndpoint, "endpoint", "", "Hub MCP endpoint (default from config)")
	rootCmd.AddCommand(topicsCmd)
}
