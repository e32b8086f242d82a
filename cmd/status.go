package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"unshub/internal/api"
)

var statusEndpoint string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show a running hub's system status",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, err := resolveEndpoint(statusEndpoint)
		if err != nil {
			return err
		}

		qc, err := connectQueryClient(cmd.Context(), endpoint)
		if err != nil {
			return err
		}
		defer qc.close()

		raw, err := qc.callText(cmd.Context(), "uns_system_status", nil)
		if err != nil {
			return err
		}

		var status api.SystemStatus
		if err := json.Unmarshal([]byte(raw), &status); err != nil {
			return fmt.Errorf("unexpected response: %w", err)
		}

		t := table.NewWriter()
		t.SetOutputMirror(os.Stdout)
		t.AppendRows([]table.Row{
			{"Topics (total)", status.TotalTopics},
			{"Topics (active)", status.ActiveTopics},
			{"Topics (assigned)", status.AssignedTopics},
			{"Topics (verified)", status.VerifiedTopics},
			{"Namespaces", status.NamespaceCount},
		})
		t.SetStyle(table.StyleLight)
		t.Render()

		if len(status.ConnectionStates) > 0 {
			c := table.NewWriter()
			c.SetOutputMirror(os.Stdout)
			c.AppendHeader(table.Row{"Connection", "State"})
			for id, state := range status.ConnectionStates {
				c.AppendRow(table.Row{id, state})
			}
			c.SetStyle(table.StyleLight)
			c.SortBy([]table.SortBy{{Name: "Connection", Mode: table.Asc}})
			c.Render()
		}
		return nil
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusEndpoint, "endpoint", "", "Hub MCP endpoint (default from config)")
	rootCmd.AddCommand(statusCmd)
}
