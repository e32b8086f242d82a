package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"
)

// queryClient is the thin MCP client the CLI commands use against a
// running hub's query surface.
type queryClient struct {
	client *client.Client
}

// connectQueryClient dials the hub's streamable-HTTP MCP endpoint, showing
// a spinner while the handshake runs.
func connectQueryClient(ctx context.Context, endpoint string) (*queryClient, error) {
	spin := spinner.New(spinner.CharSets[14], 100*time.Millisecond,
		spinner.WithSuffix(" connecting to "+endpoint))
	spin.Start()
	defer spin.Stop()

	httpClient, err := client.NewStreamableHttpClient(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}
	if err := httpClient.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to reach %s (is the hub running?): %w", endpoint, err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "unshub-cli", Version: version}
	if _, err := httpClient.Initialize(ctx, initReq); err != nil {
		return nil, fmt.Errorf("MCP handshake failed: %w", err)
	}

	return &queryClient{client: httpClient}, nil
}

// callText invokes one tool and returns the first text content.
func (c *queryClient) callText(ctx context.Context, tool string, args map[string]interface{}) (string, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = tool
	req.Params.Arguments = args

	timeoutCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	result, err := c.client.CallTool(timeoutCtx, req)
	if err != nil {
		return "", fmt.Errorf("tool %s failed: %w", tool, err)
	}
	if len(result.Content) == 0 {
		return "", fmt.Errorf("tool %s returned no content", tool)
	}
	text, ok := mcp.AsTextContent(result.Content[0])
	if !ok {
		return "", fmt.Errorf("tool %s returned non-text content", tool)
	}
	if result.IsError {
		return "", fmt.Errorf("%s", text.Text)
	}
	return text.Text, nil
}

// close shuts the transport down.
func (c *queryClient) close() {
	_ = c.client.Close()
}
