package mcpserver

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"unshub/pkg/logging"
)

// Config holds the query server's listen settings.
type Config struct {
	Host string `yaml:"host,omitempty"`
	Port int    `yaml:"port,omitempty"`
}

// DefaultConfig returns the stock listen settings.
func DefaultConfig() Config {
	return Config{Host: "localhost", Port: 8090}
}

// Server exposes the hub's read surface as MCP tools over streamable HTTP:
// topic queries, the namespace structure, system status, latest values and
// history. It consumes the registered api handlers and never mutates hub
// state.
type Server struct {
	config Config

	mcpServer  *mcpserver.MCPServer
	httpServer *http.Server

	mu         sync.Mutex
	cancelFunc context.CancelFunc
}

// NewServer creates the query server.
func NewServer(cfg Config) *Server {
	if cfg.Host == "" {
		cfg.Host = DefaultConfig().Host
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultConfig().Port
	}
	return &Server{config: cfg}
}

// Start registers the tools and begins serving.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, s.cancelFunc = context.WithCancel(ctx)

	mcpSrv := mcpserver.NewMCPServer(
		"unshub",
		"1.0.0",
		mcpserver.WithToolCapabilities(true),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	handler := mcpserver.NewStreamableHTTPServer(mcpSrv)
	s.httpServer = &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Error("MCP", err, "query server error")
		}
	}()

	logging.Info("MCP", "query server listening on %s", addr)
	return nil
}

// Stop shuts the HTTP listener down.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancelFunc != nil {
		s.cancelFunc()
	}
	if s.httpServer == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Endpoint returns the server's HTTP base URL.
func (s *Server) Endpoint() string {
	return fmt.Sprintf("http://%s:%d/mcp", s.config.Host, s.config.Port)
}
