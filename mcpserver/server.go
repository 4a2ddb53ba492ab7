package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/isdmx/plotbox/config"
	"github.com/isdmx/plotbox/outcome"
	"github.com/isdmx/plotbox/visualize"
)

// ToolName is the name of the single tool the server exposes.
const ToolName = "generate_visualization"

// Generator runs visualization requests.
type Generator interface {
	Generate(ctx context.Context, req visualize.Request) (visualize.Result, error)
}

// MCPServer represents the MCP server
type MCPServer struct {
	config    *config.Config
	logger    *zap.Logger
	generator Generator
	mcpServer *server.MCPServer
}

type toolResult struct {
	Status     string       `json:"status"`
	ArtifactID string       `json:"artifact_id,omitempty"`
	ChartURL   string       `json:"chart_url,omitempty"`
	RunID      string       `json:"run_id,omitempty"`
	Kind       outcome.Kind `json:"kind,omitempty"`
	Detail     string       `json:"detail,omitempty"`
}

// New creates a new MCPServer
func New(cfg *config.Config, logger *zap.Logger, generator Generator) (*MCPServer, error) {
	s := &MCPServer{
		config:    cfg,
		logger:    logger,
		generator: generator,
	}

	languages := make([]string, 0, len(cfg.Languages))
	for name := range cfg.Languages {
		languages = append(languages, name)
	}

	logger.Info("configuration loaded",
		zap.String("server.transport", cfg.Server.Transport),
		zap.Int("server.http_port", cfg.Server.HTTPPort),
		zap.Int("server.mcp_http_port", cfg.Server.MCPHTTPPort),
		zap.String("sandbox.backend", cfg.Sandbox.Backend),
		zap.Int("sandbox.timeout_sec", cfg.Sandbox.TimeoutSec),
		zap.Int("sandbox.memory_mb", cfg.Sandbox.MemoryMB),
		zap.Int("sandbox.max_artifact_size_mb", cfg.Sandbox.MaxArtifactSizeMB),
		zap.Bool("sandbox.network_enabled", cfg.Sandbox.NetworkEnabled),
		zap.Bool("sandbox.run_scoped_output", cfg.Sandbox.RunScopedOutput),
		zap.Strings("languages", languages),
	)

	s.mcpServer = server.NewMCPServer("plotbox", "Sandboxed visualization script executor")
	s.registerGenerateVisualizationTool()

	return s, nil
}

func (s *MCPServer) registerGenerateVisualizationTool() {
	tool := mcp.Tool{
		Name:        ToolName,
		Description: "Run a Python or R plotting script in an isolated container and return the produced chart",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Script that writes chart.png or plot.html to /output",
				},
				"language": map[string]any{
					"type":        "string",
					"description": "Script language",
					"enum":        []string{config.LanguagePython, config.LanguageR},
				},
				"output_type": map[string]any{
					"type":        "string",
					"description": "Artifact kind",
					"enum":        []string{"png", "html"},
				},
				"visualization_type": map[string]any{
					"type":        "string",
					"description": "Render mode passed to the image",
					"enum":        []string{"static", "interactive", "3d"},
				},
			},
			Required: []string{"code", "language"},
		},
	}

	s.mcpServer.AddTool(tool, s.handleGenerateVisualization)
}

func (s *MCPServer) handleGenerateVisualization(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, err := request.RequireString("code")
	if err != nil {
		return nil, fmt.Errorf("code parameter is required: %w", err)
	}
	language, err := request.RequireString("language")
	if err != nil {
		return nil, fmt.Errorf("language parameter is required: %w", err)
	}

	req, err := visualize.NewRequest(code, language,
		request.GetString("output_type", ""),
		request.GetString("visualization_type", ""))
	if err != nil {
		return s.result(toolResult{Status: "error", Kind: outcome.KindOf(err), Detail: outcome.Classify("", err).Detail}, true)
	}

	res, err := s.generator.Generate(ctx, req)
	if err != nil {
		o := res.Outcome
		if o.Kind == "" {
			o = outcome.Classify("", err)
		}
		return s.result(toolResult{Status: "error", RunID: res.RunID, Kind: o.Kind, Detail: o.Detail}, true)
	}

	return s.result(toolResult{
		Status:     "success",
		ArtifactID: res.Outcome.ArtifactID,
		ChartURL:   s.config.Server.OutputRoute + "/" + res.Outcome.ArtifactID,
		RunID:      res.RunID,
	}, false)
}

func (s *MCPServer) result(r toolResult, isError bool) (*mcp.CallToolResult, error) {
	text, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode tool result: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{
				Type: "text",
				Text: string(text),
			},
		},
		IsError: isError,
	}, nil
}

// ServeStdio starts the server on stdio
func (s *MCPServer) ServeStdio() error {
	s.logger.Info("starting MCP server on stdio")
	return server.ServeStdio(s.mcpServer)
}

// ServeHTTP starts the streamable HTTP transport on server.mcp_http_port
func (s *MCPServer) ServeHTTP() error {
	port := s.config.Server.MCPHTTPPort
	s.logger.Info("starting MCP server on HTTP", zap.Int("port", port))

	httpServer := server.NewStreamableHTTPServer(s.mcpServer)
	return httpServer.Start(fmt.Sprintf(":%d", port))
}

// GetMCPServer returns the underlying MCP server for fx
func (s *MCPServer) GetMCPServer() *server.MCPServer {
	return s.mcpServer
}
