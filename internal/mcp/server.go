// Package mcp exposes waybill generation as Model Context Protocol tools,
// so assistants can drive the same pipeline the Telegram dialog uses.
package mcp

import (
	"context"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/taxidocs/waybill-server/internal/config"
	"github.com/taxidocs/waybill-server/internal/templates"
	"github.com/taxidocs/waybill-server/internal/waybill"
)

// Server represents the MCP server instance
type Server struct {
	config    *config.Config
	service   *waybill.Service
	templates templates.Resolver
	mcpServer *server.MCPServer
}

// NewServer creates a new MCP server instance
func NewServer(cfg *config.Config, service *waybill.Service, resolver templates.Resolver) (*Server, error) {
	if service == nil {
		return nil, fmt.Errorf("service cannot be nil")
	}
	if resolver == nil {
		return nil, fmt.Errorf("resolver cannot be nil")
	}

	mcpServer := server.NewMCPServer(
		cfg.ServerName,
		cfg.Version,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		config:    cfg,
		service:   service,
		templates: resolver,
		mcpServer: mcpServer,
	}

	s.registerTools()

	return s, nil
}

// registerTools registers all available MCP tools
func (s *Server) registerTools() {
	generateTool := mcp.NewTool(
		"waybill_generate",
		mcp.WithDescription("Generate a filled waybill for a driver and return it as a JPEG image"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Driver identifier whose template will be filled"),
		),
		mcp.WithString("start_time",
			mcp.Required(),
			mcp.Description("Shift start time in HH:MM format, e.g. 08:00"),
		),
		mcp.WithString("odometer",
			mcp.Required(),
			mcp.Description("Odometer reading, digits only"),
		),
	)
	s.mcpServer.AddTool(generateTool, s.handleGenerate)

	deriveTool := mcp.NewTool(
		"waybill_derive_times",
		mcp.WithDescription("Derive the full shift schedule (checks, departure, shift end) from a start time without producing a document"),
		mcp.WithString("start_time",
			mcp.Required(),
			mcp.Description("Shift start time in HH:MM format, e.g. 08:00"),
		),
	)
	s.mcpServer.AddTool(deriveTool, s.handleDeriveTimes)

	inspectTool := mcp.NewTool(
		"waybill_inspect_template",
		mcp.WithDescription("List the fillable fields and page count of a driver's waybill template"),
		mcp.WithString("user_id",
			mcp.Required(),
			mcp.Description("Driver identifier whose template will be inspected"),
		),
	)
	s.mcpServer.AddTool(inspectTool, s.handleInspectTemplate)
}

// Handler functions
func (s *Server) handleGenerate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	startTime, err := request.RequireString("start_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	odometer, err := request.RequireString("odometer")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := s.service.Generate(ctx, waybill.GenerateRequest{
		UserID:    userID,
		StartTime: startTime,
		Odometer:  odometer,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	caption := fmt.Sprintf("Waybill %s: filled %d of %d fields", result.Serial, result.Filled, result.Total)
	if len(result.Unmatched) > 0 {
		caption += fmt.Sprintf(" (unmatched: %s)", strings.Join(result.Unmatched, ", "))
	}
	encoded := base64.StdEncoding.EncodeToString(result.Image)
	return mcp.NewToolResultImage(caption, encoded, "image/jpeg"), nil
}

func (s *Server) handleDeriveTimes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	startTime, err := request.RequireString("start_time")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	values, err := s.service.DeriveTimes(startTime)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	responseText := fmt.Sprintf("Derived schedule for shift starting at %s:\n", startTime)
	for _, key := range keys {
		responseText += fmt.Sprintf("%s: %s\n", key, values[key])
	}
	return mcp.NewToolResultText(responseText), nil
}

func (s *Server) handleInspectTemplate(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := request.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	path, cleanup, err := s.templates.Resolve(ctx, userID)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	defer cleanup()

	insp, err := templates.Inspect(path)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	responseText := s.formatInspection(userID, insp)
	return mcp.NewToolResultText(responseText), nil
}

// Formatting methods
func (s *Server) formatInspection(userID string, insp *templates.Inspection) string {
	text := fmt.Sprintf("Template for driver %s\n", userID)
	text += fmt.Sprintf("Pages: %d\n", insp.PageCount)
	text += fmt.Sprintf("Size: %d bytes\n", insp.SizeBytes)
	text += fmt.Sprintf("Fillable fields: %d\n", len(insp.Fields))

	if len(insp.Fields) > 0 {
		text += "\nFields:\n"
		for i, field := range insp.Fields {
			text += fmt.Sprintf("%d. %s", i+1, field.Name)
			if field.Page > 0 {
				text += fmt.Sprintf(" (page %d)", field.Page)
			}
			text += "\n"
		}
	}

	return text
}

// Run starts the MCP server on standard I/O.
func (s *Server) Run(_ context.Context) error {
	if s.config.IsDebug() {
		slog.Debug("starting waybill MCP server in stdio mode")
	}

	if err := server.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("failed to serve stdio: %w", err)
	}
	return nil
}
