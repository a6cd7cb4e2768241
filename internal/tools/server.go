// Package tools exposes the devices to AI assistants as Model Context
// Protocol tools over streamable HTTP.
package tools

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/sweeney/gpio-manager/internal/device"
)

// Server serves the device tools.
type Server struct {
	reg  *device.Registry
	log  zerolog.Logger
	mcp  *server.MCPServer
	http *http.Server
}

// New registers the tools for reg. version is reported to clients.
func New(addr, version string, reg *device.Registry, log zerolog.Logger) *Server {
	s := &Server{
		reg: reg,
		log: log,
		mcp: server.NewMCPServer("gpio-manager", version, server.WithToolCapabilities(false)),
	}

	s.mcp.AddTool(mcp.NewTool("list_names",
		mcp.WithDescription("Returns lists of all available input sensor and output actuator names."),
	), s.listNames)

	s.mcp.AddTool(mcp.NewTool("get_description",
		mcp.WithDescription("Returns a human-readable description of a specific pin's purpose."),
		mcp.WithString("name", mcp.Required(), mcp.Description("The unique identifier of the pin.")),
	), s.getDescription)

	s.mcp.AddTool(mcp.NewTool("get_state",
		mcp.WithDescription("Returns the current logical state and activity timestamps (UTC) of a specific pin."),
		mcp.WithString("name", mcp.Required(), mcp.Description("The identifier of the pin.")),
	), s.getState)

	s.mcp.AddTool(mcp.NewTool("set_state",
		mcp.WithDescription("Changes the state of an output actuator."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Identifier of the output.")),
		mcp.WithBoolean("on", mcp.Required(), mcp.Description("True to switch ON, false to switch OFF.")),
	), s.setState)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/mcp", server.NewStreamableHTTPServer(s.mcp))
	s.http = &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}
	return s
}

// Handler returns the HTTP handler serving /mcp.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// MCP returns the underlying tool server.
func (s *Server) MCP() *server.MCPServer {
	return s.mcp
}

// Run serves until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	s.log.Info().Str("addr", s.http.Addr).Msg("tool server listening")

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

// result turns a tool outcome into a result. Failures are reported to the
// caller as error results, not protocol errors.
func (s *Server) result(tool, text string, err error) (*mcp.CallToolResult, error) {
	if err != nil {
		s.log.Debug().Err(err).Str("tool", tool).Msg("tool call failed")
		return mcp.NewToolResultError("Error: " + err.Error()), nil
	}
	return mcp.NewToolResultText(text), nil
}

func (s *Server) listNames(_ context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.result("list_names", ListNames(s.reg), nil)
}

func (s *Server) getDescription(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return s.result("get_description", "", err)
	}
	text, err := Description(s.reg, name)
	return s.result("get_description", text, err)
}

func (s *Server) getState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return s.result("get_state", "", err)
	}
	text, err := State(s.reg, name)
	return s.result("get_state", text, err)
}

func (s *Server) setState(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return s.result("set_state", "", err)
	}
	on, err := req.RequireBool("on")
	if err != nil {
		return s.result("set_state", "", err)
	}
	s.log.Info().Str("output", name).Bool("on", on).Msg("set_state")
	text, err := SetState(s.reg, name, on)
	return s.result("set_state", text, err)
}
