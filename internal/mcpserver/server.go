// Package mcpserver wires the memory engine onto the Model Context
// Protocol: the three tools (store_qa, query_qa, merge_knowledge), the
// knowledge://{topic}/{query} resource template, and the sampling
// request merge_knowledge issues back to the connected client.
//
// The pack's only MCP-aware complete repo (glyphoxa) uses the SDK
// strictly client-side (internal/mcp/mcphost.Host wraps
// *mcpsdk.Client / *mcpsdk.ClientSession against external servers); no
// example exercises the SDK's server role. This package generalizes
// glyphoxa's naming and error-wrapping idiom ("mcp host: ...", a
// package-level New constructing the SDK object, functional
// registration helpers) to the server side of the same SDK.
package mcpserver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memorize-mcp/memorize/internal/audit"
	"github.com/memorize-mcp/memorize/internal/memoryservice"
)

const (
	serverName    = "memorize-mcp"
	serverVersion = "0.1.0"
)

// Server wraps the MCP SDK server with the memory engine's tool,
// resource, and sampling wiring.
type Server struct {
	sdk   *mcpsdk.Server
	svc   *memoryservice.Service
	log   *slog.Logger
	audit *audit.Logger
}

// New constructs a Server, registering every tool and resource template
// described in §6 against svc. auditLog may be nil, in which case tool
// invocations are simply not recorded (§10's audit log is a pure
// enrichment, never required for a tool to function).
func New(svc *memoryservice.Service, logger *slog.Logger, auditLog *audit.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	sdk := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    serverName,
		Version: serverVersion,
	}, nil)

	s := &Server{sdk: sdk, svc: svc, log: logger, audit: auditLog}
	s.registerTools()
	s.registerResourceTemplate()
	return s
}

// RunStdio serves the MCP protocol over stdio until ctx is canceled or
// the peer disconnects.
func (s *Server) RunStdio(ctx context.Context) error {
	if err := s.sdk.Run(ctx, &mcpsdk.StdioTransport{}); err != nil {
		return fmt.Errorf("mcp server: run stdio: %w", err)
	}
	return nil
}

// HTTPHandler returns an http.Handler serving the MCP protocol over
// streamable HTTP, for wiring into the process harness's --transport
// http mode.
func (s *Server) HTTPHandler() http.Handler {
	return mcpsdk.NewStreamableHTTPHandler(func(*http.Request) *mcpsdk.Server {
		return s.sdk
	}, nil)
}
