package mcpserver

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// knowledgeURITemplate matches §6's knowledge://{topic}/{query} resource
// template: a direct read surface for knowledge entries, independent of
// the recall HTTP endpoint and the query_qa tool.
const knowledgeURITemplate = "knowledge://{topic}/{query}"

func (s *Server) registerResourceTemplate() {
	s.sdk.AddResourceTemplate(&mcpsdk.ResourceTemplate{
		URITemplate: knowledgeURITemplate,
		Name:        "knowledge",
		Description: "Knowledge entries distilled for a topic, filtered by a free-text query.",
		MIMEType:    "text/plain",
	}, s.readKnowledge)
}

func (s *Server) readKnowledge(ctx context.Context, req *mcpsdk.ReadResourceRequest) (*mcpsdk.ReadResourceResult, error) {
	topic, query, err := parseKnowledgeURI(req.Params.URI)
	if err != nil {
		return nil, err
	}

	results, err := s.svc.KnowledgeLookup(ctx, topic, query, 0)
	if err != nil {
		return nil, fmt.Errorf("mcp server: read knowledge resource: %w", err)
	}

	// A topic with no matching knowledge yields an empty body, not an
	// error — the resource simply has nothing to say yet (§6).
	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.Record.Text
	}

	return &mcpsdk.ReadResourceResult{
		Contents: []*mcpsdk.ResourceContents{
			{
				URI:      req.Params.URI,
				MIMEType: "text/plain",
				Text:     strings.Join(texts, "\n\n"),
			},
		},
	}, nil
}

// parseKnowledgeURI splits a knowledge://{topic}/{query} URI into its
// two path components. Both segments are taken verbatim (no additional
// URL-decoding beyond what the SDK already performed on req.Params.URI).
func parseKnowledgeURI(uri string) (topic, query string, err error) {
	const scheme = "knowledge://"
	if !strings.HasPrefix(uri, scheme) {
		return "", "", fmt.Errorf("mcp server: malformed knowledge resource URI %q", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	parts := strings.SplitN(rest, "/", 2)
	if len(parts) != 2 || parts[0] == "" {
		return "", "", fmt.Errorf("mcp server: malformed knowledge resource URI %q", uri)
	}
	return parts[0], parts[1], nil
}
