package mcpserver

import (
	"context"
	"fmt"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memorize-mcp/memorize/internal/audit"
	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/memoryservice"
)

// ── store_qa ─────────────────────────────────────────────────────────────────

type storeQAInput struct {
	Question string `json:"question"`
	Answer   string `json:"answer"`
	Topic    string `json:"topic"`
}

type mergeCandidateOut struct {
	Question string  `json:"question"`
	Distance float64 `json:"distance"`
}

type storeQAOutput struct {
	Stored          bool                `json:"stored"`
	Topic           string              `json:"topic"`
	MergeCandidates []mergeCandidateOut `json:"merge_candidates"`
}

// ── query_qa ─────────────────────────────────────────────────────────────────

type queryQAInput struct {
	Question string `json:"question"`
	Context  string `json:"context"`
}

type qaResultOut struct {
	Question string  `json:"question"`
	Answer   string  `json:"answer"`
	Score    float64 `json:"score"`
}

type queryQAOutput struct {
	Topic   string        `json:"topic,omitempty"`
	Results []qaResultOut `json:"results"`
}

// ── merge_knowledge ──────────────────────────────────────────────────────────

type mergeKnowledgeInput struct {
	Topic string `json:"topic,omitempty"`
	// Threshold is a pointer so an explicitly supplied 0 (exact-match-only
	// merging) is distinguishable from an omitted field, which falls back
	// to config.MergeThreshold (§6).
	Threshold *float64 `json:"threshold,omitempty"`
}

type mergedEntryOut struct {
	Text            string   `json:"text"`
	Topic           string   `json:"topic"`
	SourceQuestions []string `json:"source_questions"`
}

type mergeKnowledgeOutput struct {
	Merged  []mergedEntryOut `json:"merged"`
	Skipped int              `json:"skipped"`
}

func (s *Server) registerTools() {
	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "store_qa",
		Description: "Store a question/answer pair under a topic, resolving the topic by semantic proximity and surfacing any non-binding merge candidates.",
	}, s.handleStoreQA)

	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "query_qa",
		Description: "Retrieve the most relevant stored QA pairs for a question, scoped to the topic nearest the given context.",
	}, s.handleQueryQA)

	mcpsdk.AddTool(s.sdk, &mcpsdk.Tool{
		Name:        "merge_knowledge",
		Description: "Distill similar QA pairs within a topic (or all topics) into knowledge entries via a sampling request to the connected model.",
	}, s.handleMergeKnowledge)
}

func (s *Server) handleStoreQA(ctx context.Context, req *mcpsdk.CallToolRequest, in storeQAInput) (*mcpsdk.CallToolResult, storeQAOutput, error) {
	start := time.Now()
	res, err := s.svc.StoreQA(ctx, in.Question, in.Answer, in.Topic)
	s.recordAudit(ctx, "store_qa", start, err)
	if err != nil {
		return toolError(err), storeQAOutput{}, nil
	}

	candidates := make([]mergeCandidateOut, len(res.MergeCandidates))
	for i, c := range res.MergeCandidates {
		candidates[i] = mergeCandidateOut{Question: c.Question, Distance: c.Distance}
	}

	return nil, storeQAOutput{Stored: res.Stored, Topic: res.Topic, MergeCandidates: candidates}, nil
}

func (s *Server) handleQueryQA(ctx context.Context, req *mcpsdk.CallToolRequest, in queryQAInput) (*mcpsdk.CallToolResult, queryQAOutput, error) {
	start := time.Now()
	res, err := s.svc.QueryQA(ctx, in.Question, in.Context)
	s.recordAudit(ctx, "query_qa", start, err)
	if err != nil {
		return toolError(err), queryQAOutput{}, nil
	}

	out := queryQAOutput{Results: make([]qaResultOut, len(res.Results))}
	if res.Topic != nil {
		out.Topic = *res.Topic
	}
	for i, r := range res.Results {
		out.Results[i] = qaResultOut{Question: r.Question, Answer: r.Answer, Score: r.Score}
	}
	return nil, out, nil
}

func (s *Server) handleMergeKnowledge(ctx context.Context, req *mcpsdk.CallToolRequest, in mergeKnowledgeInput) (*mcpsdk.CallToolResult, mergeKnowledgeOutput, error) {
	sampler := newSessionSampler(req.Session)

	start := time.Now()
	res, err := s.svc.MergeKnowledge(ctx, sampler, in.Topic, in.Threshold)
	s.recordAudit(ctx, "merge_knowledge", start, err)
	if err != nil {
		return toolError(err), mergeKnowledgeOutput{}, nil
	}

	merged := make([]mergedEntryOut, len(res.Merged))
	for i, m := range res.Merged {
		merged[i] = mergedEntryOut{Text: m.Text, Topic: m.Topic, SourceQuestions: m.SourceQuestions}
	}
	return nil, mergeKnowledgeOutput{Merged: merged, Skipped: res.Skipped}, nil
}

// toolError renders a memerr.Error (or any error) as a CallToolResult
// with IsError set, rather than failing the RPC transport itself —
// matching §7's policy that StorageError/InvalidInput are surfaced to
// the caller as a tool error message, never a transport-level failure.
func toolError(err error) *mcpsdk.CallToolResult {
	msg := err.Error()
	if _, ok := asMemErr(err); ok {
		msg = fmt.Sprintf("memory error: %s", msg)
	}
	return &mcpsdk.CallToolResult{
		IsError: true,
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: msg}},
	}
}

// recordAudit writes one operation-log entry if an audit logger is
// configured. Logging failures are warned, never surfaced to the
// caller — the audit log is a pure enrichment (§10) and must never gate
// a tool's success or failure.
func (s *Server) recordAudit(ctx context.Context, op string, start time.Time, err error) {
	if s.audit == nil {
		return
	}
	entry := audit.Entry{
		Timestamp: start,
		Operation: op,
		Success:   err == nil,
		Duration:  time.Since(start),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := s.audit.Log(ctx, entry); logErr != nil {
		s.log.Warn("mcpserver: audit log write failed", "op", op, "err", logErr)
	}
}

func asMemErr(err error) (*memerr.Error, bool) {
	type unwrapper interface{ Unwrap() error }
	for err != nil {
		if me, ok := err.(*memerr.Error); ok {
			return me, true
		}
		u, ok := err.(unwrapper)
		if !ok {
			return nil, false
		}
		err = u.Unwrap()
	}
	return nil, false
}

var _ memoryservice.Sampler = (*sessionSampler)(nil)
