package mcpserver

import (
	"context"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/memoryservice"
)

// sessionSampler implements memoryservice.Sampler by issuing a sampling
// request back over a live MCP ServerSession, per §6's "merge_knowledge
// asks the connected client to distill" requirement. One is built fresh
// per merge_knowledge call, scoped to the session that invoked it — the
// same per-call construction glyphoxa uses for its client-side
// mcphost.Host, here mirrored on the server side of the same exchange.
type sessionSampler struct {
	session *mcpsdk.ServerSession
}

func newSessionSampler(session *mcpsdk.ServerSession) *sessionSampler {
	return &sessionSampler{session: session}
}

// Distill asks the connected client's model to produce one consolidated
// knowledge statement from the given QA pairs, all belonging to topic.
func (s *sessionSampler) Distill(ctx context.Context, topic string, pairs []memoryservice.QAPair) (string, error) {
	if s.session == nil {
		return "", memerr.Wrap(memerr.KindSampling, "distill", fmt.Errorf("no active MCP session to sample against"))
	}

	prompt := buildDistillPrompt(topic, pairs)

	res, err := s.session.CreateMessage(ctx, &mcpsdk.CreateMessageParams{
		Messages: []*mcpsdk.SamplingMessage{
			{
				Role: "user",
				Content: &mcpsdk.TextContent{
					Text: prompt,
				},
			},
		},
		SystemPrompt: "You consolidate related question/answer pairs into a single, dense knowledge statement. Reply with plain text only: the statement itself, no preamble, no markdown, no restating the questions.",
		MaxTokens:    512,
	})
	if err != nil {
		return "", memerr.Wrap(memerr.KindSampling, "distill", err)
	}
	if res == nil || res.Content == nil {
		return "", memerr.Wrap(memerr.KindSampling, "distill", fmt.Errorf("empty sampling reply"))
	}

	text, ok := res.Content.(*mcpsdk.TextContent)
	if !ok {
		return "", memerr.Wrap(memerr.KindSampling, "distill", fmt.Errorf("sampling reply was not text content"))
	}

	cleaned := strings.TrimSpace(text.Text)
	if cleaned == "" {
		return "", memerr.Wrap(memerr.KindSampling, "distill", fmt.Errorf("sampling reply was empty"))
	}
	return cleaned, nil
}

// buildDistillPrompt enumerates the component's pairs in a stable,
// question-then-answer layout, in the style of the teacher's
// QwenExtractor prompt construction (plain concatenation, no JSON
// wrapping, since the expected reply here is prose, not structured
// data).
func buildDistillPrompt(topic string, pairs []memoryservice.QAPair) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Topic: %s\n\n", topic)
	b.WriteString("The following question/answer pairs were all recorded under this topic and judged similar enough to merge. Distill them into one consolidated statement of the underlying knowledge:\n\n")
	for i, p := range pairs {
		fmt.Fprintf(&b, "%d. Q: %s\n   A: %s\n", i+1, p.Question, p.Answer)
	}
	return b.String()
}
