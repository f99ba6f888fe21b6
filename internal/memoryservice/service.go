package memoryservice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/memorize-mcp/memorize/internal/config"
	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/store"
)

// Sampler is the abstraction merge_knowledge uses to reach back through
// the MCP session for LLM distillation (§4.4 step 4b). Kept as an
// interface — rather than a concrete MCP dependency — so the memory
// engine itself never imports the transport, matching the teacher's
// pattern of injecting an *inference.Client into MemoryService instead
// of embedding transport code in the memory package. The real
// implementation lives in internal/mcpserver and wraps a per-call MCP
// ServerSession; a fixed-reply test double satisfies scenario 4 of the
// specification (§8) without a live MCP peer.
type Sampler interface {
	Distill(ctx context.Context, topic string, pairs []QAPair) (string, error)
}

// Service implements store_qa, query_qa, and merge_knowledge over a
// shared Store and Embedder. Mirrors the teacher's MemoryService:
// construction wires the store(s) and the embedding generator once, and
// every public method is a short orchestration of calls into them.
type Service struct {
	store store.Store
	enc   embedding.Embedder
	log   *slog.Logger
}

// New constructs a Service. logger may be nil, in which case
// slog.Default() is used.
func New(s store.Store, enc embedding.Embedder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: s, enc: enc, log: logger}
}

// StoreQA implements store_qa (§4.4).
func (svc *Service) StoreQA(ctx context.Context, question, answer, topic string) (StoreQAResult, error) {
	question = strings.TrimSpace(question)
	answer = strings.TrimSpace(answer)
	topic = strings.TrimSpace(topic)
	if question == "" || answer == "" || topic == "" {
		return StoreQAResult{}, memerr.Wrap(memerr.KindInvalidInput, "store_qa", fmt.Errorf("question, answer, and topic must be non-empty"))
	}

	tVec, err := svc.enc.Embed(ctx, topic)
	if err != nil {
		return StoreQAResult{}, memerr.Wrap(memerr.KindStorage, "store_qa", err)
	}
	resolved, err := svc.store.UpsertTopic(ctx, topic, tVec)
	if err != nil {
		return StoreQAResult{}, err
	}

	qVec, err := svc.enc.Embed(ctx, question)
	if err != nil {
		return StoreQAResult{}, memerr.Wrap(memerr.KindStorage, "store_qa", err)
	}

	inserted, err := svc.store.InsertQA(ctx, store.QaRecord{
		Question: question,
		Answer:   answer,
		Topic:    resolved,
		Merged:   false,
		Vector:   qVec,
	})
	if err != nil {
		return StoreQAResult{}, err
	}

	similar, err := svc.store.SimilarQAWithinTopic(ctx, resolved, qVec, config.MergeSuggestThreshold)
	if err != nil {
		return StoreQAResult{}, err
	}

	candidates := make([]MergeCandidate, 0, len(similar))
	for _, r := range similar {
		if r.Record.ID == inserted.ID {
			continue
		}
		candidates = append(candidates, MergeCandidate{Question: r.Record.Question, Distance: r.Distance})
	}

	return StoreQAResult{Stored: true, Topic: resolved, MergeCandidates: candidates}, nil
}

// QueryQA implements query_qa (§4.4).
func (svc *Service) QueryQA(ctx context.Context, question, context string) (QueryQAResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return QueryQAResult{}, memerr.Wrap(memerr.KindInvalidInput, "query_qa", fmt.Errorf("question must be non-empty"))
	}

	cVec, err := svc.enc.Embed(ctx, context)
	if err != nil {
		return QueryQAResult{}, memerr.Wrap(memerr.KindStorage, "query_qa", err)
	}
	qVec, err := svc.enc.Embed(ctx, question)
	if err != nil {
		return QueryQAResult{}, memerr.Wrap(memerr.KindStorage, "query_qa", err)
	}

	nearest, err := svc.store.NearestTopic(ctx, cVec)
	if err != nil {
		return QueryQAResult{}, err
	}
	if nearest == nil || nearest.Distance > config.TopicMatchThreshold {
		// Cold start: refuse to guess a topic with no evidence.
		return QueryQAResult{Results: []QAResultItem{}}, nil
	}

	found, err := svc.store.SearchQA(ctx, nearest.Name, qVec, config.DefaultSearchLimit)
	if err != nil {
		return QueryQAResult{}, err
	}

	results := make([]QAResultItem, len(found))
	for i, r := range found {
		results[i] = QAResultItem{Question: r.Record.Question, Answer: r.Record.Answer, Score: r.Distance}
	}

	topic := nearest.Name
	return QueryQAResult{Topic: &topic, Results: results}, nil
}

// KnowledgeLookup implements the knowledge://{topic}/{query} resource
// template (§4.4). A missing topic returns an empty slice, not an
// error — callers treat missing memory as "no hint".
func (svc *Service) KnowledgeLookup(ctx context.Context, topic, query string, limit int) ([]store.KnowledgeResult, error) {
	if limit <= 0 {
		limit = config.DefaultSearchLimit
	}
	vec, err := svc.enc.Embed(ctx, query)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "knowledge_lookup", err)
	}
	return svc.store.SearchKnowledge(ctx, topic, vec, limit)
}
