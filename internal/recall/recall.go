// Package recall implements the RecallEndpoint component (§4.5): a
// single localhost-only HTTP route that editor hooks poll at the start
// of each turn to fetch relevant knowledge for prompt injection.
package recall

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/memorize-mcp/memorize/internal/audit"
	"github.com/memorize-mcp/memorize/internal/config"
	"github.com/memorize-mcp/memorize/internal/embedding"
	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/store"
	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// Item is one row of the recall response array.
type Item struct {
	Type  string  `json:"type"`
	Text  string  `json:"text"`
	Topic string  `json:"topic"`
	Score float64 `json:"score"`
}

// Handler serves GET /api/recall. It is *silent on absence*: cold-start
// misses and empty stores both yield 200 with an empty array, by
// design (§4.5) — the contract with hook scripts is that they fail
// open.
type Handler struct {
	store store.Store
	enc   embedding.Embedder
	log   *slog.Logger
	audit *audit.Logger
}

// NewHandler constructs a recall Handler. auditLog may be nil, in which
// case recall requests are simply not recorded (§10's audit log is a
// pure enrichment, never required for recall to function).
func NewHandler(s store.Store, enc embedding.Embedder, logger *slog.Logger, auditLog *audit.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{store: s, enc: enc, log: logger, audit: auditLog}
}

// Mux returns an *http.ServeMux with /api/recall registered, wrapped in
// the per-address rate limiter.
func (h *Handler) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	limiter := newAddressLimiter()
	mux.HandleFunc("/api/recall", limiter.wrap(h.serveRecall))
	return mux
}

func (h *Handler) serveRecall(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	contextParam := r.URL.Query().Get("context")
	if contextParam == "" {
		http.Error(w, "missing required query parameter: context", http.StatusBadRequest)
		return // malformed request, never reached a store/embed call: not audited
	}

	limit := config.DefaultSearchLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	cVec, err := h.enc.Embed(ctx, contextParam)
	if err != nil {
		h.log.Error("recall: embed failed", "err", err)
		h.recordAudit(ctx, start, err)
		writeJSONError(w, memerr.Wrap(memerr.KindRecall, "recall", err))
		return
	}

	nearest, err := h.store.NearestTopic(ctx, cVec)
	if err != nil {
		// A storage failure here still degrades to the "fail open"
		// empty-array contract rather than a 500, since the recall
		// surface's whole purpose is to never block the editor hook.
		h.log.Warn("recall: nearest_topic failed, returning empty", "err", err)
		h.recordAudit(ctx, start, err)
		writeJSON(w, []Item{})
		return
	}
	if nearest == nil || nearest.Distance > config.TopicMatchThreshold {
		h.recordAudit(ctx, start, nil)
		writeJSON(w, []Item{})
		return
	}

	results, err := h.store.SearchKnowledge(ctx, nearest.Name, cVec, limit)
	if err != nil {
		h.log.Warn("recall: search_knowledge failed, returning empty", "err", err)
		h.recordAudit(ctx, start, err)
		writeJSON(w, []Item{})
		return
	}

	items := make([]Item, len(results))
	for i, r := range results {
		items[i] = Item{
			Type:  "knowledge",
			Text:  r.Record.Text,
			Topic: r.Record.Topic,
			Score: rawL2Score(cVec, r),
		}
	}
	h.recordAudit(ctx, start, nil)
	writeJSON(w, items)
}

// recordAudit writes one operation-log entry if an audit logger is
// configured. Logging failures are warned, never surfaced to the
// caller — the audit log is a pure enrichment (§10) and must never gate
// a recall request's response.
func (h *Handler) recordAudit(ctx context.Context, start time.Time, err error) {
	if h.audit == nil {
		return
	}
	entry := audit.Entry{
		Timestamp: start,
		Operation: "recall",
		Success:   err == nil,
		Duration:  time.Since(start),
	}
	if err != nil {
		entry.Error = err.Error()
	}
	if logErr := h.audit.Log(ctx, entry); logErr != nil {
		h.log.Warn("recall: audit log write failed", "err", logErr)
	}
}

// rawL2Score reports the raw L2 distance, per §4.5's "score = raw L2
// distance (lower is closer)" clause — distinct from the cosine
// distance used internally for ranking.
func rawL2Score(cVec []float32, r store.KnowledgeResult) float64 {
	return vectormath.L2Distance(cVec, r.Record.Vector)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
