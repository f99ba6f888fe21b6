// Package embedding implements the fixed 384-dim dense encoder described
// in the specification's Embedder component.
//
// No ONNX runtime, sentencepiece/tokenizer binding, or transformer
// inference library appears anywhere in the retrieval pack (searched:
// onnxruntime, sentencepiece, tokenizers, bert, huggingface). The
// teacher's own internal/memory.SimpleEmbedding already implements a
// hash-based local fallback for exactly this situation — deterministic
// word hashing with position-decay weighting, L2-normalized by hand —
// and is the grounding for Encoder below, generalized into a proper
// tokenize/lookup/mean-pool/normalize pipeline that can optionally load
// a vocabulary+weights table from disk so --model-dir has real load
// semantics instead of being inert.
package embedding

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// maxTokens is the model's maximum sequence length; longer inputs are
// truncated, matching the "excess tokens truncated" clause of §4.1.
const maxTokens = 512

// Embedder is the contract every caller (MemoryService, RecallEndpoint,
// the persistence reconciler) programs against.
type Embedder interface {
	// Embed tokenizes text, runs the encoder, mean-pools, and
	// L2-normalizes. Infallible for well-formed input; ctx is honored
	// only as a cancellation point around the (purely local,
	// CPU-bound) inference call.
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
}

// Encoder is a local, dependency-free dense encoder. A single mutex
// serializes inference calls per §4.1's single-writer concurrency rule;
// tokenization itself does not need the lock and is done before it is
// acquired.
type Encoder struct {
	mu      sync.Mutex
	dim     int
	vocab   map[string][]float32 // token -> embedding row, nil when running in pure-hash mode
	loaded  bool
}

// NewEncoder constructs an Encoder. When modelDir is empty, the encoder
// runs in deterministic hash-based mode and initialization never fails.
// When modelDir is non-empty, it must contain a "vocab.tsv" file (one
// "token\tw0,w1,...,w383" row per line); a missing file or any row whose
// width does not equal vectormath.Dim is a *memerr.Error of
// memerr.KindModelLoad.
func NewEncoder(modelDir string) (*Encoder, error) {
	e := &Encoder{dim: vectormath.Dim}
	if modelDir == "" {
		return e, nil
	}

	vocabPath := filepath.Join(modelDir, "vocab.tsv")
	f, err := os.Open(vocabPath)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindModelLoad, "open vocab", err)
	}
	defer f.Close()

	vocab := make(map[string][]float32)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			return nil, memerr.Wrap(memerr.KindModelLoad, "parse vocab",
				fmt.Errorf("line %d: expected token<TAB>weights", lineNo))
		}
		fields := strings.Split(parts[1], ",")
		if len(fields) != vectormath.Dim {
			return nil, memerr.Wrap(memerr.KindModelLoad, "parse vocab",
				fmt.Errorf("line %d: row has %d weights, want %d", lineNo, len(fields), vectormath.Dim))
		}
		row := make([]float32, vectormath.Dim)
		for i, fld := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(fld), 32)
			if err != nil {
				return nil, memerr.Wrap(memerr.KindModelLoad, "parse vocab", fmt.Errorf("line %d: %w", lineNo, err))
			}
			row[i] = float32(v)
		}
		vocab[parts[0]] = row
	}
	if err := scanner.Err(); err != nil {
		return nil, memerr.Wrap(memerr.KindModelLoad, "read vocab", err)
	}
	if len(vocab) == 0 {
		return nil, memerr.Wrap(memerr.KindModelLoad, "parse vocab", fmt.Errorf("%s: empty vocabulary", vocabPath))
	}

	e.vocab = vocab
	e.loaded = true
	return e, nil
}

// Dimensions returns the embedding vector dimensionality.
func (e *Encoder) Dimensions() int { return e.dim }

// Embed tokenizes, looks up or hashes each token into a row vector,
// mean-pools the non-empty rows, and L2-normalizes the result.
func (e *Encoder) Embed(ctx context.Context, text string) ([]float32, error) {
	tokens := tokenize(text)
	if len(tokens) > maxTokens {
		tokens = tokens[:maxTokens]
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	sum := make([]float64, e.dim)
	var mask int
	for i, tok := range tokens {
		row := e.rowFor(tok, i, len(tokens))
		for j, w := range row {
			sum[j] += float64(w)
		}
		mask++
	}

	pooled := make([]float32, e.dim)
	if mask > 0 {
		for j := range pooled {
			pooled[j] = float32(sum[j] / float64(mask))
		}
	}

	out := vectormath.Normalize(pooled)
	if len(out) != vectormath.Dim {
		return nil, fmt.Errorf("embedding: invariant violated, got %d dims want %d", len(out), vectormath.Dim)
	}
	return out, nil
}

// rowFor returns the row vector for a single token, either from a
// loaded vocabulary or via deterministic position-weighted hashing
// distributed across dimensions — the teacher's SimpleEmbedding
// algorithm, unchanged in spirit.
func (e *Encoder) rowFor(tok string, pos, total int) []float32 {
	if e.loaded {
		if row, ok := e.vocab[tok]; ok {
			return row
		}
	}

	// Each token adds its weight to hashSpread dimensions picked by a
	// linear congruential walk seeded with the token's hash, so distinct
	// tokens land on (mostly) distinct dimensions.
	const hashSpread = 8
	row := make([]float32, e.dim)
	h := hashToken(tok)
	position := float32(pos) / float32(total)
	weight := 1.0 / (1.0 + position)
	for j := 0; j < hashSpread; j++ {
		h = h*1664525 + 1013904223
		row[h%uint32(e.dim)] += weight
	}
	return row
}

// tokenize lower-cases and splits on whitespace. A real sub-word
// tokenizer is out of scope (§1 non-goal: embedding-model training); the
// contract only requires a deterministic, whitespace-stable split.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(strings.TrimSpace(text)))
}

// hashToken computes a simple polynomial string hash, as used by the
// teacher's simpleHash.
func hashToken(s string) uint32 {
	var hash uint32
	for _, c := range s {
		hash = hash*31 + uint32(c)
	}
	return hash
}
