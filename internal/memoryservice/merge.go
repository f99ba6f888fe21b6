package memoryservice

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/memorize-mcp/memorize/internal/config"
	"github.com/memorize-mcp/memorize/internal/memerr"
	"github.com/memorize-mcp/memorize/internal/store"
	"github.com/memorize-mcp/memorize/internal/vectormath"
)

// MergeKnowledge implements merge_knowledge (§4.4): for each target
// topic, it builds a similarity graph over the topic's unmerged QA
// records, extracts connected components of size >= 2, and distills
// each through sampler sequentially.
//
// threshold is a pointer so that an explicit 0 (exact-match-only
// merging, per §6's `threshold?: number`) can be distinguished from an
// omitted value, which falls back to config.MergeThreshold.
func (svc *Service) MergeKnowledge(ctx context.Context, sampler Sampler, topic string, threshold *float64) (MergeResult, error) {
	resolvedThreshold := config.MergeThreshold
	if threshold != nil {
		resolvedThreshold = *threshold
	}
	if math.IsNaN(resolvedThreshold) || resolvedThreshold < 0 || resolvedThreshold > 1 {
		return MergeResult{}, memerr.Wrap(memerr.KindInvalidInput, "merge_knowledge", fmt.Errorf("threshold %v out of range [0,1]", resolvedThreshold))
	}

	topics, err := svc.resolveTargetTopics(ctx, topic)
	if err != nil {
		return MergeResult{}, err
	}

	result := MergeResult{Merged: []MergedEntry{}}
	for _, t := range topics {
		records, err := svc.unmergedRecordsInTopic(ctx, t)
		if err != nil {
			return MergeResult{}, err
		}

		components := connectedComponents(records, resolvedThreshold)
		for _, component := range components {
			if len(component) < 2 {
				continue // boundary behavior: a size-1 component is a no-op
			}

			sort.Slice(component, func(i, j int) bool { return component[i].ID < component[j].ID })

			pairs := make([]QAPair, len(component))
			ids := make([]string, len(component))
			questions := make([]string, len(component))
			for i, rec := range component {
				pairs[i] = QAPair{Question: rec.Question, Answer: rec.Answer}
				ids[i] = rec.ID
				questions[i] = rec.Question
			}

			text, err := sampler.Distill(ctx, t, pairs)
			if err != nil || text == "" {
				svc.log.Warn("merge_knowledge: skipping component, sampling failed", "topic", t, "err", err)
				result.Skipped++
				continue
			}

			kVec, err := svc.enc.Embed(ctx, text)
			if err != nil {
				svc.log.Warn("merge_knowledge: skipping component, embed failed", "topic", t, "err", err)
				result.Skipped++
				continue
			}

			if _, err := svc.store.InsertKnowledge(ctx, store.Knowledge{
				Text:            text,
				Topic:           t,
				SourceQuestions: questions,
				Vector:          kVec,
			}); err != nil {
				svc.log.Warn("merge_knowledge: skipping component, insert failed", "topic", t, "err", err)
				result.Skipped++
				continue
			}

			if err := svc.store.MarkQAMerged(ctx, ids); err != nil {
				return MergeResult{}, err
			}

			result.Merged = append(result.Merged, MergedEntry{
				Text:            text,
				Topic:           t,
				SourceQuestions: questions,
			})
		}
	}

	return result, nil
}

// resolveTargetTopics returns [topic] if non-empty (erroring if it does
// not exist), or every known topic otherwise.
func (svc *Service) resolveTargetTopics(ctx context.Context, topic string) ([]string, error) {
	if topic == "" {
		all, err := svc.store.AllTopics(ctx)
		if err != nil {
			return nil, err
		}
		names := make([]string, len(all))
		for i, t := range all {
			names[i] = t.Name
		}
		return names, nil
	}

	all, err := svc.store.AllTopics(ctx)
	if err != nil {
		return nil, err
	}
	for _, t := range all {
		if t.Name == topic {
			return []string{topic}, nil
		}
	}
	return nil, memerr.Wrap(memerr.KindInvalidInput, "merge_knowledge", fmt.Errorf("topic %q does not exist", topic))
}

// unmergedRecordsInTopic returns every unmerged QaRecord filed under
// topic, using the topic's own embedding as a reference vector with the
// maximum possible cosine distance (2.0) as the similarity threshold —
// this stays within Store's declared SimilarQAWithinTopic operation
// while guaranteeing every unmerged record in the topic is returned,
// since no unit vector can exceed a cosine distance of 2 from another.
func (svc *Service) unmergedRecordsInTopic(ctx context.Context, topic string) ([]store.QaRecord, error) {
	topicVec, err := svc.enc.Embed(ctx, topic)
	if err != nil {
		return nil, memerr.Wrap(memerr.KindStorage, "merge_knowledge", err)
	}
	results, err := svc.store.SimilarQAWithinTopic(ctx, topic, topicVec, 2.0)
	if err != nil {
		return nil, err
	}
	records := make([]store.QaRecord, len(results))
	for i, r := range results {
		records[i] = r.Record
	}
	return records, nil
}

// connectedComponents groups records into connected components of a
// similarity graph where an edge exists between any pair whose cosine
// distance is <= threshold. Using full connected components (not
// greedy pairwise merging) ensures three mutually similar QAs are
// distilled into one knowledge entry, not two (§9).
func connectedComponents(records []store.QaRecord, threshold float64) [][]store.QaRecord {
	n := len(records)
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}

	var find func(int) int
	find = func(x int) int {
		for parent[x] != x {
			parent[x] = parent[parent[x]]
			x = parent[x]
		}
		return x
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[ra] = rb
		}
	}

	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if vectormath.CosineDistance(records[i].Vector, records[j].Vector) <= threshold {
				union(i, j)
			}
		}
	}

	groups := make(map[int][]store.QaRecord)
	for i, rec := range records {
		root := find(i)
		groups[root] = append(groups[root], rec)
	}

	out := make([][]store.QaRecord, 0, len(groups))
	for _, g := range groups {
		out = append(out, g)
	}
	return out
}
