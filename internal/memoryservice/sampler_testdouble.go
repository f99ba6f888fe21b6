package memoryservice

import "context"

// FixedSampler is a Sampler test double that always returns the same
// distilled text, regardless of topic or pairs. It satisfies scenario 4
// of the specification's end-to-end walkthrough (§8) without a live MCP
// peer — the merge tests in this package use it directly rather than
// standing up a real MCP ServerSession.
type FixedSampler struct {
	Reply string
	Err   error

	// Calls records every invocation for assertions.
	Calls []FixedSamplerCall
}

// FixedSamplerCall records one Distill invocation.
type FixedSamplerCall struct {
	Topic string
	Pairs []QAPair
}

// Distill implements Sampler.
func (f *FixedSampler) Distill(_ context.Context, topic string, pairs []QAPair) (string, error) {
	f.Calls = append(f.Calls, FixedSamplerCall{Topic: topic, Pairs: pairs})
	if f.Err != nil {
		return "", f.Err
	}
	return f.Reply, nil
}
