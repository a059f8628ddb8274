package rag

import (
	"maps"

	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// AnswerNote accompanies every Answer; no generation happens here.
const AnswerNote = "In production, this context would be sent to an LLM for answer generation"

// ContextItem is one entry of the context handed to a generation step.
type ContextItem struct {
	ID       string         `json:"id"`
	Payload  map[string]any `json:"payload,omitempty"`
	Distance float64        `json:"distance"`
}

// Answer is the result of Ask.
type Answer struct {
	Question string        `json:"user_question"`
	Context  []ContextItem `json:"retrieved_context"`
	Count    int           `json:"context_count"`
	Note     string        `json:"note"`
}

// BuildContext formats the first maxItems results. maxItems <= 0 keeps all
// of them. The input is not modified.
func BuildContext(results []vector.ScoredResult, maxItems int) []ContextItem {
	n := len(results)
	if maxItems > 0 && maxItems < n {
		n = maxItems
	}
	out := make([]ContextItem, n)
	for i, r := range results[:n] {
		out[i] = ContextItem{
			ID:       r.ID,
			Payload:  maps.Clone(r.Payload),
			Distance: r.Distance,
		}
	}
	return out
}
