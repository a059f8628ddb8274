// Package dataset holds the demo seed data and loads record files.
package dataset

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/efebarandurmaz/vecrag/internal/rag"
	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// Dimension is the embedding length of the seed records.
const Dimension = 16

// Seed returns fresh copies of the demo records.
func Seed() []vector.Record {
	return []vector.Record{
		{
			ID:        "ai-demo-1",
			Embedding: []float32{0.8, 0.9, 0.7, 0.6, 0.8, 0.9, 0.7, 0.8, 0.6, 0.9, 0.8, 0.7, 0.9, 0.8, 0.6, 0.7},
			Payload: map[string]any{
				"tenantId":    1001,
				"type":        "AIRecommendation",
				"description": "Luxury oceanfront suite with premium amenities",
				"metadata": map[string]any{
					"roomType":   "Oceanfront Suite",
					"amenities":  []any{"spa", "ocean-view", "balcony"},
					"priceRange": "luxury",
				},
				"recommendations": map[string]any{
					"targetCustomers": []any{"luxury-seekers", "romantic-getaway"},
					"aiScore":         0.92,
				},
			},
		},
		{
			ID:        "ai-demo-2",
			Embedding: []float32{0.9, 0.8, 0.9, 0.7, 0.8, 0.9, 0.8, 0.7, 0.9, 0.8, 0.9, 0.8, 0.7, 0.9, 0.8, 0.9},
			Payload: map[string]any{
				"tenantId":    1001,
				"type":        "CustomerFeedback",
				"description": "Excellent service and beautiful views!",
				"sentiment": map[string]any{
					"score":    0.95,
					"category": "positive",
				},
			},
		},
		{
			ID:        "ai-demo-3",
			Embedding: []float32{0.3, 0.4, 0.8, 0.9, 0.2, 0.3, 0.7, 0.8, 0.4, 0.2, 0.9, 0.8, 0.3, 0.4, 0.7, 0.6},
			Payload: map[string]any{
				"tenantId":    1001,
				"type":        "AIRecommendation",
				"description": "Executive business room with meeting space",
				"metadata": map[string]any{
					"roomType":   "Executive King",
					"amenities":  []any{"desk", "lounge-access", "fast-wifi"},
					"priceRange": "business",
				},
				"recommendations": map[string]any{
					"targetCustomers": []any{"business-travelers"},
					"aiScore":         0.81,
				},
			},
		},
		{
			ID:        "ai-demo-4",
			Embedding: []float32{0.6, 0.5, 0.6, 0.7, 0.6, 0.6, 0.5, 0.7, 0.8, 0.6, 0.6, 0.7, 0.5, 0.8, 0.6, 0.6},
			Payload: map[string]any{
				"tenantId":    1001,
				"type":        "PricingModel",
				"description": "Weekend dynamic pricing for garden view rooms",
				"recommendations": map[string]any{
					"aiScore": 0.74,
				},
			},
		},
		{
			ID:        "ai-demo-5",
			Embedding: []float32{0.5, 0.6, 0.6, 0.7, 0.5, 0.6, 0.6, 0.7, 0.8, 0.5, 0.7, 0.7, 0.5, 0.8, 0.5, 0.7},
			Payload: map[string]any{
				"tenantId":    1001,
				"type":        "CustomerFeedback",
				"description": "Room was clean but the pool was crowded",
				"sentiment": map[string]any{
					"score":    0.55,
					"category": "neutral",
				},
			},
		},
		{
			ID:        "ai-demo-6",
			Embedding: []float32{0.7, 0.9, 0.6, 0.6, 0.9, 0.8, 0.7, 0.9, 0.5, 0.9, 0.7, 0.7, 0.9, 0.7, 0.6, 0.8},
			Payload: map[string]any{
				"tenantId":    1002,
				"type":        "AIRecommendation",
				"description": "Penthouse spa package with private butler",
				"recommendations": map[string]any{
					"targetCustomers": []any{"luxury-seekers"},
					"aiScore":         0.97,
				},
			},
		},
		{
			ID:        "ai-demo-7",
			Embedding: []float32{0.4, 0.3, 0.7, 0.8, 0.3, 0.4, 0.8, 0.7, 0.5, 0.3, 0.8, 0.9, 0.4, 0.5, 0.6, 0.7},
			Payload: map[string]any{
				"tenantId":    1002,
				"type":        "PricingModel",
				"description": "Corporate rate plan for midweek stays",
				"recommendations": map[string]any{
					"aiScore": 0.68,
				},
			},
		},
	}
}

// Documents returns text documents for the bulk ingest step. They have no
// embeddings; the configured provider supplies them.
func Documents() []rag.Document {
	return []rag.Document{
		{ID: "bulk-1", Text: "Luxury spa weekend with ocean view", Payload: map[string]any{"tenantId": 1001, "type": "AIRecommendation"}},
		{ID: "bulk-2", Text: "Business center access and late checkout", Payload: map[string]any{"tenantId": 1001, "type": "AIRecommendation"}},
		{ID: "bulk-3", Text: "Family room near the kids club", Payload: map[string]any{"tenantId": 1002, "type": "AIRecommendation"}},
		{ID: "ai-demo-1", Text: "Duplicate of an existing record", Payload: map[string]any{"tenantId": 1001}},
		{ID: "bulk-4", Text: "", Payload: map[string]any{"tenantId": 1001}},
	}
}

// LoadFile reads a JSON array of records. Numbers in payloads are kept as
// json.Number.
func LoadFile(path string) ([]vector.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Parse(data)
}

// Parse decodes a JSON array of records.
func Parse(data []byte) ([]vector.Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var records []vector.Record
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	for n, r := range records {
		if r.ID == "" {
			return nil, fmt.Errorf("record %d: %w", n, errors.New("missing id"))
		}
		if len(r.Embedding) == 0 {
			return nil, fmt.Errorf("record %q: missing embedding", r.ID)
		}
	}
	return records, nil
}
