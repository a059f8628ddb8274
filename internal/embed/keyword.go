package embed

import (
	"context"
	"slices"
	"strings"
)

// KeywordRule maps a keyword to a fixed embedding.
type KeywordRule struct {
	Keyword string
	Vector  []float32
}

// KeywordProvider is a deterministic provider that stands in for a hosted
// embedding model: the first rule whose keyword occurs in the text
// (case-insensitive) selects the vector, otherwise Default is returned.
type KeywordProvider struct {
	Rules   []KeywordRule
	Default []float32
}

// Demo vectors, 16 dimensions.
var (
	LuxuryVector   = []float32{0.8, 0.9, 0.7, 0.6, 0.8, 0.9, 0.7, 0.8, 0.6, 0.9, 0.8, 0.7, 0.9, 0.8, 0.6, 0.7}
	BusinessVector = []float32{0.7, 0.8, 0.9, 0.8, 0.7, 0.6, 0.8, 0.9, 0.7, 0.8, 0.6, 0.9, 0.8, 0.7, 0.9, 0.8}
	GeneralVector  = []float32{0.5, 0.6, 0.7, 0.8, 0.6, 0.7, 0.5, 0.8, 0.9, 0.6, 0.7, 0.8, 0.5, 0.9, 0.6, 0.7}
)

// DemoDimension is the length of the demo vectors.
const DemoDimension = 16

// NewKeywordProvider returns a provider with the demo rules.
func NewKeywordProvider() *KeywordProvider {
	return &KeywordProvider{
		Rules: []KeywordRule{
			{Keyword: "luxury", Vector: LuxuryVector},
			{Keyword: "business", Vector: BusinessVector},
		},
		Default: GeneralVector,
	}
}

func (p *KeywordProvider) Name() string { return "keyword" }

func (p *KeywordProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text = strings.ToLower(strings.TrimSpace(text))
	if text == "" {
		return nil, &ProviderError{Provider: p.Name(), Message: "empty text"}
	}
	for _, r := range p.Rules {
		if strings.Contains(text, strings.ToLower(r.Keyword)) {
			return slices.Clone(r.Vector), nil
		}
	}
	if p.Default == nil {
		return nil, &ProviderError{Provider: p.Name(), Message: "no rule matched and no default vector"}
	}
	return slices.Clone(p.Default), nil
}
