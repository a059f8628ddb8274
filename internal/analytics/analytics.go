// Package analytics aggregates index payloads per record type.
package analytics

import (
	"encoding/json"
	"math"
	"slices"
	"strings"

	"github.com/efebarandurmaz/vecrag/internal/vector"
)

// Default payload fields.
const (
	DefaultTenantField = "tenantId"
	DefaultTypeField   = "type"
	DefaultScorePath   = "recommendations.aiScore"
)

// DefaultTypes are the record types reported by the demo.
var DefaultTypes = []string{"AIRecommendation", "CustomerFeedback", "PricingModel"}

// Query selects and groups records.
type Query struct {
	TenantID    int64
	Types       []string // Empty means every type
	TenantField string
	TypeField   string
	ScorePath   string // Dotted payload path to the score
}

// Group is the aggregate for one record type. AvgScore and MaxScore are nil
// when no record of the group carries a numeric score.
type Group struct {
	Type     string   `json:"type"`
	Count    int      `json:"itemCount"`
	AvgScore *float64 `json:"avgAIScore,omitempty"`
	MaxScore *float64 `json:"maxAIScore,omitempty"`
	Scored   int      `json:"scoredCount"`
}

func (q Query) withDefaults() Query {
	if q.TenantField == "" {
		q.TenantField = DefaultTenantField
	}
	if q.TypeField == "" {
		q.TypeField = DefaultTypeField
	}
	if q.ScorePath == "" {
		q.ScorePath = DefaultScorePath
	}
	return q
}

type acc struct {
	count  int
	scored int
	sum    float64
	max    float64
}

// Aggregate groups records of the tenant by type and computes count,
// average and maximum score. Groups are sorted by type.
func Aggregate(records []vector.Record, q Query) []Group {
	q = q.withDefaults()

	groups := make(map[string]*acc)
	for _, r := range records {
		tenant, ok := Number(r.Payload[q.TenantField])
		if !ok || tenant != float64(q.TenantID) {
			continue
		}
		typ, ok := r.Payload[q.TypeField].(string)
		if !ok || (len(q.Types) > 0 && !slices.Contains(q.Types, typ)) {
			continue
		}

		a := groups[typ]
		if a == nil {
			a = &acc{max: math.Inf(-1)}
			groups[typ] = a
		}
		a.count++
		if score, ok := Number(Lookup(r.Payload, q.ScorePath)); ok {
			a.scored++
			a.sum += score
			a.max = max(a.max, score)
		}
	}

	out := make([]Group, 0, len(groups))
	for typ, a := range groups {
		g := Group{Type: typ, Count: a.count, Scored: a.scored}
		if a.scored > 0 {
			avg, mx := a.sum/float64(a.scored), a.max
			g.AvgScore, g.MaxScore = &avg, &mx
		}
		out = append(out, g)
	}
	slices.SortFunc(out, func(a, b Group) int { return strings.Compare(a.Type, b.Type) })
	return out
}

// Lookup walks a dotted path through nested payload maps. It returns nil
// when any segment is missing.
func Lookup(payload map[string]any, path string) any {
	var cur any = payload
	for _, seg := range strings.Split(path, ".") {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur, ok = m[seg]
		if !ok {
			return nil
		}
	}
	return cur
}

// Number converts numeric payload values to float64. Strings are not
// numbers, even when they parse as one.
func Number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
