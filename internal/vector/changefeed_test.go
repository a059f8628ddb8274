package vector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, sub *Subscription) []Change {
	t.Helper()
	var out []Change
	timeout := time.After(2 * time.Second)
	for {
		select {
		case c, ok := <-sub.Changes():
			if !ok {
				return out
			}
			out = append(out, c)
		case <-timeout:
			t.Fatal("change feed did not close")
		}
	}
}

func TestSubscribe_KindsAndOrder(t *testing.T) {
	idx := newTestIndex(t, 2)
	sub := idx.Subscribe(context.Background(), nil)

	require.NoError(t, idx.Insert(Record{ID: "a", Embedding: []float32{1, 0}}))
	require.NoError(t, idx.Insert(Record{ID: "b", Embedding: []float32{0, 1}}))
	require.NoError(t, idx.Upsert(Record{ID: "a", Embedding: []float32{1, 1}}))
	require.NoError(t, idx.Remove("b"))
	sub.Close()

	// Writes after Close are not delivered.
	require.NoError(t, idx.Insert(Record{ID: "c", Embedding: []float32{1, 0}}))

	changes := drain(t, sub)
	require.Len(t, changes, 4)
	assert.Equal(t, []ChangeKind{ChangeInsert, ChangeInsert, ChangeUpdate, ChangeRemove},
		[]ChangeKind{changes[0].Kind, changes[1].Kind, changes[2].Kind, changes[3].Kind})
	for i, c := range changes {
		assert.Equal(t, uint64(i+1), c.Seq)
	}
	assert.Equal(t, []float32{1, 1}, changes[2].Record.Embedding)
	assert.Equal(t, "b", changes[3].Record.ID)
}

func TestSubscribe_Filter(t *testing.T) {
	idx := newTestIndex(t, 2)
	sub := idx.Subscribe(context.Background(), FieldIn("type", "AIRecommendation", "CustomerFeedback"))

	require.NoError(t, idx.Insert(Record{ID: "rec", Embedding: []float32{1, 0}, Payload: map[string]any{"type": "AIRecommendation"}}))
	require.NoError(t, idx.Insert(Record{ID: "price", Embedding: []float32{0, 1}, Payload: map[string]any{"type": "PricingModel"}}))
	require.NoError(t, idx.Insert(Record{ID: "fb", Embedding: []float32{1, 1}, Payload: map[string]any{"type": "CustomerFeedback"}}))
	sub.Close()

	changes := drain(t, sub)
	require.Len(t, changes, 2)
	assert.Equal(t, "rec", changes[0].Record.ID)
	assert.Equal(t, "fb", changes[1].Record.ID)
	// Sequence numbers count every mutation, not only delivered ones.
	assert.Equal(t, uint64(3), changes[1].Seq)
}

func TestSubscribe_ChangeIsCopy(t *testing.T) {
	idx := newTestIndex(t, 2)
	sub := idx.Subscribe(context.Background(), nil)
	require.NoError(t, idx.Insert(Record{ID: "a", Embedding: []float32{1, 0}, Payload: map[string]any{"k": "v"}}))
	sub.Close()

	changes := drain(t, sub)
	require.Len(t, changes, 1)
	changes[0].Record.Embedding[0] = 9
	changes[0].Record.Payload["k"] = "changed"

	rec, err := idx.Get("a")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, rec.Embedding)
	assert.Equal(t, "v", rec.Payload["k"])
}

func TestSubscribe_ContextCancel(t *testing.T) {
	idx := newTestIndex(t, 2)
	ctx, cancel := context.WithCancel(context.Background())
	sub := idx.Subscribe(ctx, nil)

	cancel()
	drain(t, sub)

	// The index keeps accepting writes with no subscribers left.
	require.NoError(t, idx.Insert(Record{ID: "a", Embedding: []float32{1, 0}}))
	idx.feed.mu.Lock()
	assert.Empty(t, idx.feed.subs)
	idx.feed.mu.Unlock()
}
