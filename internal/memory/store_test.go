package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"vrcagent/internal/action"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, maxRecords int) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"), maxRecords)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestStoreAppendAndCount(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()

	err := store.Append(ctx, Record{
		Scene:   "a plaza with two players",
		Heard:   "hello",
		Say:     "hi!",
		Actions: []action.Action{{Kind: action.KindChat, Text: "hi!"}},
	})
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestStorePrune(t *testing.T) {
	store := newTestStore(t, 5) // floors to 10
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	for i := 0; i < 14; i++ {
		require.NoError(t, store.Append(ctx, Record{
			Scene:     fmt.Sprintf("scene %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 10, n)

	// The survivors are the newest rows.
	recs, err := store.Retrieve(ctx, "scene 13", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "scene 13", recs[0].Scene)
}

func TestStoreRetrieveByOverlap(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	rows := []Record{
		{Scene: "empty hallway, flickering light", CreatedAt: base},
		{Scene: "crowded dance floor with loud music", Say: "nice moves", CreatedAt: base.Add(time.Minute)},
		{Scene: "quiet garden with a fountain", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range rows {
		require.NoError(t, store.Append(ctx, r))
	}

	recs, err := store.Retrieve(ctx, "people dancing to loud music on the dance floor", 2)
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	assert.Equal(t, "crowded dance floor with loud music", recs[0].Scene)
}

func TestStoreRetrieveRecencyBackstop(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)
	require.NoError(t, store.Append(ctx, Record{Scene: "old unrelated room", CreatedAt: base}))
	require.NoError(t, store.Append(ctx, Record{Scene: "new unrelated room", CreatedAt: base.Add(time.Minute)}))

	// Nothing overlaps, so recency alone decides.
	recs, err := store.Retrieve(ctx, "zzz qqq", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "new unrelated room", recs[0].Scene)

	recs, err = store.Retrieve(ctx, "zzz qqq", 0)
	require.NoError(t, err)
	assert.Len(t, recs, 1, "topK floors at 1")
}

func TestStoreRoundtripActions(t *testing.T) {
	store := newTestStore(t, 100)
	ctx := context.Background()
	acts := []action.Action{
		{Kind: action.KindMove, Direction: "w", Seconds: 0.3},
		{Kind: action.KindLook, DX: 15, DY: -3},
	}
	require.NoError(t, store.Append(ctx, Record{Scene: "mirror room", Actions: acts}))

	recs, err := store.Retrieve(ctx, "mirror room", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, acts, recs[0].Actions)
	assert.NotEmpty(t, recs[0].ID, "ids are assigned on append")
}

func TestTokenize(t *testing.T) {
	tokens := tokenize("Two Players near the mirror 玩家在镜子前")
	assert.True(t, tokens["two"])
	assert.True(t, tokens["players"])
	assert.True(t, tokens["mirror"])

	// CJK text is chunked instead of word-split.
	found := false
	for tok := range tokens {
		for _, r := range tok {
			if r >= 0x4e00 && r <= 0x9fff {
				found = true
			}
		}
	}
	assert.True(t, found, "expected CJK tokens")
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, cosine([]float32{1, 0}, []float32{2, 0}), 1e-9)
	assert.InDelta(t, 0.0, cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, cosine([]float32{1}, []float32{1, 2}), "length mismatch")
	assert.Equal(t, 0.0, cosine(nil, nil))
}

func TestVectorCodec(t *testing.T) {
	vec := []float32{0.5, -1.25, 3}
	assert.Equal(t, vec, decodeVector(encodeVector(vec)))
	assert.Nil(t, encodeVector(nil))
	assert.Nil(t, decodeVector([]byte{1, 2, 3}), "truncated blob")
}

type fixedEmbedder struct {
	vecs map[string][]float32
}

func (f fixedEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 1}, nil
}

func TestStoreRetrieveByEmbedding(t *testing.T) {
	store := newTestStore(t, 100)
	store.SetEmbedder(fixedEmbedder{vecs: map[string][]float32{
		"garden\n\n":  {1, 0},
		"hallway\n\n": {0, 1},
		"the query":   {1, 0.1},
	}})
	ctx := context.Background()
	require.NoError(t, store.Append(ctx, Record{Scene: "garden"}))
	require.NoError(t, store.Append(ctx, Record{Scene: "hallway"}))

	recs, err := store.Retrieve(ctx, "the query", 1)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "garden", recs[0].Scene)
}
