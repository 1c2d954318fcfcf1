package memory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestSaveTurnAndRecallNearest(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	turns := []struct {
		turn      Turn
		embedding []float32
	}{
		{Turn{ID: "t1", SessionID: "s1", Role: "user", Content: "deploy the staging build"}, []float32{1, 0, 0}},
		{Turn{ID: "t2", SessionID: "s1", Role: "assistant", Content: "weather in Lisbon"}, []float32{0, 1, 0}},
		{Turn{ID: "t3", SessionID: "s2", Role: "user", Content: "other session"}, []float32{1, 0, 0}},
	}
	for _, item := range turns {
		require.NoError(t, store.SaveTurn(ctx, item.turn, item.embedding))
	}

	recalled, err := store.Recall(ctx, "s1", []float32{0.9, 0.1, 0}, 2)
	require.NoError(t, err)
	require.NotEmpty(t, recalled)

	assert.Equal(t, "t1", recalled[0].ID)
	for _, turn := range recalled {
		assert.Equal(t, "s1", turn.SessionID)
	}
}

func TestSaveTurnReplacesExisting(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	turn := Turn{ID: "t1", SessionID: "s1", Role: "user", Content: "first"}
	require.NoError(t, store.SaveTurn(ctx, turn, []float32{1, 0}))

	turn.Content = "second"
	require.NoError(t, store.SaveTurn(ctx, turn, []float32{1, 0}))

	recalled, err := store.Recall(ctx, "s1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, recalled, 1)
	assert.Equal(t, "second", recalled[0].Content)
}

func TestRecallFiltersDistantTurns(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTurn(ctx, Turn{ID: "near", SessionID: "s1", Role: "user", Content: "near"}, []float32{1, 0}))
	require.NoError(t, store.SaveTurn(ctx, Turn{ID: "far", SessionID: "s1", Role: "user", Content: "far"}, []float32{-1, 0}))

	recalled, err := store.Recall(ctx, "s1", []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, recalled, 1)
	assert.Equal(t, "near", recalled[0].ID)
}

func TestForgetSession(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTurn(ctx, Turn{ID: "t1", SessionID: "s1", Role: "user", Content: "keep me not"}, []float32{1, 0}))
	require.NoError(t, store.SaveTurn(ctx, Turn{ID: "t2", SessionID: "s2", Role: "user", Content: "survivor"}, []float32{1, 0}))

	require.NoError(t, store.ForgetSession(ctx, "s1"))

	gone, err := store.Recall(ctx, "s1", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, gone)

	kept, err := store.Recall(ctx, "s2", []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Len(t, kept, 1)
}

func TestSaveTurnValidation(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	err := store.SaveTurn(ctx, Turn{ID: "", SessionID: "s1"}, []float32{1})
	assert.Error(t, err)

	err = store.SaveTurn(ctx, Turn{ID: "t1", SessionID: "s1"}, nil)
	assert.Error(t, err)
}

func TestCosineDistance(t *testing.T) {
	identical, err := cosineDistance([]float32{1, 2, 3}, []float32{1, 2, 3})
	require.NoError(t, err)
	assert.InDelta(t, 0, identical, 1e-9)

	opposite, err := cosineDistance([]float32{1, 0}, []float32{-1, 0})
	require.NoError(t, err)
	assert.InDelta(t, 2, opposite, 1e-9)

	_, err = cosineDistance([]float32{1, 0}, []float32{1})
	assert.Error(t, err)
}

func TestOllamaEmbedder(t *testing.T) {
	var gotModel, gotPrompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		gotModel, _ = payload["model"].(string)
		gotPrompt, _ = payload["prompt"].(string)
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float32{0.1, 0.2}})
	}))
	defer server.Close()

	embedder := NewOllamaEmbedder(server.URL, "nomic-embed-text")
	vec, err := embedder.Embed(context.Background(), "hello there")
	require.NoError(t, err)

	assert.Equal(t, []float32{0.1, 0.2}, vec)
	assert.Equal(t, "nomic-embed-text", gotModel)
	assert.Equal(t, "hello there", gotPrompt)
}

func TestOllamaEmbedderRejectsEmptyText(t *testing.T) {
	embedder := NewOllamaEmbedder("", "")
	_, err := embedder.Embed(context.Background(), "   ")
	assert.Error(t, err)
}
