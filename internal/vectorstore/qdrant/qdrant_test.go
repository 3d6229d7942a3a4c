package qdrant

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"persona-rag/internal/domain"
)

func TestSearch_SendsSourceFilter(t *testing.T) {
	var got map[string]any
	var path, key string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path, key = r.URL.Path, r.Header.Get("api-key")
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"result":[{"score":0.4,"payload":{"source":"B2.txt","category":"persona_memory","content":"low"}},{"score":0.9,"payload":{"source":"B2.txt","category":"persona_memory","content":"high"}}]}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, APIKey: "secret", Collection: "mem"})
	res, err := s.Search(context.Background(), []float64{1, 0}, 4, []string{"B2.txt", "data_source/B2.txt"})
	require.NoError(t, err)
	require.Equal(t, "/collections/mem/points/search", path)
	require.Equal(t, "secret", key)

	require.Len(t, res, 2)
	require.Equal(t, "high", res[0].Chunk.Content)
	require.Equal(t, "B2.txt", res[0].Chunk.Source)

	filter := got["filter"].(map[string]any)
	must := filter["must"].([]any)[0].(map[string]any)
	require.Equal(t, "source", must["key"])
	require.Equal(t, []any{"B2.txt", "data_source/B2.txt"}, must["match"].(map[string]any)["any"])
	require.EqualValues(t, 4, got["limit"])
}

func TestInit_DropsThenCreates(t *testing.T) {
	var calls []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls = append(calls, r.Method+" "+r.URL.Path)
		if r.Method == http.MethodDelete {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"result":true}`))
	}))
	defer srv.Close()

	s := NewStorage(Config{URL: srv.URL, Collection: "mem"})
	require.NoError(t, s.Init(context.Background(), 3))
	require.NoError(t, s.Upsert(context.Background(), []domain.Chunk{{Content: "x", Source: "A.txt"}}, [][]float64{{1, 0, 0}}))

	require.Equal(t, []string{
		"DELETE /collections/mem",
		"PUT /collections/mem",
		"PUT /collections/mem/index",
		"PUT /collections/mem/points",
	}, calls)
}
