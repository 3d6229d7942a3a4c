package tfidf

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"persona-rag/internal/embedding"
)

var corpus = []string{
	"Aya practised her self-introduction in front of the mirror.",
	"Hina and Sayo finally made up after the concert.",
	"日菜和纱夜终于和好了",
}

func TestEmbed_RequiresPrepare(t *testing.T) {
	_, err := NewEmbedder().Embed(context.Background(), "aya")
	require.Error(t, err)
}

func TestEmbed_SimilarTextScoresHigher(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	q, err := e.Embed(context.Background(), "when did hina and sayo make up")
	require.NoError(t, err)
	hit, _ := e.Embed(context.Background(), corpus[1])
	miss, _ := e.Embed(context.Background(), corpus[0])

	require.Greater(t, embedding.CosineSimilarity(q, hit), embedding.CosineSimilarity(q, miss))
}

func TestEmbed_HanCharactersAreTokens(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	v, err := e.Embed(context.Background(), "纱夜")
	require.NoError(t, err)
	require.Greater(t, embedding.CosineSimilarity(v, mustEmbed(t, e, corpus[2])), 0.0)
}

func TestState_RoundTripProducesSameVectors(t *testing.T) {
	e := NewEmbedder()
	require.NoError(t, e.Prepare(corpus))

	var buf bytes.Buffer
	require.NoError(t, e.SaveState(&buf))

	restored := NewEmbedder()
	require.NoError(t, restored.LoadState(&buf))
	require.Equal(t, e.Dimension(), restored.Dimension())
	require.Equal(t, mustEmbed(t, e, "hina concert"), mustEmbed(t, restored, "hina concert"))
}

func mustEmbed(t *testing.T, e *Embedder, text string) []float64 {
	t.Helper()
	v, err := e.Embed(context.Background(), text)
	require.NoError(t, err)
	return v
}
