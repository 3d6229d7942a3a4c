package generator

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"persona-rag/internal/domain"
	"persona-rag/internal/llm"
)

type fakeCompleter struct {
	reply    string
	err      error
	calls    int
	messages []domain.Message
	temp     float64
}

func (f *fakeCompleter) Complete(_ context.Context, messages []domain.Message, temperature float64) (string, error) {
	f.calls++
	f.messages = messages
	f.temp = temperature
	return f.reply, f.err
}

func chunk(content string) domain.SearchResult {
	return domain.SearchResult{Chunk: domain.Chunk{Content: content, Source: "B2.txt"}, Score: 0.9}
}

func TestGenerate_StrictModeEmbedsChunks(t *testing.T) {
	fc := &fakeCompleter{reply: "Hehe, Hina and Sayo made up after the live! ✨"}
	g := New(fc, Options{}, nil)

	reply, err := g.Generate(context.Background(), "How did they make up?", nil, []domain.SearchResult{
		chunk("[source: B2.txt]\nHina apologised first."),
		chunk("[source: B2.txt]\nSayo smiled."),
	})
	require.NoError(t, err)
	require.Equal(t, ModeStrict, reply.Mode)
	require.Equal(t, fc.reply, reply.Text)
	require.Equal(t, EmotionSmile, reply.Emotion)
	require.Equal(t, DefaultTemperature, fc.temp)

	prompt := fc.messages[0].Content
	require.Contains(t, prompt, "Hina apologised first.")
	require.Contains(t, prompt, "Sayo smiled.")
	require.Contains(t, prompt, "Never use knowledge that is not in the memory fragments")
	require.Contains(t, prompt, "Bind every attribute to the right person")
	require.Contains(t, prompt, "don't quite recall")
	require.Contains(t, prompt, "Maruyama Aya")
	require.Contains(t, prompt, "( > < )")
}

func TestGenerate_ExplicitZeroTemperature(t *testing.T) {
	fc := &fakeCompleter{reply: "Ehehe ✨"}
	zero := 0.0
	g := New(fc, Options{Temperature: &zero}, nil)

	_, err := g.Generate(context.Background(), "hi", nil, nil)
	require.NoError(t, err)
	require.Zero(t, fc.temp)
}

func TestGenerate_EmptyChunksSelectFallback(t *testing.T) {
	fc := &fakeCompleter{reply: "Umm... I don't quite remember that one."}
	g := New(fc, Options{Persona: Persona{Name: "Aya", Franchise: "Pastel*Palettes"}}, nil)

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "hi!"},
		{Role: domain.RoleAssistant, Content: "Hello! I'm Aya ✨"},
	}
	reply, err := g.Generate(context.Background(), "what's the weather on Mars?", history, nil)
	require.NoError(t, err)
	require.Equal(t, ModeFallback, reply.Mode)

	prompt := fc.messages[0].Content
	require.Contains(t, prompt, "assistant: Hello! I'm Aya ✨")
	require.Contains(t, prompt, "deflect gently")
	require.Contains(t, prompt, "Do not state any specific story facts")
	require.NotContains(t, prompt, "[Memory fragments]")
}

func TestModeFor(t *testing.T) {
	require.Equal(t, ModeFallback, ModeFor(nil))
	require.Equal(t, ModeFallback, ModeFor([]domain.SearchResult{}))
	require.Equal(t, ModeStrict, ModeFor([]domain.SearchResult{chunk("x")}))
}

func TestGenerate_FailureReturnsApology(t *testing.T) {
	fc := &fakeCompleter{err: errors.New("connection reset")}
	g := New(fc, Options{}, nil)

	reply, err := g.Generate(context.Background(), "hello", nil, []domain.SearchResult{chunk("x")})
	require.Error(t, err)
	require.Equal(t, llm.KindUnavailable, llm.KindOf(err))
	require.Equal(t, DefaultPersona.Apology, reply.Text)
	require.Equal(t, EmotionCry, reply.Emotion)
	require.Equal(t, ModeStrict, reply.Mode)
	require.NotContains(t, reply.Text, "connection reset")
}

func TestGenerate_HistoryIsBounded(t *testing.T) {
	fc := &fakeCompleter{reply: "ok"}
	g := New(fc, Options{HistoryTurns: 2}, nil)

	history := []domain.Turn{
		{Role: domain.RoleUser, Content: "oldest"},
		{Role: domain.RoleAssistant, Content: "middle"},
		{Role: domain.RoleUser, Content: "newest"},
	}
	_, err := g.Generate(context.Background(), "q", history, nil)
	require.NoError(t, err)
	require.NotContains(t, fc.messages[0].Content, "oldest")
	require.Contains(t, fc.messages[0].Content, "newest")
}

func TestClassifyEmotion(t *testing.T) {
	tests := []struct {
		text string
		want Emotion
	}{
		{"呜呜...脑子突然一片空白", EmotionCry},
		{"嘿嘿，我会加油的！", EmotionSmile},
		{"诶？那个……", EmotionShy},
		{"真是太过分了", EmotionAnger},
		{"Thank you so much!", EmotionSmile},
		{"I'm SORRY, thank you", EmotionCry},
		{"开心 but also 害羞", EmotionSmile},
		{"Let's practise together.", EmotionIdle},
		{"", EmotionIdle},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			require.Equal(t, tt.want, ClassifyEmotion(tt.text))
		})
	}
}

func TestEmotionKeywordsAreDisjoint(t *testing.T) {
	for i, a := range emotionRules {
		for j, b := range emotionRules {
			if i == j {
				continue
			}
			for _, ka := range a.keywords {
				for _, kb := range b.keywords {
					require.False(t, strings.Contains(ka, kb), "%s keyword %q contains %s keyword %q", a.emotion, ka, b.emotion, kb)
				}
			}
		}
	}
}
