package tui

import (
	"context"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"persona-rag/internal/generator"
	"persona-rag/internal/retriever"
	"persona-rag/internal/service"
)

type fakeChat struct {
	id, message string
}

func (f *fakeChat) Chat(_ context.Context, id, message string) service.Reply {
	f.id, f.message = id, message
	return service.Reply{
		Text:    "Hehe, thank you! ✨",
		Emotion: generator.EmotionSmile,
		Trace:   service.Trace{Scope: "B0.txt", Retrieval: retriever.StatusHit, Mode: generator.ModeStrict},
	}
}

func TestModel_SendAndReceive(t *testing.T) {
	fc := &fakeChat{}
	var m tea.Model = New(fc, "sess-1", "Aya")
	m, _ = m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})

	for _, r := range "hello" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)

	mm := m.(Model)
	require.True(t, mm.waiting)
	require.Empty(t, mm.input.Value())
	require.Contains(t, mm.View(), "hello")

	// Enter while waiting is ignored.
	_, again := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, again)

	msg := cmd()
	require.Equal(t, "sess-1", fc.id)
	require.Equal(t, "hello", fc.message)

	m, _ = m.Update(msg)
	mm = m.(Model)
	require.False(t, mm.waiting)
	require.Len(t, mm.lines, 2)
	require.Equal(t, "smile", mm.lines[1].emotion)
	require.Contains(t, mm.status, "retrieval=hit")
	require.Contains(t, mm.status, "mode=strict")
}

func TestModel_EmptyInputDoesNothing(t *testing.T) {
	var m tea.Model = New(&fakeChat{}, "s", "Aya")
	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.Nil(t, cmd)
	require.Empty(t, m.(Model).lines)
}

func TestModel_QuitKeys(t *testing.T) {
	m := New(&fakeChat{}, "s", "Aya")
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
}
