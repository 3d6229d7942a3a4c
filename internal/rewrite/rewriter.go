// Package rewrite turns a colloquial utterance into a self-contained search
// query using recent dialogue and the entity glossary.
package rewrite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/llm"
)

const (
	// DefaultHistoryTurns is how many trailing turns are shown to the model.
	DefaultHistoryTurns = 4

	systemPrompt = "You are a precise query rewriter."
)

// LoadGlossary reads the alias glossary verbatim. A missing file yields an
// empty glossary.
func LoadGlossary(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("read glossary: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}

// Options configures a Rewriter.
type Options struct {
	Glossary     string
	HistoryTurns int
	Franchise    string
}

// Rewriter resolves elided subjects and aliases with one deterministic
// completion call.
type Rewriter struct {
	completer domain.Completer
	opts      Options
	logger    *zap.Logger
}

func New(completer domain.Completer, opts Options, logger *zap.Logger) *Rewriter {
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Rewriter{completer: completer, opts: opts, logger: logger.Named("rewrite")}
}

// Rewrite returns the search query for utterance. The returned query is
// always usable: when the call fails it is the utterance itself and the
// *llm.CallError is returned alongside it.
func (r *Rewriter) Rewrite(ctx context.Context, utterance string, history []domain.Turn) (string, error) {
	if len(history) == 0 && r.opts.Glossary == "" {
		return utterance, nil
	}
	messages := []domain.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: r.prompt(utterance, history)},
	}
	out, err := r.completer.Complete(ctx, messages, 0)
	if err == nil {
		out = strings.TrimSpace(out)
		if out == "" {
			err = llm.Wrap("rewrite", llm.ErrEmptyOutput)
		}
	}
	if err != nil {
		err = llm.Wrap("rewrite", err)
		r.logger.Warn("rewrite failed, using original utterance", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		return utterance, err
	}
	return out, nil
}

func (r *Rewriter) prompt(utterance string, history []domain.Turn) string {
	if len(history) > r.opts.HistoryTurns {
		history = history[len(history)-r.opts.HistoryTurns:]
	}
	var sb strings.Builder
	if r.opts.Franchise != "" {
		fmt.Fprintf(&sb, "You are a story search expert for %s.\n", r.opts.Franchise)
	} else {
		sb.WriteString("You are a story search expert.\n")
	}
	sb.WriteString("Use the entity glossary below to turn the user's colloquial question into a precise search sentence.\n\n")
	sb.WriteString("[Entity glossary]\n")
	sb.WriteString(r.opts.Glossary)
	sb.WriteString("\n\n[Task]\n")
	sb.WriteString("1. Fill in any omitted subject using the dialogue history.\n")
	sb.WriteString("2. Replace nicknames and aliases with the canonical full names from the glossary.\n")
	sb.WriteString("3. Keep the original intent. Do not answer the question.\n\n")
	sb.WriteString("[Dialogue history]\n")
	for _, t := range history {
		fmt.Fprintf(&sb, "%s: %s\n", t.Role, t.Content)
	}
	sb.WriteString("\n[New user question]\n")
	sb.WriteString(utterance)
	sb.WriteString("\n\n[Output]\nOnly the rewritten sentence, with no explanation.")
	return sb.String()
}
