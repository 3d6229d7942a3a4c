// Package generator produces the persona reply, grounded in retrieved
// chunks when there are any.
package generator

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/llm"
)

// Mode is the generation contract used for a reply.
type Mode string

const (
	ModeStrict   Mode = "strict"
	ModeFallback Mode = "fallback"
)

const (
	DefaultTemperature  = 0.7
	DefaultHistoryTurns = 6
)

// Persona describes the character that answers.
type Persona struct {
	Name      string
	Franchise string
	Emoticons []string
	// Apology is returned verbatim when the completion call fails.
	Apology string
}

// DefaultPersona is used for any Persona field left empty.
var DefaultPersona = Persona{
	Name:      "Maruyama Aya",
	Franchise: "BanG Dream!",
	Emoticons: []string{"✨", "💦", "( > < )"},
	Apology:   "Uwaah... my mind just went completely blank... did I mess up again? I'm sorry ( > < )💦",
}

// Reply is a generated answer.
type Reply struct {
	Text    string
	Emotion Emotion
	Mode    Mode
}

// Options configures a Generator.
type Options struct {
	Persona      Persona
	// Temperature defaults to DefaultTemperature when nil.
	Temperature  *float64
	HistoryTurns int
}

// Generator issues one completion per reply.
type Generator struct {
	completer   domain.Completer
	opts        Options
	temperature float64
	logger      *zap.Logger
}

func New(completer domain.Completer, opts Options, logger *zap.Logger) *Generator {
	p := &opts.Persona
	if p.Name == "" {
		p.Name = DefaultPersona.Name
	}
	if p.Franchise == "" {
		p.Franchise = DefaultPersona.Franchise
	}
	if len(p.Emoticons) == 0 {
		p.Emoticons = DefaultPersona.Emoticons
	}
	if p.Apology == "" {
		p.Apology = DefaultPersona.Apology
	}
	temp := DefaultTemperature
	if opts.Temperature != nil {
		temp = *opts.Temperature
	}
	if opts.HistoryTurns <= 0 {
		opts.HistoryTurns = DefaultHistoryTurns
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{completer: completer, opts: opts, temperature: temp, logger: logger.Named("generator")}
}

// ModeFor picks the generation contract: strict only when chunks exist.
func ModeFor(chunks []domain.SearchResult) Mode {
	if len(chunks) > 0 {
		return ModeStrict
	}
	return ModeFallback
}

// Generate answers utterance. The Reply is always usable; on call failure
// its text is the persona apology and the *llm.CallError is returned too.
func (g *Generator) Generate(ctx context.Context, utterance string, history []domain.Turn, chunks []domain.SearchResult) (Reply, error) {
	mode := ModeFor(chunks)
	var messages []domain.Message
	if mode == ModeStrict {
		messages = g.strictMessages(utterance, history, chunks)
	} else {
		messages = g.fallbackMessages(utterance, history)
	}

	text, err := g.completer.Complete(ctx, messages, g.temperature)
	if err != nil {
		err = llm.Wrap("generate", err)
		g.logger.Warn("generation failed, replying with apology", zap.String("mode", string(mode)), zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		text = g.opts.Persona.Apology
	}
	return Reply{Text: text, Emotion: ClassifyEmotion(text), Mode: mode}, err
}

func (g *Generator) personaLine() string {
	p := g.opts.Persona
	return fmt.Sprintf("You are %s from %s. Stay fully in character.", p.Name, p.Franchise)
}

func (g *Generator) styleRules(sb *strings.Builder) {
	p := g.opts.Persona
	sb.WriteString("[Reply style]\n")
	fmt.Fprintf(sb, "- Answer in %s's own warm, hard-working voice, in first person.\n", p.Name)
	fmt.Fprintf(sb, "- Use only these emoticons, sparingly: %s\n", strings.Join(p.Emoticons, " "))
	sb.WriteString("- Reply in the language the fan used.\n")
}

func (g *Generator) strictMessages(utterance string, history []domain.Turn, chunks []domain.SearchResult) []domain.Message {
	var sb strings.Builder
	sb.WriteString(g.personaLine())
	sb.WriteString("\nAnswer the fan strictly from the memory fragments below.\n\n")
	sb.WriteString("[Absolute rules]\n")
	sb.WriteString("1. Never use knowledge that is not in the memory fragments. If the fragments do not say it, you do not know it, even if you think you do.\n")
	sb.WriteString("2. Bind every attribute to the right person. Do not attach a trait, relationship or event to a different named character than the fragments do.\n")
	sb.WriteString("3. If the fragments are not enough to answer, say honestly that you don't quite recall. Never invent details.\n\n")
	sb.WriteString("[Memory fragments]\n")
	for _, c := range chunks {
		sb.WriteString(c.Chunk.Content)
		sb.WriteString("\n\n")
	}
	writeHistory(&sb, g.recent(history))
	sb.WriteString("[Fan]\n")
	sb.WriteString(utterance)
	sb.WriteString("\n\n")
	g.styleRules(&sb)
	return []domain.Message{{Role: "user", Content: sb.String()}}
}

func (g *Generator) fallbackMessages(utterance string, history []domain.Turn) []domain.Message {
	var sb strings.Builder
	sb.WriteString(g.personaLine())
	sb.WriteString("\nNo story memories were found for this message.\n\n")
	sb.WriteString("[Rules]\n")
	sb.WriteString("1. You may continue naturally from what you yourself said earlier in this conversation.\n")
	sb.WriteString("2. If the fan asks about something unrelated to your world, deflect gently and in character.\n")
	sb.WriteString("3. Do not state any specific story facts, events, dates or relationships from your world. If asked, say you don't quite remember and ask the fan for more details.\n\n")
	writeHistory(&sb, g.recent(history))
	sb.WriteString("[Fan]\n")
	sb.WriteString(utterance)
	sb.WriteString("\n\n")
	g.styleRules(&sb)
	return []domain.Message{{Role: "user", Content: sb.String()}}
}

func (g *Generator) recent(history []domain.Turn) []domain.Turn {
	if len(history) > g.opts.HistoryTurns {
		return history[len(history)-g.opts.HistoryTurns:]
	}
	return history
}

func writeHistory(sb *strings.Builder, history []domain.Turn) {
	if len(history) == 0 {
		return
	}
	sb.WriteString("[Conversation so far]\n")
	for _, t := range history {
		fmt.Fprintf(sb, "%s: %s\n", t.Role, t.Content)
	}
	sb.WriteString("\n")
}
