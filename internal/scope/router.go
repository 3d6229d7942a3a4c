package scope

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/llm"
)

// DefaultMaxFiles caps how many archives one query may be routed to.
const DefaultMaxFiles = 3

const routerSystemPrompt = "Output only file names separated by commas, with no explanation."

// Example is one few-shot demonstration shown to the routing model.
type Example struct {
	Query  string
	Output string
}

// DefaultExamples demonstrate the output format, including NONE.
var DefaultExamples = []Example{
	{Query: "How did Hina and Sayo make up?", Output: "B2.txt,B7.txt"},
	{Query: "Aya's self introduction", Output: "B0.txt"},
	{Query: "What is the capital of France?", Output: None},
}

// Options configures a Router.
type Options struct {
	MaxFiles  int
	Franchise string
	Examples  []Example
}

// Router picks candidate archives for a query from the routing table.
type Router struct {
	completer domain.Completer
	opts      Options
	logger    *zap.Logger
}

func NewRouter(completer domain.Completer, opts Options, logger *zap.Logger) *Router {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = DefaultMaxFiles
	}
	if opts.Examples == nil {
		opts.Examples = DefaultExamples
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{completer: completer, opts: opts, logger: logger.Named("scope")}
}

// Route asks the model which archives in table answer query. The returned
// Scope is always usable; on call failure it is NONE and the *llm.CallError
// is returned alongside it.
func (r *Router) Route(ctx context.Context, query, table string) (Scope, error) {
	if strings.TrimSpace(table) == "" {
		return Scope{}, nil
	}
	messages := []domain.Message{
		{Role: "system", Content: routerSystemPrompt},
		{Role: "user", Content: r.prompt(query, table)},
	}
	raw, err := r.completer.Complete(ctx, messages, 0)
	if err != nil {
		err = llm.Wrap("route", err)
		r.logger.Warn("routing failed, scope is NONE", zap.String("kind", string(llm.KindOf(err))), zap.Error(err))
		return Scope{}, err
	}
	s := Parse(raw, r.opts.MaxFiles)
	if s.Extracted {
		r.logger.Warn("router output did not match grammar, extracted filenames", zap.String("raw", raw), zap.Strings("files", s.Files))
	} else if s.IsNone() && strings.TrimSpace(raw) != None {
		r.logger.Warn("router output unusable, scope is NONE", zap.String("raw", raw))
	}
	return s, nil
}

func (r *Router) prompt(query, table string) string {
	var sb strings.Builder
	if r.opts.Franchise != "" {
		fmt.Fprintf(&sb, "You are a story navigator for %s.\n", r.opts.Franchise)
	} else {
		sb.WriteString("You are a story navigator.\n")
	}
	fmt.Fprintf(&sb, "Pick the 1 to %d archive files from the file index below that are most relevant to the user question.\n\n", r.opts.MaxFiles)
	sb.WriteString("[File index]\n")
	sb.WriteString(table)
	sb.WriteString("\n\n[User question]\n")
	sb.WriteString(query)
	sb.WriteString("\n\n[Task]\n")
	sb.WriteString("1. Identify the characters or events the question is about.\n")
	sb.WriteString("2. Match them against the descriptions in the file index.\n")
	sb.WriteString("3. Output the matching file names separated by commas.\n")
	fmt.Fprintf(&sb, "4. If no file applies or you cannot tell, output %s.\n", None)
	if len(r.opts.Examples) > 0 {
		sb.WriteString("\n[Examples]\n")
		for _, ex := range r.opts.Examples {
			fmt.Fprintf(&sb, "User: %q -> Output: %s\n", ex.Query, ex.Output)
		}
	}
	return sb.String()
}
