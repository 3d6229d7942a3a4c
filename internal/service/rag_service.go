// Package service wires the online pipeline: rewrite, route, retrieve and
// generate.
package service

import (
	"context"

	"go.uber.org/zap"

	"persona-rag/internal/domain"
	"persona-rag/internal/generator"
	"persona-rag/internal/llm"
	"persona-rag/internal/retriever"
	"persona-rag/internal/scope"
	"persona-rag/internal/session"
)

type QueryRewriter interface {
	Rewrite(ctx context.Context, utterance string, history []domain.Turn) (string, error)
}

type ScopeRouter interface {
	Route(ctx context.Context, query, table string) (scope.Scope, error)
}

type ChunkRetriever interface {
	Retrieve(ctx context.Context, query string, sc scope.Scope) (retriever.Result, error)
}

type ReplyGenerator interface {
	Generate(ctx context.Context, utterance string, history []domain.Turn, chunks []domain.SearchResult) (generator.Reply, error)
}

// Trace records every decision taken while answering one message.
type Trace struct {
	Query     string           `json:"query"`
	Scope     string           `json:"scope"`
	Retrieval retriever.Status `json:"retrieval"`
	Sources   []string         `json:"sources,omitempty"`
	Mode      generator.Mode   `json:"mode"`
	// Failures maps a stage name to the kind of call failure it recovered from.
	Failures map[string]llm.Kind `json:"failures,omitempty"`
}

// Reply is what the front-end receives.
type Reply struct {
	Text    string            `json:"text"`
	Emotion generator.Emotion `json:"emotion"`
	Trace   Trace             `json:"-"`
}

// RAGService answers persona questions. It never returns an error: every
// stage degrades to its default and the failure is recorded in the Trace.
type RAGService struct {
	rewriter     QueryRewriter
	router       ScopeRouter
	retriever    ChunkRetriever
	generator    ReplyGenerator
	sessions     *session.Store
	routingTable string
	logger       *zap.Logger
}

func NewRAGService(rw QueryRewriter, rt ScopeRouter, rv ChunkRetriever, gen ReplyGenerator, sessions *session.Store, routingTable string, logger *zap.Logger) *RAGService {
	if sessions == nil {
		sessions = session.NewStore(session.DefaultMaxTurns)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RAGService{
		rewriter:     rw,
		router:       rt,
		retriever:    rv,
		generator:    gen,
		sessions:     sessions,
		routingTable: routingTable,
		logger:       logger.Named("service"),
	}
}

// Sessions exposes the session memory owned by the service.
func (s *RAGService) Sessions() *session.Store { return s.sessions }

// Answer runs the pipeline for message with caller-supplied history.
func (s *RAGService) Answer(ctx context.Context, message string, history []domain.Turn) Reply {
	var tr Trace
	fail := func(stage string, err error) {
		if err == nil {
			return
		}
		if tr.Failures == nil {
			tr.Failures = make(map[string]llm.Kind)
		}
		tr.Failures[stage] = llm.KindOf(err)
	}

	query, err := s.rewriter.Rewrite(ctx, message, history)
	fail("rewrite", err)
	tr.Query = query

	sc, err := s.router.Route(ctx, query, s.routingTable)
	fail("route", err)
	tr.Scope = sc.String()

	res, err := s.retriever.Retrieve(ctx, query, sc)
	fail("retrieve", err)
	tr.Retrieval = res.Status
	for _, c := range res.Chunks {
		tr.Sources = append(tr.Sources, c.Chunk.Source)
	}

	out, err := s.generator.Generate(ctx, message, history, res.Chunks)
	fail("generate", err)
	tr.Mode = out.Mode

	s.logger.Info("answered",
		zap.String("query", tr.Query),
		zap.String("scope", tr.Scope),
		zap.String("retrieval", string(tr.Retrieval)),
		zap.Int("chunks", len(res.Chunks)),
		zap.String("mode", string(tr.Mode)),
		zap.String("emotion", string(out.Emotion)),
		zap.Any("failures", tr.Failures),
	)
	return Reply{Text: out.Text, Emotion: out.Emotion, Trace: tr}
}

// Chat answers message within a session, recording both turns.
func (s *RAGService) Chat(ctx context.Context, sessionID, message string) Reply {
	history := s.sessions.History(sessionID)
	reply := s.Answer(ctx, message, history)
	s.sessions.Append(sessionID, domain.RoleUser, message)
	s.sessions.Append(sessionID, domain.RoleAssistant, reply.Text)
	return reply
}

// Route rewrites and routes query without retrieving, for debugging.
func (s *RAGService) Route(ctx context.Context, message string) (string, scope.Scope) {
	query, _ := s.rewriter.Rewrite(ctx, message, nil)
	sc, _ := s.router.Route(ctx, query, s.routingTable)
	return query, sc
}
