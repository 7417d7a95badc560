package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	courserepo "github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/courses"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/ingest/storebroker"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/retrieval"
	"github.com/Rasalp1/canvas-lm-sub000/internal/quota"
)

const (
	maxHistoryTurns = 20
	queryHistory    = 10
	defaultTopK     = 5
	maxTopK         = 20
)

var (
	ErrEmptyQuestion  = errors.New("question is required")
	ErrCourseNotReady = errors.New("course has no scanned documents yet")
)

// QuotaExceededError is returned when the user's chat window is used up.
type QuotaExceededError struct {
	Decision quota.Decision
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("chat limit reached; resets in %ds", e.Decision.RetryAfterSeconds())
}

type StoreLookup interface {
	Lookup(ctx context.Context, courseKey string) (*storebroker.Result, error)
}

type Querier interface {
	Query(ctx context.Context, storeID string, q retrieval.QueryRequest) (*retrieval.Answer, error)
}

type QuotaGate interface {
	Consume(ctx context.Context, userID string) (quota.Decision, error)
}

type AskRequest struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

type ChatReply struct {
	Answer    string               `json:"answer"`
	Citations []retrieval.Citation `json:"citations"`
	Quota     quota.Decision       `json:"quota"`
}

type ChatService interface {
	Ask(ctx context.Context, userID, courseID string, req AskRequest) (*ChatReply, error)
	History(ctx context.Context, userID, courseID string) ([]types.ChatTurn, error)
}

type chatService struct {
	log      *logger.Logger
	sessions repos.ChatSessionRepo
	stores   StoreLookup
	querier  Querier
	gate     QuotaGate
}

func NewChatService(baseLog *logger.Logger, sessions repos.ChatSessionRepo, stores StoreLookup, querier Querier, gate QuotaGate) ChatService {
	return &chatService{
		log:      baseLog.With("service", "ChatService"),
		sessions: sessions,
		stores:   stores,
		querier:  querier,
		gate:     gate,
	}
}

func (s *chatService) Ask(ctx context.Context, userID, courseID string, req AskRequest) (*ChatReply, error) {
	ctx, span := observability.Tracer().Start(ctx, "chat.ask")
	defer span.End()
	span.SetAttributes(attribute.String("course_id", courseID))

	question := strings.TrimSpace(req.Question)
	if question == "" {
		return nil, ErrEmptyQuestion
	}
	topK := req.TopK
	if topK <= 0 {
		topK = defaultTopK
	}
	if topK > maxTopK {
		topK = maxTopK
	}

	store, err := s.stores.Lookup(ctx, courseID)
	if err != nil {
		return nil, fmt.Errorf("lookup course store: %w", err)
	}
	if store == nil {
		return nil, ErrCourseNotReady
	}

	// The quota is charged before dispatch; a blocked request never reaches the store.
	decision, err := s.gate.Consume(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("check chat quota: %w", err)
	}
	if !decision.Allowed {
		span.SetAttributes(attribute.Bool("quota_blocked", true))
		return nil, &QuotaExceededError{Decision: decision}
	}

	dbc := dbctx.New(ctx)
	sess, err := s.sessions.GetOrCreate(dbc, userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	history := courserepo.DecodeHistory(sess)

	answer, err := s.querier.Query(ctx, store.StoreID, retrieval.QueryRequest{
		Question: question,
		History:  toTurns(tail(history, queryHistory)),
		TopK:     topK,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "query")
		return nil, fmt.Errorf("query course store: %w", err)
	}

	history = append(history,
		types.ChatTurn{Role: "user", Content: question},
		types.ChatTurn{Role: "assistant", Content: answer.Text},
	)
	if err := s.sessions.SaveHistory(dbc, sess.ID, tail(history, maxHistoryTurns)); err != nil {
		// The answer is already paid for; losing the transcript is not worth failing it.
		s.log.Warn("save chat history failed", "course_id", courseID, "error", err)
	}

	citations := answer.Citations
	if citations == nil {
		citations = []retrieval.Citation{}
	}
	return &ChatReply{Answer: answer.Text, Citations: citations, Quota: decision}, nil
}

func (s *chatService) History(ctx context.Context, userID, courseID string) ([]types.ChatTurn, error) {
	sess, err := s.sessions.GetOrCreate(dbctx.New(ctx), userID, courseID)
	if err != nil {
		return nil, fmt.Errorf("load chat session: %w", err)
	}
	h := courserepo.DecodeHistory(sess)
	if h == nil {
		h = []types.ChatTurn{}
	}
	return h, nil
}

func tail(turns []types.ChatTurn, n int) []types.ChatTurn {
	if len(turns) <= n {
		return turns
	}
	return turns[len(turns)-n:]
}

func toTurns(in []types.ChatTurn) []retrieval.Turn {
	out := make([]retrieval.Turn, 0, len(in))
	for _, t := range in {
		out = append(out, retrieval.Turn{Role: t.Role, Content: t.Content})
	}
	return out
}
