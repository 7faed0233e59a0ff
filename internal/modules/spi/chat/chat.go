// Package chat runs one natural-language submission through the model and
// the query executor, classifies the outcome and records it in the session.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"spi-dashboard/internal/llm"
	"spi-dashboard/internal/modules/spi/prompt"
	"spi-dashboard/internal/modules/spi/query"
	"spi-dashboard/internal/modules/spi/session"
	"spi-dashboard/internal/modules/spi/types"
)

var (
	ErrBusy          = errors.New("a request is already being processed for this session")
	ErrEmptyQuestion = errors.New("question is empty")
)

const (
	successFormat = "Your request was processed. %d rows are found and displayed."
	notTableReply = "Processed data is not a valid table. Please refine your request and try again."
	failureFormat = "We are not able to process your request. Please refine your request and try again. Error: %v"
)

// ReplyKind classifies an assistant reply.
type ReplyKind string

const (
	ReplySuccess  ReplyKind = "success"
	ReplyNotTable ReplyKind = "not_table"
	ReplyFailure  ReplyKind = "failure"
)

type Reply struct {
	Kind     ReplyKind `json:"kind"`
	Text     string    `json:"reply"`
	RowCount int       `json:"row_count"`
}

// Executor runs model output against the base dataset.
type Executor interface {
	Execute(ctx context.Context, text string) (query.Result, error)
	Run(ctx context.Context, c query.Compiled) (query.Result, error)
}

type Service interface {
	// Submit runs question for s and appends exactly one user and one
	// assistant turn. It fails with ErrEmptyQuestion or ErrBusy without
	// touching the transcript.
	Submit(ctx context.Context, s *session.Session, question string) (Reply, error)
	// ActiveTable returns the session's table, or the whole base dataset
	// when none has been produced yet.
	ActiveTable(ctx context.Context, s *session.Session) (types.Table, error)
}

type serviceImpl struct {
	model llm.Client
	exec  Executor
}

func NewService(model llm.Client, exec Executor) Service {
	return &serviceImpl{model: model, exec: exec}
}

func (svc *serviceImpl) Submit(ctx context.Context, s *session.Session, question string) (Reply, error) {
	if strings.TrimSpace(question) == "" {
		return Reply{}, ErrEmptyQuestion
	}
	if !s.TryBegin() {
		return Reply{}, ErrBusy
	}
	defer s.End()

	s.Append(types.Turn{Role: types.RoleUser, Content: question})
	reply := svc.run(ctx, s, question)
	s.Append(types.Turn{Role: types.RoleAssistant, Content: reply.Text})
	s.SetState(session.StateAppended)

	slog.Info("chat submission", "session", s.ID, "kind", reply.Kind, "rows", reply.RowCount)
	return reply, nil
}

func (svc *serviceImpl) run(ctx context.Context, s *session.Session, question string) Reply {
	s.SetState(session.StateAwaitingModelResponse)
	instruction, err := prompt.Build(question)
	if err != nil {
		return failure(s, "prompt", err)
	}
	text, err := svc.model.Complete(ctx, instruction)
	if err != nil {
		return failure(s, "model", err)
	}

	s.SetState(session.StateExecuting)
	res, err := svc.exec.Execute(ctx, text)
	if err != nil {
		return failure(s, "execute", err)
	}

	s.SetState(session.StateClassifying)
	return classify(s, res)
}

// classify replaces the active table only for tabular results.
func classify(s *session.Session, res query.Result) Reply {
	var tbl types.Table
	switch res.Kind {
	case query.KindTable:
		tbl = res.Table
	case query.KindSeries:
		tbl = res.Series.ToTable()
	default:
		slog.Warn("chat result rejected", "session", s.ID, "stage", "classify", "kind", res.Kind.String())
		return Reply{Kind: ReplyNotTable, Text: notTableReply}
	}
	s.SetActiveTable(tbl)
	n := tbl.Len()
	return Reply{Kind: ReplySuccess, Text: fmt.Sprintf(successFormat, n), RowCount: n}
}

func failure(s *session.Session, stage string, err error) Reply {
	slog.Warn("chat submission failed", "session", s.ID, "stage", stage, "error", err)
	return Reply{Kind: ReplyFailure, Text: fmt.Sprintf(failureFormat, err)}
}

func (svc *serviceImpl) ActiveTable(ctx context.Context, s *session.Session) (types.Table, error) {
	if t, ok := s.ActiveTable(); ok {
		return t, nil
	}
	c, err := query.Compile(query.Plan{})
	if err != nil {
		return types.Table{}, err
	}
	res, err := svc.exec.Run(ctx, c)
	if err != nil {
		return types.Table{}, fmt.Errorf("load base dataset: %w", err)
	}
	return res.Table, nil
}
