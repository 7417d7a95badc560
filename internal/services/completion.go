package services

import (
	"context"
	"fmt"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/realtime"
)

const completionConsumer = "completion_recorder"

type Consumer interface {
	Consume(name string, event realtime.Event, handler realtime.Handler)
}

// CompletionRecorder persists scan completions onto the course row. The relay dedupes
// on the completion key, so a redelivered notification is saved once.
type CompletionRecorder struct {
	log     *logger.Logger
	courses repos.CourseRepo
}

func NewCompletionRecorder(baseLog *logger.Logger, courses repos.CourseRepo) *CompletionRecorder {
	return &CompletionRecorder{log: baseLog.With("service", "CompletionRecorder"), courses: courses}
}

func (r *CompletionRecorder) Register(c Consumer) {
	c.Consume(completionConsumer, realtime.EventScanComplete, r.Handle)
}

func (r *CompletionRecorder) Handle(ctx context.Context, msg realtime.Message) error {
	var data realtime.ScanCompleteData
	if err := msg.Decode(&data); err != nil {
		return fmt.Errorf("decode completion: %w", err)
	}
	if err := r.courses.RecordScanCompletion(dbctx.New(ctx), msg.CourseID, data.DocumentCount, data.Result, msg.EmittedAt); err != nil {
		return fmt.Errorf("record completion: %w", err)
	}
	r.log.Info("scan completion recorded", "course_id", msg.CourseID, "documents", data.DocumentCount)
	return nil
}
