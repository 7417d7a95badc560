package courses

import (
	"encoding/json"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type ChatSessionRepo interface {
	GetOrCreate(dbc dbctx.Context, userID, courseID string) (*types.ChatSession, error)
	SaveHistory(dbc dbctx.Context, id uuid.UUID, history []types.ChatTurn) error
}

type chatSessionRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewChatSessionRepo(db *gorm.DB, baseLog *logger.Logger) ChatSessionRepo {
	return &chatSessionRepo{db: db, log: baseLog.With("repo", "ChatSessionRepo")}
}

func (r *chatSessionRepo) GetOrCreate(dbc dbctx.Context, userID, courseID string) (*types.ChatSession, error) {
	row := &types.ChatSession{
		ID:       uuid.New(),
		UserID:   userID,
		CourseID: courseID,
		History:  datatypes.JSON([]byte("[]")),
	}
	if err := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	var out types.ChatSession
	if err := dbc.DB(r.db).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

func (r *chatSessionRepo) SaveHistory(dbc dbctx.Context, id uuid.UUID, history []types.ChatTurn) error {
	raw, err := json.Marshal(history)
	if err != nil {
		return err
	}
	return dbc.DB(r.db).Model(&types.ChatSession{}).
		Where("id = ?", id).
		Update("history", datatypes.JSON(raw)).Error
}

// DecodeHistory returns the stored turns, tolerating an empty column.
func DecodeHistory(s *types.ChatSession) []types.ChatTurn {
	if s == nil || len(s.History) == 0 {
		return nil
	}
	var out []types.ChatTurn
	if err := json.Unmarshal(s.History, &out); err != nil {
		return nil
	}
	return out
}
