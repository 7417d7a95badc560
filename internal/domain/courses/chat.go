package courses

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ChatTurn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatSession struct {
	ID        uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string         `gorm:"column:user_id;not null;uniqueIndex:idx_chat_session_user_course,priority:1" json:"user_id"`
	CourseID  string         `gorm:"column:course_id;not null;uniqueIndex:idx_chat_session_user_course,priority:2" json:"course_id"`
	History   datatypes.JSON `gorm:"column:history" json:"history"`
	CreatedAt time.Time      `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time      `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (ChatSession) TableName() string { return "chat_session" }
