package courses

import "time"

// CourseStore registers the one remote retrieval store shared by a course. The primary
// key on CourseKey is what arbitrates concurrent get-or-create callers.
type CourseStore struct {
	CourseKey   string    `gorm:"column:course_key;primaryKey" json:"course_key"`
	StoreID     string    `gorm:"column:store_id;not null;index" json:"store_id"`
	DisplayName string    `gorm:"column:display_name;not null" json:"display_name"`
	CreatedBy   string    `gorm:"column:created_by" json:"created_by,omitempty"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
}

func (CourseStore) TableName() string { return "course_store" }
