package courses

import (
	"time"
)

// Course is the course context detected for a user. ID is the LMS course key and is
// shared by every user enrolled in the course.
type Course struct {
	ID          string `gorm:"column:id;primaryKey" json:"id"`
	DisplayName string `gorm:"column:display_name;not null" json:"display_name"`
	SourceURL   string `gorm:"column:source_url;not null" json:"source_url"`

	// Written by the completion recorder, once per distinct completion notification.
	LastScanAt     *time.Time `gorm:"column:last_scan_at;index" json:"last_scan_at,omitempty"`
	LastScanResult string     `gorm:"column:last_scan_result" json:"last_scan_result,omitempty"`
	DocumentCount  int        `gorm:"column:document_count;not null;default:0" json:"document_count"`
	ScanCount      int        `gorm:"column:scan_count;not null;default:0" json:"scan_count"`

	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Course) TableName() string { return "course" }

type Enrollment struct {
	UserID    string    `gorm:"column:user_id;primaryKey" json:"user_id"`
	CourseID  string    `gorm:"column:course_id;primaryKey" json:"course_id"`
	Enrolled  bool      `gorm:"column:enrolled;not null;default:false" json:"enrolled"`
	CreatedAt time.Time `gorm:"not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (Enrollment) TableName() string { return "enrollment" }

// CourseSession is the course half of the explicit session object.
type CourseSession struct {
	CourseID    string `json:"course_id"`
	DisplayName string `json:"display_name"`
	SourceURL   string `json:"source_url"`
	Enrolled    bool   `json:"enrolled"`
}

func (c *Course) Session(enrolled bool) CourseSession {
	return CourseSession{
		CourseID:    c.ID,
		DisplayName: c.DisplayName,
		SourceURL:   c.SourceURL,
		Enrolled:    enrolled,
	}
}
