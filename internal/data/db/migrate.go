package db

import (
	"fmt"

	"gorm.io/gorm"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	if err := db.AutoMigrate(types.Models()...); err != nil {
		return err
	}
	return EnsureIndexes(db)
}

// EnsureIndexes adds indexes gorm tags cannot express.
func EnsureIndexes(db *gorm.DB) error {
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_document_record_course_status ON document_record(course_id, upload_status);`).Error; err != nil {
		return fmt.Errorf("create idx_document_record_course_status: %w", err)
	}
	if err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_enrollment_course ON enrollment(course_id);`).Error; err != nil {
		return fmt.Errorf("create idx_enrollment_course: %w", err)
	}
	return nil
}
