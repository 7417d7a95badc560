package courses

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/dberr"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type CourseRepo interface {
	GetByID(dbc dbctx.Context, id string) (*types.Course, error)
	// CreateIfMissing inserts the course on first detection and returns the stored row.
	// created is false when another caller (or an earlier detection) got there first.
	CreateIfMissing(dbc dbctx.Context, course *types.Course) (out *types.Course, created bool, err error)
	RecordScanCompletion(dbc dbctx.Context, id string, documentCount int, result string, at time.Time) error
}

type courseRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseRepo(db *gorm.DB, baseLog *logger.Logger) CourseRepo {
	return &courseRepo{db: db, log: baseLog.With("repo", "CourseRepo")}
}

func (r *courseRepo) GetByID(dbc dbctx.Context, id string) (*types.Course, error) {
	if id == "" {
		return nil, nil
	}
	var c types.Course
	err := dbc.DB(r.db).Where("id = ?", id).Limit(1).Find(&c).Error
	if err != nil {
		return nil, err
	}
	if c.ID == "" {
		return nil, nil
	}
	return &c, nil
}

func (r *courseRepo) CreateIfMissing(dbc dbctx.Context, course *types.Course) (*types.Course, bool, error) {
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(course)
	if res.Error != nil && !dberr.IsUniqueViolation(res.Error) {
		return nil, false, res.Error
	}
	if res.Error == nil && res.RowsAffected == 1 {
		return course, true, nil
	}
	existing, err := r.GetByID(dbc, course.ID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *courseRepo) RecordScanCompletion(dbc dbctx.Context, id string, documentCount int, result string, at time.Time) error {
	return dbc.DB(r.db).Model(&types.Course{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"last_scan_at":     at,
			"last_scan_result": result,
			"document_count":   documentCount,
			"scan_count":       gorm.Expr("scan_count + 1"),
			"updated_at":       at,
		}).Error
}
