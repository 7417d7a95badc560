package courses

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type EnrollmentRepo interface {
	Upsert(dbc dbctx.Context, userID, courseID string, enrolled bool) error
	Get(dbc dbctx.Context, userID, courseID string) (*types.Enrollment, error)
}

type enrollmentRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewEnrollmentRepo(db *gorm.DB, baseLog *logger.Logger) EnrollmentRepo {
	return &enrollmentRepo{db: db, log: baseLog.With("repo", "EnrollmentRepo")}
}

func (r *enrollmentRepo) Upsert(dbc dbctx.Context, userID, courseID string, enrolled bool) error {
	row := &types.Enrollment{UserID: userID, CourseID: courseID, Enrolled: enrolled}
	return dbc.DB(r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "course_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enrolled", "updated_at"}),
	}).Create(row).Error
}

func (r *enrollmentRepo) Get(dbc dbctx.Context, userID, courseID string) (*types.Enrollment, error) {
	var e types.Enrollment
	err := dbc.DB(r.db).
		Where("user_id = ? AND course_id = ?", userID, courseID).
		Limit(1).
		Find(&e).Error
	if err != nil {
		return nil, err
	}
	if e.UserID == "" {
		return nil, nil
	}
	return &e, nil
}
