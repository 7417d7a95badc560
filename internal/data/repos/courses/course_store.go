package courses

import (
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos/dberr"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type CourseStoreRepo interface {
	Get(dbc dbctx.Context, courseKey string) (*types.CourseStore, error)
	// InsertIfAbsent reports whether this call created the registry row.
	InsertIfAbsent(dbc dbctx.Context, row *types.CourseStore) (bool, error)
}

type courseStoreRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewCourseStoreRepo(db *gorm.DB, baseLog *logger.Logger) CourseStoreRepo {
	return &courseStoreRepo{db: db, log: baseLog.With("repo", "CourseStoreRepo")}
}

func (r *courseStoreRepo) Get(dbc dbctx.Context, courseKey string) (*types.CourseStore, error) {
	var row types.CourseStore
	err := dbc.DB(r.db).Where("course_key = ?", courseKey).Limit(1).Find(&row).Error
	if err != nil {
		return nil, err
	}
	if row.CourseKey == "" {
		return nil, nil
	}
	return &row, nil
}

func (r *courseStoreRepo) InsertIfAbsent(dbc dbctx.Context, row *types.CourseStore) (bool, error) {
	res := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(row)
	if res.Error != nil {
		if dberr.IsUniqueViolation(res.Error) {
			return false, nil
		}
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
