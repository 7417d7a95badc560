package ingest

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type DocumentRecordRepo interface {
	ListByCourse(dbc dbctx.Context, courseID string) ([]*types.DocumentRecord, error)
	Get(dbc dbctx.Context, courseID, key string) (*types.DocumentRecord, error)
	// CreateIfAbsent inserts pending records; existing keys are left untouched.
	CreateIfAbsent(dbc dbctx.Context, records []*types.DocumentRecord) error

	// The Mark* methods are conditional updates. They return false when the record was
	// not in a state that allows the transition, so completed records never regress.
	MarkUploading(dbc dbctx.Context, courseID, key string, staleBefore time.Time) (bool, error)
	MarkCompleted(dbc dbctx.Context, courseID, key, remoteID string, metadata datatypes.JSON, at time.Time) (bool, error)
	MarkFailed(dbc dbctx.Context, courseID, key, reason string) (bool, error)
	SetArchiveKey(dbc dbctx.Context, courseID, key, archiveKey string) error

	CountByStatus(dbc dbctx.Context, courseID string) (map[types.UploadStatus]int64, error)
}

type documentRecordRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewDocumentRecordRepo(db *gorm.DB, baseLog *logger.Logger) DocumentRecordRepo {
	return &documentRecordRepo{db: db, log: baseLog.With("repo", "DocumentRecordRepo")}
}

func (r *documentRecordRepo) ListByCourse(dbc dbctx.Context, courseID string) ([]*types.DocumentRecord, error) {
	var out []*types.DocumentRecord
	if courseID == "" {
		return out, nil
	}
	err := dbc.DB(r.db).
		Where("course_id = ?", courseID).
		Order("created_at ASC, key ASC").
		Find(&out).Error
	return out, err
}

func (r *documentRecordRepo) Get(dbc dbctx.Context, courseID, key string) (*types.DocumentRecord, error) {
	var rec types.DocumentRecord
	err := dbc.DB(r.db).
		Where("course_id = ? AND key = ?", courseID, key).
		Limit(1).
		Find(&rec).Error
	if err != nil {
		return nil, err
	}
	if rec.Key == "" {
		return nil, nil
	}
	return &rec, nil
}

func (r *documentRecordRepo) CreateIfAbsent(dbc dbctx.Context, records []*types.DocumentRecord) error {
	if len(records) == 0 {
		return nil
	}
	return dbc.DB(r.db).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&records).Error
}

func (r *documentRecordRepo) MarkUploading(dbc dbctx.Context, courseID, key string, staleBefore time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.DocumentRecord{}).
		Where("course_id = ? AND key = ?", courseID, key).
		Where(
			r.db.Where("upload_status IN ?", types.UploadableStatuses).
				Or("upload_status = ? AND updated_at < ?", types.UploadUploading, staleBefore),
		).
		Updates(map[string]interface{}{
			"upload_status": types.UploadUploading,
			"last_error":    "",
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRecordRepo) MarkCompleted(dbc dbctx.Context, courseID, key, remoteID string, metadata datatypes.JSON, at time.Time) (bool, error) {
	updates := map[string]interface{}{
		"upload_status": types.UploadCompleted,
		"remote_id":     remoteID,
		"uploaded_at":   at,
		"last_error":    "",
	}
	if len(metadata) > 0 {
		updates["metadata"] = metadata
	}
	res := dbc.DB(r.db).Model(&types.DocumentRecord{}).
		Where("course_id = ? AND key = ? AND upload_status = ?", courseID, key, types.UploadUploading).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRecordRepo) MarkFailed(dbc dbctx.Context, courseID, key, reason string) (bool, error) {
	res := dbc.DB(r.db).Model(&types.DocumentRecord{}).
		Where("course_id = ? AND key = ? AND upload_status = ?", courseID, key, types.UploadUploading).
		Updates(map[string]interface{}{
			"upload_status": types.UploadFailed,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"last_error":    reason,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *documentRecordRepo) SetArchiveKey(dbc dbctx.Context, courseID, key, archiveKey string) error {
	return dbc.DB(r.db).Model(&types.DocumentRecord{}).
		Where("course_id = ? AND key = ?", courseID, key).
		Update("archive_key", archiveKey).Error
}

func (r *documentRecordRepo) CountByStatus(dbc dbctx.Context, courseID string) (map[types.UploadStatus]int64, error) {
	var rows []struct {
		UploadStatus types.UploadStatus
		N            int64
	}
	err := dbc.DB(r.db).Model(&types.DocumentRecord{}).
		Select("upload_status, COUNT(*) AS n").
		Where("course_id = ?", courseID).
		Group("upload_status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make(map[types.UploadStatus]int64, len(rows))
	for _, row := range rows {
		out[row.UploadStatus] = row.N
	}
	return out, nil
}
