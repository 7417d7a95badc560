package usage

import (
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
)

type UsageWindowRepo interface {
	Get(dbc dbctx.Context, userID string) (*types.UsageWindow, error)
	// Ensure creates the user's row on first use and returns the stored row. No window
	// is open until the first increment.
	Ensure(dbc dbctx.Context, userID string, ceiling int) (*types.UsageWindow, error)
	// ResetWindow closes an expired window if generation still matches.
	ResetWindow(dbc dbctx.Context, userID string, generation int) (bool, error)
	// TryIncrement bumps the counter if the window is unchanged and below its ceiling.
	// The increment that opens a window stamps its start with now.
	TryIncrement(dbc dbctx.Context, userID string, generation int, now time.Time) (bool, error)
	SetPrivileged(dbc dbctx.Context, userID string, privileged bool) error
}

type usageWindowRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewUsageWindowRepo(db *gorm.DB, baseLog *logger.Logger) UsageWindowRepo {
	return &usageWindowRepo{db: db, log: baseLog.With("repo", "UsageWindowRepo")}
}

func (r *usageWindowRepo) Get(dbc dbctx.Context, userID string) (*types.UsageWindow, error) {
	var w types.UsageWindow
	err := dbc.DB(r.db).Where("user_id = ?", userID).Limit(1).Find(&w).Error
	if err != nil {
		return nil, err
	}
	if w.UserID == "" {
		return nil, nil
	}
	return &w, nil
}

func (r *usageWindowRepo) Ensure(dbc dbctx.Context, userID string, ceiling int) (*types.UsageWindow, error) {
	row := &types.UsageWindow{
		UserID:  userID,
		Ceiling: ceiling,
	}
	if err := dbc.DB(r.db).Clauses(clause.OnConflict{DoNothing: true}).Create(row).Error; err != nil {
		return nil, err
	}
	return r.Get(dbc, userID)
}

func (r *usageWindowRepo) ResetWindow(dbc dbctx.Context, userID string, generation int) (bool, error) {
	res := dbc.DB(r.db).Model(&types.UsageWindow{}).
		Where("user_id = ? AND generation = ?", userID, generation).
		Updates(map[string]interface{}{
			"window_start": nil,
			"count":        0,
			"generation":   gorm.Expr("generation + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *usageWindowRepo) TryIncrement(dbc dbctx.Context, userID string, generation int, now time.Time) (bool, error) {
	res := dbc.DB(r.db).Model(&types.UsageWindow{}).
		Where("user_id = ? AND generation = ?", userID, generation).
		Where("privileged = ? OR count < ceiling", true).
		Updates(map[string]interface{}{
			"count":        gorm.Expr("count + 1"),
			"window_start": gorm.Expr("COALESCE(window_start, ?)", now),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *usageWindowRepo) SetPrivileged(dbc dbctx.Context, userID string, privileged bool) error {
	return dbc.DB(r.db).Model(&types.UsageWindow{}).
		Where("user_id = ?", userID).
		Update("privileged", privileged).Error
}
