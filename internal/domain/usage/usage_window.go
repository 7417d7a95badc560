package usage

import "time"

// UsageWindow is the per-user rolling chat counter. Privileged users bypass the ceiling
// through the explicit flag; Ceiling is never used as an "unlimited" sentinel.
// WindowStart is nil until the first message of a window is counted.
type UsageWindow struct {
	UserID      string     `gorm:"column:user_id;primaryKey" json:"user_id"`
	WindowStart *time.Time `gorm:"column:window_start" json:"window_start,omitempty"`
	Count       int        `gorm:"column:count;not null;default:0" json:"count"`
	Ceiling     int        `gorm:"column:ceiling;not null" json:"ceiling"`
	Privileged  bool       `gorm:"column:privileged;not null;default:false" json:"privileged"`
	// Generation increments on every window reset; increments are conditioned on it.
	Generation int       `gorm:"column:generation;not null;default:0" json:"-"`
	UpdatedAt  time.Time `gorm:"not null;autoUpdateTime" json:"updated_at"`
}

func (UsageWindow) TableName() string { return "usage_window" }

// ResetAt is when the current window expires. ok is false while no window is open.
func (w *UsageWindow) ResetAt(window time.Duration) (at time.Time, ok bool) {
	if w.WindowStart == nil {
		return time.Time{}, false
	}
	return w.WindowStart.Add(window), true
}

// Expired reports whether an open window has run its full length at now.
func (w *UsageWindow) Expired(now time.Time, window time.Duration) bool {
	at, ok := w.ResetAt(window)
	return ok && !now.Before(at)
}
