// Package snapshot persists the per-course scan recovery record so a scan can be
// resumed or garbage-collected after the process or its UI clients go away.
package snapshot

import (
	"context"
	"errors"
	"time"

	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
)

var ErrInvalidSnapshot = errors.New("snapshot: course id and status required")

type Store interface {
	Write(ctx context.Context, snap types.ScanSnapshot) error
	// Read returns nil, nil when no snapshot exists.
	Read(ctx context.Context, courseID string) (*types.ScanSnapshot, error)
	Remove(ctx context.Context, courseID string) error
	List(ctx context.Context) ([]types.ScanSnapshot, error)
}

// DefaultTTL bounds how long an orphaned snapshot can outlive every process. It is well
// past the staleness threshold so the health check always sees stale records first.
const DefaultTTL = 24 * time.Hour

func validate(snap types.ScanSnapshot) error {
	if snap.CourseID == "" || snap.Status == "" {
		return ErrInvalidSnapshot
	}
	return nil
}
