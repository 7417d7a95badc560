// Package progress turns elapsed time into a display percentage and time-left estimate.
// Nothing short of an explicit completion reports more than Cap percent.
package progress

import (
	"math"
	"sync"
	"time"
)

const Cap = 95

// Estimate returns min(elapsed/total*100, Cap) and the whole seconds left, never negative.
func Estimate(elapsed, total time.Duration) (percent int, timeLeftSeconds int) {
	if elapsed < 0 {
		elapsed = 0
	}
	if total <= 0 {
		return Cap, 0
	}
	p := float64(elapsed) / float64(total) * 100
	if p > Cap {
		p = Cap
	}
	left := math.Ceil((total - elapsed).Seconds())
	if left < 0 {
		left = 0
	}
	return int(p), int(left)
}

// UploadEstimate is the upload-phase budget once the crawl has reported its count.
func UploadEstimate(documents int, perDocument time.Duration) time.Duration {
	if documents < 0 {
		documents = 0
	}
	return time.Duration(documents) * perDocument
}

// Tracker keeps one scan's displayed percentage monotonic across phase changes and
// re-estimates.
type Tracker struct {
	mu       sync.Mutex
	last     int
	complete bool
}

// Observe records a raw estimate and returns what should be displayed.
func (t *Tracker) Observe(percent int) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.complete {
		return 100
	}
	if percent > Cap {
		percent = Cap
	}
	if percent > t.last {
		t.last = percent
	}
	return t.last
}

func (t *Tracker) Complete() int {
	t.mu.Lock()
	t.complete = true
	t.last = 100
	t.mu.Unlock()
	return 100
}

func (t *Tracker) Current() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	t.last = 0
	t.complete = false
	t.mu.Unlock()
}
