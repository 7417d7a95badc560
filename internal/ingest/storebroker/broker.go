// Package storebroker resolves the single remote retrieval store shared by a course.
package storebroker

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/Rasalp1/canvas-lm-sub000/internal/data/repos"
	types "github.com/Rasalp1/canvas-lm-sub000/internal/domain"
	"github.com/Rasalp1/canvas-lm-sub000/internal/observability"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/dbctx"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/logger"
	"github.com/Rasalp1/canvas-lm-sub000/internal/platform/retrieval"
)

var ErrCourseKeyRequired = errors.New("course key required")

// Creator is the slice of the retrieval client the broker needs.
type Creator interface {
	CreateStore(ctx context.Context, courseKey, displayName string) (retrieval.Store, error)
}

type Result struct {
	StoreID       string `json:"store_id"`
	DisplayName   string `json:"display_name"`
	AlreadyExists bool   `json:"already_exists"`
}

type Broker struct {
	log      *logger.Logger
	registry repos.CourseStoreRepo
	remote   Creator
	metrics  *observability.Metrics
	group    singleflight.Group
}

func New(log *logger.Logger, registry repos.CourseStoreRepo, remote Creator, metrics *observability.Metrics) *Broker {
	return &Broker{
		log:      log.With("service", "StoreBroker"),
		registry: registry,
		remote:   remote,
		metrics:  metrics,
	}
}

// GetOrCreateStore returns the course's store, creating it remotely on first use.
// Concurrent callers for the same course all resolve to one store id; exactly one of
// them sees AlreadyExists=false. The first registered display name wins.
func (b *Broker) GetOrCreateStore(ctx context.Context, courseKey, displayName, createdBy string) (Result, error) {
	courseKey = strings.TrimSpace(courseKey)
	if courseKey == "" {
		return Result{}, ErrCourseKeyRequired
	}
	dbc := dbctx.New(ctx)

	if row, err := b.registry.Get(dbc, courseKey); err != nil {
		return Result{}, fmt.Errorf("lookup course store: %w", err)
	} else if row != nil {
		b.observe(row, displayName, true)
		return Result{StoreID: row.StoreID, DisplayName: row.DisplayName, AlreadyExists: true}, nil
	}

	// Collapse concurrent in-process creates for one course into a single remote call.
	// Across processes the remote dedupes on courseKey.
	v, err, _ := b.group.Do(courseKey, func() (interface{}, error) {
		return b.remote.CreateStore(context.WithoutCancel(ctx), courseKey, displayName)
	})
	if err != nil {
		return Result{}, fmt.Errorf("create remote store: %w", err)
	}
	created := v.(retrieval.Store)

	inserted, err := b.registry.InsertIfAbsent(dbc, &types.CourseStore{
		CourseKey:   courseKey,
		StoreID:     created.ID,
		DisplayName: created.DisplayName,
		CreatedBy:   createdBy,
	})
	if err != nil {
		return Result{}, fmt.Errorf("register course store: %w", err)
	}
	// The registry insert decides which caller created the store, whatever the remote
	// reported; a racing process may have received the same store as existing.
	if inserted {
		b.log.Info("course store created", "course_id", courseKey, "store_id", created.ID, "remote_existing", created.AlreadyExists)
		b.metrics.StoreResolved(false)
		return Result{StoreID: created.ID, DisplayName: created.DisplayName}, nil
	}

	// Another caller (possibly another process) registered first; adopt its row.
	row, err := b.registry.Get(dbc, courseKey)
	if err != nil {
		return Result{}, fmt.Errorf("reload course store: %w", err)
	}
	if row == nil {
		return Result{}, fmt.Errorf("course store %s vanished after conflict", courseKey)
	}
	if row.StoreID != created.ID {
		b.log.Warn("orphaned remote store after registration race",
			"course_id", courseKey, "winner_store_id", row.StoreID, "orphan_store_id", created.ID)
	}
	b.observe(row, displayName, true)
	return Result{StoreID: row.StoreID, DisplayName: row.DisplayName, AlreadyExists: true}, nil
}

// Lookup returns the registered store without creating one.
func (b *Broker) Lookup(ctx context.Context, courseKey string) (*Result, error) {
	row, err := b.registry.Get(dbctx.New(ctx), courseKey)
	if err != nil || row == nil {
		return nil, err
	}
	return &Result{StoreID: row.StoreID, DisplayName: row.DisplayName, AlreadyExists: true}, nil
}

func (b *Broker) observe(row *types.CourseStore, requestedName string, existing bool) {
	if requestedName != "" && requestedName != row.DisplayName {
		b.log.Info("display name differs from registered store; keeping first",
			"course_id", row.CourseKey, "registered", row.DisplayName, "requested", requestedName)
	}
	b.metrics.StoreResolved(existing)
}
