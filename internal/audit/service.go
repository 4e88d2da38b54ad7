package audit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/caravela-erp/caravela/internal/shared"
)

// Store provides the persistence surface the service needs.
type Store interface {
	Insert(ctx context.Context, e Entry) error
	InsertLeaderChange(ctx context.Context, lc LeaderChange) error
	Timeline(ctx context.Context, filters TimelineFilters, limit, offset int) ([]Entry, error)
	LeaderChangesByProject(ctx context.Context, projectID string) ([]LeaderChange, error)
}

// Service coordinates the append-only audit trail.
type Service struct {
	store Store
	now   func() time.Time
}

// NewService constructs an audit service.
func NewService(store Store) *Service {
	return &Service{store: store, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// Record appends one entry, stamping id and timestamp.
func (s *Service) Record(ctx context.Context, e Entry) (Entry, error) {
	if s == nil || s.store == nil {
		return Entry{}, fmt.Errorf("audit: service not configured")
	}
	if e.EntityType == "" || e.EntityID == "" || e.Action == "" {
		return Entry{}, fmt.Errorf("%w: audit entry requires entity_type, entity_id and action", shared.ErrValidation)
	}
	if strings.TrimSpace(e.ActorID) == "" {
		return Entry{}, fmt.Errorf("%w: audit entry requires an actor", shared.ErrValidation)
	}
	e.ID = uuid.NewString()
	e.OccurredAt = s.now()
	if err := s.store.Insert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("audit: insert entry: %w", err)
	}
	return e, nil
}

// RecordLeaderChange appends one leader-change log row.
func (s *Service) RecordLeaderChange(ctx context.Context, lc LeaderChange) (LeaderChange, error) {
	if s == nil || s.store == nil {
		return LeaderChange{}, fmt.Errorf("audit: service not configured")
	}
	if lc.ProjectID == "" || lc.NewLeaderID == "" {
		return LeaderChange{}, fmt.Errorf("%w: leader change log requires project and new leader", shared.ErrValidation)
	}
	lc.ID = uuid.NewString()
	lc.ChangedAt = s.now()
	if err := s.store.InsertLeaderChange(ctx, lc); err != nil {
		return LeaderChange{}, fmt.Errorf("audit: insert leader change: %w", err)
	}
	return lc, nil
}

// Timeline returns a page of entries, most recent first.
func (s *Service) Timeline(ctx context.Context, filters TimelineFilters) (Result, error) {
	if s == nil || s.store == nil {
		return Result{}, fmt.Errorf("audit: service not configured")
	}
	pageSize := filters.PageSize
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	page := filters.Page
	if page <= 0 {
		page = 1
	}
	offset := (page - 1) * pageSize
	rows, err := s.store.Timeline(ctx, filters, pageSize+1, offset)
	if err != nil {
		return Result{}, err
	}
	hasNext := len(rows) > pageSize
	if hasNext {
		rows = rows[:pageSize]
	}
	paging := PagingInfo{Page: page, PageSize: pageSize, HasNext: hasNext}
	if page > 1 {
		paging.PrevPage = page - 1
	}
	if hasNext {
		paging.NextPage = page + 1
	}
	return Result{Entries: rows, Paging: paging}, nil
}

// EntityHistory returns all entries for one entity, most recent first.
func (s *Service) EntityHistory(ctx context.Context, entityType, entityID string) ([]Entry, error) {
	if entityType == "" || entityID == "" {
		return nil, fmt.Errorf("%w: entity type and id required", shared.ErrValidation)
	}
	return s.store.Timeline(ctx, TimelineFilters{EntityType: entityType, EntityID: entityID}, 500, 0)
}

// LeaderChanges returns the specialized leader-change log for a project.
func (s *Service) LeaderChanges(ctx context.Context, projectID string) ([]LeaderChange, error) {
	if projectID == "" {
		return nil, fmt.Errorf("%w: project id required", shared.ErrValidation)
	}
	return s.store.LeaderChangesByProject(ctx, projectID)
}
