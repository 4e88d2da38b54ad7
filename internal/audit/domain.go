package audit

import (
	"time"
)

// Actions recorded by the trail. Handlers and services reference these
// constants instead of bare strings so the timeline filter stays consistent.
const (
	ActionCloseMonth       = "close_month"
	ActionReopenMonth      = "reopen_month"
	ActionConsolidateMonth = "consolidate_month"
	ActionLeaderChange     = "leader_change"
	ActionValueChange      = "value_change"
)

// Entry is one immutable audit record. Old and new values are stringified at
// write time; Metadata carries free-form context (justifications, affected
// installment ids, applied rates).
type Entry struct {
	ID         string
	EntityType string
	EntityID   string
	EntityName string
	Action     string
	Field      string
	OldValue   string
	NewValue   string
	Metadata   map[string]any
	ActorID    string
	ActorName  string
	OccurredAt time.Time
}

// LeaderChange is the specialized log written alongside the generic entry on
// every successful leader propagation. It carries the full affected/blocked
// id lists so the per-project history can be rebuilt without re-deriving
// lock state.
type LeaderChange struct {
	ID                   string
	ProjectID            string
	ProjectName          string
	PreviousLeaderID     *string
	PreviousLeaderName   *string
	NewLeaderID          string
	NewLeaderName        string
	EffectiveFromMonth   string
	AffectedInstallments []string
	BlockedInstallments  []string
	Reason               string
	ChangedBy            string
	ChangedByName        string
	ChangedAt            time.Time
}

// TimelineFilters narrows timeline reads.
type TimelineFilters struct {
	EntityType string
	EntityID   string
	Action     string
	Page       int
	PageSize   int
}

// PagingInfo describes the window returned by Timeline.
type PagingInfo struct {
	Page     int
	PageSize int
	HasNext  bool
	PrevPage int
	NextPage int
}

// Result bundles timeline rows with paging information.
type Result struct {
	Entries []Entry
	Paging  PagingInfo
}
