// Package leader owns project leadership reassignment and its versioned
// history. Propagation rewrites attribution across a contiguous range of
// open months; closed months inside the range are reported as blocked, never
// touched.
package leader

import (
	"fmt"
	"time"

	"github.com/caravela-erp/caravela/internal/shared"
)

// HistoryEntry is one leadership interval of a project. EndDate nil means the
// interval is currently active; at most one entry per project is open-ended.
// Intervals are contiguous: closing an interval sets its EndDate to the next
// interval's StartDate.
type HistoryEntry struct {
	ID                 string     `json:"id"`
	ProjectID          string     `json:"project_id"`
	PreviousLeaderID   *string    `json:"previous_leader_id,omitempty"`
	PreviousLeaderName *string    `json:"previous_leader_name,omitempty"`
	NewLeaderID        string     `json:"new_leader_id"`
	NewLeaderName      string     `json:"new_leader_name"`
	StartDate          time.Time  `json:"start_date"`
	EndDate            *time.Time `json:"end_date,omitempty"`
	Reason             string     `json:"reason,omitempty"`
	ChangedBy          string     `json:"changed_by"`
	ChangedByName      string     `json:"changed_by_name"`
	ChangedAt          time.Time  `json:"changed_at"`
}

// PropagateInput describes one reassignment request.
type PropagateInput struct {
	ProjectID          string
	NewLeaderID        string
	NewLeaderName      string
	EffectiveFromMonth shared.YearMonth
	Reason             string
	Actor              shared.Actor
}

// PropagationResult reports the outcome. Success false is a normal,
// inspectable result, not an error: Message explains why nothing was
// reassigned. On success both id lists are populated so callers can
// distinguish "fully applied" from "applied with exceptions".
type PropagationResult struct {
	Success                bool          `json:"success"`
	Message                string        `json:"message"`
	AffectedInstallmentIDs []string      `json:"affected_installment_ids"`
	BlockedInstallmentIDs  []string      `json:"blocked_installment_ids"`
	HistoryEntry           *HistoryEntry `json:"history_entry,omitempty"`
}

var (
	// ErrLeaderRequired is returned when the new leader identity is blank.
	ErrLeaderRequired = fmt.Errorf("leader: new leader id and name required: %w", shared.ErrValidation)
	// ErrActorRequired is returned when the request lacks actor identity.
	ErrActorRequired = fmt.Errorf("leader: actor required: %w", shared.ErrValidation)
)
