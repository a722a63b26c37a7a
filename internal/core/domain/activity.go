package domain

import (
	"time"

	"github.com/google/uuid"
)

// ActivityEvent is one row of the dashboard activity log.
type ActivityEvent struct {
	ID         string     `json:"id"`
	Module     ModuleKind `json:"module"`
	Action     string     `json:"action"`
	Detail     string     `json:"detail"`
	OccurredAt time.Time  `json:"occurred_at"`
}

// Common activity actions recorded by the services.
const (
	ActionSubmitted = "submitted"
	ActionCompleted = "completed"
	ActionFailed    = "failed"
	ActionDeleted   = "deleted"
	ActionRetried   = "retried"
)

// ModuleStats aggregates terminal outcomes for one module.
type ModuleStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// StatsSnapshot is the dashboard payload: live item counts per module,
// historical outcome counters, and the most recent activity rows.
type StatsSnapshot struct {
	Items    map[ModuleKind]int         `json:"items"`
	Outcomes map[ModuleKind]ModuleStats `json:"outcomes"`
	Recent   []ActivityEvent            `json:"recent"`
	TakenAt  time.Time                  `json:"taken_at"`
}

// NewActivityEvent stamps a new event with an ID and the current time.
func NewActivityEvent(module ModuleKind, action, detail string) ActivityEvent {
	return ActivityEvent{
		ID:         "act-" + uuid.NewString(),
		Module:     module,
		Action:     action,
		Detail:     detail,
		OccurredAt: time.Now().UTC(),
	}
}
