// Package alerts persists threshold breaches as addressable alerts and
// serves their status queries and operator updates.
package alerts

import (
	"context"
	"time"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Status is the operator-facing lifecycle state of an alert.
type Status string

const (
	StatusActive   Status = "Active"
	StatusPending  Status = "Pending"
	StatusResolved Status = "Resolved"
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusPending, StatusResolved:
		return true
	}
	return false
}

// Alert is the persisted record of a threshold breach.
type Alert struct {
	ID            string             `json:"id"`
	NodeID        int64              `json:"node_id"`
	Variable      telemetry.Variable `json:"variable"`
	ObservedValue float64            `json:"observed_value"`
	ViolatedBound float64            `json:"violated_bound"`
	Severity      telemetry.Severity `json:"severity"`
	Message       string             `json:"message"`
	DetectedAt    time.Time          `json:"detected_at"`
	Status        Status             `json:"status"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Candidate returns the breach fields of a.
func (a Alert) Candidate() telemetry.AlertCandidate {
	return telemetry.AlertCandidate{
		NodeID:        a.NodeID,
		Variable:      a.Variable,
		ObservedValue: a.ObservedValue,
		ViolatedBound: a.ViolatedBound,
		Severity:      a.Severity,
		Message:       a.Message,
		DetectedAt:    a.DetectedAt,
	}
}

// Repository is the storage the manager needs. UpdateAlertStatus must return
// an error wrapping apperr.ErrNotFound, without writing, when id is unknown.
type Repository interface {
	InsertAlert(ctx context.Context, alert Alert) error
	GetAlert(ctx context.Context, id string) (Alert, error)
	UpdateAlertStatus(ctx context.Context, id string, status Status) (Alert, error)
	ListAlertsByStatus(ctx context.Context, status Status, nodeID *int64) ([]Alert, error)
}
