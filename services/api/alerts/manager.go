package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/metrics"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Manager owns alert creation and status changes.
//
// Every breach becomes a new alert: there is no deduplication against an
// already active alert for the same node and variable, and alerts are never
// resolved automatically. Status updates are unconditional, so an operator
// may reopen a resolved alert.
type Manager struct {
	repo   Repository
	logger *zap.SugaredLogger
	now    func() time.Time
	newID  func() string
}

// NewManager creates a manager backed by repo.
func NewManager(repo Repository, logger *zap.SugaredLogger) *Manager {
	return &Manager{
		repo:   repo,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
		newID:  func() string { return uuid.NewString() },
	}
}

// Record persists candidate as a new Active alert.
func (m *Manager) Record(ctx context.Context, candidate telemetry.AlertCandidate) (Alert, error) {
	if !candidate.Variable.Valid() {
		return Alert{}, apperr.NewValidationError("alert candidate has no variable", "variable")
	}

	alert := Alert{
		ID:            m.newID(),
		NodeID:        candidate.NodeID,
		Variable:      candidate.Variable,
		ObservedValue: candidate.ObservedValue,
		ViolatedBound: candidate.ViolatedBound,
		Severity:      candidate.Severity,
		Message:       candidate.Message,
		DetectedAt:    candidate.DetectedAt,
		Status:        StatusActive,
		CreatedAt:     m.now(),
	}

	if err := m.repo.InsertAlert(ctx, alert); err != nil {
		return Alert{}, apperr.Persistence("insert alert", err)
	}

	metrics.AlertsGenerated.WithLabelValues(alert.Variable.String(), string(alert.Severity)).Inc()
	m.logger.Infow("Alert recorded",
		"alert_id", alert.ID,
		"node_id", alert.NodeID,
		"variable", alert.Variable.String(),
		"severity", alert.Severity,
		"observed", alert.ObservedValue,
		"bound", alert.ViolatedBound)

	return alert, nil
}

// RecordAll records each candidate in order and stops at the first failure,
// returning the alerts recorded so far.
func (m *Manager) RecordAll(ctx context.Context, candidates []telemetry.AlertCandidate) ([]Alert, error) {
	recorded := make([]Alert, 0, len(candidates))
	for _, c := range candidates {
		alert, err := m.Record(ctx, c)
		if err != nil {
			return recorded, err
		}
		recorded = append(recorded, alert)
	}
	return recorded, nil
}

// Get returns a single alert.
func (m *Manager) Get(ctx context.Context, id string) (Alert, error) {
	alert, err := m.repo.GetAlert(ctx, id)
	if err != nil {
		return Alert{}, wrapRepoErr("get alert", err)
	}
	return alert, nil
}

// SetStatus overwrites the status of alert id.
func (m *Manager) SetStatus(ctx context.Context, id string, status Status) (Alert, error) {
	if !status.Valid() {
		return Alert{}, apperr.NewValidationError(
			fmt.Sprintf("status must be one of %s, %s, %s", StatusActive, StatusPending, StatusResolved), "status")
	}

	alert, err := m.repo.UpdateAlertStatus(ctx, id, status)
	if err != nil {
		return Alert{}, wrapRepoErr("update alert status", err)
	}

	m.logger.Infow("Alert status updated", "alert_id", id, "status", status)
	return alert, nil
}

// ActiveAlerts lists Active alerts, newest detection first, optionally for one node.
func (m *Manager) ActiveAlerts(ctx context.Context, nodeID *int64) ([]Alert, error) {
	list, err := m.repo.ListAlertsByStatus(ctx, StatusActive, nodeID)
	if err != nil {
		return nil, apperr.Persistence("list active alerts", err)
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].DetectedAt.After(list[j].DetectedAt)
	})
	return list, nil
}

func wrapRepoErr(op string, err error) error {
	if errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return apperr.Persistence(op, err)
}
