package alerts

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

type fakeRepo struct {
	mu      sync.Mutex
	alerts  map[string]Alert
	writes  int
	failure error
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{alerts: make(map[string]Alert)}
}

func (f *fakeRepo) InsertAlert(_ context.Context, a Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return f.failure
	}
	f.alerts[a.ID] = a
	f.writes++
	return nil
}

func (f *fakeRepo) GetAlert(_ context.Context, id string) (Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.alerts[id]
	if !ok {
		return Alert{}, apperr.ErrNotFound
	}
	return a, nil
}

func (f *fakeRepo) UpdateAlertStatus(_ context.Context, id string, status Status) (Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return Alert{}, f.failure
	}
	a, ok := f.alerts[id]
	if !ok {
		return Alert{}, apperr.ErrNotFound
	}
	a.Status = status
	f.alerts[id] = a
	f.writes++
	return a, nil
}

func (f *fakeRepo) ListAlertsByStatus(_ context.Context, status Status, nodeID *int64) ([]Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failure != nil {
		return nil, f.failure
	}
	var out []Alert
	for _, a := range f.alerts {
		if a.Status == status && (nodeID == nil || a.NodeID == *nodeID) {
			out = append(out, a)
		}
	}
	return out, nil
}

func candidate(nodeID int64, at time.Time) telemetry.AlertCandidate {
	return telemetry.AlertCandidate{
		NodeID:        nodeID,
		Variable:      telemetry.Temperature,
		ObservedValue: 30,
		ViolatedBound: 26,
		Severity:      telemetry.SeverityHigh,
		Message:       "Temperature above maximum (30 > 26)",
		DetectedAt:    at,
	}
}

func TestManager_RecordCreatesActiveAlert(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	at := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	alert, err := m.Record(context.Background(), candidate(1, at))
	require.NoError(t, err)

	assert.NotEmpty(t, alert.ID)
	assert.Equal(t, StatusActive, alert.Status)
	assert.Equal(t, at, alert.DetectedAt)
	assert.False(t, alert.CreatedAt.IsZero())
	assert.Equal(t, candidate(1, at), alert.Candidate())
	assert.Equal(t, 1, repo.writes)
}

func TestManager_IdenticalCandidatesAreNotDeduplicated(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	at := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	recorded, err := m.RecordAll(context.Background(), []telemetry.AlertCandidate{candidate(1, at), candidate(1, at)})
	require.NoError(t, err)
	require.Len(t, recorded, 2)

	assert.NotEqual(t, recorded[0].ID, recorded[1].ID)
	assert.Equal(t, StatusActive, recorded[0].Status)
	assert.Equal(t, StatusActive, recorded[1].Status)
	assert.Len(t, repo.alerts, 2)
}

func TestManager_RecordRejectsUnknownVariable(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())

	c := candidate(1, time.Now())
	c.Variable = telemetry.VariableUnknown
	_, err := m.Record(context.Background(), c)

	assert.True(t, apperr.IsValidation(err))
	assert.Zero(t, repo.writes)
}

func TestManager_RecordWrapsStorageFailure(t *testing.T) {
	repo := newFakeRepo()
	repo.failure = errors.New("connection reset")
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())

	_, err := m.Record(context.Background(), candidate(1, time.Now()))
	assert.ErrorIs(t, err, apperr.ErrPersistence)
	assert.ErrorContains(t, err, "connection reset")
}

func TestManager_RecordAllStopsAtFirstFailure(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	bad := candidate(1, time.Now())
	bad.Variable = telemetry.VariableUnknown

	recorded, err := m.RecordAll(context.Background(), []telemetry.AlertCandidate{candidate(1, time.Now()), bad, candidate(1, time.Now())})
	require.Error(t, err)
	assert.Len(t, recorded, 1)
	assert.Equal(t, 1, repo.writes)
}

func TestManager_SetStatus(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()

	alert, err := m.Record(ctx, candidate(1, time.Now()))
	require.NoError(t, err)

	updated, err := m.SetStatus(ctx, alert.ID, StatusResolved)
	require.NoError(t, err)
	assert.Equal(t, StatusResolved, updated.Status)

	// Resolved alerts may be reopened.
	updated, err = m.SetStatus(ctx, alert.ID, StatusActive)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, updated.Status)

	got, err := m.Get(ctx, alert.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusActive, got.Status)
}

func TestManager_SetStatusUnknownAlert(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())

	_, err := m.SetStatus(context.Background(), "missing", StatusResolved)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.NotErrorIs(t, err, apperr.ErrPersistence)
	assert.Zero(t, repo.writes)

	_, err = m.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestManager_SetStatusInvalid(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	alert, err := m.Record(context.Background(), candidate(1, time.Now()))
	require.NoError(t, err)

	_, err = m.SetStatus(context.Background(), alert.ID, Status("Closed"))
	var ve *apperr.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, []string{"status"}, ve.Fields)
	assert.Equal(t, 1, repo.writes)
}

func TestManager_ActiveAlertsNewestFirst(t *testing.T) {
	repo := newFakeRepo()
	m := NewManager(repo, zaptest.NewLogger(t).Sugar())
	ctx := context.Background()
	base := time.Date(2025, 5, 4, 10, 0, 0, 0, time.UTC)

	var ids []string
	for i := 0; i < 3; i++ {
		a, err := m.Record(ctx, candidate(int64(i%2+1), base.Add(time.Duration(i)*time.Minute)))
		require.NoError(t, err)
		ids = append(ids, a.ID)
	}
	_, err := m.SetStatus(ctx, ids[1], StatusPending)
	require.NoError(t, err)

	list, err := m.ActiveAlerts(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[2], list[0].ID)
	assert.Equal(t, ids[0], list[1].ID)

	node := int64(2)
	list, err = m.ActiveAlerts(ctx, &node)
	require.NoError(t, err)
	assert.Empty(t, list)
}
