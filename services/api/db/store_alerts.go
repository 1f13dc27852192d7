package db

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

const alertColumns = `id, node_id, variable, observed_value, violated_bound, severity, message, status, detected_at, created_at`

const insertAlertSQL = `
    INSERT INTO shizuku.alerts (` + alertColumns + `)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

// InsertAlert writes a new alert row.
func (s *Store) InsertAlert(ctx context.Context, a alerts.Alert) error {
	_, err := s.pool.Exec(ctx, insertAlertSQL,
		a.ID,
		a.NodeID,
		a.Variable.String(),
		a.ObservedValue,
		a.ViolatedBound,
		string(a.Severity),
		a.Message,
		string(a.Status),
		a.DetectedAt,
		a.CreatedAt,
	)
	return err
}

const getAlertSQL = `
    SELECT ` + alertColumns + `
    FROM shizuku.alerts
    WHERE id = $1
`

// GetAlert returns one alert or an apperr.ErrNotFound error.
func (s *Store) GetAlert(ctx context.Context, id string) (alerts.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, getAlertSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return alerts.Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrNotFound)
	}
	return a, err
}

const updateAlertStatusSQL = `
    UPDATE shizuku.alerts
    SET status = $2
    WHERE id = $1
    RETURNING ` + alertColumns

// UpdateAlertStatus overwrites the status of one alert. An unknown id matches
// no row, so nothing is written.
func (s *Store) UpdateAlertStatus(ctx context.Context, id string, status alerts.Status) (alerts.Alert, error) {
	a, err := scanAlert(s.pool.QueryRow(ctx, updateAlertStatusSQL, id, string(status)))
	if errors.Is(err, pgx.ErrNoRows) {
		return alerts.Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrNotFound)
	}
	return a, err
}

// ListAlertsByStatus returns alerts in the given status, newest detection first.
func (s *Store) ListAlertsByStatus(ctx context.Context, status alerts.Status, nodeID *int64) ([]alerts.Alert, error) {
	sql, args := buildListAlertsQuery(status, nodeID)

	rows, err := s.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	list := make([]alerts.Alert, 0)
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, a)
	}
	return list, rows.Err()
}

func buildListAlertsQuery(status alerts.Status, nodeID *int64) (string, []any) {
	args := []any{string(status)}
	clause := ""
	if nodeID != nil {
		args = append(args, *nodeID)
		clause = " AND node_id = $" + strconv.Itoa(len(args))
	}
	sql := "SELECT " + alertColumns + " FROM shizuku.alerts WHERE status = $1" + clause +
		" ORDER BY detected_at DESC, created_at DESC"
	return sql, args
}

func scanAlert(row pgx.Row) (alerts.Alert, error) {
	var (
		a        alerts.Alert
		variable string
		severity string
		status   string
	)
	if err := row.Scan(
		&a.ID,
		&a.NodeID,
		&variable,
		&a.ObservedValue,
		&a.ViolatedBound,
		&severity,
		&a.Message,
		&status,
		&a.DetectedAt,
		&a.CreatedAt,
	); err != nil {
		return alerts.Alert{}, err
	}
	a.Variable, _ = telemetry.ParseVariable(variable)
	a.Severity = telemetry.Severity(severity)
	a.Status = alerts.Status(status)
	return a, nil
}
