package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Store wraps database access helpers.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store backed by a pgx pool.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the pool resources.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Node is the monitoring node a reading belongs to. Nodes are administered
// elsewhere; the ingestion path only reads them and bumps LastSeenAt.
type Node struct {
	ID         int64      `json:"id"`
	Location   string     `json:"location"`
	Status     string     `json:"status"`
	LastSeenAt *time.Time `json:"last_seen_at,omitempty"`
}

const getNodeSQL = `
    SELECT id, location, status, last_seen_at
    FROM shizuku.nodes
    WHERE id = $1
`

// GetNode returns the node with the given id or an apperr.ErrNotFound error.
func (s *Store) GetNode(ctx context.Context, id int64) (Node, error) {
	var n Node
	err := s.pool.QueryRow(ctx, getNodeSQL, id).Scan(&n.ID, &n.Location, &n.Status, &n.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Node{}, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	if err != nil {
		return Node{}, err
	}
	return n, nil
}

const touchNodeSQL = `
    UPDATE shizuku.nodes
    SET last_seen_at = $2
    WHERE id = $1
`

// TouchNode records that node id was heard from at ts.
func (s *Store) TouchNode(ctx context.Context, id int64, ts time.Time) error {
	tag, err := s.pool.Exec(ctx, touchNodeSQL, id, ts)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	return nil
}

const sensorConfigsSQL = `
    SELECT id, node_id, sensor, variable, lower_bound, upper_bound, enabled
    FROM shizuku.sensors
    WHERE node_id = $1
    ORDER BY id
`

// SensorConfigs returns every sensor configured on a node, enabled or not.
// Rows with an unrecognised variable are returned with VariableUnknown.
func (s *Store) SensorConfigs(ctx context.Context, nodeID int64) ([]telemetry.SensorConfig, error) {
	rows, err := s.pool.Query(ctx, sensorConfigsSQL, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	configs := make([]telemetry.SensorConfig, 0)
	for rows.Next() {
		var cfg telemetry.SensorConfig
		var variable string
		if err := rows.Scan(
			&cfg.ID,
			&cfg.NodeID,
			&cfg.Sensor,
			&variable,
			&cfg.LowerBound,
			&cfg.UpperBound,
			&cfg.Enabled,
		); err != nil {
			return nil, err
		}
		cfg.Variable, _ = telemetry.ParseVariable(variable)
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

const insertReadingSQL = `
    INSERT INTO shizuku.readings (node_id, ts, temperature, humidity, co2, source, ingested_at)
    VALUES ($1, $2, $3, $4, $5, $6, NOW())
    RETURNING id
`

// InsertReading stores r and returns a copy carrying the generated id.
func (s *Store) InsertReading(ctx context.Context, r telemetry.Reading, source string) (telemetry.Reading, error) {
	var id int64
	if err := s.pool.QueryRow(ctx, insertReadingSQL,
		r.NodeID, r.Timestamp, r.Temperature, r.Humidity, r.CO2, source,
	).Scan(&id); err != nil {
		return telemetry.Reading{}, err
	}
	r.ID = id
	return r, nil
}
