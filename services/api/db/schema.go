package db

import "context"

// schemaSQL creates the tables the ingestion core reads and writes. Nodes and
// sensors are administered by another service; they are declared here so a
// fresh database can run the pipeline.
const schemaSQL = `
CREATE SCHEMA IF NOT EXISTS shizuku;

CREATE TABLE IF NOT EXISTS shizuku.nodes (
    id           BIGINT PRIMARY KEY,
    location     TEXT NOT NULL DEFAULT '',
    status       TEXT NOT NULL DEFAULT 'ON',
    last_seen_at TIMESTAMPTZ
);

CREATE TABLE IF NOT EXISTS shizuku.sensors (
    id          BIGSERIAL PRIMARY KEY,
    node_id     BIGINT NOT NULL REFERENCES shizuku.nodes(id) ON DELETE CASCADE,
    sensor      TEXT NOT NULL DEFAULT '',
    variable    TEXT NOT NULL,
    lower_bound DOUBLE PRECISION NOT NULL,
    upper_bound DOUBLE PRECISION NOT NULL,
    enabled     BOOLEAN NOT NULL DEFAULT TRUE
);

CREATE TABLE IF NOT EXISTS shizuku.readings (
    id          BIGSERIAL PRIMARY KEY,
    node_id     BIGINT NOT NULL REFERENCES shizuku.nodes(id),
    ts          TIMESTAMPTZ NOT NULL,
    temperature DOUBLE PRECISION NOT NULL,
    humidity    DOUBLE PRECISION NOT NULL,
    co2         DOUBLE PRECISION NOT NULL,
    source      TEXT NOT NULL,
    ingested_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS readings_node_ts_idx ON shizuku.readings (node_id, ts DESC);

CREATE TABLE IF NOT EXISTS shizuku.alerts (
    id             TEXT PRIMARY KEY,
    node_id        BIGINT NOT NULL REFERENCES shizuku.nodes(id),
    variable       TEXT NOT NULL,
    observed_value DOUBLE PRECISION NOT NULL,
    violated_bound DOUBLE PRECISION NOT NULL,
    severity       TEXT NOT NULL,
    message        TEXT NOT NULL,
    status         TEXT NOT NULL DEFAULT 'Active',
    detected_at    TIMESTAMPTZ NOT NULL,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS alerts_status_detected_idx ON shizuku.alerts (status, detected_at DESC);
CREATE INDEX IF NOT EXISTS alerts_node_idx ON shizuku.alerts (node_id);
`

// EnsureSchema creates missing tables and indexes. It is idempotent.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}
