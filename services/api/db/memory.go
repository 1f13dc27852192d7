package db

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/alerts"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/apperr"
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// MemoryStore is an in-process implementation of the storage the pipeline
// needs. It backs the memory driver and the package tests.
type MemoryStore struct {
	mu            sync.RWMutex
	nodes         map[int64]Node
	sensors       map[int64][]telemetry.SensorConfig
	readings      []telemetry.Reading
	alerts        map[string]alerts.Alert
	nextReadingID int64
	nextSensorID  int64
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		nodes:   make(map[int64]Node),
		sensors: make(map[int64][]telemetry.SensorConfig),
		alerts:  make(map[string]alerts.Alert),
	}
}

// PutNode adds or replaces a node.
func (s *MemoryStore) PutNode(n Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[n.ID] = n
}

// PutSensor attaches a sensor config to its node, assigning an id when zero.
// A config carrying an existing id replaces that sensor.
func (s *MemoryStore) PutSensor(cfg telemetry.SensorConfig) telemetry.SensorConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case cfg.ID == 0:
		s.nextSensorID++
		cfg.ID = s.nextSensorID
	case cfg.ID > s.nextSensorID:
		s.nextSensorID = cfg.ID
	}
	list := s.sensors[cfg.NodeID]
	for i := range list {
		if list[i].ID == cfg.ID {
			list[i] = cfg
			return cfg
		}
	}
	s.sensors[cfg.NodeID] = append(list, cfg)
	return cfg
}

func (s *MemoryStore) GetNode(_ context.Context, id int64) (Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	return n, nil
}

func (s *MemoryStore) TouchNode(_ context.Context, id int64, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("node %d: %w", id, apperr.ErrNotFound)
	}
	seen := ts
	n.LastSeenAt = &seen
	s.nodes[id] = n
	return nil
}

func (s *MemoryStore) SensorConfigs(_ context.Context, nodeID int64) ([]telemetry.SensorConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]telemetry.SensorConfig, len(s.sensors[nodeID]))
	copy(out, s.sensors[nodeID])
	return out, nil
}

func (s *MemoryStore) InsertReading(_ context.Context, r telemetry.Reading, _ string) (telemetry.Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextReadingID++
	r.ID = s.nextReadingID
	s.readings = append(s.readings, r)
	return r, nil
}

// Readings returns a copy of every stored reading in insertion order.
func (s *MemoryStore) Readings() []telemetry.Reading {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]telemetry.Reading, len(s.readings))
	copy(out, s.readings)
	return out
}

func (s *MemoryStore) InsertAlert(_ context.Context, a alerts.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.alerts[a.ID]; exists {
		return fmt.Errorf("alert %s already exists", a.ID)
	}
	s.alerts[a.ID] = a
	return nil
}

func (s *MemoryStore) GetAlert(_ context.Context, id string) (alerts.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.alerts[id]
	if !ok {
		return alerts.Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrNotFound)
	}
	return a, nil
}

func (s *MemoryStore) UpdateAlertStatus(_ context.Context, id string, status alerts.Status) (alerts.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return alerts.Alert{}, fmt.Errorf("alert %s: %w", id, apperr.ErrNotFound)
	}
	a.Status = status
	s.alerts[id] = a
	return a, nil
}

func (s *MemoryStore) ListAlertsByStatus(_ context.Context, status alerts.Status, nodeID *int64) ([]alerts.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]alerts.Alert, 0)
	for _, a := range s.alerts {
		if a.Status != status {
			continue
		}
		if nodeID != nil && a.NodeID != *nodeID {
			continue
		}
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DetectedAt.Equal(out[j].DetectedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].DetectedAt.After(out[j].DetectedAt)
	})
	return out, nil
}

// AlertCount returns the number of stored alerts regardless of status.
func (s *MemoryStore) AlertCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.alerts)
}

// Seed is the on-disk layout accepted by LoadSeed.
type Seed struct {
	Nodes   []Node       `json:"nodes"`
	Sensors []seedSensor `json:"sensors"`
}

type seedSensor struct {
	ID         int64   `json:"id"`
	NodeID     int64   `json:"node_id"`
	Sensor     string  `json:"sensor"`
	Variable   string  `json:"variable"`
	LowerBound float64 `json:"lower_bound"`
	UpperBound float64 `json:"upper_bound"`
	Enabled    *bool   `json:"enabled"`
}

// LoadSeed reads nodes and sensor configs from a JSON file into s.
func (s *MemoryStore) LoadSeed(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var seed Seed
	if err := json.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("decode seed: %w", err)
	}

	for _, n := range seed.Nodes {
		if n.Status == "" {
			n.Status = "ON"
		}
		s.PutNode(n)
	}
	// Explicit ids are reserved up front so generated ones never reuse them.
	seen := make(map[int64]bool, len(seed.Sensors))
	for _, ss := range seed.Sensors {
		if ss.ID == 0 {
			continue
		}
		if seen[ss.ID] {
			return fmt.Errorf("seed sensor %d: duplicate id", ss.ID)
		}
		seen[ss.ID] = true
	}
	s.mu.Lock()
	for id := range seen {
		if id > s.nextSensorID {
			s.nextSensorID = id
		}
	}
	s.mu.Unlock()

	for _, ss := range seed.Sensors {
		variable, ok := telemetry.ParseVariable(ss.Variable)
		if !ok {
			return fmt.Errorf("seed sensor %d: unknown variable %q", ss.ID, ss.Variable)
		}
		enabled := ss.Enabled == nil || *ss.Enabled
		s.PutSensor(telemetry.SensorConfig{
			ID:         ss.ID,
			NodeID:     ss.NodeID,
			Sensor:     ss.Sensor,
			Variable:   variable,
			LowerBound: ss.LowerBound,
			UpperBound: ss.UpperBound,
			Enabled:    enabled,
		})
	}
	return nil
}
