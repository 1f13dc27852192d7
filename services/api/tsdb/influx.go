// Package tsdb mirrors persisted readings into InfluxDB for dashboarding.
package tsdb

import (
	"context"
	"strconv"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Measurement is the InfluxDB measurement readings are written to.
const Measurement = "environment"

// InfluxMirror writes one point per reading, tagged by node.
type InfluxMirror struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInfluxMirror connects to the InfluxDB v2 server at url.
func NewInfluxMirror(url, token, org, bucket string) *InfluxMirror {
	client := influxdb2.NewClient(url, token)
	return &InfluxMirror{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
	}
}

// WriteReading writes r synchronously.
func (m *InfluxMirror) WriteReading(ctx context.Context, r telemetry.Reading) error {
	tags := map[string]string{"node_id": strconv.FormatInt(r.NodeID, 10)}
	fields := make(map[string]interface{}, len(telemetry.Variables()))
	for _, v := range telemetry.Variables() {
		value, _ := v.ValueOf(r)
		fields[v.String()] = value
	}

	p := influxdb2.NewPoint(Measurement, tags, fields, r.Timestamp)
	return m.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (m *InfluxMirror) Close() {
	m.client.Close()
}
