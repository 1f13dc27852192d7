package scoring

import (
	"github.com/02loveslollipop/Shizuku-envmon/services/api/telemetry"
)

// Source says who produced a verdict.
type Source string

const (
	SourceRemote   Source = "remote"
	SourceFallback Source = "fallback"
)

// AnomalyVerdict is the outcome of scoring one reading. Lower scores are
// more anomalous.
type AnomalyVerdict struct {
	NodeID            int64   `json:"node_id"`
	IsAnomaly         bool    `json:"is_anomaly"`
	Score             float64 `json:"score"`
	TemperatureNormal bool    `json:"temperature_normal"`
	HumidityNormal    bool    `json:"humidity_normal"`
	CO2Normal         bool    `json:"co2_normal"`
	Threshold         float64 `json:"threshold"`
	Source            Source  `json:"source"`
}

// Fallback scores r against the fixed reference bands: each variable outside
// its band counts as one anomaly, the score is -anomalies/3 and the verdict
// is decided by comparing that score with threshold.
func Fallback(r telemetry.Reading, threshold float64) AnomalyVerdict {
	v := withNormalFlags(AnomalyVerdict{NodeID: r.NodeID, Threshold: threshold, Source: SourceFallback}, r)

	anomalies := 0
	for _, normal := range []bool{v.TemperatureNormal, v.HumidityNormal, v.CO2Normal} {
		if !normal {
			anomalies++
		}
	}
	v.Score = -float64(anomalies) / 3.0
	v.IsAnomaly = v.Score < threshold
	return v
}

func withNormalFlags(v AnomalyVerdict, r telemetry.Reading) AnomalyVerdict {
	v.TemperatureNormal = inReferenceBand(telemetry.Temperature, r)
	v.HumidityNormal = inReferenceBand(telemetry.Humidity, r)
	v.CO2Normal = inReferenceBand(telemetry.CO2, r)
	return v
}

func inReferenceBand(variable telemetry.Variable, r telemetry.Reading) bool {
	value, _ := variable.ValueOf(r)
	band, _ := variable.ReferenceBand()
	return band.Contains(value)
}
