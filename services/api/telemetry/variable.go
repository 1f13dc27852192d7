package telemetry

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Variable is one of the monitored quantities carried by a Reading.
type Variable uint8

const (
	VariableUnknown Variable = iota
	Temperature
	Humidity
	CO2
)

// Band is a closed [Min, Max] interval.
type Band struct {
	Min float64
	Max float64
}

// Contains reports whether v lies inside the band, bounds included.
func (b Band) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

type variableDef struct {
	name      string
	label     string
	aliases   []string
	value     func(Reading) float64
	reference Band
}

// variableTable maps each variant to its Reading field and fixed reference band.
// The reference bands only drive the local anomaly heuristic; per-node limits
// come from SensorConfig.
var variableTable = map[Variable]variableDef{
	Temperature: {
		name:      "temperature",
		label:     "Temperature",
		aliases:   []string{"temp", "temperatura"},
		value:     func(r Reading) float64 { return r.Temperature },
		reference: Band{Min: 18, Max: 26},
	},
	Humidity: {
		name:      "humidity",
		label:     "Humidity",
		aliases:   []string{"hum", "humedad"},
		value:     func(r Reading) float64 { return r.Humidity },
		reference: Band{Min: 30, Max: 70},
	},
	CO2: {
		name:      "co2",
		label:     "CO2",
		value:     func(r Reading) float64 { return r.CO2 },
		reference: Band{Min: 300, Max: 1000},
	},
}

// Variables lists the known variables in canonical order.
func Variables() []Variable {
	return []Variable{Temperature, Humidity, CO2}
}

// ParseVariable maps a stored or wire name to a Variable. Matching is
// case-insensitive and accepts the legacy short forms.
func ParseVariable(s string) (Variable, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for v, def := range variableTable {
		if s == def.name {
			return v, true
		}
		for _, alias := range def.aliases {
			if s == alias {
				return v, true
			}
		}
	}
	return VariableUnknown, false
}

// String returns the wire name.
func (v Variable) String() string {
	if def, ok := variableTable[v]; ok {
		return def.name
	}
	return "unknown"
}

// Label returns the human-readable name used in alert messages.
func (v Variable) Label() string {
	if def, ok := variableTable[v]; ok {
		return def.label
	}
	return "Unknown"
}

// Valid reports whether v is one of the known variables.
func (v Variable) Valid() bool {
	_, ok := variableTable[v]
	return ok
}

// ReferenceBand returns the fixed band used by the fallback anomaly heuristic.
func (v Variable) ReferenceBand() (Band, bool) {
	def, ok := variableTable[v]
	return def.reference, ok
}

// ValueOf returns the reading field for v.
func (v Variable) ValueOf(r Reading) (float64, bool) {
	def, ok := variableTable[v]
	if !ok {
		return 0, false
	}
	return def.value(r), true
}

func (v Variable) MarshalJSON() ([]byte, error) {
	if !v.Valid() {
		return nil, fmt.Errorf("cannot marshal unknown variable %d", v)
	}
	return json.Marshal(v.String())
}

func (v *Variable) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, ok := ParseVariable(s)
	if !ok {
		return fmt.Errorf("unknown variable %q", s)
	}
	*v = parsed
	return nil
}
