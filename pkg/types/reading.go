package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// NumFeatures is the length of the model input vector.
const NumFeatures = 8

// FeatureNames lists the JSON keys of a Reading in model input order.
var FeatureNames = [NumFeatures]string{
	"cycle_index",
	"discharge_time",
	"decrement",
	"max_voltage_discharge",
	"min_voltage_dcharge",
	"time_at_4_15",
	"time_constant_current",
	"charging_time",
}

// ErrInvalidReading is wrapped by every error ParseReading returns.
var ErrInvalidReading = errors.New("invalid reading")

// Reading is one charge/discharge cycle summary of a monitored cell.
type Reading struct {
	CycleIndex          float64 `json:"cycle_index"`
	DischargeTime       float64 `json:"discharge_time"`
	Decrement           float64 `json:"decrement"`
	MaxVoltageDischarge float64 `json:"max_voltage_discharge"`
	MinVoltageDcharge   float64 `json:"min_voltage_dcharge"`
	TimeAt415           float64 `json:"time_at_4_15"`
	TimeConstantCurrent float64 `json:"time_constant_current"`
	ChargingTime        float64 `json:"charging_time"`
}

// Vector returns the reading as a model input vector ordered like FeatureNames.
func (r Reading) Vector() []float64 {
	return []float64{
		r.CycleIndex,
		r.DischargeTime,
		r.Decrement,
		r.MaxVoltageDischarge,
		r.MinVoltageDcharge,
		r.TimeAt415,
		r.TimeConstantCurrent,
		r.ChargingTime,
	}
}

// Field returns the value stored under the given JSON key.
func (r Reading) Field(name string) (float64, bool) {
	for i, n := range FeatureNames {
		if n == name {
			return r.Vector()[i], true
		}
	}
	return 0, false
}

// ReadingFromVector is the inverse of Reading.Vector.
func ReadingFromVector(v []float64) (Reading, error) {
	if len(v) != NumFeatures {
		return Reading{}, fmt.Errorf("%w: got %d values, want %d", ErrInvalidReading, len(v), NumFeatures)
	}
	return Reading{
		CycleIndex:          v[0],
		DischargeTime:       v[1],
		Decrement:           v[2],
		MaxVoltageDischarge: v[3],
		MinVoltageDcharge:   v[4],
		TimeAt415:           v[5],
		TimeConstantCurrent: v[6],
		ChargingTime:        v[7],
	}, nil
}

// ParseReading decodes a JSON object into a Reading.
//
// Every key in FeatureNames must be present. Values may be JSON numbers or
// strings holding a decimal number; anything else is rejected, as are
// non-finite values. Unknown keys are ignored.
func ParseReading(data []byte) (Reading, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return Reading{}, fmt.Errorf("%w: empty body", ErrInvalidReading)
	}
	if data[0] != '{' {
		return Reading{}, fmt.Errorf("%w: expected a JSON object", ErrInvalidReading)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return Reading{}, fmt.Errorf("%w: %v", ErrInvalidReading, err)
	}

	vec := make([]float64, NumFeatures)
	for i, key := range FeatureNames {
		raw, ok := fields[key]
		if !ok {
			return Reading{}, fmt.Errorf("%w: missing field %q", ErrInvalidReading, key)
		}
		v, err := parseValue(key, raw)
		if err != nil {
			return Reading{}, err
		}
		vec[i] = v
	}
	return ReadingFromVector(vec)
}

func parseValue(key string, raw json.RawMessage) (float64, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return 0, fmt.Errorf("%w: field %q: %v", ErrInvalidReading, key, err)
	}

	var (
		f   float64
		err error
	)
	switch x := v.(type) {
	case json.Number:
		f, err = x.Float64()
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return 0, fmt.Errorf("%w: field %q is empty", ErrInvalidReading, key)
		}
		if isHexLiteral(s) {
			return 0, fmt.Errorf("%w: field %q: %s is not a decimal number", ErrInvalidReading, key, string(raw))
		}
		f, err = strconv.ParseFloat(s, 64)
	case nil:
		return 0, fmt.Errorf("%w: field %q is null", ErrInvalidReading, key)
	default:
		return 0, fmt.Errorf("%w: field %q must be a number, got %s", ErrInvalidReading, key, jsonKind(v))
	}
	if err != nil {
		return 0, fmt.Errorf("%w: field %q: %s is not a number", ErrInvalidReading, key, string(raw))
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: field %q is not finite", ErrInvalidReading, key)
	}
	return f, nil
}

// isHexLiteral reports whether s is a hexadecimal literal, which ParseFloat
// would otherwise accept.
func isHexLiteral(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return len(s) > 1 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case bool:
		return "boolean"
	case map[string]interface{}:
		return "object"
	case []interface{}:
		return "array"
	default:
		return fmt.Sprintf("%T", v)
	}
}
