package alerter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// Scaler standardizes feature vectors with statistics computed from the
// training split only. It is persisted as an artifact and reloaded at
// inference time; refitting on new data would break comparability across
// predictions.
type Scaler struct {
	Features []string  `json:"features"`
	Mean     []float64 `json:"mean"`
	Std      []float64 `json:"std"`
}

// FitScaler computes per-feature mean and standard deviation over the rows
// where the feature is present. Absent features (nil score ratio, missing
// attendance row) are excluded from the statistics rather than counted as
// zero.
func FitScaler(features []string, rows []map[string]float64) *Scaler {
	s := &Scaler{
		Features: features,
		Mean:     make([]float64, len(features)),
		Std:      make([]float64, len(features)),
	}
	for fi, name := range features {
		var sum float64
		var n int
		for _, row := range rows {
			if v, ok := row[name]; ok {
				sum += v
				n++
			}
		}
		mean := 0.0
		if n > 0 {
			mean = sum / float64(n)
		}
		var sq float64
		for _, row := range rows {
			if v, ok := row[name]; ok {
				d := v - mean
				sq += d * d
			}
		}
		std := 0.0
		if n > 0 {
			std = math.Sqrt(sq / float64(n))
		}
		if std == 0 {
			std = 1
		}
		s.Mean[fi] = mean
		s.Std[fi] = std
	}
	return s
}

// Transform maps a sparse feature row to the fixed standardized vector.
// A feature absent from the row lands exactly on the training mean (z = 0),
// making undefined ratios and missing attendance neutral, non-contributing
// signals.
func (s *Scaler) Transform(row map[string]float64) []float64 {
	out := make([]float64, len(s.Features))
	for fi, name := range s.Features {
		v, ok := row[name]
		if !ok {
			v = s.Mean[fi]
		}
		out[fi] = (v - s.Mean[fi]) / s.Std[fi]
	}
	return out
}

func (s *Scaler) Save(path string) error {
	b, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadScaler(path string) (*Scaler, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load scaler: %w", err)
	}
	var s Scaler
	if err := json.Unmarshal(b, &s); err != nil {
		return nil, fmt.Errorf("load scaler %s: %w", path, err)
	}
	if len(s.Features) != len(s.Mean) || len(s.Features) != len(s.Std) {
		return nil, fmt.Errorf("load scaler %s: inconsistent feature/stat lengths", path)
	}
	return &s, nil
}
