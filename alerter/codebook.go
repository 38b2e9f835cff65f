package alerter

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
)

// Codebook holds the categorical encodings fitted at training time. It is
// persisted next to the model artifacts and reloaded for inference, so a
// category keeps the same code across every prediction. Re-fitting an
// encoder per request would silently re-number categories whenever the
// inference-time set differs from training; the codebook exists to rule that
// out.
//
// Code 0 is reserved for "Unknown" in every column: values never seen during
// training map there instead of extending the codebook.
type Codebook struct {
	Columns map[string]map[string]int `json:"columns"`
}

const unknownCategory = "Unknown"

// FitCodebook assigns stable codes to the distinct values of each column.
// Values are sorted before numbering so fitting twice on the same data yields
// byte-identical artifacts.
func FitCodebook(columns map[string][]string) *Codebook {
	cb := &Codebook{Columns: make(map[string]map[string]int, len(columns))}
	for col, values := range columns {
		distinct := make(map[string]struct{}, len(values))
		for _, v := range values {
			if v == "" {
				v = unknownCategory
			}
			distinct[v] = struct{}{}
		}
		delete(distinct, unknownCategory)

		sorted := make([]string, 0, len(distinct))
		for v := range distinct {
			sorted = append(sorted, v)
		}
		sort.Strings(sorted)

		codes := make(map[string]int, len(sorted)+1)
		codes[unknownCategory] = 0
		for i, v := range sorted {
			codes[v] = i + 1
		}
		cb.Columns[col] = codes
	}
	return cb
}

// Code returns the training-time code for a value, or 0 (Unknown) for values
// the codebook has never seen. It never mutates the codebook.
func (c *Codebook) Code(column, value string) int {
	codes, ok := c.Columns[column]
	if !ok {
		return 0
	}
	if value == "" {
		value = unknownCategory
	}
	code, ok := codes[value]
	if !ok {
		return 0
	}
	return code
}

func (c *Codebook) Save(path string) error {
	b, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadCodebook(path string) (*Codebook, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load codebook: %w", err)
	}
	var cb Codebook
	if err := json.Unmarshal(b, &cb); err != nil {
		return nil, fmt.Errorf("load codebook %s: %w", path, err)
	}
	return &cb, nil
}
