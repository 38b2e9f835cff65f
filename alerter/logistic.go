package alerter

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// LogisticModel is a binary logistic regression over standardized features.
// Training is plain batch gradient descent: the data sets here are small
// cohort snapshots, and a deterministic fit keeps artifacts reproducible.
type LogisticModel struct {
	Weights []float64 `json:"weights"`
	Bias    float64   `json:"bias"`
}

func sigmoid(z float64) float64 {
	return 1 / (1 + math.Exp(-z))
}

// TrainLogistic fits the model on the training split. No randomness: weights
// start at zero and updates are full-batch, so identical inputs produce the
// identical model.
func TrainLogistic(x [][]float64, y []int, epochs int, rate float64) (*LogisticModel, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("train logistic: no rows")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("train logistic: %d rows vs %d labels", len(x), len(y))
	}
	dims := len(x[0])
	if epochs <= 0 {
		epochs = 400
	}
	if rate <= 0 {
		rate = 0.1
	}

	m := &LogisticModel{Weights: make([]float64, dims)}
	n := float64(len(x))
	gradW := make([]float64, dims)
	for e := 0; e < epochs; e++ {
		for i := range gradW {
			gradW[i] = 0
		}
		gradB := 0.0
		for i, row := range x {
			p := m.predictRow(row)
			diff := p - float64(y[i])
			for j, v := range row {
				gradW[j] += diff * v
			}
			gradB += diff
		}
		for j := range m.Weights {
			m.Weights[j] -= rate * gradW[j] / n
		}
		m.Bias -= rate * gradB / n
	}
	return m, nil
}

func (m *LogisticModel) predictRow(row []float64) float64 {
	z := m.Bias
	for j, v := range row {
		if j < len(m.Weights) {
			z += m.Weights[j] * v
		}
	}
	return sigmoid(z)
}

// Predict returns the predicted class and the class-1 probability.
func (m *LogisticModel) Predict(row []float64) (int, float64) {
	p := m.predictRow(row)
	if p >= 0.5 {
		return 1, p
	}
	return 0, p
}

func (m *LogisticModel) Save(path string) error {
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o644)
}

func LoadLogistic(path string) (*LogisticModel, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load logistic model: %w", err)
	}
	var m LogisticModel
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("load logistic model %s: %w", path, err)
	}
	return &m, nil
}
