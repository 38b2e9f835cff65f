package alerter

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestCodebookStableAndUnknownSafe(t *testing.T) {
	cols := map[string][]string{
		"student_name": {"Bek", "Asel", "Dana", "Asel", ""},
	}
	cb := FitCodebook(cols)
	again := FitCodebook(cols)
	if !reflect.DeepEqual(cb, again) {
		t.Fatalf("two fits on identical data differ:\n%+v\n%+v", cb, again)
	}

	// Sorted numbering from 1; 0 stays reserved for Unknown.
	if cb.Code("student_name", "Asel") != 1 || cb.Code("student_name", "Bek") != 2 || cb.Code("student_name", "Dana") != 3 {
		t.Fatalf("codes = %+v", cb.Columns["student_name"])
	}
	if cb.Code("student_name", "Nursultan") != 0 {
		t.Fatal("unseen value must map to 0")
	}
	if cb.Code("student_name", "") != 0 {
		t.Fatal("empty value must map to 0")
	}
	if cb.Code("no_such_column", "x") != 0 {
		t.Fatal("unknown column must map to 0")
	}
	// Lookups never extend the codebook.
	if len(cb.Columns["student_name"]) != 4 {
		t.Fatalf("codebook mutated by lookup: %+v", cb.Columns["student_name"])
	}
}

func TestScalerAbsentFeatureIsNeutral(t *testing.T) {
	rows := []map[string]float64{
		{"decline": 10},
		{"decline": 20},
		{"decline": 30},
		{}, // feature absent: excluded from the statistics
	}
	s := FitScaler([]string{"decline"}, rows)
	if s.Mean[0] != 20 {
		t.Fatalf("mean = %v, want 20 over present values only", s.Mean[0])
	}

	z := s.Transform(map[string]float64{})
	if z[0] != 0 {
		t.Fatalf("absent feature z = %v, want exactly 0", z[0])
	}
	z = s.Transform(map[string]float64{"decline": 20})
	if z[0] != 0 {
		t.Fatalf("mean value z = %v, want 0", z[0])
	}
	z = s.Transform(map[string]float64{"decline": 30})
	if z[0] <= 0 {
		t.Fatalf("above-mean value z = %v, want positive", z[0])
	}
}

func TestScalerConstantFeatureDoesNotDivideByZero(t *testing.T) {
	rows := []map[string]float64{{"flat": 5}, {"flat": 5}}
	s := FitScaler([]string{"flat"}, rows)
	z := s.Transform(map[string]float64{"flat": 5})
	if math.IsNaN(z[0]) || math.IsInf(z[0], 0) {
		t.Fatalf("constant feature z = %v", z[0])
	}
}

func TestStratifiedSplitKeepsClassRatio(t *testing.T) {
	y := make([]int, 50)
	for i := 40; i < 50; i++ {
		y[i] = 1
	}
	trainIdx, testIdx := StratifiedSplit(y, 0.2, splitSeed)

	if len(trainIdx)+len(testIdx) != len(y) {
		t.Fatalf("split loses rows: %d+%d != %d", len(trainIdx), len(testIdx), len(y))
	}
	count := func(idx []int) (zeros, ones int) {
		for _, i := range idx {
			if y[i] == 1 {
				ones++
			} else {
				zeros++
			}
		}
		return
	}
	_, testOnes := count(testIdx)
	testZeros := len(testIdx) - testOnes
	if testZeros != 8 || testOnes != 2 {
		t.Fatalf("test split = %d/%d, want 8 zeros and 2 ones", testZeros, testOnes)
	}

	// Seeded shuffle: the same seed reproduces the same partition.
	train2, test2 := StratifiedSplit(y, 0.2, splitSeed)
	if !reflect.DeepEqual(trainIdx, train2) || !reflect.DeepEqual(testIdx, test2) {
		t.Fatal("identical seed produced a different split")
	}
}

func TestTrainLogisticSeparatesClasses(t *testing.T) {
	x := [][]float64{{-2}, {-1.5}, {-1}, {1}, {1.5}, {2}}
	y := []int{0, 0, 0, 1, 1, 1}
	m, err := TrainLogistic(x, y, 0, 0)
	if err != nil {
		t.Fatalf("TrainLogistic: %v", err)
	}
	for i, row := range x {
		pred, prob := m.Predict(row)
		if pred != y[i] {
			t.Fatalf("row %v predicted %d (p=%v), want %d", row, pred, prob, y[i])
		}
	}
	if _, pLow := m.Predict([]float64{-3}); pLow >= 0.5 {
		t.Fatalf("far negative row p=%v, want < 0.5", pLow)
	}
	if _, pHigh := m.Predict([]float64{3}); pHigh <= 0.5 {
		t.Fatalf("far positive row p=%v, want > 0.5", pHigh)
	}
}

func TestTrainTreeHonorsDepthBound(t *testing.T) {
	x := [][]float64{{1}, {2}, {3}, {4}, {5}, {6}, {7}, {8}}
	y := []int{0, 0, 1, 1, 0, 0, 1, 1}
	m, err := TrainTree(x, y, 2)
	if err != nil {
		t.Fatalf("TrainTree: %v", err)
	}
	var depth func(n *TreeNode) int
	depth = func(n *TreeNode) int {
		if n == nil || n.Leaf {
			return 0
		}
		l, r := depth(n.Left), depth(n.Right)
		if l > r {
			return l + 1
		}
		return r + 1
	}
	if d := depth(m.Root); d > 2 {
		t.Fatalf("tree depth = %d, exceeds bound 2", d)
	}
}

func TestTrainTreeSeparableData(t *testing.T) {
	x := [][]float64{{-2}, {-1}, {-0.5}, {0.5}, {1}, {2}}
	y := []int{0, 0, 0, 1, 1, 1}
	m, err := TrainTree(x, y, 5)
	if err != nil {
		t.Fatalf("TrainTree: %v", err)
	}
	for i, row := range x {
		if pred, _ := m.Predict(row); pred != y[i] {
			t.Fatalf("row %v predicted %d, want %d", row, pred, y[i])
		}
	}
}

func labeledCohort() []FeatureRecord {
	declining := true
	stable := false
	recs := make([]FeatureRecord, 0, 20)
	for i := 0; i < 10; i++ {
		recs = append(recs, FeatureRecord{
			StudentID:     int64(i + 1),
			StudentName:   "Stable",
			HasAttendance: true,
			AvgAttendance: 90 + float64(i%3),
			DeclineScore:  1 + float64(i%2),
			LowestWeek:    85,
			HighestWeek:   95,
			Declining:     &stable,
		})
	}
	for i := 0; i < 10; i++ {
		recs = append(recs, FeatureRecord{
			StudentID:     int64(i + 11),
			StudentName:   "Declining",
			HasAttendance: true,
			AvgAttendance: 60 - float64(i%3),
			DeclineScore:  20 + float64(i%2),
			LowestWeek:    30,
			HighestWeek:   80,
			Declining:     &declining,
		})
	}
	return recs
}

func TestTrainModelsWritesArtifactsAndReloads(t *testing.T) {
	dir := t.TempDir()
	summary, err := TrainModels(labeledCohort(), dir)
	if err != nil {
		t.Fatalf("TrainModels: %v", err)
	}
	if summary.TrainRows != 16 || summary.TestRows != 4 {
		t.Fatalf("split = %d/%d, want 16/4", summary.TrainRows, summary.TestRows)
	}

	for _, name := range []string{ScalerArtifact, CodebookArtifact, LogisticArtifact, TreeArtifact} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Fatalf("artifact %s: %v", name, err)
		}
	}

	for _, strategy := range []string{StrategyLogistic, StrategyTree} {
		clf, err := LoadClassifier(dir, strategy)
		if err != nil {
			t.Fatalf("LoadClassifier(%s): %v", strategy, err)
		}
		risks := clf.Evaluate(labeledCohort(), DefaultTierThresholds)
		if len(risks) != 20 {
			t.Fatalf("%s: got %d risk records, want 20", strategy, len(risks))
		}
		// Fully separable cohort: declining students must score above stable
		// ones under either model.
		var stableMax, decliningMin float64 = 0, 1
		for _, r := range risks {
			if r.StudentID <= 10 {
				if r.RiskScore > stableMax {
					stableMax = r.RiskScore
				}
			} else if r.RiskScore < decliningMin {
				decliningMin = r.RiskScore
			}
			if r.ModelUsed != strategy {
				t.Fatalf("record carries model %q, want %s", r.ModelUsed, strategy)
			}
		}
		if decliningMin <= stableMax {
			t.Fatalf("%s: declining min %v not above stable max %v", strategy, decliningMin, stableMax)
		}
	}
}

func TestTrainModelsRejectsTinyCohorts(t *testing.T) {
	declining := true
	recs := []FeatureRecord{
		{StudentID: 1, Declining: &declining},
		{StudentID: 2},
		{StudentID: 3},
	}
	if _, err := TrainModels(recs, t.TempDir()); err == nil {
		t.Fatal("expected error for under-labeled cohort")
	}
}

func TestLoadClassifierUnknownModel(t *testing.T) {
	dir := t.TempDir()
	if _, err := TrainModels(labeledCohort(), dir); err != nil {
		t.Fatalf("TrainModels: %v", err)
	}
	if _, err := LoadClassifier(dir, "svm"); err == nil {
		t.Fatal("expected error for unknown model name")
	}
}
