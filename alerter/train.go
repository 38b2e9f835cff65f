package alerter

import (
	"fmt"
	"math/rand"
	"path/filepath"
	"sort"
)

// Artifact file names. A training run writes a fresh set; inference only ever
// reads them.
const (
	ScalerArtifact   = "scaler.json"
	CodebookArtifact = "codebook.json"
	LogisticArtifact = "logistic.json"
	TreeArtifact     = "tree.json"
)

// Strategy names accepted by the runner.
const (
	StrategyRules    = "rules"
	StrategyLogistic = "logistic"
	StrategyTree     = "tree"
)

// splitSeed matches the prototype's fixed random_state so artifact
// regeneration is reproducible.
const splitSeed = 42

// vectorize turns one feature record into a sparse named row. Features with
// no defined value (nil ratio, missing attendance row) are omitted so the
// scaler can substitute the training mean instead of a literal zero.
func vectorize(rec FeatureRecord, cb *Codebook) map[string]float64 {
	row := map[string]float64{
		"attempt_count": float64(rec.AttemptCount),
		"due_amount":    rec.DueAmount,
		"overdue_days":  float64(rec.OverdueDays),
		"student_name":  float64(cb.Code("student_name", rec.StudentName)),
		"mentor_name":   float64(cb.Code("mentor_name", rec.MentorName)),
		"parent_name":   float64(cb.Code("parent_name", rec.ParentName)),
	}
	if rec.HasAttendance {
		row["average_attendance"] = rec.AvgAttendance
		row["attendance_decline_score"] = rec.DeclineScore
		row["lowest_week_attendance"] = rec.LowestWeek
		row["highest_week_attendance"] = rec.HighestWeek
		for i, v := range rec.Weekly {
			row[fmt.Sprintf("week_%d_attendance", i+1)] = v
		}
	}
	if rec.AvgScoreRatio != nil {
		row["avg_score_ratio"] = *rec.AvgScoreRatio
	}
	if rec.LatestScorePct != nil {
		row["latest_score_pct"] = *rec.LatestScorePct
	}
	return row
}

// featureNames is the sorted union of feature keys over the training rows;
// sorting keeps the artifact stable across runs.
func featureNames(rows []map[string]float64) []string {
	seen := make(map[string]struct{})
	for _, row := range rows {
		for k := range row {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// StratifiedSplit partitions indices into train/test keeping the class ratio
// in both splits. Shuffling is seeded, so the split is reproducible.
func StratifiedSplit(y []int, testFrac float64, seed int64) (trainIdx, testIdx []int) {
	rng := rand.New(rand.NewSource(seed))
	byClass := map[int][]int{}
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	classes := make([]int, 0, len(byClass))
	for c := range byClass {
		classes = append(classes, c)
	}
	sort.Ints(classes)

	for _, c := range classes {
		idx := byClass[c]
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		nTest := int(float64(len(idx))*testFrac + 0.5)
		if nTest >= len(idx) && len(idx) > 1 {
			nTest = len(idx) - 1
		}
		testIdx = append(testIdx, idx[:nTest]...)
		trainIdx = append(trainIdx, idx[nTest:]...)
	}
	sort.Ints(trainIdx)
	sort.Ints(testIdx)
	return trainIdx, testIdx
}

// ClassMetrics are holdout precision/recall for one class.
type ClassMetrics struct {
	Precision float64
	Recall    float64
	Support   int
}

// EvalReport summarizes one model's holdout performance.
type EvalReport struct {
	Model    string
	Accuracy float64
	Classes  map[int]ClassMetrics
}

func evaluate(model string, predict func([]float64) (int, float64), x [][]float64, y []int) EvalReport {
	rep := EvalReport{Model: model, Classes: make(map[int]ClassMetrics)}
	correct := 0
	tp := map[int]int{}
	fp := map[int]int{}
	fn := map[int]int{}
	support := map[int]int{}
	for i, row := range x {
		pred, _ := predict(row)
		support[y[i]]++
		if pred == y[i] {
			correct++
			tp[pred]++
		} else {
			fp[pred]++
			fn[y[i]]++
		}
	}
	if len(y) > 0 {
		rep.Accuracy = float64(correct) / float64(len(y))
	}
	for _, c := range []int{0, 1} {
		m := ClassMetrics{Support: support[c]}
		if tp[c]+fp[c] > 0 {
			m.Precision = float64(tp[c]) / float64(tp[c]+fp[c])
		}
		if tp[c]+fn[c] > 0 {
			m.Recall = float64(tp[c]) / float64(tp[c]+fn[c])
		}
		rep.Classes[c] = m
	}
	return rep
}

// TrainSummary reports one training run.
type TrainSummary struct {
	TrainRows int
	TestRows  int
	Features  int
	Logistic  EvalReport
	Tree      EvalReport
}

// TrainModels fits the codebook, scaler and both classifiers from labeled
// feature records and writes all four artifacts into dir. Codebook and scaler
// statistics come from the training split only; the holdout never leaks into
// preprocessing.
func TrainModels(recs []FeatureRecord, dir string) (*TrainSummary, error) {
	var labeled []FeatureRecord
	for _, r := range recs {
		if r.Declining != nil {
			labeled = append(labeled, r)
		}
	}
	if len(labeled) < 5 {
		return nil, fmt.Errorf("train: need at least 5 labeled records, have %d", len(labeled))
	}

	y := make([]int, len(labeled))
	for i, r := range labeled {
		if *r.Declining {
			y[i] = 1
		}
	}
	trainIdx, testIdx := StratifiedSplit(y, 0.2, splitSeed)
	if len(trainIdx) == 0 || len(testIdx) == 0 {
		return nil, fmt.Errorf("train: split produced an empty partition (%d train, %d test)", len(trainIdx), len(testIdx))
	}

	nameCols := map[string][]string{"student_name": nil, "mentor_name": nil, "parent_name": nil}
	for _, i := range trainIdx {
		nameCols["student_name"] = append(nameCols["student_name"], labeled[i].StudentName)
		nameCols["mentor_name"] = append(nameCols["mentor_name"], labeled[i].MentorName)
		nameCols["parent_name"] = append(nameCols["parent_name"], labeled[i].ParentName)
	}
	cb := FitCodebook(nameCols)

	rows := make([]map[string]float64, len(labeled))
	for i, r := range labeled {
		rows[i] = vectorize(r, cb)
	}
	trainRows := make([]map[string]float64, 0, len(trainIdx))
	for _, i := range trainIdx {
		trainRows = append(trainRows, rows[i])
	}
	scaler := FitScaler(featureNames(trainRows), trainRows)

	xTrain := make([][]float64, 0, len(trainIdx))
	yTrain := make([]int, 0, len(trainIdx))
	for _, i := range trainIdx {
		xTrain = append(xTrain, scaler.Transform(rows[i]))
		yTrain = append(yTrain, y[i])
	}
	xTest := make([][]float64, 0, len(testIdx))
	yTest := make([]int, 0, len(testIdx))
	for _, i := range testIdx {
		xTest = append(xTest, scaler.Transform(rows[i]))
		yTest = append(yTest, y[i])
	}

	logistic, err := TrainLogistic(xTrain, yTrain, 400, 0.1)
	if err != nil {
		return nil, err
	}
	tree, err := TrainTree(xTrain, yTrain, 5)
	if err != nil {
		return nil, err
	}

	if err := cb.Save(filepath.Join(dir, CodebookArtifact)); err != nil {
		return nil, fmt.Errorf("save codebook: %w", err)
	}
	if err := scaler.Save(filepath.Join(dir, ScalerArtifact)); err != nil {
		return nil, fmt.Errorf("save scaler: %w", err)
	}
	if err := logistic.Save(filepath.Join(dir, LogisticArtifact)); err != nil {
		return nil, fmt.Errorf("save logistic model: %w", err)
	}
	if err := tree.Save(filepath.Join(dir, TreeArtifact)); err != nil {
		return nil, fmt.Errorf("save tree model: %w", err)
	}

	return &TrainSummary{
		TrainRows: len(trainIdx),
		TestRows:  len(testIdx),
		Features:  len(scaler.Features),
		Logistic:  evaluate(StrategyLogistic, logistic.Predict, xTest, yTest),
		Tree:      evaluate(StrategyTree, tree.Predict, xTest, yTest),
	}, nil
}

// Classifier is the inference-side bundle: persisted codebook, scaler and one
// of the fitted models. Nothing is ever refit here.
type Classifier struct {
	model    string
	codebook *Codebook
	scaler   *Scaler
	logistic *LogisticModel
	tree     *TreeModel
}

// LoadClassifier reads the artifacts for the requested strategy from dir.
func LoadClassifier(dir, model string) (*Classifier, error) {
	cb, err := LoadCodebook(filepath.Join(dir, CodebookArtifact))
	if err != nil {
		return nil, err
	}
	scaler, err := LoadScaler(filepath.Join(dir, ScalerArtifact))
	if err != nil {
		return nil, err
	}
	c := &Classifier{model: model, codebook: cb, scaler: scaler}
	switch model {
	case StrategyLogistic:
		c.logistic, err = LoadLogistic(filepath.Join(dir, LogisticArtifact))
	case StrategyTree:
		c.tree, err = LoadTree(filepath.Join(dir, TreeArtifact))
	default:
		return nil, fmt.Errorf("load classifier: unknown model %q", model)
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Evaluate scores a cohort with the persisted model and buckets each
// probability with the given thresholds.
func (c *Classifier) Evaluate(recs []FeatureRecord, thresholds TierThresholds) []RiskRecord {
	out := make([]RiskRecord, 0, len(recs))
	for _, rec := range recs {
		x := c.scaler.Transform(vectorize(rec, c.codebook))
		var prob float64
		switch c.model {
		case StrategyLogistic:
			_, prob = c.logistic.Predict(x)
		case StrategyTree:
			_, prob = c.tree.Predict(x)
		}
		out = append(out, RiskRecord{
			StudentID: rec.StudentID,
			RiskScore: prob,
			RiskTier:  thresholds.Tier(prob),
			Reasons:   []string{fmt.Sprintf("declining-attendance probability %.2f", prob)},
			ModelUsed: c.model,
		})
	}
	return out
}
