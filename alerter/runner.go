package alerter

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"
)

// RunnerConfig wires one pipeline run. Validation happens in NewRunner so a
// misconfigured run fails before any table is touched.
type RunnerConfig struct {
	// StorePath is the SQLite archive for outcomes and processed-table
	// digests. Empty disables archiving.
	StorePath string
	// ArtifactDir holds the persisted scaler/codebook/model files.
	ArtifactDir string
	// ErrorDir receives input tables that could not be read. Empty leaves
	// broken files in place.
	ErrorDir string
	Debug    bool

	// Strategy picks the evaluator: rules, logistic or tree.
	Strategy string
	// NotifyTier is the minimum tier notified under classifier
	// strategies. Defaults to Medium.
	NotifyTier string
	Thresholds TierThresholds

	// Channels is the ordered fallback chain for the dispatcher.
	Channels []string
	Creds    ChannelCredentials

	Inputs InputsConfig
}

type Runner struct {
	cfg RunnerConfig
	db  *gorm.DB
}

type runStats struct {
	TablesLoaded int
	RowsLoaded   int
	Features     int
	RiskRecords  int
	AtRisk       int
	Sent         int
	Failed       int
}

func NewRunner(cfg RunnerConfig) (*Runner, error) {
	if len(cfg.Inputs.Roster) == 0 {
		return nil, fmt.Errorf("roster input is required")
	}
	switch cfg.Strategy {
	case StrategyRules, StrategyLogistic, StrategyTree:
	case "":
		cfg.Strategy = StrategyRules
	default:
		return nil, fmt.Errorf("unknown strategy %q", cfg.Strategy)
	}
	if cfg.Strategy != StrategyRules && strings.TrimSpace(cfg.ArtifactDir) == "" {
		return nil, fmt.Errorf("strategy %s requires an artifact dir", cfg.Strategy)
	}
	if len(cfg.Channels) == 0 {
		cfg.Channels = []string{ChannelStub}
	}
	if cfg.Thresholds == (TierThresholds{}) {
		cfg.Thresholds = DefaultTierThresholds
	}
	if cfg.NotifyTier == "" {
		cfg.NotifyTier = TierMedium
	}

	r := &Runner{cfg: cfg}
	if strings.TrimSpace(cfg.StorePath) != "" {
		db, err := OpenStore(cfg.StorePath)
		if err != nil {
			return nil, err
		}
		r.db = db
	}
	return r, nil
}

func (r *Runner) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	err = sqlDB.Close()
	r.db = nil
	return err
}

func (r *Runner) debugf(format string, args ...any) {
	if r == nil || !r.cfg.Debug {
		return
	}
	log.Printf(format, args...)
}

// loadGroup loads one table kind. A load failure is structural: the file is
// quarantined to the error dir (when configured) and the error propagates so
// the run aborts with a non-zero status.
func (r *Runner) loadGroup(kind string, paths []string, stats *runStats) ([]*Table, error) {
	tables := make([]*Table, 0, len(paths))
	for _, p := range paths {
		t, err := LoadTable(p)
		if err != nil {
			if strings.TrimSpace(r.cfg.ErrorDir) != "" {
				if dst, mvErr := MoveFileToDir(p, r.cfg.ErrorDir); mvErr == nil {
					log.Printf("moved unreadable %s table to %s", kind, dst)
				}
			}
			return nil, fmt.Errorf("load %s: %w", kind, err)
		}
		r.recordProcessed(t)
		stats.TablesLoaded++
		stats.RowsLoaded += len(t.Rows)
		tables = append(tables, t)
	}
	return tables, nil
}

// recordProcessed archives the table's digest. A digest already present
// means this exact snapshot was processed before; the run still proceeds
// (retries are the caller's responsibility) but the repeat is logged.
func (r *Runner) recordProcessed(t *Table) {
	if r.db == nil {
		return
	}
	content, err := os.ReadFile(t.Path)
	if err != nil {
		return
	}
	sum := sha256.Sum256(content)
	sha := hex.EncodeToString(sum[:])

	var existing ProcessedTable
	err = r.db.Where("path = ? AND sha256 = ?", t.Path, sha).First(&existing).Error
	if err == nil {
		log.Printf("table %s: identical snapshot processed before (%s)", t.Path, existing.LoadedAt.Format(time.RFC3339))
		return
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return
	}
	_ = r.db.Create(&ProcessedTable{
		Path:      t.Path,
		SHA256:    sha,
		SizeBytes: int64(len(content)),
		Rows:      len(t.Rows),
		LoadedAt:  time.Now().UTC(),
	}).Error
}

// cohortTables are the loaded inputs of one snapshot, loaded exactly once
// per run and shared between aggregation and contact resolution.
type cohortTables struct {
	roster     []*Table
	scores     []*Table
	attendance []*Table
	mentors    []*Table
	parents    []*Table
	fees       []*Table
}

func (r *Runner) loadCohort(stats *runStats) (*cohortTables, error) {
	ct := &cohortTables{}
	var err error
	if ct.roster, err = r.loadGroup("roster", r.cfg.Inputs.Roster, stats); err != nil {
		return nil, err
	}
	if ct.scores, err = r.loadGroup("scores", r.cfg.Inputs.Scores, stats); err != nil {
		return nil, err
	}
	if ct.attendance, err = r.loadGroup("attendance", r.cfg.Inputs.Attendance, stats); err != nil {
		return nil, err
	}
	if ct.mentors, err = r.loadGroup("mentors", r.cfg.Inputs.Mentors, stats); err != nil {
		return nil, err
	}
	if ct.parents, err = r.loadGroup("parents", r.cfg.Inputs.Parents, stats); err != nil {
		return nil, err
	}
	if ct.fees, err = r.loadGroup("fees", r.cfg.Inputs.Fees, stats); err != nil {
		return nil, err
	}
	return ct, nil
}

func (r *Runner) assemble(ct *cohortTables, stats *runStats) ([]FeatureRecord, error) {
	agg := &Aggregator{Debug: r.cfg.Debug}
	features, err := agg.Assemble(ct.roster, ct.scores, ct.attendance, ct.mentors, ct.parents, ct.fees)
	if err != nil {
		return nil, err
	}
	stats.Features = len(features)
	return features, nil
}

// Train runs the training path: assemble the labeled cohort, fit and persist
// the artifacts, report holdout metrics.
func (r *Runner) Train() (*TrainSummary, error) {
	stats := &runStats{}
	ct, err := r.loadCohort(stats)
	if err != nil {
		return nil, err
	}
	features, err := r.assemble(ct, stats)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(r.cfg.ArtifactDir) == "" {
		return nil, fmt.Errorf("train requires an artifact dir")
	}
	if err := os.MkdirAll(r.cfg.ArtifactDir, 0o755); err != nil {
		return nil, err
	}
	summary, err := TrainModels(features, r.cfg.ArtifactDir)
	if err != nil {
		return nil, err
	}
	logReport(summary.Logistic)
	logReport(summary.Tree)
	log.Printf("train done: rows=%d holdout=%d features=%d artifacts=%s", summary.TrainRows, summary.TestRows, summary.Features, r.cfg.ArtifactDir)
	return summary, nil
}

func logReport(rep EvalReport) {
	log.Printf("%s: accuracy=%.3f", rep.Model, rep.Accuracy)
	for _, c := range []int{0, 1} {
		m := rep.Classes[c]
		log.Printf("%s: class=%d precision=%.3f recall=%.3f support=%d", rep.Model, c, m.Precision, m.Recall, m.Support)
	}
}

// RunOnce executes one scoring+dispatch pass: load -> aggregate -> evaluate
// -> alert -> dispatch. It returns an error only for structural problems;
// per-recipient delivery failures end up in the outcome summary, never in
// the error return.
func (r *Runner) RunOnce() error {
	start := time.Now()
	stats := &runStats{}

	ct, err := r.loadCohort(stats)
	if err != nil {
		return err
	}
	features, err := r.assemble(ct, stats)
	if err != nil {
		return err
	}

	risks, err := r.evaluate(features)
	if err != nil {
		return err
	}
	stats.RiskRecords = len(risks)

	eligible := r.eligibleRisks(risks)
	stats.AtRisk = len(eligible)

	alerts, err := r.buildAlerts(features, eligible, stats)
	if err != nil {
		return err
	}

	mentorContacts, err := ResolveContacts(ct.mentors, RoleMentor)
	if err != nil {
		return err
	}
	parentContacts, err := ResolveContacts(ct.parents, RoleParent)
	if err != nil {
		return err
	}

	d := NewDispatcher(r.cfg.Creds, r.cfg.Channels).WithStore(r.db)
	d.Debug = r.cfg.Debug
	sent, failed := d.Dispatch(alerts, ContactIndex(mentorContacts), ContactIndex(parentContacts))
	stats.Sent = len(sent)
	stats.Failed = len(failed)

	log.Printf("run done: tables=%d rows=%d features=%d risks=%d at_risk=%d sent=%d failed=%d elapsed=%s",
		stats.TablesLoaded, stats.RowsLoaded, stats.Features, stats.RiskRecords, stats.AtRisk, stats.Sent, stats.Failed, time.Since(start))
	if len(failed) > 0 {
		summary := SummarizeFailures(failed)
		reasons := make([]string, 0, len(summary))
		for reason := range summary {
			reasons = append(reasons, reason)
		}
		sort.Strings(reasons)
		for _, reason := range reasons {
			log.Printf("failed outcomes: %dx %s", summary[reason], reason)
		}
	}
	return nil
}

func (r *Runner) evaluate(features []FeatureRecord) ([]RiskRecord, error) {
	if r.cfg.Strategy == StrategyRules {
		return EvaluateRules(features), nil
	}
	clf, err := LoadClassifier(r.cfg.ArtifactDir, r.cfg.Strategy)
	if err != nil {
		return nil, err
	}
	return clf.Evaluate(features, r.cfg.Thresholds), nil
}

// eligibleRisks filters the records that qualify for notification: score > 0
// under the rule engine, tier at or above NotifyTier under the classifiers.
func (r *Runner) eligibleRisks(risks []RiskRecord) []RiskRecord {
	minRank := tierRank(NormalizeTier(r.cfg.NotifyTier))
	var out []RiskRecord
	for _, rr := range risks {
		if rr.ModelUsed == StrategyRules {
			if rr.RiskScore > 0 {
				out = append(out, rr)
			}
			continue
		}
		if tierRank(rr.RiskTier) >= minRank {
			out = append(out, rr)
		}
	}
	return out
}

// buildAlerts either loads a prepared alerts table or composes messages from
// the eligible risk records.
func (r *Runner) buildAlerts(features []FeatureRecord, eligible []RiskRecord, stats *runStats) ([]Alert, error) {
	if len(r.cfg.Inputs.Alerts) > 0 {
		tables, err := r.loadGroup("alerts", r.cfg.Inputs.Alerts, stats)
		if err != nil {
			return nil, err
		}
		return LoadAlerts(tables)
	}
	return ComposeAlerts(features, eligible), nil
}

// ComposeAlerts builds mentor- and parent-facing messages for each eligible
// risk record, carrying the ordered reasons so the recipient sees the same
// explanation the engine produced.
func ComposeAlerts(features []FeatureRecord, eligible []RiskRecord) []Alert {
	byStudent := make(map[int64]FeatureRecord, len(features))
	for _, f := range features {
		byStudent[f.StudentID] = f
	}
	var out []Alert
	for _, rr := range eligible {
		f, ok := byStudent[rr.StudentID]
		if !ok {
			continue
		}
		name := f.StudentName
		if name == "" {
			name = fmt.Sprintf("student %d", f.StudentID)
		}
		why := strings.Join(rr.Reasons, "; ")
		if why == "" {
			why = "flagged by " + rr.ModelUsed
		}
		a := Alert{
			MessageMentor: fmt.Sprintf("%s (id %d) is at %s risk: %s", name, f.StudentID, rr.RiskTier, why),
			MessageParent: fmt.Sprintf("%s needs support this week: %s", name, why),
		}
		if f.MentorID != 0 {
			mid := f.MentorID
			a.MentorID = &mid
		}
		if f.ParentID != 0 {
			pid := f.ParentID
			a.ParentID = &pid
		}
		out = append(out, a)
	}
	return out
}
