package alerter

import "time"

// FeatureRecord is one student's assembled feature row for a cohort snapshot.
// The aggregator owns these for the duration of a run; the evaluator and
// dispatcher read them without mutation.
type FeatureRecord struct {
	StudentID   int64
	InstituteID int64
	MentorID    int64
	ParentID    int64

	StudentName string
	MentorName  string
	ParentName  string

	// Attendance metrics from the wide attendance table, in week order.
	// HasAttendance distinguishes a genuinely absent attendance row from
	// an all-zero one; scaling treats absent metrics as neutral.
	HasAttendance bool
	Weekly        []float64
	AvgAttendance float64
	DeclineScore  float64
	LowestWeek    float64
	HighestWeek   float64

	// Academic metrics. AvgScoreRatio is nil when the mean max score is
	// zero: the ratio is undefined and must stay a sentinel, never a
	// division error. LatestScorePct is nil when the student has no score
	// rows at all (left-join semantics keep the student anyway).
	AvgScoreRatio  *float64
	LatestScorePct *float64
	AttemptCount   int

	// Financial metrics. Zero is a valid domain value for both (no dues).
	DueAmount   float64
	OverdueDays int

	// Training label from Is_Declining_Attendance; nil outside training
	// snapshots.
	Declining *bool
}

// ContactRecord is a canonical recipient after alias resolution. Email and
// Phone are empty when no source table carried them; the record stays usable
// for channels that do not need the missing field.
type ContactRecord struct {
	ID    int64
	Name  string
	Email string
	Phone string
}

// Risk tiers, coarse buckets over a continuous score.
const (
	TierLow    = "Low"
	TierMedium = "Medium"
	TierHigh   = "High"
)

// RiskRecord is one student's risk judgment. RiskScore is a probability in
// [0,1] for the learned models and a small positive integer for the rule
// engine; ModelUsed names which strategy produced it.
type RiskRecord struct {
	StudentID int64
	RiskScore float64
	RiskTier  string
	Reasons   []string
	ModelUsed string
}

// Delivery statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Well-known failure reason tags carried in DeliveryOutcome.Detail. Transport
// errors carry the raw error text instead.
const (
	ReasonMissingFields  = "missing_fields"
	ReasonUnknownChannel = "unknown_channel"
)

// DeliveryOutcome records one dispatch attempt. Outcomes are append-only: a
// retry produces a new outcome, it never mutates an existing one.
type DeliveryOutcome struct {
	RecipientID int64
	Role        string // mentor or parent
	Channel     string
	Status      string
	Detail      string
}

// ProcessedTable records an input file the pipeline has loaded, keyed by
// path+digest so a re-run on identical inputs can be recognized.
type ProcessedTable struct {
	ID        uint   `gorm:"primaryKey"`
	Path      string `gorm:"uniqueIndex:uniq_table_sha;size:1024"`
	SHA256    string `gorm:"uniqueIndex:uniq_table_sha;size:64"`
	SizeBytes int64
	Rows      int
	LoadedAt  time.Time `gorm:"index"`
}

// OutcomeRecord is the archived form of a DeliveryOutcome. RunID groups the
// attempts of one pipeline run; callers wanting at-most-once delivery filter
// recipients with an existing sent row before re-dispatching.
type OutcomeRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index;size:64"`
	RecipientID int64  `gorm:"index"`
	Role        string `gorm:"index;size:16"`
	Channel     string `gorm:"index;size:32"`
	Status      string `gorm:"index;size:16"`
	Detail      string `gorm:"type:text"`
	CreatedAt   time.Time
}
