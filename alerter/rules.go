package alerter

import "fmt"

// RuleSignals are the named inputs of the deterministic rule engine.
// LatestScorePct is nil when the student's score ratio is undefined; the
// score signal then contributes nothing.
type RuleSignals struct {
	DeclineScore   float64
	LatestScorePct *float64
	OverdueDays    int
}

// RuleResult is a small additive score plus the reasons that produced it, in
// signal order. A student is at risk, and eligible for notification, iff
// Score > 0.
type RuleResult struct {
	Score   int
	Reasons []string
}

// Fixed per-signal thresholds. The bands are additive: each signal
// contributes independently and the reasons list preserves signal order.
const (
	declineSevere   = 12.0
	declineMarked   = 8.0
	declineMild     = 5.0
	scorePctFailing = 40.0
	scorePctWeak    = 60.0
	scorePctShaky   = 75.0
	overdueLong     = 60
	overdueShort    = 30
)

// ComputeRisk scores one student from its signals. It is a pure function:
// no hidden state, no randomness, identical inputs always yield the identical
// score and reason list. That property backs both the tests and the
// parent-facing explanation of an alert.
func ComputeRisk(sig RuleSignals) RuleResult {
	var res RuleResult

	switch {
	case sig.DeclineScore > declineSevere:
		res.Score += 3
		res.Reasons = append(res.Reasons, fmt.Sprintf("attendance declining sharply (decline score %.1f)", sig.DeclineScore))
	case sig.DeclineScore > declineMarked:
		res.Score += 2
		res.Reasons = append(res.Reasons, fmt.Sprintf("attendance declining (decline score %.1f)", sig.DeclineScore))
	case sig.DeclineScore > declineMild:
		res.Score += 1
		res.Reasons = append(res.Reasons, fmt.Sprintf("attendance dip (decline score %.1f)", sig.DeclineScore))
	}

	if sig.LatestScorePct != nil {
		pct := *sig.LatestScorePct
		switch {
		case pct < scorePctFailing:
			res.Score += 3
			res.Reasons = append(res.Reasons, fmt.Sprintf("latest test below %.0f%% (%.1f%%)", scorePctFailing, pct))
		case pct < scorePctWeak:
			res.Score += 2
			res.Reasons = append(res.Reasons, fmt.Sprintf("latest test below %.0f%% (%.1f%%)", scorePctWeak, pct))
		case pct < scorePctShaky:
			res.Score += 1
			res.Reasons = append(res.Reasons, fmt.Sprintf("latest test below %.0f%% (%.1f%%)", scorePctShaky, pct))
		}
	}

	switch {
	case sig.OverdueDays > overdueLong:
		res.Score += 2
		res.Reasons = append(res.Reasons, fmt.Sprintf("fees overdue %d days", sig.OverdueDays))
	case sig.OverdueDays > overdueShort:
		res.Score += 1
		res.Reasons = append(res.Reasons, fmt.Sprintf("fees overdue %d days", sig.OverdueDays))
	}

	return res
}

// Tier buckets the additive score: >=6 High, >=3 Medium, else Low.
func (r RuleResult) Tier() string {
	switch {
	case r.Score >= 6:
		return TierHigh
	case r.Score >= 3:
		return TierMedium
	default:
		return TierLow
	}
}

// AtRisk reports notification eligibility under the rule engine.
func (r RuleResult) AtRisk() bool { return r.Score > 0 }

// EvaluateRules runs the rule engine over a cohort and emits one RiskRecord
// per student, in input order.
func EvaluateRules(recs []FeatureRecord) []RiskRecord {
	out := make([]RiskRecord, 0, len(recs))
	for _, rec := range recs {
		res := ComputeRisk(RuleSignals{
			DeclineScore:   rec.DeclineScore,
			LatestScorePct: rec.LatestScorePct,
			OverdueDays:    rec.OverdueDays,
		})
		out = append(out, RiskRecord{
			StudentID: rec.StudentID,
			RiskScore: float64(res.Score),
			RiskTier:  res.Tier(),
			Reasons:   res.Reasons,
			ModelUsed: "rules",
		})
	}
	return out
}
