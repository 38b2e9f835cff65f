package alerter

import (
	"fmt"
	"log"
	"regexp"
	"sort"
	"strconv"
)

// Aggregator assembles one feature row per student from the independently
// keyed cohort tables. It owns the resulting slice for the duration of a run.
type Aggregator struct {
	Debug bool
}

func (a *Aggregator) debugf(format string, args ...any) {
	if a == nil || !a.Debug {
		return
	}
	log.Printf(format, args...)
}

// scoreSummary is the per-student pre-aggregation of the score table. A
// student with several test rows must collapse to one summary before the
// merge, otherwise the join would duplicate roster rows.
type scoreSummary struct {
	meanScore float64
	meanMax   float64
	attempts  int
	ratio     *float64 // nil when meanMax == 0
	latestPct *float64 // nil when the last row has max_score == 0
}

var weekColRe = regexp.MustCompile(`^week_(\d+)_attendance$`)

// Assemble merges roster, score, attendance, mentor, parent and fee tables
// into one feature record per roster student. Join order follows the
// pipeline contract:
//
//	roster -> score summary (left join; students without scores are kept)
//	-> attendance (row-wise on row order, id column collisions ignored)
//	-> mentors (on mentor_id; the mentor table's own id column never
//	   collides with the student's mentor_id because lookup is by map)
//	-> parents (composite key student_id+parent_id, so a student is never
//	   matched to an unrelated parent sharing a numeric id)
//	-> fees (per-student pre-aggregated: due amounts summed, overdue days
//	   maxed)
//
// Missing-value defaults: attempt count, due amount and overdue days default
// to 0 (zero is a valid domain value for counts and amounts). Score ratios
// stay nil sentinels. Attendance metrics for a student without an attendance
// row are left zero with Weekly == nil; the scaling step treats those as
// absent and substitutes the training mean rather than a literal zero.
func (a *Aggregator) Assemble(roster, scores, attendance, mentors, parents, fees []*Table) ([]FeatureRecord, error) {
	if len(roster) == 0 {
		return nil, fmt.Errorf("assemble: no roster tables")
	}
	for _, t := range roster {
		if err := t.RequireFields("student_id"); err != nil {
			return nil, err
		}
	}

	summaries, err := summarizeScores(scores)
	if err != nil {
		return nil, err
	}
	attRows, err := flattenAttendance(attendance)
	if err != nil {
		return nil, err
	}
	mentorNames, err := indexMentors(mentors)
	if err != nil {
		return nil, err
	}
	parentByPair, parentByID, err := indexParents(parents)
	if err != nil {
		return nil, err
	}
	feeByStudent, err := summarizeFees(fees)
	if err != nil {
		return nil, err
	}

	var out []FeatureRecord
	seen := make(map[int64]struct{})
	rowCursor := 0
	for _, t := range roster {
		for i := range t.Rows {
			sid, ok := t.Int64(i, "student_id")
			if !ok {
				a.debugf("roster %s row %d: unparseable student_id, row skipped", t.Path, i)
				rowCursor++
				continue
			}
			if _, dup := seen[sid]; dup {
				a.debugf("roster %s row %d: duplicate student_id %d, first occurrence kept", t.Path, i, sid)
				rowCursor++
				continue
			}
			seen[sid] = struct{}{}

			rec := FeatureRecord{StudentID: sid}
			rec.InstituteID, _ = t.Int64(i, "institute_id")
			rec.MentorID, _ = t.Int64(i, "mentor_id")
			rec.ParentID, _ = t.Int64(i, "parent_id")
			rec.StudentName, _ = t.Value(i, "student_name")

			if s, ok := summaries[sid]; ok {
				rec.AvgScoreRatio = s.ratio
				rec.LatestScorePct = s.latestPct
				rec.AttemptCount = s.attempts
			}

			// Attendance pairs with the roster row-wise: both table
			// families are concatenations of the same per-institute
			// exports in the same order.
			if rowCursor < len(attRows) {
				att := attRows[rowCursor]
				rec.HasAttendance = true
				rec.Weekly = att.weekly
				rec.AvgAttendance = att.avg
				rec.DeclineScore = att.decline
				rec.LowestWeek = att.lowest
				rec.HighestWeek = att.highest
				rec.Declining = att.declining
			}

			if name, ok := mentorNames[rec.MentorID]; ok {
				rec.MentorName = name
			}
			if name, ok := parentByPair[parentKey{sid, rec.ParentID}]; ok {
				rec.ParentName = name
			} else if name, ok := parentByID[rec.ParentID]; ok {
				rec.ParentName = name
			}
			if fee, ok := feeByStudent[sid]; ok {
				rec.DueAmount = fee.due
				rec.OverdueDays = fee.overdue
			}

			out = append(out, rec)
			rowCursor++
		}
	}
	a.debugf("assemble: roster rows=%d features=%d scored=%d attendance=%d", rowCursor, len(out), len(summaries), len(attRows))
	return out, nil
}

func summarizeScores(tables []*Table) (map[int64]scoreSummary, error) {
	type acc struct {
		sumScore float64
		sumMax   float64
		n        int
		lastPct  *float64
	}
	accs := make(map[int64]*acc)
	order := make([]int64, 0)
	for _, t := range tables {
		if err := t.RequireFields("student_id", "test_score", "max_score"); err != nil {
			return nil, err
		}
		for i := range t.Rows {
			sid, ok := t.Int64(i, "student_id")
			if !ok {
				continue
			}
			score, okS := t.Float(i, "test_score")
			max, okM := t.Float(i, "max_score")
			if !okS || !okM {
				continue
			}
			a, ok := accs[sid]
			if !ok {
				a = &acc{}
				accs[sid] = a
				order = append(order, sid)
			}
			a.sumScore += score
			a.sumMax += max
			a.n++
			if max > 0 {
				pct := score / max * 100
				a.lastPct = &pct
			} else {
				a.lastPct = nil
			}
		}
	}

	out := make(map[int64]scoreSummary, len(accs))
	for _, sid := range order {
		a := accs[sid]
		s := scoreSummary{
			meanScore: a.sumScore / float64(a.n),
			meanMax:   a.sumMax / float64(a.n),
			attempts:  a.n,
			latestPct: a.lastPct,
		}
		if s.meanMax > 0 {
			r := s.meanScore / s.meanMax
			s.ratio = &r
		}
		out[sid] = s
	}
	return out, nil
}

type attendanceRow struct {
	weekly    []float64
	avg       float64
	decline   float64
	lowest    float64
	highest   float64
	declining *bool
}

// flattenAttendance appends attendance rows across tables in file order. The
// wide table carries its own id columns; they are deliberately ignored here
// so that concatenation never collides with the roster's key columns.
func flattenAttendance(tables []*Table) ([]attendanceRow, error) {
	var out []attendanceRow
	for _, t := range tables {
		weekCols := t.Columns(func(name string) bool { return weekColRe.MatchString(name) })
		sort.Slice(weekCols, func(i, j int) bool {
			wi, _ := strconv.Atoi(weekColRe.FindStringSubmatch(weekCols[i])[1])
			wj, _ := strconv.Atoi(weekColRe.FindStringSubmatch(weekCols[j])[1])
			return wi < wj
		})

		for i := range t.Rows {
			var row attendanceRow
			for _, col := range weekCols {
				if v, ok := t.Float(i, col); ok {
					row.weekly = append(row.weekly, v)
				}
			}
			row.avg = attendanceMetric(t, i, "average_attendance", meanOf(row.weekly))
			row.decline = attendanceMetric(t, i, "attendance_decline_score", declineOf(row.weekly))
			row.lowest = attendanceMetric(t, i, "lowest_week_attendance", minOf(row.weekly))
			row.highest = attendanceMetric(t, i, "highest_week_attendance", maxOf(row.weekly))
			if v, ok := t.Value(i, "is_declining_attendance"); ok {
				b := v == "Yes" || v == "yes" || v == "1" || v == "true"
				row.declining = &b
			}
			out = append(out, row)
		}
	}
	return out, nil
}

// attendanceMetric prefers the precomputed column and falls back to a value
// derived from the weekly series.
func attendanceMetric(t *Table, row int, field string, derived float64) float64 {
	if v, ok := t.Float(row, field); ok {
		return v
	}
	return derived
}

func meanOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vs {
		sum += v
	}
	return sum / float64(len(vs))
}

func minOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v < m {
			m = v
		}
	}
	return m
}

func maxOf(vs []float64) float64 {
	if len(vs) == 0 {
		return 0
	}
	m := vs[0]
	for _, v := range vs[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

// declineOf approximates the decline score as first-week minus last-week
// attendance, floored at zero. Used only when the table lacks the
// precomputed column.
func declineOf(vs []float64) float64 {
	if len(vs) < 2 {
		return 0
	}
	d := vs[0] - vs[len(vs)-1]
	if d < 0 {
		return 0
	}
	return d
}

func indexMentors(tables []*Table) (map[int64]string, error) {
	out := make(map[int64]string)
	for _, t := range tables {
		if err := t.RequireFields("mentor_id"); err != nil {
			return nil, err
		}
		for i := range t.Rows {
			mid, ok := t.Int64(i, "mentor_id")
			if !ok {
				continue
			}
			if _, dup := out[mid]; dup {
				continue
			}
			name, _ := t.Value(i, "mentor_name")
			out[mid] = name
		}
	}
	return out, nil
}

type parentKey struct {
	studentID int64
	parentID  int64
}

// indexParents builds a composite-key index when the parent table carries
// student_id, plus a parent-id-only fallback for tables that do not.
func indexParents(tables []*Table) (map[parentKey]string, map[int64]string, error) {
	byPair := make(map[parentKey]string)
	byID := make(map[int64]string)
	for _, t := range tables {
		if err := t.RequireFields("parent_id"); err != nil {
			return nil, nil, err
		}
		hasStudent := t.HasField("student_id")
		for i := range t.Rows {
			pid, ok := t.Int64(i, "parent_id")
			if !ok {
				continue
			}
			name, _ := t.Value(i, "parent_name")
			if hasStudent {
				if sid, ok := t.Int64(i, "student_id"); ok {
					k := parentKey{sid, pid}
					if _, dup := byPair[k]; !dup {
						byPair[k] = name
					}
				}
			}
			if _, dup := byID[pid]; !dup {
				byID[pid] = name
			}
		}
	}
	return byPair, byID, nil
}

type feeSummary struct {
	due     float64
	overdue int
}

// summarizeFees pre-aggregates fee rows per student: due amounts are summed,
// overdue days take the worst case.
func summarizeFees(tables []*Table) (map[int64]feeSummary, error) {
	out := make(map[int64]feeSummary)
	for _, t := range tables {
		if err := t.RequireFields("student_id"); err != nil {
			return nil, err
		}
		for i := range t.Rows {
			sid, ok := t.Int64(i, "student_id")
			if !ok {
				continue
			}
			s := out[sid]
			if v, ok := t.Float(i, "due_amount"); ok {
				s.due += v
			}
			if v, ok := t.Int64(i, "overdue_days"); ok && int(v) > s.overdue {
				s.overdue = int(v)
			}
			out[sid] = s
		}
	}
	return out, nil
}
