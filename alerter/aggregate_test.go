package alerter

import (
	"testing"
)

func TestAssembleKeepsEveryRosterStudent(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv",
		"student_id,student_name,mentor_id,parent_id\n"+
			"1,Asel,10,20\n"+
			"2,Bek,11,21\n"+
			"3,Dana,12,22\n"))
	// Only one student has score rows; the left join keeps the other two.
	scores := mustLoad(t, writeCSV(t, dir, "scores.csv",
		"student_id,test_score,max_score\n"+
			"1,40,50\n"+
			"1,45,50\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, []*Table{scores}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(recs) != 3 {
		t.Fatalf("got %d records, want one per roster student", len(recs))
	}
	if recs[0].AttemptCount != 2 {
		t.Fatalf("student 1 attempts = %d, want 2", recs[0].AttemptCount)
	}
	if recs[0].AvgScoreRatio == nil || *recs[0].AvgScoreRatio != 0.85 {
		t.Fatalf("student 1 ratio = %v, want 0.85", recs[0].AvgScoreRatio)
	}
	for _, r := range recs[1:] {
		if r.AttemptCount != 0 || r.AvgScoreRatio != nil || r.LatestScorePct != nil {
			t.Fatalf("unscored student %d carries score data: %+v", r.StudentID, r)
		}
	}
}

func TestAssembleDuplicateRosterRowsKeepFirst(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv",
		"student_id,student_name\n"+
			"1,First\n"+
			"1,Second\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, nil, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1 after dedupe", len(recs))
	}
	if recs[0].StudentName != "First" {
		t.Fatalf("kept %q, want the first occurrence", recs[0].StudentName)
	}
}

func TestAssembleZeroMaxScoreKeepsNilRatio(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv", "student_id\n1\n"))
	scores := mustLoad(t, writeCSV(t, dir, "scores.csv",
		"student_id,test_score,max_score\n"+
			"1,0,0\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, []*Table{scores}, nil, nil, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if recs[0].AvgScoreRatio != nil {
		t.Fatalf("ratio = %v, want nil sentinel on zero max score", *recs[0].AvgScoreRatio)
	}
	if recs[0].LatestScorePct != nil {
		t.Fatalf("latest pct = %v, want nil on zero max score", *recs[0].LatestScorePct)
	}
	if recs[0].AttemptCount != 1 {
		t.Fatalf("attempts = %d, want the row still counted", recs[0].AttemptCount)
	}
}

func TestAssembleAttendancePairsRowWise(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv",
		"student_id\n1\n2\n"))
	attendance := mustLoad(t, writeCSV(t, dir, "attendance.csv",
		"week_1_attendance,week_2_attendance,week_10_attendance,is_declining_attendance\n"+
			"90,80,70,Yes\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, nil, []*Table{attendance}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !recs[0].HasAttendance {
		t.Fatal("first roster row should pair with the attendance row")
	}
	// Week columns sort numerically, so week_10 comes last.
	want := []float64{90, 80, 70}
	if len(recs[0].Weekly) != len(want) {
		t.Fatalf("weekly = %v, want %v", recs[0].Weekly, want)
	}
	for i := range want {
		if recs[0].Weekly[i] != want[i] {
			t.Fatalf("weekly = %v, want %v", recs[0].Weekly, want)
		}
	}
	if recs[0].DeclineScore != 20 {
		t.Fatalf("derived decline = %v, want first minus last week", recs[0].DeclineScore)
	}
	if recs[0].Declining == nil || !*recs[0].Declining {
		t.Fatalf("declining label = %v, want true from Yes", recs[0].Declining)
	}
	if recs[1].HasAttendance {
		t.Fatal("second roster row has no attendance row; HasAttendance must stay false")
	}
}

func TestAssemblePrecomputedAttendanceColumnsWin(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv", "student_id\n1\n"))
	attendance := mustLoad(t, writeCSV(t, dir, "attendance.csv",
		"week_1_attendance,week_2_attendance,attendance_decline_score\n"+
			"90,70,33.5\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, nil, []*Table{attendance}, nil, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if recs[0].DeclineScore != 33.5 {
		t.Fatalf("decline = %v, want precomputed column over derived value", recs[0].DeclineScore)
	}
}

func TestAssembleParentJoinUsesCompositeKey(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv",
		"student_id,parent_id\n"+
			"1,20\n"+
			"2,20\n"))
	// Same parent_id for two different students; the composite key picks the
	// row registered for that student.
	parents := mustLoad(t, writeCSV(t, dir, "parents.csv",
		"student_id,parent_id,parent_name\n"+
			"1,20,Gulnara\n"+
			"2,20,Erlan\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, nil, nil, nil, []*Table{parents}, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if recs[0].ParentName != "Gulnara" || recs[1].ParentName != "Erlan" {
		t.Fatalf("parent names = %q, %q; composite join broken", recs[0].ParentName, recs[1].ParentName)
	}
}

func TestAssembleFeesSumDueAndMaxOverdue(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv", "student_id\n1\n"))
	fees := mustLoad(t, writeCSV(t, dir, "fees.csv",
		"student_id,due_amount,overdue_days\n"+
			"1,1000,10\n"+
			"1,500,45\n"))

	agg := &Aggregator{}
	recs, err := agg.Assemble([]*Table{roster}, nil, nil, nil, nil, []*Table{fees})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if recs[0].DueAmount != 1500 {
		t.Fatalf("due = %v, want summed 1500", recs[0].DueAmount)
	}
	if recs[0].OverdueDays != 45 {
		t.Fatalf("overdue = %d, want worst case 45", recs[0].OverdueDays)
	}
}

func TestAssembleIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	roster := mustLoad(t, writeCSV(t, dir, "roster.csv",
		"student_id,mentor_id\n1,10\n2,11\n"))
	scores := mustLoad(t, writeCSV(t, dir, "scores.csv",
		"student_id,test_score,max_score\n1,40,50\n2,25,50\n"))
	mentors := mustLoad(t, writeCSV(t, dir, "mentors.csv",
		"mentor_id,mentor_name\n10,Aibek\n11,Saule\n"))

	agg := &Aggregator{}
	first, err := agg.Assemble([]*Table{roster}, []*Table{scores}, nil, []*Table{mentors}, nil, nil)
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	second, err := agg.Assemble([]*Table{roster}, []*Table{scores}, nil, []*Table{mentors}, nil, nil)
	if err != nil {
		t.Fatalf("Assemble (repeat): %v", err)
	}
	if len(first) != len(second) {
		t.Fatalf("repeat run changed record count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].StudentID != second[i].StudentID || first[i].MentorName != second[i].MentorName ||
			first[i].AttemptCount != second[i].AttemptCount {
			t.Fatalf("record %d differs between identical runs:\n%+v\n%+v", i, first[i], second[i])
		}
	}
}
