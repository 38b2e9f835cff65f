package alerter

import (
	"strings"
	"testing"
)

func TestResolveContactsVariantHeaders(t *testing.T) {
	dir := t.TempDir()
	tbl := mustLoad(t, writeCSV(t, dir, "mentors.csv",
		"mentorid,name,email,phone\n"+
			"7,Aibek,aibek@school.kz,+77010000001\n"))

	recs, err := ResolveContacts([]*Table{tbl}, RoleMentor)
	if err != nil {
		t.Fatalf("ResolveContacts: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("got %d records, want 1", len(recs))
	}
	got := recs[0]
	if got.ID != 7 || got.Name != "Aibek" || got.Email != "aibek@school.kz" || got.Phone != "+77010000001" {
		t.Fatalf("resolved record = %+v", got)
	}
}

func TestResolveContactsFirstTableWins(t *testing.T) {
	dir := t.TempDir()
	primary := mustLoad(t, writeCSV(t, dir, "parents_a.csv",
		"parent_id,parent_name,parent_phone\n"+
			"20,Gulnara,+77020000001\n"))
	secondary := mustLoad(t, writeCSV(t, dir, "parents_b.csv",
		"parent_id,parent_name,parent_phone\n"+
			"20,Stale Name,+77029999999\n"+
			"21,Erlan,+77020000002\n"))

	recs, err := ResolveContacts([]*Table{primary, secondary}, RoleParent)
	if err != nil {
		t.Fatalf("ResolveContacts: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want dedupe to 2", len(recs))
	}
	if recs[0].ID != 20 || recs[0].Name != "Gulnara" {
		t.Fatalf("first occurrence lost: %+v", recs[0])
	}
	if recs[1].ID != 21 || recs[1].Name != "Erlan" {
		t.Fatalf("second table's new id missing: %+v", recs[1])
	}
}

func TestResolveContactsMissingIDColumnIsStructural(t *testing.T) {
	dir := t.TempDir()
	tbl := mustLoad(t, writeCSV(t, dir, "mentors.csv",
		"name,email\nAibek,aibek@school.kz\n"))

	_, err := ResolveContacts([]*Table{tbl}, RoleMentor)
	if err == nil {
		t.Fatal("expected structural error for missing mentor_id")
	}
	if !strings.Contains(err.Error(), "mentor_id") {
		t.Fatalf("error %q does not name the missing column", err)
	}
}

func TestResolveContactsPartialRowsSurvive(t *testing.T) {
	dir := t.TempDir()
	tbl := mustLoad(t, writeCSV(t, dir, "mentors.csv",
		"mentor_id,mentor_email,mentor_phone\n"+
			"7,,+77010000001\n"))

	recs, err := ResolveContacts([]*Table{tbl}, RoleMentor)
	if err != nil {
		t.Fatalf("ResolveContacts: %v", err)
	}
	if len(recs) != 1 || recs[0].Email != "" || recs[0].Phone != "+77010000001" {
		t.Fatalf("partial row mishandled: %+v", recs)
	}
}

func TestContactIndex(t *testing.T) {
	idx := ContactIndex([]ContactRecord{
		{ID: 1, Name: "First"},
		{ID: 1, Name: "Second"},
		{ID: 2, Name: "Other"},
	})
	if len(idx) != 2 {
		t.Fatalf("index size = %d, want 2", len(idx))
	}
	if idx[1].Name != "First" {
		t.Fatalf("index kept %q, want the first occurrence", idx[1].Name)
	}
}
