package alerter

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// fieldAliases maps each logical field to its accepted header variants, in
// priority order. Source tables come from different institutes with drifting
// header conventions; the first variant present in a table wins, matched
// case-insensitively. Adding a new variant here is the only change needed to
// accept another naming scheme.
var fieldAliases = map[string][]string{
	"student_id":               {"student_id", "studentid"},
	"mentor_id":                {"mentor_id", "mentorid"},
	"parent_id":                {"parent_id", "parentid"},
	"institute_id":             {"institute_id", "instituteid"},
	"student_name":             {"student_name", "studentname", "name"},
	"test_score":               {"test_score", "score"},
	"max_score":                {"max_score", "maxscore"},
	"subject_name":             {"subject_name", "subject"},
	"mentor_name":              {"mentor_name", "mentorname", "name"},
	"mentor_email":             {"mentor_email", "email"},
	"mentor_phone":             {"mentor_phone", "phone"},
	"parent_name":              {"parent_name", "parentname", "name"},
	"parent_email":             {"parent_email", "email"},
	"parent_phone":             {"parent_phone", "phone"},
	"due_amount":               {"due_amount", "dueamount", "amount_due"},
	"overdue_days":             {"overdue_days", "overduedays", "days_overdue"},
	"average_attendance":       {"average_attendance", "avg_attendance"},
	"attendance_decline_score": {"attendance_decline_score", "decline_score"},
	"lowest_week_attendance":   {"lowest_week_attendance", "lowest_week"},
	"highest_week_attendance":  {"highest_week_attendance", "highest_week"},
	"is_declining_attendance":  {"is_declining_attendance", "declining"},
	"message_mentor":           {"message_mentor", "mentor_message"},
	"message_parent":           {"message_parent", "parent_message"},
}

// Table is one loaded CSV file. Header lookup is case-insensitive and rows
// keep their file order; joins in the aggregator depend on that order.
type Table struct {
	Path    string
	Headers []string
	Rows    [][]string

	index map[string]int // lowercased header -> column
}

// LoadTable reads a CSV file with a required header row. An unreadable or
// empty file is a structural error: downstream stages cannot proceed without
// the table, so the caller is expected to abort the run.
func LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open table %s: %w", path, err)
	}
	defer f.Close()

	rd := csv.NewReader(f)
	rd.TrimLeadingSpace = true
	rd.FieldsPerRecord = -1

	header, err := rd.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("table %s: empty file, header row required", path)
	}
	if err != nil {
		return nil, fmt.Errorf("table %s: read header: %w", path, err)
	}

	t := &Table{
		Path:    path,
		Headers: header,
		index:   make(map[string]int, len(header)),
	}
	for i, h := range header {
		key := strings.ToLower(strings.TrimSpace(h))
		if key == "" {
			continue
		}
		// First occurrence wins on duplicate headers.
		if _, ok := t.index[key]; !ok {
			t.index[key] = i
		}
	}

	for {
		rec, err := rd.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table %s: read row: %w", path, err)
		}
		t.Rows = append(t.Rows, rec)
	}
	return t, nil
}

// LoadTables loads every path in order. Order is significant: later stages
// document first-occurrence precedence across institute files.
func LoadTables(paths []string) ([]*Table, error) {
	out := make([]*Table, 0, len(paths))
	for _, p := range paths {
		t, err := LoadTable(p)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// Resolve returns the column index for a logical field, trying each accepted
// header variant in priority order.
func (t *Table) Resolve(field string) (int, bool) {
	variants, ok := fieldAliases[field]
	if !ok {
		variants = []string{field}
	}
	for _, v := range variants {
		if idx, ok := t.index[strings.ToLower(v)]; ok {
			return idx, true
		}
	}
	return 0, false
}

// HasField reports whether any accepted variant of the field is present.
func (t *Table) HasField(field string) bool {
	_, ok := t.Resolve(field)
	return ok
}

// Value returns the trimmed cell for a logical field in the given row. The
// second result is false when no variant is present or the cell is empty;
// per-row absence is recoverable and never an error.
func (t *Table) Value(row int, field string) (string, bool) {
	idx, ok := t.Resolve(field)
	if !ok {
		return "", false
	}
	if row < 0 || row >= len(t.Rows) || idx >= len(t.Rows[row]) {
		return "", false
	}
	v := strings.TrimSpace(t.Rows[row][idx])
	if v == "" {
		return "", false
	}
	return v, true
}

// RequireFields verifies that every listed logical field resolves to some
// column. A required field absent across all accepted variants is structural:
// the table cannot serve its role in the pipeline.
func (t *Table) RequireFields(fields ...string) error {
	var missing []string
	for _, f := range fields {
		if !t.HasField(f) {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s: required columns missing (no accepted variant): %s", t.Path, strings.Join(missing, ", "))
	}
	return nil
}

// Columns returns the lowercased headers whose name matches the predicate,
// in column order. Used to discover per-week attendance columns.
func (t *Table) Columns(match func(name string) bool) []string {
	var out []string
	for _, h := range t.Headers {
		key := strings.ToLower(strings.TrimSpace(h))
		if key != "" && match(key) {
			out = append(out, key)
		}
	}
	return out
}

func (t *Table) Int64(row int, field string) (int64, bool) {
	s, ok := t.Value(row, field)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some exports carry numeric ids as floats ("1001.0").
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0, false
		}
		return int64(f), true
	}
	return n, true
}

func (t *Table) Float(row int, field string) (float64, bool) {
	s, ok := t.Value(row, field)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
