package alerter

// Recipient roles.
const (
	RoleMentor = "mentor"
	RoleParent = "parent"
)

// contactSchema names the logical fields of one recipient role; the alias
// table in table.go maps each to its accepted header variants.
type contactSchema struct {
	id    string
	name  string
	email string
	phone string
}

var contactSchemas = map[string]contactSchema{
	RoleMentor: {id: "mentor_id", name: "mentor_name", email: "mentor_email", phone: "mentor_phone"},
	RoleParent: {id: "parent_id", name: "parent_name", email: "parent_email", phone: "parent_phone"},
}

// ResolveContacts normalizes the per-institute contact tables of one role
// into canonical records. The identifier column is required in every table
// (structural error otherwise); name, email and phone resolve through the
// alias priority list and stay empty when absent. Records are deduplicated by
// id with the first occurrence winning, so the order of the source tables is
// the documented precedence rule.
func ResolveContacts(tables []*Table, role string) ([]ContactRecord, error) {
	schema := contactSchemas[role]
	var out []ContactRecord
	seen := make(map[int64]struct{})
	for _, t := range tables {
		if err := t.RequireFields(schema.id); err != nil {
			return nil, err
		}
		for i := range t.Rows {
			id, ok := t.Int64(i, schema.id)
			if !ok {
				continue
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}

			rec := ContactRecord{ID: id}
			rec.Name, _ = t.Value(i, schema.name)
			rec.Email, _ = t.Value(i, schema.email)
			rec.Phone, _ = t.Value(i, schema.phone)
			out = append(out, rec)
		}
	}
	return out, nil
}

// ContactIndex builds the id lookup the dispatcher uses.
func ContactIndex(recs []ContactRecord) map[int64]ContactRecord {
	out := make(map[int64]ContactRecord, len(recs))
	for _, r := range recs {
		if _, dup := out[r.ID]; !dup {
			out[r.ID] = r
		}
	}
	return out
}
