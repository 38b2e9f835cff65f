package alerter

import (
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"
)

// Alert is one row of the alert input: up to two dispatch attempts, one
// mentor-facing and one parent-facing. Nil ids and empty messages are kept
// as-is; the dispatcher records them as failed outcomes rather than dropping
// the row silently.
type Alert struct {
	MentorID      *int64
	ParentID      *int64
	MessageMentor string
	MessageParent string
}

// LoadAlerts extracts alerts from the alert tables. Table-level problems are
// structural (the caller aborts); row-level gaps are not.
func LoadAlerts(tables []*Table) ([]Alert, error) {
	var out []Alert
	for _, t := range tables {
		for i := range t.Rows {
			var a Alert
			if id, ok := t.Int64(i, "mentor_id"); ok {
				a.MentorID = &id
			}
			if id, ok := t.Int64(i, "parent_id"); ok {
				a.ParentID = &id
			}
			a.MessageMentor, _ = t.Value(i, "message_mentor")
			a.MessageParent, _ = t.Value(i, "message_parent")
			out = append(out, a)
		}
	}
	return out, nil
}

// Role-specific subjects for the email channel.
var roleSubjects = map[string]string{
	RoleMentor: "At-risk students: weekly digest",
	RoleParent: "Attendance support update",
}

// Dispatcher attempts delivery for each alert across an ordered channel
// plan. It never fails fast: every per-recipient problem becomes a recorded
// outcome and processing continues, so a single bad address can never abort
// the batch.
type Dispatcher struct {
	channels map[string]Channel
	plan     []string
	db       *gorm.DB
	runID    string
	Debug    bool
}

// NewDispatcher builds the channel set for the plan. Unknown plan entries are
// kept: they surface per-recipient as unknown_channel outcomes, which is an
// operator configuration signal, not a structural failure.
func NewDispatcher(creds ChannelCredentials, plan []string) *Dispatcher {
	d := &Dispatcher{
		channels: make(map[string]Channel, len(plan)),
		plan:     plan,
		runID:    time.Now().UTC().Format("20060102T150405.000000000"),
	}
	for _, name := range plan {
		if ch, ok := BuildChannel(name, creds); ok {
			d.channels[name] = ch
		}
	}
	return d
}

// WithStore attaches the outcome archive. Optional: dispatch works without
// it, the archive only adds the queryable history.
func (d *Dispatcher) WithStore(db *gorm.DB) *Dispatcher {
	d.db = db
	return d
}

// RunID identifies this dispatcher's outcomes in the archive.
func (d *Dispatcher) RunID() string { return d.runID }

func (d *Dispatcher) debugf(format string, args ...any) {
	if d == nil || !d.Debug {
		return
	}
	log.Printf(format, args...)
}

// Dispatch processes every alert against both recipient roles and returns
// the successful and failed outcomes for every recipient processed. Per-
// recipient failures are data, not errors; the error return is reserved for
// a future structural problem and is always nil today.
func (d *Dispatcher) Dispatch(alerts []Alert, mentors, parents map[int64]ContactRecord) (sent, failed []DeliveryOutcome) {
	for _, a := range alerts {
		s, f := d.dispatchOne(RoleMentor, a.MentorID, a.MessageMentor, mentors)
		sent = append(sent, s...)
		failed = append(failed, f...)

		s, f = d.dispatchOne(RoleParent, a.ParentID, a.MessageParent, parents)
		sent = append(sent, s...)
		failed = append(failed, f...)
	}
	return sent, failed
}

func (d *Dispatcher) dispatchOne(role string, id *int64, body string, contacts map[int64]ContactRecord) (sent, failed []DeliveryOutcome) {
	// Required-field check precedes any delivery attempt.
	if id == nil || body == "" {
		var rid int64
		if id != nil {
			rid = *id
		}
		failed = append(failed, d.record(DeliveryOutcome{
			RecipientID: rid,
			Role:        role,
			Status:      StatusFailed,
			Detail:      ReasonMissingFields,
		}))
		return sent, failed
	}

	contact, ok := contacts[*id]
	if !ok {
		// Carry the numeric id for operator follow-up.
		failed = append(failed, d.record(DeliveryOutcome{
			RecipientID: *id,
			Role:        role,
			Status:      StatusFailed,
			Detail:      role + "_not_found",
		}))
		return sent, failed
	}

	msg := Message{Subject: roleSubjects[role], Body: body}
	for _, name := range d.plan {
		ch, known := d.channels[name]
		if !known {
			failed = append(failed, d.record(DeliveryOutcome{
				RecipientID: *id,
				Role:        role,
				Channel:     name,
				Status:      StatusFailed,
				Detail:      ReasonUnknownChannel,
			}))
			continue
		}
		if !ch.Configured() {
			// Short-circuit before any network call.
			failed = append(failed, d.record(DeliveryOutcome{
				RecipientID: *id,
				Role:        role,
				Channel:     name,
				Status:      StatusFailed,
				Detail:      name + "_not_configured",
			}))
			continue
		}
		if err := ch.Send(contact, msg); err != nil {
			d.debugf("send failed role=%s id=%d channel=%s err=%v", role, *id, name, err)
			failed = append(failed, d.record(DeliveryOutcome{
				RecipientID: *id,
				Role:        role,
				Channel:     name,
				Status:      StatusFailed,
				Detail:      err.Error(),
			}))
			continue
		}
		d.debugf("send ok role=%s id=%d channel=%s", role, *id, name)
		sent = append(sent, d.record(DeliveryOutcome{
			RecipientID: *id,
			Role:        role,
			Channel:     name,
			Status:      StatusSent,
			Detail:      "delivered",
		}))
		break
	}
	return sent, failed
}

// record archives the outcome when a store is attached and returns it
// unchanged. Archive failures are logged, never propagated: the outcome
// collections are the source of truth for the caller.
func (d *Dispatcher) record(o DeliveryOutcome) DeliveryOutcome {
	if d.db != nil {
		row := OutcomeRecord{
			RunID:       d.runID,
			RecipientID: o.RecipientID,
			Role:        o.Role,
			Channel:     o.Channel,
			Status:      o.Status,
			Detail:      o.Detail,
			CreatedAt:   time.Now().UTC(),
		}
		if err := d.db.Create(&row).Error; err != nil {
			log.Printf("archive outcome failed id=%d: %v", o.RecipientID, err)
		}
	}
	return o
}

// SummarizeFailures groups failed outcomes by their reason tag, producible
// from the returned collection alone without re-reading source data.
func SummarizeFailures(failed []DeliveryOutcome) map[string]int {
	out := make(map[string]int, len(failed))
	for _, o := range failed {
		out[o.Detail]++
	}
	return out
}

// FormatSummary renders per-stage counts for the end-of-run report.
func FormatSummary(sent, failed []DeliveryOutcome) string {
	return fmt.Sprintf("sent=%d failed=%d", len(sent), len(failed))
}
