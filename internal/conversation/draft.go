package conversation

import (
	"github.com/wolfman30/medassist/internal/session"
	"github.com/wolfman30/medassist/internal/tools"
)

// draftTracker folds tool calls of one turn into the session's booking draft.
type draftTracker struct {
	draft   session.Draft
	changed bool
}

func newDraftTracker(d session.Draft) *draftTracker {
	return &draftTracker{draft: d}
}

func (t *draftTracker) observe(o tools.Outcome) {
	args := tools.Args(o.Call.Args)
	switch o.Call.Name {
	case tools.CheckAvailability:
		if o.Err != nil {
			return
		}
		next := session.Draft{Date: args.FirstString("date", "check_date")}
		if id, err := args.OptionalInt("doctor_id"); err == nil {
			next.DoctorID = id
		}
		t.merge(next)
	case tools.BookAppointment:
		if o.Err == nil {
			if !t.draft.IsZero() {
				t.draft = session.Draft{}
				t.changed = true
			}
			return
		}
		// A failed booking still tells us who the patient is.
		next := session.Draft{
			Date:   args.FirstString("date", "appointment_date"),
			Time:   args.FirstString("time", "appointment_time"),
			Name:   args.FirstString("patient_name", "name"),
			Email:  args.FirstString("patient_email", "email"),
			Reason: args.String("reason"),
		}
		if id, err := args.OptionalInt("doctor_id"); err == nil {
			next.DoctorID = id
		}
		if o.Kind() == tools.KindSlotTaken {
			next.Time = ""
			t.draft.Time = ""
		}
		t.merge(next)
	}
}

func (t *draftTracker) merge(next session.Draft) {
	merged := t.draft.Merge(next)
	if merged != t.draft {
		t.draft = merged
		t.changed = true
	}
}

func (t *draftTracker) result() (session.Draft, bool) {
	return t.draft, t.changed
}
