package bant

import "github.com/marwie0904/leadify-RE-APP-sub004/internal/model"

// Merge applies upd to current. A populated field is only overwritten when
// upd marks it as revised; fields are never cleared. It returns the merged
// record and the fields whose value changed.
func Merge(current model.BANTRecord, upd model.PartialBantUpdate) (model.BANTRecord, model.FieldSet) {
	next := current.Clone()
	var changed model.FieldSet

	writable := func(f model.Field, populated bool) bool {
		return !populated || upd.Revisions.Has(f)
	}

	if upd.Budget != nil && writable(model.FieldBudget, current.Budget != nil) {
		if current.Budget == nil || *current.Budget != *upd.Budget {
			b := *upd.Budget
			next.Budget = &b
			changed = changed.With(model.FieldBudget)
		}
	}
	if upd.Authority != nil && *upd.Authority != "" && writable(model.FieldAuthority, current.Authority != "") {
		if current.Authority != *upd.Authority {
			next.Authority = *upd.Authority
			changed = changed.With(model.FieldAuthority)
		}
	}
	if upd.Need != nil && *upd.Need != "" && writable(model.FieldNeed, current.Need != "") {
		if current.Need != *upd.Need {
			next.Need = *upd.Need
			changed = changed.With(model.FieldNeed)
		}
	}
	if upd.Timeline != nil && writable(model.FieldTimeline, current.Timeline != nil) {
		if current.Timeline == nil || *current.Timeline != *upd.Timeline {
			t := *upd.Timeline
			next.Timeline = &t
			changed = changed.With(model.FieldTimeline)
		}
	}

	// Contact parts fill in independently; a revision may replace any of them.
	setPart := func(dst *string, src *string, replace bool) {
		if src == nil || *src == "" {
			return
		}
		if *dst != "" && !replace && !upd.Revisions.Has(model.FieldContact) {
			return
		}
		if *dst != *src {
			*dst = *src
			changed = changed.With(model.FieldContact)
		}
	}
	// A name given alongside a phone or email replaces one given on its own.
	lonePrior := current.ContactPhone == "" && current.ContactEmail == ""
	reachable := nonEmpty(upd.ContactPhone) || nonEmpty(upd.ContactEmail)
	setPart(&next.ContactName, upd.ContactName, lonePrior && reachable)
	setPart(&next.ContactPhone, upd.ContactPhone, false)
	setPart(&next.ContactEmail, upd.ContactEmail, false)

	return next, changed
}

func nonEmpty(s *string) bool {
	return s != nil && *s != ""
}
