package model

import (
	"fmt"
	"math"
	"strings"
)

// Field identifies one BANT component. Order matches the questionnaire.
type Field int

const (
	FieldBudget Field = iota
	FieldAuthority
	FieldNeed
	FieldTimeline
	FieldContact
)

// AllFields lists every field in questionnaire order.
var AllFields = []Field{FieldBudget, FieldAuthority, FieldNeed, FieldTimeline, FieldContact}

var fieldNames = [...]string{"budget", "authority", "need", "timeline", "contact"}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("field(%d)", int(f))
	}
	return fieldNames[f]
}

// MarshalText implements encoding.TextMarshaler.
func (f Field) MarshalText() ([]byte, error) {
	if f < 0 || int(f) >= len(fieldNames) {
		return nil, fmt.Errorf("unknown field %d", int(f))
	}
	return []byte(fieldNames[f]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (f *Field) UnmarshalText(b []byte) error {
	for i, name := range fieldNames {
		if name == strings.ToLower(string(b)) {
			*f = Field(i)
			return nil
		}
	}
	return fmt.Errorf("unknown field %q", string(b))
}

// FieldSet is a bitmask of fields.
type FieldSet uint8

// NewFieldSet builds a set from fields.
func NewFieldSet(fields ...Field) FieldSet {
	var s FieldSet
	for _, f := range fields {
		s = s.With(f)
	}
	return s
}

// With returns the set including f.
func (s FieldSet) With(f Field) FieldSet { return s | 1<<uint(f) }

// Has reports whether f is in the set.
func (s FieldSet) Has(f Field) bool { return s&(1<<uint(f)) != 0 }

// Empty reports whether the set has no fields.
func (s FieldSet) Empty() bool { return s == 0 }

// Fields lists the members in questionnaire order.
func (s FieldSet) Fields() []Field {
	var out []Field
	for _, f := range AllFields {
		if s.Has(f) {
			out = append(out, f)
		}
	}
	return out
}

// Authority is the buyer's decision-making power.
type Authority string

const (
	AuthoritySole  Authority = "sole"
	AuthorityJoint Authority = "joint"
	AuthorityGroup Authority = "group"
)

// Valid reports whether a is a known authority value.
func (a Authority) Valid() bool {
	return a == AuthoritySole || a == AuthorityJoint || a == AuthorityGroup
}

// Money is a normalized amount. Amount is in minor units (cents, centavos).
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency,omitempty"`
}

// Major returns the amount in major currency units.
func (m Money) Major() float64 {
	return float64(m.Amount) / 100
}

func (m Money) String() string {
	cur := m.Currency
	if cur == "" {
		cur = "???"
	}
	return fmt.Sprintf("%s %.2f", cur, m.Major())
}

// MoneyFromMajor converts a major-unit amount to Money.
func MoneyFromMajor(amount float64, currency string) Money {
	return Money{Amount: int64(math.Round(amount * 100)), Currency: currency}
}

// TimeUnit is the unit of a timeline.
type TimeUnit string

const (
	UnitDay   TimeUnit = "day"
	UnitWeek  TimeUnit = "week"
	UnitMonth TimeUnit = "month"
	UnitYear  TimeUnit = "year"
)

// Timeline is a normalized duration until the buyer intends to act.
type Timeline struct {
	Amount int      `json:"amount"`
	Unit   TimeUnit `json:"unit"`
}

// Days converts the timeline to an approximate number of days.
func (t Timeline) Days() int {
	switch t.Unit {
	case UnitWeek:
		return t.Amount * 7
	case UnitMonth:
		return t.Amount * 30
	case UnitYear:
		return t.Amount * 365
	default:
		return t.Amount
	}
}

func (t Timeline) String() string {
	if t.Amount == 1 {
		return fmt.Sprintf("1 %s", t.Unit)
	}
	return fmt.Sprintf("%d %ss", t.Amount, t.Unit)
}

// BANTRecord accumulates qualification facts over a conversation.
type BANTRecord struct {
	Budget       *Money    `json:"budget,omitempty"`
	Authority    Authority `json:"authority,omitempty"`
	Need         string    `json:"need,omitempty"`
	Timeline     *Timeline `json:"timeline,omitempty"`
	ContactName  string    `json:"contact_name,omitempty"`
	ContactPhone string    `json:"contact_phone,omitempty"`
	ContactEmail string    `json:"contact_email,omitempty"`
}

// Clone returns a deep copy.
func (b BANTRecord) Clone() BANTRecord {
	out := b
	if b.Budget != nil {
		m := *b.Budget
		out.Budget = &m
	}
	if b.Timeline != nil {
		t := *b.Timeline
		out.Timeline = &t
	}
	return out
}

// Has reports whether a field is populated. Contact counts as populated once
// a name and at least one way to reach the person are known.
func (b BANTRecord) Has(f Field) bool {
	switch f {
	case FieldBudget:
		return b.Budget != nil
	case FieldAuthority:
		return b.Authority != ""
	case FieldNeed:
		return b.Need != ""
	case FieldTimeline:
		return b.Timeline != nil
	case FieldContact:
		return b.ContactName != "" && (b.ContactPhone != "" || b.ContactEmail != "")
	}
	return false
}

// Populated returns the set of populated fields.
func (b BANTRecord) Populated() FieldSet {
	var s FieldSet
	for _, f := range AllFields {
		if b.Has(f) {
			s = s.With(f)
		}
	}
	return s
}

// HasAnyContact reports whether any contact detail is known.
func (b BANTRecord) HasAnyContact() bool {
	return b.ContactName != "" || b.ContactPhone != "" || b.ContactEmail != ""
}

// PartialBantUpdate is what one extraction found in one message. Nil pointers
// mean "not mentioned". Revisions marks fields the user explicitly changed.
type PartialBantUpdate struct {
	Budget       *Money     `json:"budget,omitempty"`
	Authority    *Authority `json:"authority,omitempty"`
	Need         *string    `json:"need,omitempty"`
	Timeline     *Timeline  `json:"timeline,omitempty"`
	ContactName  *string    `json:"contact_name,omitempty"`
	ContactPhone *string    `json:"contact_phone,omitempty"`
	ContactEmail *string    `json:"contact_email,omitempty"`
	Revisions    FieldSet   `json:"revisions,omitempty"`
}

// Fields returns the set of fields the update touches.
func (u PartialBantUpdate) Fields() FieldSet {
	var s FieldSet
	if u.Budget != nil {
		s = s.With(FieldBudget)
	}
	if u.Authority != nil {
		s = s.With(FieldAuthority)
	}
	if u.Need != nil {
		s = s.With(FieldNeed)
	}
	if u.Timeline != nil {
		s = s.With(FieldTimeline)
	}
	if u.ContactName != nil || u.ContactPhone != nil || u.ContactEmail != nil {
		s = s.With(FieldContact)
	}
	return s
}

// IsEmpty reports whether nothing was extracted.
func (u PartialBantUpdate) IsEmpty() bool {
	return u.Fields().Empty()
}
