package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageOrderAndFields(t *testing.T) {
	assert.True(t, StageGreeting < StageAwaitingBudget)
	assert.True(t, StageAwaitingContact < StageQualified)

	for _, f := range AllFields {
		s := StageFor(f)
		assert.True(t, s.IsMidFlow(), s)
		got, ok := s.Field()
		require.True(t, ok)
		assert.Equal(t, f, got)
	}

	_, ok := StageGreeting.Field()
	assert.False(t, ok)
	assert.True(t, StageQualified.IsTerminal())
	assert.True(t, StageHandedOff.IsTerminal())
	assert.False(t, StageAwaitingContact.IsTerminal())
}

func TestStageJSON(t *testing.T) {
	b, err := json.Marshal(struct {
		Stage Stage `json:"stage"`
	}{StageAwaitingNeed})
	require.NoError(t, err)
	assert.JSONEq(t, `{"stage":"awaiting_need"}`, string(b))

	var s Stage
	require.NoError(t, s.UnmarshalText([]byte("handed_off")))
	assert.Equal(t, StageHandedOff, s)
	assert.Error(t, s.UnmarshalText([]byte("closing")))

	_, err = Stage(42).MarshalText()
	assert.Error(t, err)
}

func TestFieldSet(t *testing.T) {
	s := NewFieldSet(FieldContact, FieldBudget)
	assert.True(t, s.Has(FieldBudget))
	assert.False(t, s.Has(FieldNeed))
	assert.Equal(t, []Field{FieldBudget, FieldContact}, s.Fields())
	assert.True(t, FieldSet(0).Empty())

	var f Field
	require.NoError(t, f.UnmarshalText([]byte("Timeline")))
	assert.Equal(t, FieldTimeline, f)
}

func TestBANTRecordHas(t *testing.T) {
	b := BANTRecord{ContactName: "Samuel Jackson"}
	assert.False(t, b.Has(FieldContact))
	assert.True(t, b.HasAnyContact())

	b.ContactPhone = "098124814122"
	assert.True(t, b.Has(FieldContact))

	b.Budget = &Money{Amount: 100}
	assert.Equal(t, NewFieldSet(FieldBudget, FieldContact), b.Populated())
}

func TestConversationStateCloneIsDeep(t *testing.T) {
	orig := &ConversationState{
		ID:      "c1",
		BANT:    BANTRecord{Budget: &Money{Amount: 500, Currency: "PHP"}, Timeline: &Timeline{Amount: 3, Unit: UnitMonth}},
		History: []Turn{{Role: RoleUser, Content: "hi", CreatedAt: time.Now()}},
	}

	c := orig.Clone()
	c.BANT.Budget.Amount = 1
	c.BANT.Timeline.Amount = 9
	c.History[0].Content = "changed"
	c.History = append(c.History, Turn{Role: RoleAssistant, Content: "hello"})

	assert.Equal(t, int64(500), orig.BANT.Budget.Amount)
	assert.Equal(t, 3, orig.BANT.Timeline.Amount)
	assert.Equal(t, "hi", orig.History[0].Content)
	assert.Len(t, orig.History, 1)
}

func TestWindow(t *testing.T) {
	c := &ConversationState{}
	for i := 0; i < 5; i++ {
		c.History = append(c.History, Turn{Content: string(rune('a' + i))})
	}
	assert.Len(t, c.Window(0), 5)
	assert.Len(t, c.Window(10), 5)

	w := c.Window(2)
	require.Len(t, w, 2)
	assert.Equal(t, "d", w[0].Content)
	assert.Equal(t, "e", w[1].Content)
}

func TestMoneyAndTimeline(t *testing.T) {
	m := MoneyFromMajor(25_000_000, "PHP")
	assert.Equal(t, int64(2_500_000_000), m.Amount)
	assert.Equal(t, 25_000_000.0, m.Major())
	assert.Equal(t, "PHP 25000000.00", m.String())

	assert.Equal(t, 90, Timeline{Amount: 3, Unit: UnitMonth}.Days())
	assert.Equal(t, 14, Timeline{Amount: 2, Unit: UnitWeek}.Days())
	assert.Equal(t, 365, Timeline{Amount: 1, Unit: UnitYear}.Days())
	assert.Equal(t, "1 year", Timeline{Amount: 1, Unit: UnitYear}.String())
	assert.Equal(t, "6 months", Timeline{Amount: 6, Unit: UnitMonth}.String())
}

func TestPartialUpdateFields(t *testing.T) {
	assert.True(t, PartialBantUpdate{}.IsEmpty())

	phone := "0917"
	u := PartialBantUpdate{ContactPhone: &phone, Timeline: &Timeline{Amount: 1, Unit: UnitYear}}
	assert.Equal(t, NewFieldSet(FieldTimeline, FieldContact), u.Fields())
}
