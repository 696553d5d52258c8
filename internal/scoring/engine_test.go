package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

func peso(major float64) *model.Money {
	m := model.MoneyFromMajor(major, "PHP")
	return &m
}

func topTierBANT() model.BANTRecord {
	return model.BANTRecord{
		Budget:       peso(25_000_000),
		Authority:    model.AuthoritySole,
		Need:         "residence",
		Timeline:     &model.Timeline{Amount: 1, Unit: model.UnitMonth},
		ContactName:  "Samuel Jackson",
		ContactPhone: "098124814122",
	}
}

func TestScore_TopTierIsHundredAndHot(t *testing.T) {
	cfg := DefaultConfig("agent-1")

	s := Score(topTierBANT(), cfg)

	assert.Equal(t, 100.0, s.Points)
	assert.Equal(t, model.TierHot, s.Tier)
	assert.Equal(t, model.Breakdown{Budget: 35, Authority: 20, Need: 25, Timeline: 15, Contact: 5}, s.Breakdown)
}

func TestScore_Idempotent(t *testing.T) {
	cfg := DefaultConfig("agent-1")
	bant := topTierBANT()
	bant.Budget = peso(750_000)
	bant.Authority = model.AuthorityJoint

	first := Score(bant, cfg)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Score(bant, cfg))
	}
}

func TestScore_EmptyRecordIsColdZero(t *testing.T) {
	s := Score(model.BANTRecord{}, DefaultConfig("a"))
	assert.Equal(t, 0.0, s.Points)
	assert.Equal(t, model.TierCold, s.Tier)
}

func TestScore_BudgetRanges(t *testing.T) {
	cfg := DefaultConfig("a")
	tests := []struct {
		name   string
		amount float64
		want   float64
	}{
		{"five million exact", 5_000_000, 35},
		{"above five million", 80_000_000, 35},
		{"between one and five million", 2_500_000, 21},
		{"one million exact", 1_000_000, 21},
		{"half million", 500_000, 14},
		{"below half million", 120_000, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Score(model.BANTRecord{Budget: peso(tt.amount)}, cfg)
			assert.Equal(t, tt.want, s.Breakdown.Budget)
		})
	}
}

func TestScore_ForeignCurrencyBudgetUsesRawAmount(t *testing.T) {
	cfg := DefaultConfig("a")
	usd := model.MoneyFromMajor(600_000, "USD")

	s := Score(model.BANTRecord{Budget: &usd}, cfg)
	assert.Equal(t, Score(model.BANTRecord{Budget: peso(600_000)}, cfg).Breakdown.Budget, s.Breakdown.Budget)
	assert.Equal(t, 14.0, s.Breakdown.Budget)
}

func TestScore_TimelineRangesInDays(t *testing.T) {
	cfg := DefaultConfig("a")
	tests := []struct {
		timeline model.Timeline
		want     float64
	}{
		{model.Timeline{Amount: 2, Unit: model.UnitWeek}, 15},
		{model.Timeline{Amount: 3, Unit: model.UnitMonth}, 15},
		{model.Timeline{Amount: 4, Unit: model.UnitMonth}, 10},
		{model.Timeline{Amount: 6, Unit: model.UnitMonth}, 10},
		{model.Timeline{Amount: 9, Unit: model.UnitMonth}, 6},
		{model.Timeline{Amount: 2, Unit: model.UnitYear}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.timeline.String(), func(t *testing.T) {
			tl := tt.timeline
			s := Score(model.BANTRecord{Timeline: &tl}, cfg)
			assert.Equal(t, tt.want, s.Breakdown.Timeline)
		})
	}
}

func TestScore_CategoryMatchAndWildcard(t *testing.T) {
	cfg := DefaultConfig("a")

	assert.Equal(t, 20.0, Score(model.BANTRecord{Need: "business"}, cfg).Breakdown.Need)
	assert.Equal(t, 10.0, Score(model.BANTRecord{Need: "retirement"}, cfg).Breakdown.Need)
	assert.Equal(t, 8.0, Score(model.BANTRecord{Authority: model.AuthorityGroup}, cfg).Breakdown.Authority)

	cfg.Rules.Need = []model.CategoryRule{{Category: "residence", Points: 25}}
	assert.Equal(t, 0.0, Score(model.BANTRecord{Need: "retirement"}, cfg).Breakdown.Need)
}

func TestScore_PartialContact(t *testing.T) {
	cfg := DefaultConfig("a")

	s := Score(model.BANTRecord{ContactName: "Ana"}, cfg)
	assert.Equal(t, 2.0, s.Breakdown.Contact)

	s = Score(model.BANTRecord{ContactName: "Ana", ContactEmail: "ana@example.com"}, cfg)
	assert.Equal(t, 5.0, s.Breakdown.Contact)
}

func TestTierFor(t *testing.T) {
	th := model.Thresholds{Hot: 80, Warm: 50}
	assert.Equal(t, model.TierHot, TierFor(80, th))
	assert.Equal(t, model.TierWarm, TierFor(79.99, th))
	assert.Equal(t, model.TierWarm, TierFor(50, th))
	assert.Equal(t, model.TierCold, TierFor(49, th))
}

func TestScore_WarmLead(t *testing.T) {
	cfg := DefaultConfig("a")
	bant := model.BANTRecord{
		Budget:    peso(1_500_000),
		Authority: model.AuthorityJoint,
		Need:      "vacation",
	}
	s := Score(bant, cfg)
	require.Equal(t, 50.0, s.Points)
	assert.Equal(t, model.TierWarm, s.Tier)
}
