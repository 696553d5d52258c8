// Package scoring computes weighted BANT scores and qualification tiers.
package scoring

import (
	"math"
	"strings"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// Contact categories matched by contact rules.
const (
	ContactComplete = "complete"
	ContactPartial  = "partial"
	Wildcard        = "*"
)

// Score is a pure function of (bant, cfg): unpopulated fields contribute zero,
// populated fields are converted to points through the config's sub-rules.
func Score(bant model.BANTRecord, cfg *model.ScoringConfig) model.Score {
	var b model.Breakdown

	if bant.Budget != nil {
		// Compared on the raw major amount; budgets in another currency are not converted.
		b.Budget = matchRange(cfg.Rules.Budget, bant.Budget.Major())
	}
	if bant.Authority != "" {
		b.Authority = matchCategory(cfg.Rules.Authority, string(bant.Authority))
	}
	if bant.Need != "" {
		b.Need = matchCategory(cfg.Rules.Need, bant.Need)
	}
	if bant.Timeline != nil {
		b.Timeline = matchRange(cfg.Rules.Timeline, float64(bant.Timeline.Days()))
	}
	if bant.HasAnyContact() {
		category := ContactPartial
		if bant.Has(model.FieldContact) {
			category = ContactComplete
		}
		b.Contact = matchCategory(cfg.Rules.Contact, category)
	}

	points := round2(b.Budget + b.Authority + b.Need + b.Timeline + b.Contact)
	return model.Score{
		Points:    points,
		Tier:      TierFor(points, cfg.Thresholds),
		Breakdown: b,
	}
}

// TierFor maps points to a tier.
func TierFor(points float64, t model.Thresholds) model.Tier {
	switch {
	case points >= t.Hot:
		return model.TierHot
	case points >= t.Warm:
		return model.TierWarm
	}
	return model.TierCold
}

// matchRange picks the rule with the highest Min at or below value. Timeline
// rules are keyed by days, so a rule with Min 91 covers every timeline longer
// than three months until the next rule takes over.
func matchRange(rules []model.RangeRule, value float64) float64 {
	best := -1
	for i, r := range rules {
		if r.Min > value {
			continue
		}
		if best < 0 || r.Min > rules[best].Min {
			best = i
		}
	}
	if best < 0 {
		return 0
	}
	return rules[best].Points
}

func matchCategory(rules []model.CategoryRule, category string) float64 {
	category = strings.ToLower(strings.TrimSpace(category))
	fallback := 0.0
	for _, r := range rules {
		c := strings.ToLower(r.Category)
		if c == category {
			return r.Points
		}
		if c == Wildcard {
			fallback = r.Points
		}
	}
	return fallback
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
