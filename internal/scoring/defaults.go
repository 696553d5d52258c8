package scoring

import "github.com/marwie0904/leadify-RE-APP-sub004/internal/model"

// DefaultConfig returns the stock rule set for agents without a custom one.
// Budget rules are in major units of PHP.
func DefaultConfig(agentID string) *model.ScoringConfig {
	return &model.ScoringConfig{
		AgentID:  agentID,
		Currency: "PHP",
		Weights: model.Weights{
			Budget:    35,
			Authority: 20,
			Need:      25,
			Timeline:  15,
			Contact:   5,
		},
		Thresholds: model.Thresholds{Hot: 80, Warm: 50},
		Rules: model.Rules{
			Budget: []model.RangeRule{
				{Min: 5_000_000, Points: 35},
				{Min: 1_000_000, Points: 21},
				{Min: 500_000, Points: 14},
				{Min: 0, Points: 5},
			},
			Timeline: []model.RangeRule{
				{Min: 0, Points: 15},
				{Min: 91, Points: 10},
				{Min: 181, Points: 6},
				{Min: 366, Points: 2},
			},
			Authority: []model.CategoryRule{
				{Category: string(model.AuthoritySole), Points: 20},
				{Category: string(model.AuthorityJoint), Points: 14},
				{Category: string(model.AuthorityGroup), Points: 8},
			},
			Need: []model.CategoryRule{
				{Category: "residence", Points: 25},
				{Category: "investment", Points: 25},
				{Category: "business", Points: 20},
				{Category: "vacation", Points: 15},
				{Category: Wildcard, Points: 10},
			},
			Contact: []model.CategoryRule{
				{Category: ContactComplete, Points: 5},
				{Category: ContactPartial, Points: 2},
			},
		},
	}
}
