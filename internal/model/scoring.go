package model

// Tier is the coarse qualification bucket derived from a score.
type Tier string

const (
	TierHot  Tier = "hot"
	TierWarm Tier = "warm"
	TierCold Tier = "cold"
)

// Weights maps each BANT category to its maximum points.
type Weights struct {
	Budget    float64 `json:"budget" yaml:"budget"`
	Authority float64 `json:"authority" yaml:"authority"`
	Need      float64 `json:"need" yaml:"need"`
	Timeline  float64 `json:"timeline" yaml:"timeline"`
	Contact   float64 `json:"contact" yaml:"contact"`
}

// For returns the weight of a field.
func (w Weights) For(f Field) float64 {
	switch f {
	case FieldBudget:
		return w.Budget
	case FieldAuthority:
		return w.Authority
	case FieldNeed:
		return w.Need
	case FieldTimeline:
		return w.Timeline
	case FieldContact:
		return w.Contact
	}
	return 0
}

// Sum returns the maximum attainable score.
func (w Weights) Sum() float64 {
	return w.Budget + w.Authority + w.Need + w.Timeline + w.Contact
}

// Thresholds are tier cutoffs over 0..Weights.Sum().
type Thresholds struct {
	Hot  float64 `json:"hot" yaml:"hot"`
	Warm float64 `json:"warm" yaml:"warm"`
}

// RangeRule awards Points to values at or above Min. Budget Min is in major
// currency units; timeline Min is in days.
type RangeRule struct {
	Min    float64 `json:"min" yaml:"min"`
	Points float64 `json:"points" yaml:"points"`
}

// CategoryRule awards Points to an exact category. "*" matches anything.
type CategoryRule struct {
	Category string  `json:"category" yaml:"category"`
	Points   float64 `json:"points" yaml:"points"`
}

// Rules holds the per-category sub-rules.
type Rules struct {
	Budget    []RangeRule    `json:"budget,omitempty" yaml:"budget"`
	Timeline  []RangeRule    `json:"timeline,omitempty" yaml:"timeline"`
	Authority []CategoryRule `json:"authority,omitempty" yaml:"authority"`
	Need      []CategoryRule `json:"need,omitempty" yaml:"need"`
	Contact   []CategoryRule `json:"contact,omitempty" yaml:"contact"`
}

// ScoringConfig is an agent's externally managed qualification rules.
type ScoringConfig struct {
	AgentID        string     `json:"agent_id" yaml:"agent_id"`
	OrganizationID string     `json:"organization_id,omitempty" yaml:"organization_id"`
	Currency       string     `json:"currency,omitempty" yaml:"currency"`
	Weights        Weights    `json:"weights" yaml:"weights"`
	Thresholds     Thresholds `json:"thresholds" yaml:"thresholds"`
	Rules          Rules      `json:"rules" yaml:"rules"`
	Required       []string   `json:"required,omitempty" yaml:"required"`
}

// RequiredFields returns the fields that must be populated before a lead is
// qualified. An empty list means every field.
func (c *ScoringConfig) RequiredFields() FieldSet {
	if len(c.Required) == 0 {
		return NewFieldSet(AllFields...)
	}
	var s FieldSet
	for _, name := range c.Required {
		var f Field
		if err := f.UnmarshalText([]byte(name)); err == nil {
			s = s.With(f)
		}
	}
	return s
}

// Breakdown is the per-category contribution to a score.
type Breakdown struct {
	Budget    float64 `json:"budget"`
	Authority float64 `json:"authority"`
	Need      float64 `json:"need"`
	Timeline  float64 `json:"timeline"`
	Contact   float64 `json:"contact"`
}

// Score is the output of the scoring engine.
type Score struct {
	Points    float64   `json:"points"`
	Tier      Tier      `json:"tier"`
	Breakdown Breakdown `json:"breakdown"`
}
