package scoring

import (
	"errors"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
)

// ErrConfigInvalid is matched by every validation failure.
var ErrConfigInvalid = errors.New("scoring config invalid")

// ValidationError lists every problem found in a config.
type ValidationError struct {
	AgentID  string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("scoring config for agent %q invalid: %s", e.AgentID, strings.Join(e.Problems, "; "))
}

// Is matches ErrConfigInvalid.
func (e *ValidationError) Is(target error) bool {
	return target == ErrConfigInvalid
}

const configSchema = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "required": ["agent_id", "weights", "thresholds", "rules"],
  "properties": {
    "agent_id": {"type": "string", "minLength": 1},
    "organization_id": {"type": "string"},
    "currency": {"type": "string", "pattern": "^([A-Z]{3})?$"},
    "weights": {
      "type": "object",
      "required": ["budget", "authority", "need", "timeline", "contact"],
      "properties": {
        "budget": {"type": "number", "minimum": 0},
        "authority": {"type": "number", "minimum": 0},
        "need": {"type": "number", "minimum": 0},
        "timeline": {"type": "number", "minimum": 0},
        "contact": {"type": "number", "minimum": 0}
      }
    },
    "thresholds": {
      "type": "object",
      "required": ["hot", "warm"],
      "properties": {
        "hot": {"type": "number", "minimum": 0},
        "warm": {"type": "number", "minimum": 0}
      }
    },
    "rules": {
      "type": "object",
      "properties": {
        "budget": {"$ref": "#/definitions/rangeRules"},
        "timeline": {"$ref": "#/definitions/rangeRules"},
        "authority": {"$ref": "#/definitions/categoryRules"},
        "need": {"$ref": "#/definitions/categoryRules"},
        "contact": {"$ref": "#/definitions/categoryRules"}
      }
    },
    "required": {
      "type": "array",
      "uniqueItems": true,
      "items": {"enum": ["budget", "authority", "need", "timeline", "contact"]}
    }
  },
  "definitions": {
    "rangeRules": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["min", "points"],
        "properties": {
          "min": {"type": "number", "minimum": 0},
          "points": {"type": "number", "minimum": 0}
        }
      }
    },
    "categoryRules": {
      "type": ["array", "null"],
      "items": {
        "type": "object",
        "required": ["category", "points"],
        "properties": {
          "category": {"type": "string", "minLength": 1},
          "points": {"type": "number", "minimum": 0}
        }
      }
    }
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(configSchema)

// Validate checks the config's shape and its invariants: no sub-rule awards
// more than its category weight, and warm <= hot <= sum(weights).
func Validate(cfg *model.ScoringConfig) error {
	if cfg == nil {
		return &ValidationError{Problems: []string{"config is nil"}}
	}

	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(cfg))
	if err != nil {
		return fmt.Errorf("validate scoring config: %w", err)
	}

	var problems []string
	for _, desc := range result.Errors() {
		problems = append(problems, desc.String())
	}

	checkRange := func(name string, rules []model.RangeRule, weight float64) {
		for i, r := range rules {
			if r.Points > weight {
				problems = append(problems, fmt.Sprintf("rules.%s[%d]: %g points exceed weight %g", name, i, r.Points, weight))
			}
		}
	}
	checkCategory := func(name string, rules []model.CategoryRule, weight float64) {
		seen := make(map[string]bool)
		for i, r := range rules {
			if r.Points > weight {
				problems = append(problems, fmt.Sprintf("rules.%s[%d]: %g points exceed weight %g", name, i, r.Points, weight))
			}
			key := strings.ToLower(r.Category)
			if seen[key] {
				problems = append(problems, fmt.Sprintf("rules.%s[%d]: duplicate category %q", name, i, r.Category))
			}
			seen[key] = true
		}
	}

	w := cfg.Weights
	checkRange("budget", cfg.Rules.Budget, w.Budget)
	checkRange("timeline", cfg.Rules.Timeline, w.Timeline)
	checkCategory("authority", cfg.Rules.Authority, w.Authority)
	checkCategory("need", cfg.Rules.Need, w.Need)
	checkCategory("contact", cfg.Rules.Contact, w.Contact)

	if cfg.Thresholds.Warm > cfg.Thresholds.Hot {
		problems = append(problems, fmt.Sprintf("thresholds: warm %g above hot %g", cfg.Thresholds.Warm, cfg.Thresholds.Hot))
	}
	if sum := w.Sum(); cfg.Thresholds.Hot > sum {
		problems = append(problems, fmt.Sprintf("thresholds: hot %g above maximum score %g", cfg.Thresholds.Hot, sum))
	}

	if len(problems) > 0 {
		return &ValidationError{AgentID: cfg.AgentID, Problems: problems}
	}
	return nil
}
