// Package agentconfig loads per-agent scoring configurations from the
// external store that owns them.
package agentconfig

import (
	"context"
	"errors"
	"sync"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
)

// ErrAgentNotFound is returned for agents with no configuration.
var ErrAgentNotFound = errors.New("agent not found")

// Source resolves an agent's current scoring configuration. Callers re-read
// it on every turn so edits apply to the next message.
type Source interface {
	ScoringConfig(ctx context.Context, agentID string) (*model.ScoringConfig, error)
	OrganizationOf(ctx context.Context, agentID string) (string, error)
}

// Static serves a fixed set of configs, falling back to the stock rules when
// Fallback is set.
type Static struct {
	Fallback bool

	mu   sync.RWMutex
	cfgs map[string]*model.ScoringConfig
}

// NewStatic validates cfgs and returns a source serving them.
func NewStatic(cfgs ...*model.ScoringConfig) (*Static, error) {
	s := &Static{cfgs: make(map[string]*model.ScoringConfig, len(cfgs))}
	for _, c := range cfgs {
		if err := s.Put(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Put validates and stores cfg.
func (s *Static) Put(cfg *model.ScoringConfig) error {
	if err := scoring.Validate(cfg); err != nil {
		return err
	}
	s.mu.Lock()
	s.cfgs[cfg.AgentID] = clone(cfg)
	s.mu.Unlock()
	return nil
}

// ScoringConfig implements Source.
func (s *Static) ScoringConfig(_ context.Context, agentID string) (*model.ScoringConfig, error) {
	s.mu.RLock()
	cfg, ok := s.cfgs[agentID]
	s.mu.RUnlock()
	if ok {
		return clone(cfg), nil
	}
	if s.Fallback && agentID != "" {
		return scoring.DefaultConfig(agentID), nil
	}
	return nil, ErrAgentNotFound
}

// OrganizationOf implements Source.
func (s *Static) OrganizationOf(ctx context.Context, agentID string) (string, error) {
	cfg, err := s.ScoringConfig(ctx, agentID)
	if err != nil {
		return "", err
	}
	return cfg.OrganizationID, nil
}

func clone(c *model.ScoringConfig) *model.ScoringConfig {
	out := *c
	out.Rules = model.Rules{
		Budget:    append([]model.RangeRule(nil), c.Rules.Budget...),
		Timeline:  append([]model.RangeRule(nil), c.Rules.Timeline...),
		Authority: append([]model.CategoryRule(nil), c.Rules.Authority...),
		Need:      append([]model.CategoryRule(nil), c.Rules.Need...),
		Contact:   append([]model.CategoryRule(nil), c.Rules.Contact...),
	}
	out.Required = append([]string(nil), c.Required...)
	return &out
}
