package agentconfig

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/model"
	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/logger"
	"github.com/marwie0904/leadify-RE-APP-sub004/pkg/metrics"
)

type fileEntry struct {
	path    string
	modTime time.Time
	size    int64
	cfg     *model.ScoringConfig
}

// FileSource reads one YAML document per agent from a directory. A file is
// re-read when its modification time or size changes; an edit that fails
// validation is rejected and the last valid version keeps serving.
type FileSource struct {
	dir string
	log *logger.Logger

	mu      sync.Mutex
	entries map[string]*fileEntry
}

// OpenDir loads and validates every *.yaml and *.yml file in dir. Any invalid
// file fails the open.
func OpenDir(dir string, log *logger.Logger) (*FileSource, error) {
	if log == nil {
		log = logger.NewNop()
	}
	s := &FileSource{dir: dir, log: log, entries: make(map[string]*fileEntry)}

	paths, err := s.list()
	if err != nil {
		return nil, err
	}
	var errs []error
	for _, p := range paths {
		e, err := load(p)
		if err != nil {
			metrics.ConfigRejectedTotal.WithLabelValues("file").Inc()
			errs = append(errs, err)
			continue
		}
		if prev, dup := s.entries[e.cfg.AgentID]; dup {
			errs = append(errs, fmt.Errorf("%s: agent %q already defined in %s", p, e.cfg.AgentID, prev.path))
			continue
		}
		s.entries[e.cfg.AgentID] = e
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	log.Info("agent configs loaded", zap.String("dir", dir), zap.Int("agents", len(s.entries)))
	return s, nil
}

// ScoringConfig implements Source.
func (s *FileSource) ScoringConfig(_ context.Context, agentID string) (*model.ScoringConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[agentID]
	if !ok {
		e = s.discover(agentID)
		if e == nil {
			return nil, ErrAgentNotFound
		}
	}
	s.refresh(e)
	return clone(e.cfg), nil
}

// OrganizationOf implements Source.
func (s *FileSource) OrganizationOf(ctx context.Context, agentID string) (string, error) {
	cfg, err := s.ScoringConfig(ctx, agentID)
	if err != nil {
		return "", err
	}
	return cfg.OrganizationID, nil
}

// Agents lists the loaded agent ids.
func (s *FileSource) Agents() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for id := range s.entries {
		out = append(out, id)
	}
	return out
}

func (s *FileSource) refresh(e *fileEntry) {
	info, err := os.Stat(e.path)
	if err != nil {
		s.log.Warn("agent config unreadable, serving last valid version",
			zap.String("path", e.path), zap.Error(err))
		return
	}
	if info.ModTime().Equal(e.modTime) && info.Size() == e.size {
		return
	}

	next, err := load(e.path)
	if err == nil && next.cfg.AgentID != e.cfg.AgentID {
		err = fmt.Errorf("%s: agent_id changed from %q to %q", e.path, e.cfg.AgentID, next.cfg.AgentID)
	}
	if err != nil {
		metrics.ConfigRejectedTotal.WithLabelValues("file").Inc()
		s.log.Error("agent config edit rejected, serving last valid version",
			zap.String("agent_id", e.cfg.AgentID),
			zap.String("path", e.path),
			zap.Error(err))
		// Remember the rejected revision so it is not re-parsed every turn.
		e.modTime, e.size = info.ModTime(), info.Size()
		return
	}

	*e = *next
	s.log.Info("agent config reloaded", zap.String("agent_id", e.cfg.AgentID), zap.String("path", e.path))
}

// discover looks for a file added after OpenDir. Must hold s.mu.
func (s *FileSource) discover(agentID string) *fileEntry {
	paths, err := s.list()
	if err != nil {
		return nil
	}
	known := make(map[string]bool, len(s.entries))
	for _, e := range s.entries {
		known[e.path] = true
	}
	for _, p := range paths {
		if known[p] {
			continue
		}
		e, err := load(p)
		if err != nil {
			metrics.ConfigRejectedTotal.WithLabelValues("file").Inc()
			s.log.Error("agent config rejected", zap.String("path", p), zap.Error(err))
			continue
		}
		if _, dup := s.entries[e.cfg.AgentID]; dup {
			continue
		}
		s.entries[e.cfg.AgentID] = e
	}
	return s.entries[agentID]
}

func (s *FileSource) list() ([]string, error) {
	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read agent config dir: %w", err)
	}
	var out []string
	for _, d := range dirEntries {
		if d.IsDir() {
			continue
		}
		switch strings.ToLower(filepath.Ext(d.Name())) {
		case ".yaml", ".yml":
			out = append(out, filepath.Join(s.dir, d.Name()))
		}
	}
	return out, nil
}

func load(path string) (*fileEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg model.ScoringConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%s: %w: %v", path, scoring.ErrConfigInvalid, err)
	}
	if cfg.AgentID == "" {
		cfg.AgentID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := scoring.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &fileEntry{path: path, modTime: info.ModTime(), size: info.Size(), cfg: &cfg}, nil
}
