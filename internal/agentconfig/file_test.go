package agentconfig

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marwie0904/leadify-RE-APP-sub004/internal/scoring"
)

const agentYAML = `agent_id: agent-1
organization_id: org-1
currency: PHP
weights: {budget: 35, authority: 20, need: 25, timeline: 15, contact: 5}
thresholds: {hot: 80, warm: 50}
rules:
  budget:
    - {min: 5000000, points: 35}
    - {min: 0, points: 5}
  authority:
    - {category: sole, points: 20}
required: [budget, authority, need, timeline, contact]
`

func writeConfig(t *testing.T, path, body string, mod time.Time) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.Chtimes(path, mod, mod))
}

func TestFileSource_Load(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, filepath.Join(dir, "agent-1.yaml"), agentYAML, time.Now())

	src, err := OpenDir(dir, nil)
	require.NoError(t, err)

	cfg, err := src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", cfg.OrganizationID)
	assert.Equal(t, 35.0, cfg.Weights.Budget)
	assert.Equal(t, 80.0, cfg.Thresholds.Hot)
	require.Len(t, cfg.Rules.Budget, 2)
	assert.Equal(t, 5_000_000.0, cfg.Rules.Budget[0].Min)

	org, err := src.OrganizationOf(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, "org-1", org)

	_, err = src.ScoringConfig(context.Background(), "nobody")
	assert.ErrorIs(t, err, ErrAgentNotFound)
}

func TestFileSource_AgentIDFromFileName(t *testing.T) {
	dir := t.TempDir()
	body := "weights: {budget: 50, authority: 50, need: 0, timeline: 0, contact: 0}\nthresholds: {hot: 90, warm: 40}\nrules: {}\n"
	writeConfig(t, filepath.Join(dir, "agent-7.yml"), body, time.Now())

	src, err := OpenDir(dir, nil)
	require.NoError(t, err)
	cfg, err := src.ScoringConfig(context.Background(), "agent-7")
	require.NoError(t, err)
	assert.Equal(t, "agent-7", cfg.AgentID)
}

func TestFileSource_RejectsInvalidOnOpen(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, filepath.Join(dir, "agent-1.yaml"), agentYAML, time.Now())
	writeConfig(t, filepath.Join(dir, "agent-2.yaml"),
		"agent_id: agent-2\nweights: {budget: 10, authority: 10, need: 10, timeline: 10, contact: 10}\nthresholds: {hot: 80, warm: 50}\nrules: {}\n",
		time.Now())

	_, err := OpenDir(dir, nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, scoring.ErrConfigInvalid)
	assert.Contains(t, err.Error(), "agent-2.yaml")
}

func TestFileSource_ReloadsValidEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-1.yaml")
	start := time.Now().Add(-time.Hour)
	writeConfig(t, path, agentYAML, start)

	src, err := OpenDir(dir, nil)
	require.NoError(t, err)

	edited := replace(agentYAML, "thresholds: {hot: 80, warm: 50}", "thresholds: {hot: 70, warm: 40}")
	writeConfig(t, path, edited, start.Add(time.Minute))

	cfg, err := src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 70.0, cfg.Thresholds.Hot)
	assert.Equal(t, 40.0, cfg.Thresholds.Warm)
}

func TestFileSource_InvalidEditKeepsLastValid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agent-1.yaml")
	start := time.Now().Add(-time.Hour)
	writeConfig(t, path, agentYAML, start)

	src, err := OpenDir(dir, nil)
	require.NoError(t, err)

	broken := replace(agentYAML, "thresholds: {hot: 80, warm: 50}", "thresholds: {hot: 500, warm: 50}")
	writeConfig(t, path, broken, start.Add(time.Minute))

	cfg, err := src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 80.0, cfg.Thresholds.Hot)

	// A later valid edit is picked up again.
	fixed := replace(agentYAML, "thresholds: {hot: 80, warm: 50}", "thresholds: {hot: 75, warm: 50}")
	writeConfig(t, path, fixed, start.Add(2*time.Minute))
	cfg, err = src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 75.0, cfg.Thresholds.Hot)
}

func TestFileSource_DiscoversNewFiles(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, filepath.Join(dir, "agent-1.yaml"), agentYAML, time.Now())

	src, err := OpenDir(dir, nil)
	require.NoError(t, err)

	writeConfig(t, filepath.Join(dir, "agent-9.yaml"), replace(agentYAML, "agent-1", "agent-9"), time.Now())
	cfg, err := src.ScoringConfig(context.Background(), "agent-9")
	require.NoError(t, err)
	assert.Equal(t, "agent-9", cfg.AgentID)
	assert.ElementsMatch(t, []string{"agent-1", "agent-9"}, src.Agents())
}

func TestFileSource_ReturnsCopies(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, filepath.Join(dir, "agent-1.yaml"), agentYAML, time.Now())
	src, err := OpenDir(dir, nil)
	require.NoError(t, err)

	cfg, err := src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	cfg.Rules.Budget[0].Points = 0

	again, err := src.ScoringConfig(context.Background(), "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 35.0, again.Rules.Budget[0].Points)
}

func replace(s, old, repl string) string {
	return strings.ReplaceAll(s, old, repl)
}
