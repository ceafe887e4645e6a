package chaos

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/resilitics/resilitics/internal/config"
)

func writePlan(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadPlan(t *testing.T) {
	path := writePlan(t, `
name: checkout-resilience
targets:
  - namespace: loadtest
    selector: app=api
  - namespace: loadtest
    selector: app=worker
intervalSeconds: 45
count: 2
graceSeconds: 5
dryRun: false
eventLog: /tmp/events.csv
`)

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	assert.Equal(t, "checkout-resilience", plan.Name)
	require.Len(t, plan.Targets, 2)
	assert.Equal(t, "app=worker", plan.Targets[1].Selector)
	assert.Equal(t, 45, plan.IntervalSeconds)
	assert.Equal(t, 2, plan.Count)
	assert.Equal(t, 5, plan.GraceSeconds)
	assert.False(t, plan.DryRunEnabled())
	assert.Equal(t, "/tmp/events.csv", plan.EventLog)
}

func TestLoadPlanShorthandTarget(t *testing.T) {
	path := writePlan(t, `
name: quick
namespace: loadtest
selector: app=api
`)

	plan, err := LoadPlan(path)
	require.NoError(t, err)

	require.Len(t, plan.Targets, 1)
	assert.Equal(t, "loadtest", plan.Targets[0].Namespace)
	assert.Equal(t, "app=api", plan.Targets[0].Selector)

	// Cadence fields fall back to the configuration defaults.
	defaults := config.DefaultConfig()
	assert.Equal(t, defaults.Chaos.IntervalSeconds, plan.IntervalSeconds)
	assert.Equal(t, defaults.Chaos.Count, plan.Count)
}

func TestLoadPlanDryRunDefaultsTrue(t *testing.T) {
	path := writePlan(t, `
namespace: loadtest
selector: app=api
`)

	plan, err := LoadPlan(path)
	require.NoError(t, err)
	assert.True(t, plan.DryRunEnabled())
}

func TestLoadPlanMissingFile(t *testing.T) {
	_, err := LoadPlan(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLoadPlanMalformedYAML(t *testing.T) {
	path := writePlan(t, "targets: [\n")
	_, err := LoadPlan(path)
	assert.ErrorContains(t, err, "parsing plan")
}

func TestPlanValidate(t *testing.T) {
	valid := func() *Plan {
		dryRun := true
		return &Plan{
			Targets:         []Target{{Namespace: "loadtest", Selector: "app=api"}},
			IntervalSeconds: 30,
			Count:           1,
			DryRun:          &dryRun,
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Plan)
		wantErr string
	}{
		{"valid", func(p *Plan) {}, ""},
		{"no targets", func(p *Plan) { p.Targets = nil }, "no targets"},
		{"missing namespace", func(p *Plan) { p.Targets[0].Namespace = "" }, "namespace is required"},
		{"missing selector", func(p *Plan) { p.Targets[0].Selector = "" }, "selector is required"},
		{"zero interval", func(p *Plan) { p.IntervalSeconds = 0 }, "intervalSeconds"},
		{"zero count", func(p *Plan) { p.Count = 0 }, "count"},
		{"negative grace", func(p *Plan) { p.GraceSeconds = -1 }, "graceSeconds"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan := valid()
			tt.mutate(plan)
			err := plan.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}

func TestPlanFromConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Chaos.Namespace = "staging"
	cfg.Chaos.Selector = "app=checkout"
	cfg.Chaos.IntervalSeconds = 15
	cfg.Chaos.Count = 3
	cfg.Chaos.DryRun = false
	cfg.Chaos.EventLogPath = "run-events.csv"

	plan := PlanFromConfig(cfg)
	require.NoError(t, plan.Validate())

	require.Len(t, plan.Targets, 1)
	assert.Equal(t, "staging", plan.Targets[0].Namespace)
	assert.Equal(t, "app=checkout", plan.Targets[0].Selector)
	assert.Equal(t, 15, plan.IntervalSeconds)
	assert.Equal(t, 3, plan.Count)
	assert.False(t, plan.DryRunEnabled())
	assert.Equal(t, "run-events.csv", plan.EventLog)
}
