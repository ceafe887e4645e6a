package chaos

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/resilitics/resilitics/internal/config"
)

// Plan describes one chaos experiment: which pods may be terminated, how
// often, how many per strike, and where the event log goes.
type Plan struct {
	Name    string   `yaml:"name"`
	Targets []Target `yaml:"targets"`

	// Namespace and Selector are shorthand for a single-entry Targets list.
	Namespace string `yaml:"namespace"`
	Selector  string `yaml:"selector"`

	IntervalSeconds int `yaml:"intervalSeconds"`
	// Count is the number of pods terminated per strike, not per run.
	Count        int `yaml:"count"`
	GraceSeconds int `yaml:"graceSeconds"`

	// DryRun defaults to true when absent. A plan file must opt in to real
	// deletions explicitly.
	DryRun *bool `yaml:"dryRun"`

	// EventLog is the CSV path terminations are recorded to. Empty keeps
	// events in memory only.
	EventLog string `yaml:"eventLog"`
}

// Target names one pool of candidate pods.
type Target struct {
	Namespace string `yaml:"namespace"`
	Selector  string `yaml:"selector"`
}

// LoadPlan reads and validates a plan file.
func LoadPlan(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan: %w", err)
	}

	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("parsing plan %s: %w", path, err)
	}

	plan.normalize()
	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("plan %s: %w", path, err)
	}
	return &plan, nil
}

// PlanFromConfig builds a single-target plan from the chaos configuration
// section, for runs driven by flags rather than a plan file.
func PlanFromConfig(cfg *config.Config) *Plan {
	dryRun := cfg.Chaos.DryRun
	plan := &Plan{
		Name: "config",
		Targets: []Target{
			{Namespace: cfg.Chaos.Namespace, Selector: cfg.Chaos.Selector},
		},
		IntervalSeconds: cfg.Chaos.IntervalSeconds,
		Count:           cfg.Chaos.Count,
		GraceSeconds:    cfg.Chaos.GraceSeconds,
		DryRun:          &dryRun,
		EventLog:        cfg.Chaos.EventLogPath,
	}
	plan.normalize()
	return plan
}

// DryRunEnabled reports whether terminations are simulated.
func (p *Plan) DryRunEnabled() bool {
	return p.DryRun == nil || *p.DryRun
}

// normalize folds the top-level namespace/selector shorthand into Targets
// and fills zero-value cadence fields with the configuration defaults.
func (p *Plan) normalize() {
	if len(p.Targets) == 0 && (p.Namespace != "" || p.Selector != "") {
		p.Targets = []Target{{Namespace: p.Namespace, Selector: p.Selector}}
	}
	defaults := config.DefaultConfig()
	if p.IntervalSeconds == 0 {
		p.IntervalSeconds = defaults.Chaos.IntervalSeconds
	}
	if p.Count == 0 {
		p.Count = defaults.Chaos.Count
	}
}

// Validate checks the plan before a scheduler will accept it.
func (p *Plan) Validate() error {
	if len(p.Targets) == 0 {
		return fmt.Errorf("plan has no targets")
	}
	for i, target := range p.Targets {
		if target.Namespace == "" {
			return fmt.Errorf("target %d: namespace is required", i)
		}
		if target.Selector == "" {
			// An empty selector would make every pod in the namespace fair
			// game, which is never what a blast radius should default to.
			return fmt.Errorf("target %d: selector is required", i)
		}
	}
	if p.IntervalSeconds < 1 {
		return fmt.Errorf("intervalSeconds must be at least 1, got %d", p.IntervalSeconds)
	}
	if p.Count < 1 {
		return fmt.Errorf("count must be at least 1, got %d", p.Count)
	}
	if p.GraceSeconds < 0 {
		return fmt.Errorf("graceSeconds cannot be negative, got %d", p.GraceSeconds)
	}
	return nil
}
