// plan.go
package models

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TrialPlan describes one drawing task: the identity the participant
// imagines and the landmarks they are cued to mark, in order.
type TrialPlan struct {
	Identity  string   `yaml:"identity"`
	CueID     string   `yaml:"cue_id"`
	Landmarks []string `yaml:"landmarks"`
}

// TaskPlan holds the full task sequence for a session.
type TaskPlan struct {
	Trials []TrialPlan `yaml:"trials"`
}

// LoadTaskPlan reads and parses the task plan YAML file.
func LoadTaskPlan(path string) (*TaskPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task plan: %w", err)
	}

	var plan TaskPlan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task plan YAML: %w", err)
	}

	if len(plan.Trials) == 0 {
		return nil, fmt.Errorf("task plan %s contains no trials", path)
	}
	for i, t := range plan.Trials {
		if t.Identity == "" {
			return nil, fmt.Errorf("trial %d has no identity", i)
		}
		if len(t.Landmarks) == 0 {
			return nil, fmt.Errorf("trial %d (%s) has no landmarks", i, t.Identity)
		}
	}
	return &plan, nil
}
