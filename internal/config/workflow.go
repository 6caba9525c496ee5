package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"bank-risk-audit/internal/workflow"

	"gopkg.in/yaml.v3"
)

// WorkflowPolicy is the YAML file named by WORKFLOW_POLICY_FILE:
//
//	max_rechecks_per_stage: 2
//	exact_stage: true
//	claim_rank_check: true
//	sla_hours:
//	  JUNIOR: 2
//	  COMMITTEE: 48
type WorkflowPolicy struct {
	MaxRechecksPerStage int            `yaml:"max_rechecks_per_stage"`
	ExactStage          *bool          `yaml:"exact_stage"`
	ClaimRankCheck      *bool          `yaml:"claim_rank_check"`
	SLAHours            map[string]int `yaml:"sla_hours"`
}

func LoadWorkflowPolicy(path string) (WorkflowPolicy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return WorkflowPolicy{}, fmt.Errorf("WORKFLOW_POLICY_FILE: %w", err)
	}
	return ParseWorkflowPolicy(data)
}

// ParseWorkflowPolicy decodes a policy file. Unknown keys are rejected.
func ParseWorkflowPolicy(data []byte) (WorkflowPolicy, error) {
	var p WorkflowPolicy
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&p); err != nil && !errors.Is(err, io.EOF) {
		return WorkflowPolicy{}, fmt.Errorf("WORKFLOW_POLICY_FILE: %w", err)
	}
	if err := p.Validate(); err != nil {
		return WorkflowPolicy{}, err
	}
	return p, nil
}

func (p WorkflowPolicy) Validate() error {
	if p.MaxRechecksPerStage < 0 {
		return fmt.Errorf("max_rechecks_per_stage must be >= 0, got %d", p.MaxRechecksPerStage)
	}
	for name, h := range p.SLAHours {
		if _, err := workflow.ParseStage(name); err != nil {
			return fmt.Errorf("sla_hours: %w", err)
		}
		if h < 0 {
			return fmt.Errorf("sla_hours.%s must be >= 0, got %d", name, h)
		}
	}
	return nil
}

// ExactStageEnabled defaults to true: each auditor role acts only on the
// stage matching its seniority.
func (p WorkflowPolicy) ExactStageEnabled() bool {
	return p.ExactStage == nil || *p.ExactStage
}

// ClaimRankCheckEnabled defaults to true: auditors cannot claim tasks above
// their seniority.
func (p WorkflowPolicy) ClaimRankCheckEnabled() bool {
	return p.ClaimRankCheck == nil || *p.ClaimRankCheck
}

// SLA overlays the configured hours on defaults. Zero hours removes the
// deadline for that stage.
func (p WorkflowPolicy) SLA(defaults map[workflow.Stage]time.Duration) map[workflow.Stage]time.Duration {
	out := make(map[workflow.Stage]time.Duration, len(defaults))
	for k, v := range defaults {
		out[k] = v
	}
	for name, h := range p.SLAHours {
		stage, err := workflow.ParseStage(name)
		if err != nil {
			continue
		}
		if h == 0 {
			delete(out, stage)
			continue
		}
		out[stage] = time.Duration(h) * time.Hour
	}
	return out
}
