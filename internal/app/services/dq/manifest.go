package dq

import (
	"context"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Bilalabbasid/Business-Intelligence-Tool-sub001/internal/app/domain/dq"
)

// Manifest is the portable YAML representation of targets and rules.
type Manifest struct {
	Targets []ManifestTarget `yaml:"targets,omitempty"`
	Rules   []ManifestRule   `yaml:"rules,omitempty"`
}

type ManifestTarget struct {
	Name   string `yaml:"name"`
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Schema string `yaml:"schema,omitempty"`
}

type ManifestRule struct {
	Name     string            `yaml:"name"`
	Target   string            `yaml:"target"`
	Dataset  string            `yaml:"dataset"`
	Check    string            `yaml:"check"`
	Params   map[string]string `yaml:"params,omitempty"`
	Severity string            `yaml:"severity"`
	Schedule string            `yaml:"schedule,omitempty"`
	Enabled  bool              `yaml:"enabled"`
}

// ImportReport summarizes a manifest import. Entries are applied
// independently so one bad entry does not abort the rest.
type ImportReport struct {
	TargetsCreated int      `json:"targets_created"`
	TargetsUpdated int      `json:"targets_updated"`
	RulesCreated   int      `json:"rules_created"`
	RulesUpdated   int      `json:"rules_updated"`
	Errors         []string `json:"errors,omitempty"`
}

// ExportManifest renders all targets and rules as YAML.
func (s *Service) ExportManifest(ctx context.Context) ([]byte, error) {
	targets, err := s.targets.ListTargets(ctx)
	if err != nil {
		return nil, err
	}
	rules, err := s.rules.ListRules(ctx, "")
	if err != nil {
		return nil, err
	}

	targetNames := make(map[string]string, len(targets))
	manifest := Manifest{}
	for _, t := range targets {
		targetNames[t.ID] = t.Name
		manifest.Targets = append(manifest.Targets, ManifestTarget{
			Name:   t.Name,
			Driver: t.Driver,
			DSN:    t.DSN,
			Schema: t.Schema,
		})
	}
	for _, r := range rules {
		manifest.Rules = append(manifest.Rules, ManifestRule{
			Name:     r.Name,
			Target:   targetNames[r.TargetID],
			Dataset:  r.Dataset,
			Check:    string(r.Check),
			Params:   r.Params,
			Severity: string(r.Severity),
			Schedule: r.Schedule,
			Enabled:  r.Enabled,
		})
	}

	return yaml.Marshal(manifest)
}

// ImportManifest applies a YAML manifest, creating or updating targets and
// rules by name.
func (s *Service) ImportManifest(ctx context.Context, data []byte) (ImportReport, error) {
	var manifest Manifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return ImportReport{}, fmt.Errorf("parse manifest: %w", err)
	}

	report := ImportReport{}

	for _, mt := range manifest.Targets {
		if err := s.importTarget(ctx, mt, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("target %s: %v", mt.Name, err))
		}
	}
	for _, mr := range manifest.Rules {
		if err := s.importRule(ctx, mr, &report); err != nil {
			report.Errors = append(report.Errors, fmt.Sprintf("rule %s: %v", mr.Name, err))
		}
	}

	s.log.WithFields(map[string]interface{}{
		"targets_created": report.TargetsCreated,
		"targets_updated": report.TargetsUpdated,
		"rules_created":   report.RulesCreated,
		"rules_updated":   report.RulesUpdated,
		"errors":          len(report.Errors),
	}).Info("manifest imported")
	return report, nil
}

func (s *Service) importTarget(ctx context.Context, mt ManifestTarget, report *ImportReport) error {
	existing, err := s.targets.GetTargetByName(ctx, strings.TrimSpace(mt.Name))
	if err != nil {
		_, err := s.CreateTarget(ctx, mt.Name, mt.Driver, mt.DSN, mt.Schema)
		if err != nil {
			return err
		}
		report.TargetsCreated++
		return nil
	}

	if _, err := s.UpdateTarget(ctx, existing.ID, nil, &mt.DSN, &mt.Schema); err != nil {
		return err
	}
	report.TargetsUpdated++
	return nil
}

func (s *Service) importRule(ctx context.Context, mr ManifestRule, report *ImportReport) error {
	target, err := s.targets.GetTargetByName(ctx, strings.TrimSpace(mr.Target))
	if err != nil {
		return fmt.Errorf("unknown target %q", mr.Target)
	}

	rules, err := s.rules.ListRules(ctx, target.ID)
	if err != nil {
		return err
	}
	for _, existing := range rules {
		if strings.EqualFold(existing.Name, strings.TrimSpace(mr.Name)) {
			severity := dq.Severity(mr.Severity)
			_, err := s.UpdateRule(ctx, existing.ID, RuleUpdate{
				Dataset:  &mr.Dataset,
				Params:   mr.Params,
				Severity: &severity,
				Schedule: &mr.Schedule,
				Enabled:  &mr.Enabled,
			})
			if err != nil {
				return err
			}
			report.RulesUpdated++
			return nil
		}
	}

	if _, err := s.CreateRule(ctx, dq.Rule{
		TargetID: target.ID,
		Name:     mr.Name,
		Dataset:  mr.Dataset,
		Check:    dq.CheckType(mr.Check),
		Params:   mr.Params,
		Severity: dq.Severity(mr.Severity),
		Schedule: mr.Schedule,
		Enabled:  mr.Enabled,
	}); err != nil {
		return err
	}
	report.RulesCreated++
	return nil
}
