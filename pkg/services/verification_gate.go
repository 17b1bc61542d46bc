package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/taskorchestrator/engine/pkg/models"
	"github.com/taskorchestrator/engine/pkg/repositories"
)

// GateKind discriminates the verification gate's result variants.
type GateKind string

const (
	GateOK             GateKind = "ok"
	GateMissingSection GateKind = "missing_section"
	GateMalformedJSON  GateKind = "malformed_json"
	GateFailed         GateKind = "failed"
)

// GateResult is the sum type returned by the verification gate. Only
// GateOK permits completion.
type GateResult struct {
	Kind            GateKind `json:"kind"`
	Detail          string   `json:"detail,omitempty"`
	FailingCriteria []string `json:"failing_criteria,omitempty"`
}

// VerificationGate inspects the entity's "Verification" section and blocks
// completion until every declared criterion is marked pass.
type VerificationGate interface {
	Check(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) (GateResult, error)
}

type verificationGate struct {
	sections repositories.SectionRepository
	logger   *zap.Logger
}

// NewVerificationGate creates the verification gate.
func NewVerificationGate(sections repositories.SectionRepository, logger *zap.Logger) VerificationGate {
	return &verificationGate{sections: sections, logger: logger}
}

// verificationCriterion is one entry of the Verification section's JSON
// array. Pass is kept raw so "true"/"false" strings from agents decode the
// same as booleans.
type verificationCriterion struct {
	Criteria string          `json:"criteria"`
	Pass     json.RawMessage `json:"pass"`
}

func (g *verificationGate) Check(ctx context.Context, entityType models.ContainerType, entityID uuid.UUID) (GateResult, error) {
	section, err := g.sections.GetByTitle(ctx, entityType, entityID, models.VerificationSectionTitle)
	if err != nil {
		if isNotFound(err) {
			return GateResult{
				Kind:   GateMissingSection,
				Detail: fmt.Sprintf("%s has no %q section", entityType, models.VerificationSectionTitle),
			}, nil
		}
		return GateResult{}, fmt.Errorf("failed to load verification section: %w", err)
	}
	if section.ContentFormat != models.FormatJSON {
		return GateResult{
			Kind:   GateMalformedJSON,
			Detail: fmt.Sprintf("verification section content_format is %q, expected %q", section.ContentFormat, models.FormatJSON),
		}, nil
	}

	var criteria []verificationCriterion
	if err := json.Unmarshal([]byte(section.Content), &criteria); err != nil {
		return GateResult{Kind: GateMalformedJSON, Detail: err.Error()}, nil
	}
	if len(criteria) == 0 {
		return GateResult{Kind: GateMalformedJSON, Detail: "verification section declares no criteria"}, nil
	}

	var failing []string
	for i, c := range criteria {
		if strings.TrimSpace(c.Criteria) == "" {
			return GateResult{
				Kind:   GateMalformedJSON,
				Detail: fmt.Sprintf("criterion %d is missing the criteria field", i),
			}, nil
		}
		pass, ok := flexibleBool(c.Pass)
		if !ok {
			return GateResult{
				Kind:   GateMalformedJSON,
				Detail: fmt.Sprintf("criterion %q has a non-boolean pass value", c.Criteria),
			}, nil
		}
		if !pass {
			failing = append(failing, c.Criteria)
		}
	}
	if len(failing) > 0 {
		return GateResult{Kind: GateFailed, FailingCriteria: failing}, nil
	}
	return GateResult{Kind: GateOK}, nil
}

// flexibleBool decodes a JSON value as a boolean, accepting the literal
// true/false as well as their string spellings. Agents are sloppy here.
func flexibleBool(raw json.RawMessage) (bool, bool) {
	if len(raw) == 0 {
		return false, false
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, true
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "true", "yes", "pass", "passed":
			return true, true
		case "false", "no", "fail", "failed":
			return false, true
		}
	}
	return false, false
}
