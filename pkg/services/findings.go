package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/config"
	"github.com/savoria-foods/quality-engine/pkg/models"
)

// highSeveritySectionWeight is the section weight at or above which a
// non-critical failed item produces a high-severity finding.
const highSeveritySectionWeight = 25

// itemFailed reports whether a response counts as a failure for finding
// derivation: a failed pass/fail answer, a rating of 2 or below, or any
// unchecked sub-item of a multi-checkbox.
func itemFailed(item *models.Item, resp *models.ItemResponse) bool {
	if !resp.Answered() {
		return false
	}
	switch item.Type {
	case models.ItemTypePassFail:
		return resp.Pass != nil && !*resp.Pass
	case models.ItemTypeRating:
		return resp.Rating != nil && *resp.Rating <= 2
	case models.ItemTypeChecklist:
		for _, name := range item.Checkboxes {
			if !resp.Checked[name] {
				return true
			}
		}
	}
	return false
}

// findingSeverity derives severity from the triggering item's criticality and
// its section's weight.
func findingSeverity(item *models.Item, section *models.Section) models.FindingSeverity {
	if item.Critical {
		return models.SeverityCritical
	}
	if section.Weight >= highSeveritySectionWeight {
		return models.SeverityHigh
	}
	return models.SeverityMedium
}

// DeriveFindings produces one finding per failed or flagged checklist item.
// An item is flagged when the auditor entered a manual note, even if the item
// itself passed. The manual note, when present, becomes the description.
func DeriveFindings(tpl *models.ChecklistTemplate, responses map[uuid.UUID]*models.ItemResponse, auditID uuid.UUID, now time.Time) []*models.Finding {
	var findings []*models.Finding

	for si := range tpl.Sections {
		section := &tpl.Sections[si]
		for ii := range section.Items {
			item := &section.Items[ii]
			resp := responses[item.ID]
			if resp == nil {
				continue
			}

			hasNote := resp.Note != ""
			if !itemFailed(item, resp) && !hasNote {
				continue
			}

			description := resp.Note
			if description == "" {
				description = fmt.Sprintf("Non-conformance: %s", item.Text)
			}

			itemID := item.ID
			findings = append(findings, &models.Finding{
				ID:          uuid.New(),
				AuditID:     auditID,
				ItemID:      &itemID,
				Severity:    findingSeverity(item, section),
				Description: description,
				CreatedAt:   now,
			})
		}
	}

	return findings
}

// DeriveCAPA produces the single corrective action for one finding. The due
// date is severity-scaled from the submission time, the priority mirrors the
// severity, and the initial status is pending verification.
func DeriveCAPA(finding *models.Finding, audit *models.Audit, assigneeID uuid.UUID, submittedAt time.Time, cfg *config.CAPAConfig) *models.CAPA {
	dueDays := cfg.MediumDueDays
	switch finding.Severity {
	case models.SeverityCritical:
		dueDays = cfg.CriticalDueDays
	case models.SeverityHigh:
		dueDays = cfg.HighDueDays
	}

	return &models.CAPA{
		ID:          uuid.New(),
		FindingID:   finding.ID,
		AuditID:     audit.ID,
		TargetType:  audit.TargetType,
		TargetID:    audit.TargetID,
		Description: finding.Description,
		AssigneeID:  assigneeID,
		Priority:    finding.Severity,
		Status:      models.CAPAStatusPendingVerification,
		DueDate:     submittedAt.AddDate(0, 0, dueDays),
		CreatedAt:   submittedAt,
		UpdatedAt:   submittedAt,
	}
}
