package models

import (
	"time"

	"github.com/google/uuid"
)

// ItemType identifies the kind of response a checklist item collects.
type ItemType string

const (
	ItemTypePassFail  ItemType = "pass_fail"
	ItemTypeRating    ItemType = "rating" // 1-5 scale
	ItemTypeNumeric   ItemType = "numeric"
	ItemTypePhoto     ItemType = "photo"
	ItemTypeText      ItemType = "text"
	ItemTypeChecklist ItemType = "checklist" // multi-checkbox
)

// EvidenceRequirement controls how many evidence attachments an item needs
// before the audit can be submitted.
type EvidenceRequirement string

const (
	EvidenceNone      EvidenceRequirement = "none"
	EvidenceOptional  EvidenceRequirement = "optional"
	EvidenceRequired1 EvidenceRequirement = "required_1"
	EvidenceRequired2 EvidenceRequirement = "required_2"
)

// MinAttachments returns the minimum evidence attachment count the
// requirement demands.
func (e EvidenceRequirement) MinAttachments() int {
	switch e {
	case EvidenceRequired1:
		return 1
	case EvidenceRequired2:
		return 2
	default:
		return 0
	}
}

// ChecklistTemplate is a reusable checklist definition consumed by audits.
// Stored in checklist_templates table with sections/items as JSONB.
type ChecklistTemplate struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Category   string     `json:"category"`
	TargetType EntityType `json:"target_type"`

	// Weighted enables section-weight blending; when false the total score is
	// flat points-earned over points-possible across all sections.
	Weighted bool `json:"weighted"`

	// CriticalFailEnabled enables the critical-failure short circuit: a failed
	// critical item forces an overall fail regardless of the numeric score.
	CriticalFailEnabled bool `json:"critical_fail_enabled"`

	// PassThreshold is the minimum total score (0-100) for a pass verdict.
	PassThreshold float64 `json:"pass_threshold"`

	Sections []Section `json:"sections"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Section groups checklist items under a weight. When weighted scoring is
// used, section weights across a template should sum to 100.
type Section struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Weight float64   `json:"weight"`
	Items  []Item    `json:"items"`
}

// Item is a single checklist question.
type Item struct {
	ID       uuid.UUID `json:"id"`
	Text     string    `json:"text"`
	Type     ItemType  `json:"type"`
	Points   float64   `json:"points"`
	Critical bool      `json:"critical"`

	Evidence EvidenceRequirement `json:"evidence"`

	// Checkboxes lists the sub-item labels for checklist-type items.
	Checkboxes []string `json:"checkboxes,omitempty"`
}

// ItemByID returns the item and its enclosing section, or nil when absent.
func (t *ChecklistTemplate) ItemByID(itemID uuid.UUID) (*Item, *Section) {
	for si := range t.Sections {
		section := &t.Sections[si]
		for ii := range section.Items {
			if section.Items[ii].ID == itemID {
				return &section.Items[ii], section
			}
		}
	}
	return nil, nil
}

// ItemCount returns the total number of items across all sections.
func (t *ChecklistTemplate) ItemCount() int {
	n := 0
	for _, s := range t.Sections {
		n += len(s.Items)
	}
	return n
}
