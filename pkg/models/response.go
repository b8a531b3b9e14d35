package models

import (
	"strings"

	"github.com/google/uuid"
)

// EvidenceRef is a stable storage reference produced by the evidence
// collaborator for an uploaded file. Scoring only ever consumes counts and
// reference lists, never file bytes.
type EvidenceRef struct {
	ID  uuid.UUID `json:"id"`
	URL string    `json:"url"`
}

// ItemResponse is the value entered for one checklist item during one audit
// execution. It is a tagged union: exactly the field matching Type carries
// the answer. Stored in audit_responses table.
type ItemResponse struct {
	ItemID uuid.UUID `json:"item_id"`
	Type   ItemType  `json:"type"`

	Pass    *bool           `json:"pass,omitempty"`    // pass_fail
	Rating  *int            `json:"rating,omitempty"`  // rating, 1-5
	Number  *float64        `json:"number,omitempty"`  // numeric
	Text    string          `json:"text,omitempty"`    // text
	Checked map[string]bool `json:"checked,omitempty"` // checklist sub-items

	Evidence []EvidenceRef `json:"evidence,omitempty"`

	// Note is an auditor-entered observation; a non-empty note produces a
	// finding at submission even when the item itself passed.
	Note string `json:"note,omitempty"`
}

// Answered reports whether the response carries a value for its item type.
// Unanswered items count against the submission completion threshold.
func (r *ItemResponse) Answered() bool {
	if r == nil {
		return false
	}
	switch r.Type {
	case ItemTypePassFail:
		return r.Pass != nil
	case ItemTypeRating:
		return r.Rating != nil
	case ItemTypeNumeric:
		return r.Number != nil
	case ItemTypePhoto:
		return len(r.Evidence) > 0
	case ItemTypeText:
		return strings.TrimSpace(r.Text) != ""
	case ItemTypeChecklist:
		return len(r.Checked) > 0
	}
	return false
}
