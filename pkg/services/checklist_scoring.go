package services

import (
	"strings"

	"github.com/google/uuid"

	"github.com/savoria-foods/quality-engine/pkg/models"
)

// SectionScore is the per-section breakdown of a checklist score.
type SectionScore struct {
	SectionID uuid.UUID `json:"section_id"`
	Name      string    `json:"name"`
	Earned    float64   `json:"earned"`
	Possible  float64   `json:"possible"`
	Percent   float64   `json:"percent"`
	Weight    float64   `json:"weight"`
}

// ScoreResult is the outcome of scoring one audit's responses against its
// template. It is recomputed on every response change for live preview and
// has no side effects.
type ScoreResult struct {
	Total        float64        `json:"total"`
	Sections     []SectionScore `json:"sections"`
	CriticalFail bool           `json:"critical_fail"`
	Passed       bool           `json:"passed"`

	// Unscored counts responses whose item type was not recognized. A nonzero
	// value indicates a template/engine version mismatch and is surfaced
	// rather than silently scoring the item as zero.
	Unscored int `json:"unscored,omitempty"`
}

// ScoreChecklist computes the weighted or flat percentage score, the
// pass/fail verdict and the critical-failure flag for one set of responses.
// Absent map entries are unanswered items: they earn zero points but still
// count toward the possible total.
func ScoreChecklist(tpl *models.ChecklistTemplate, responses map[uuid.UUID]*models.ItemResponse) ScoreResult {
	result := ScoreResult{
		Sections: make([]SectionScore, 0, len(tpl.Sections)),
	}

	var totalEarned, totalPossible float64

	for _, section := range tpl.Sections {
		ss := SectionScore{
			SectionID: section.ID,
			Name:      section.Name,
			Weight:    section.Weight,
		}

		for _, item := range section.Items {
			earned, known := itemPointsEarned(&item, responses[item.ID])
			if !known {
				result.Unscored++
			}
			ss.Earned += earned
			ss.Possible += item.Points
		}

		if ss.Possible > 0 {
			ss.Percent = ss.Earned / ss.Possible * 100
		}

		totalEarned += ss.Earned
		totalPossible += ss.Possible
		result.Sections = append(result.Sections, ss)
	}

	if tpl.Weighted {
		for _, ss := range result.Sections {
			result.Total += ss.Percent * ss.Weight / 100
		}
	} else if totalPossible > 0 {
		result.Total = totalEarned / totalPossible * 100
	}

	if tpl.CriticalFailEnabled {
		result.CriticalFail = hasCriticalFailure(tpl, responses)
	}

	result.Passed = !result.CriticalFail && result.Total >= tpl.PassThreshold

	return result
}

// itemPointsEarned returns the points a response earns for its item, and
// whether the item type was recognized.
func itemPointsEarned(item *models.Item, resp *models.ItemResponse) (float64, bool) {
	switch item.Type {
	case models.ItemTypePassFail:
		if resp != nil && resp.Pass != nil && *resp.Pass {
			return item.Points, true
		}
		return 0, true

	case models.ItemTypeRating:
		if resp != nil && resp.Rating != nil {
			return item.Points * float64(*resp.Rating) / 5, true
		}
		return 0, true

	case models.ItemTypeNumeric:
		if resp != nil && resp.Number != nil {
			return item.Points, true
		}
		return 0, true

	case models.ItemTypePhoto:
		if resp != nil && len(resp.Evidence) > 0 {
			return item.Points, true
		}
		return 0, true

	case models.ItemTypeText:
		if resp != nil && strings.TrimSpace(resp.Text) != "" {
			return item.Points, true
		}
		return 0, true

	case models.ItemTypeChecklist:
		if len(item.Checkboxes) == 0 {
			return 0, true
		}
		if resp == nil {
			return 0, true
		}
		checked := 0
		for _, name := range item.Checkboxes {
			if resp.Checked[name] {
				checked++
			}
		}
		return item.Points * float64(checked) / float64(len(item.Checkboxes)), true
	}

	return 0, false
}

// hasCriticalFailure scans every critical item for a hard failure: a failed
// pass/fail answer, the lowest rating, or any unchecked sub-item. Unanswered
// critical items do not trigger a critical failure here; the submission
// validator rejects them instead.
func hasCriticalFailure(tpl *models.ChecklistTemplate, responses map[uuid.UUID]*models.ItemResponse) bool {
	for _, section := range tpl.Sections {
		for _, item := range section.Items {
			if !item.Critical {
				continue
			}
			resp := responses[item.ID]
			if !resp.Answered() {
				continue
			}
			switch item.Type {
			case models.ItemTypePassFail:
				if resp.Pass != nil && !*resp.Pass {
					return true
				}
			case models.ItemTypeRating:
				if resp.Rating != nil && *resp.Rating == 1 {
					return true
				}
			case models.ItemTypeChecklist:
				for _, name := range item.Checkboxes {
					if !resp.Checked[name] {
						return true
					}
				}
			}
		}
	}
	return false
}
