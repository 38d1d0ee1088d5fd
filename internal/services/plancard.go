package services

import (
	"encoding/json"
	"fmt"
	"strings"
)

type PlanModule struct {
	Number      int    `json:"number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
}

type PlanCard struct {
	Title   string       `json:"title"`
	Summary string       `json:"summary"`
	Modules []PlanModule `json:"modules"`
}

const planFenceOpen = "```plan"
const planFenceClose = "```"

// extractPlanCard pulls the first ```plan fenced block out of the
// model's reply. The block is always removed from the visible text,
// even when its JSON does not parse; a broken card should not leak raw
// JSON into the transcript.
func extractPlanCard(text string) (*PlanCard, string, error) {
	var (
		card     *PlanCard
		parseErr error
	)
	visible := text
	for {
		start := strings.Index(visible, planFenceOpen)
		if start < 0 {
			break
		}
		rest := visible[start+len(planFenceOpen):]
		end := strings.Index(rest, planFenceClose)
		if end < 0 {
			// Unterminated fence: drop everything from the fence on.
			visible = visible[:start]
			break
		}
		body := rest[:end]
		visible = visible[:start] + rest[end+len(planFenceClose):]

		if card != nil || parseErr != nil {
			continue
		}
		var parsed PlanCard
		if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &parsed); err != nil {
			parseErr = fmt.Errorf("plan card json: %w", err)
			continue
		}
		if len(parsed.Modules) == 0 {
			parseErr = fmt.Errorf("plan card has no modules")
			continue
		}
		card = &parsed
	}
	return card, strings.TrimSpace(visible), parseErr
}
