package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"

	types "github.com/haventide/compass-backend/internal/domain/coaching"
	"github.com/haventide/compass-backend/internal/llm"
)

// Tool names the model may call. Each tool is idempotent or guarded so
// a retried round never duplicates its effect.
const (
	toolAppendTitleCard     = "append_title_card"
	toolAppendSectionHeader = "append_section_header"
	toolSetProvidedName     = "set_provided_name"
	toolAppendOutcomes      = "append_structured_outcomes"
	toolAppendValueBullets  = "append_value_bullets"
	toolAppendSocialProof   = "append_social_proof"
	toolFinalizeInterview   = "finalize_interview"
	toolSetProgress         = "set_progress"
	toolCompleteModule      = "complete_module"
)

type toolSpec struct {
	Name        string
	Description string
	Schema      map[string]any
}

func objectSchema(required []string, props map[string]any) map[string]any {
	s := map[string]any{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

var interviewTools = []toolSpec{
	{
		Name:        toolAppendTitleCard,
		Description: "Render the session title card. Call at most once, at the start.",
		Schema: objectSchema([]string{"title"}, map[string]any{
			"title":    map[string]any{"type": "string"},
			"subtitle": map[string]any{"type": "string"},
		}),
	},
	{
		Name:        toolAppendSectionHeader,
		Description: "Render a section header when the conversation shifts topic.",
		Schema: objectSchema([]string{"title"}, map[string]any{
			"title": map[string]any{"type": "string"},
		}),
	},
	{
		Name:        toolSetProvidedName,
		Description: "Record the person's name once they share it.",
		Schema: objectSchema([]string{"name"}, map[string]any{
			"name": map[string]any{"type": "string"},
		}),
	},
	{
		Name:        toolAppendOutcomes,
		Description: "Offer outcome options for the person to choose from.",
		Schema: objectSchema([]string{"options"}, map[string]any{
			"prompt": map[string]any{"type": "string"},
			"options": map[string]any{
				"type": "array",
				"items": objectSchema([]string{"label"}, map[string]any{
					"id":          map[string]any{"type": "string"},
					"label":       map[string]any{"type": "string"},
					"description": map[string]any{"type": "string"},
				}),
			},
		}),
	},
	{
		Name:        toolAppendValueBullets,
		Description: "Render up to 6 short bullets on what the program delivers.",
		Schema: objectSchema([]string{"bullets"}, map[string]any{
			"bullets": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		}),
	},
	{
		Name:        toolAppendSocialProof,
		Description: "Render a short client quote as social proof.",
		Schema: objectSchema([]string{"quote"}, map[string]any{
			"quote":       map[string]any{"type": "string"},
			"attribution": map[string]any{"type": "string"},
		}),
	},
	{
		Name:        toolFinalizeInterview,
		Description: "Close the interview after the person accepts the presented plan.",
		Schema:      objectSchema(nil, map[string]any{}),
	},
}

var moduleTools = []toolSpec{
	{
		Name:        toolAppendSectionHeader,
		Description: "Render a section header when the conversation shifts topic.",
		Schema: objectSchema([]string{"title"}, map[string]any{
			"title": map[string]any{"type": "string"},
		}),
	},
	{
		Name:        toolSetProgress,
		Description: "Report module progress as a percentage.",
		Schema: objectSchema([]string{"percent"}, map[string]any{
			"percent": map[string]any{"type": "integer", "minimum": 0, "maximum": 100},
		}),
	},
	{
		Name:        toolCompleteModule,
		Description: "Mark this module complete once its work is done.",
		Schema: objectSchema([]string{"module"}, map[string]any{
			"module":  map[string]any{"type": "integer"},
			"summary": map[string]any{"type": "string"},
		}),
	},
}

func toolSpecsForKind(kind string) []toolSpec {
	switch kind {
	case types.SessionKindModuleOne, types.SessionKindModuleTwo, types.SessionKindModuleThree:
		return moduleTools
	default:
		return interviewTools
	}
}

func llmToolsForKind(kind string) []llm.Tool {
	specs := toolSpecsForKind(kind)
	out := make([]llm.Tool, 0, len(specs))
	for _, s := range specs {
		out = append(out, llm.Tool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: s.Schema,
		})
	}
	return out
}

// Typed tool inputs. Arguments arrive as raw JSON and are decoded per
// tool name; anything that fails validation skips the call with a
// reason the model can read.

type titleCardInput struct {
	Title    string `json:"title"`
	Subtitle string `json:"subtitle,omitempty"`
}

type sectionHeaderInput struct {
	Title string `json:"title"`
}

type providedNameInput struct {
	Name string `json:"name"`
}

type OutcomeOption struct {
	ID          string `json:"id"`
	Label       string `json:"label"`
	Description string `json:"description,omitempty"`
}

type structuredOutcomesInput struct {
	Prompt  string          `json:"prompt"`
	Options []OutcomeOption `json:"options"`
}

type valueBulletsInput struct {
	Bullets []string `json:"bullets"`
}

type socialProofInput struct {
	Quote       string `json:"quote"`
	Attribution string `json:"attribution,omitempty"`
}

type progressInput struct {
	Percent int `json:"percent"`
}

type completeModuleInput struct {
	Module  int    `json:"module"`
	Summary string `json:"summary,omitempty"`
}

const (
	providedNameMaxLen = 50
	maxValueBullets    = 6
)

// autoOptionID fills in an id for an option the model sent without one,
// steering clear of ids already on the card.
func autoOptionID(index int, seen map[string]bool) string {
	id := fmt.Sprintf("option_%d", index+1)
	for seen[id] {
		index++
		id = fmt.Sprintf("option_%d", index+1)
	}
	return id
}

func validateProvidedName(name string) error {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return fmt.Errorf("name is empty")
	}
	if len([]rune(trimmed)) > providedNameMaxLen {
		return fmt.Errorf("name exceeds %d characters", providedNameMaxLen)
	}
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return nil
		}
	}
	return fmt.Errorf("name has no letters or digits")
}

// decodeToolInput parses and validates the raw arguments for a tool.
func decodeToolInput(name string, raw json.RawMessage) (any, error) {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	switch name {
	case toolAppendTitleCard:
		var in titleCardInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("title is required")
		}
		return in, nil

	case toolAppendSectionHeader:
		var in sectionHeaderInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Title) == "" {
			return nil, fmt.Errorf("title is required")
		}
		return in, nil

	case toolSetProvidedName:
		var in providedNameInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		in.Name = strings.TrimSpace(in.Name)
		if err := validateProvidedName(in.Name); err != nil {
			return nil, err
		}
		return in, nil

	case toolAppendOutcomes:
		var in structuredOutcomesInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		in.Prompt = strings.TrimSpace(in.Prompt) // optional
		if len(in.Options) == 0 {
			return nil, fmt.Errorf("options must not be empty")
		}
		seen := map[string]bool{}
		for i := range in.Options {
			if strings.TrimSpace(in.Options[i].Label) == "" {
				return nil, fmt.Errorf("every option needs a label")
			}
			id := strings.TrimSpace(in.Options[i].ID)
			if id == "" {
				id = autoOptionID(i, seen)
			} else if seen[id] {
				return nil, fmt.Errorf("duplicate option id %q", id)
			}
			in.Options[i].ID = id
			seen[id] = true
		}
		return in, nil

	case toolAppendValueBullets:
		var in valueBulletsInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		var bullets []string
		for _, b := range in.Bullets {
			if trimmed := strings.TrimSpace(b); trimmed != "" {
				bullets = append(bullets, trimmed)
			}
		}
		if len(bullets) == 0 {
			return nil, fmt.Errorf("bullets must not be empty")
		}
		if len(bullets) > maxValueBullets {
			bullets = bullets[:maxValueBullets]
		}
		in.Bullets = bullets
		return in, nil

	case toolAppendSocialProof:
		var in socialProofInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if strings.TrimSpace(in.Quote) == "" {
			return nil, fmt.Errorf("quote is required")
		}
		return in, nil

	case toolFinalizeInterview:
		return struct{}{}, nil

	case toolSetProgress:
		var in progressInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if in.Percent < 0 || in.Percent > 100 {
			return nil, fmt.Errorf("percent must be 0-100, got %d", in.Percent)
		}
		return in, nil

	case toolCompleteModule:
		var in completeModuleInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, err
		}
		if in.Module < 1 || in.Module > 3 {
			return nil, fmt.Errorf("module must be 1-3, got %d", in.Module)
		}
		return in, nil
	}
	return nil, fmt.Errorf("unknown tool %q", name)
}
