package services

import (
	"strings"
	"testing"
)

func TestExtractPlanCard(t *testing.T) {
	text := "Here is your plan.\n\n```plan\n" +
		`{"title": "Reset", "summary": "A 3-part reset.", "modules": [{"number": 1, "title": "Foundations"}]}` +
		"\n```\n\nWhat do you think?"

	card, visible, err := extractPlanCard(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card == nil {
		t.Fatal("expected a plan card")
	}
	if card.Title != "Reset" {
		t.Fatalf("title = %q, want %q", card.Title, "Reset")
	}
	if len(card.Modules) != 1 || card.Modules[0].Title != "Foundations" {
		t.Fatalf("modules = %+v", card.Modules)
	}
	if strings.Contains(visible, "```") {
		t.Fatalf("visible text still contains a fence: %q", visible)
	}
	if !strings.Contains(visible, "Here is your plan.") || !strings.Contains(visible, "What do you think?") {
		t.Fatalf("surrounding prose lost: %q", visible)
	}
}

func TestExtractPlanCardNoBlock(t *testing.T) {
	card, visible, err := extractPlanCard("Just a normal reply.")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card != nil {
		t.Fatal("expected no plan card")
	}
	if visible != "Just a normal reply." {
		t.Fatalf("visible = %q", visible)
	}
}

func TestExtractPlanCardMalformedJSON(t *testing.T) {
	text := "Intro.\n```plan\n{not json}\n```\nOutro."
	card, visible, err := extractPlanCard(text)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if card != nil {
		t.Fatal("malformed block must not produce a card")
	}
	if strings.Contains(visible, "not json") {
		t.Fatalf("raw block leaked into visible text: %q", visible)
	}
}

func TestExtractPlanCardEmptyModules(t *testing.T) {
	text := "```plan\n" + `{"title": "X", "summary": "Y", "modules": []}` + "\n```"
	card, _, err := extractPlanCard(text)
	if err == nil {
		t.Fatal("expected an error for empty modules")
	}
	if card != nil {
		t.Fatal("plan without modules must not produce a card")
	}
}

func TestExtractPlanCardFirstBlockWins(t *testing.T) {
	text := "```plan\n" +
		`{"title": "First", "summary": "s", "modules": [{"number": 1, "title": "A"}]}` +
		"\n```\nmiddle\n```plan\n" +
		`{"title": "Second", "summary": "s", "modules": [{"number": 1, "title": "B"}]}` +
		"\n```"
	card, visible, err := extractPlanCard(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card == nil || card.Title != "First" {
		t.Fatalf("card = %+v, want first block", card)
	}
	if strings.Contains(visible, "Second") {
		t.Fatalf("second block leaked: %q", visible)
	}
}

func TestExtractPlanCardUnterminatedFence(t *testing.T) {
	card, visible, err := extractPlanCard("Before.\n```plan\n{\"title\": \"X\"")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if card != nil {
		t.Fatal("unterminated fence must not produce a card")
	}
	if visible != "Before." {
		t.Fatalf("visible = %q", visible)
	}
}
