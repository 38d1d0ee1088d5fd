package llm

import (
	"fmt"
	"os"
	"strings"

	"github.com/haventide/compass-backend/internal/platform/logger"
)

// FromEnv picks the provider named by LLM_PROVIDER when its credentials
// are present, then falls back to whichever provider has a key. Exactly
// one provider serves the whole process.
func FromEnv(log *logger.Logger) (Provider, error) {
	pref := strings.ToLower(strings.TrimSpace(os.Getenv("LLM_PROVIDER")))
	hasOpenAI := strings.TrimSpace(os.Getenv("OPENAI_API_KEY")) != ""
	hasAnthropic := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")) != ""

	switch pref {
	case "openai":
		if hasOpenAI {
			return NewOpenAIProvider(log)
		}
		log.Warn("LLM_PROVIDER=openai but OPENAI_API_KEY is unset, falling back")
	case "anthropic":
		if hasAnthropic {
			return NewAnthropicProvider(log)
		}
		log.Warn("LLM_PROVIDER=anthropic but ANTHROPIC_API_KEY is unset, falling back")
	}

	if hasOpenAI {
		return NewOpenAIProvider(log)
	}
	if hasAnthropic {
		return NewAnthropicProvider(log)
	}
	return nil, fmt.Errorf("no llm provider configured: set OPENAI_API_KEY or ANTHROPIC_API_KEY")
}
