package llm

import (
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/prospector/internal/common"
	"github.com/ternarybob/prospector/internal/interfaces"
)

// NewLLMService creates the configured LLM provider. apiKey overrides the
// provider's configured key when non-empty (keys supplied at runtime through
// the service-variables endpoint take precedence over config files).
func NewLLMService(cfg *common.Config, apiKey string, logger arbor.ILogger) (interfaces.LLMService, error) {
	switch cfg.LLM.DefaultProvider {
	case common.LLMProviderClaude:
		return NewClaudeService(&cfg.Claude, apiKey, logger)
	case common.LLMProviderGemini:
		return NewGeminiService(&cfg.Gemini, apiKey, logger)
	default:
		return nil, fmt.Errorf("unsupported LLM provider '%s': must be 'claude' or 'gemini'", cfg.LLM.DefaultProvider)
	}
}
