// Package ai wraps the configured chat model behind a prompt chain and
// turns every generation failure into a displayable reply.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
)

// ErrConfigurationAbsent is returned when no chat model is provisioned.
var ErrConfigurationAbsent = errors.New("ai generation is not configured")

// Reply is the result of RequestAssistantReply. Text is always displayable.
type Reply struct {
	Text    string
	Outcome Outcome
	Err     error
}

// Service encapsulates AI-powered reply generation.
type Service struct {
	chatModel    model.BaseChatModel
	systemPrompt string
	chain        compose.Runnable[map[string]any, *schema.Message]
	log          logger.ILogger
}

// NewService compiles the prompt chain around chatModel. A nil chatModel
// yields a service whose every reply is the configuration-absent fallback.
func NewService(ctx context.Context, chatModel model.BaseChatModel, systemPrompt string, log logger.ILogger) (*Service, error) {
	s := &Service{
		chatModel:    chatModel,
		systemPrompt: systemPrompt,
		log:          log,
	}
	if chatModel == nil {
		return s, nil
	}

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(newPromptTemplate())
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}
	s.chain = runnable
	return s, nil
}

// Enabled reports whether a chat model is wired.
func (s *Service) Enabled() bool {
	return s.chain != nil
}

// Generate runs one prompt through the chain and returns the raw reply text.
func (s *Service) Generate(ctx context.Context, text string) (string, error) {
	if s.chain == nil {
		return "", ErrConfigurationAbsent
	}

	response, err := s.chain.Invoke(ctx, buildChainInput(s.systemPrompt, text))
	if err != nil {
		return "", fmt.Errorf("failed to run AI chain: %w", err)
	}
	if response == nil {
		return "", nil
	}
	return response.Content, nil
}

// RequestAssistantReply never fails: errors are classified and replaced by
// the matching fallback text.
func (s *Service) RequestAssistantReply(ctx context.Context, text string) Reply {
	content, err := s.Generate(ctx, text)
	if err != nil {
		outcome := Classify(err)
		s.log.Error("AI", "generation failed", map[string]interface{}{
			"outcome": outcome.String(),
			"error":   err,
		})
		return Reply{Text: FallbackText(outcome), Outcome: outcome, Err: err}
	}

	if strings.TrimSpace(content) == "" {
		s.log.Warn("AI", "model returned an empty reply", nil)
		return Reply{Text: FallbackText(Empty), Outcome: Empty}
	}

	s.log.Debug("AI", "reply generated", map[string]interface{}{"length": len(content)})
	return Reply{Text: content, Outcome: Success}
}
