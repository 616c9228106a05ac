package ai

import (
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// DefaultSystemPrompt frames the assistant for the AI-Pass app.
const DefaultSystemPrompt = "당신은 SC AI-Pass의 친절한 AI 어시스턴트입니다. 사용자의 질문에 한국어로 답변해주세요."

const userTemplate = "사용자 질문: {query}\n\n답변:"

func newPromptTemplate() prompt.ChatTemplate {
	return prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.UserMessage(userTemplate),
	)
}

func buildChainInput(systemPrompt, query string) map[string]any {
	if strings.TrimSpace(systemPrompt) == "" {
		systemPrompt = DefaultSystemPrompt
	}
	return map[string]any{
		"system": systemPrompt,
		"query":  query,
	}
}
