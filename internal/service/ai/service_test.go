package ai

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/scaipass/ai-pass/backend/internal/pkg/logger"
)

type fakeChatModel struct {
	mu     sync.Mutex
	reply  string
	err    error
	inputs [][]*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inputs = append(f.inputs, input)
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	msg, err := f.Generate(ctx, input, opts...)
	if err != nil {
		return nil, err
	}
	return schema.StreamReaderFromArray([]*schema.Message{msg}), nil
}

func newTestService(t *testing.T, m model.BaseChatModel) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), m, "", logger.NewNop())
	require.NoError(t, err)
	return svc
}

func TestGenerateBuildsPrompt(t *testing.T) {
	fake := &fakeChatModel{reply: "I'm well!"}
	svc := newTestService(t, fake)

	text, err := svc.Generate(context.Background(), "Hello there")
	require.NoError(t, err)
	assert.Equal(t, "I'm well!", text)

	require.Len(t, fake.inputs, 1)
	require.Len(t, fake.inputs[0], 2)
	assert.Equal(t, schema.System, fake.inputs[0][0].Role)
	assert.Equal(t, DefaultSystemPrompt, fake.inputs[0][0].Content)
	assert.Equal(t, schema.User, fake.inputs[0][1].Role)
	assert.Equal(t, "사용자 질문: Hello there\n\n답변:", fake.inputs[0][1].Content)
}

func TestGenerateWithoutModel(t *testing.T) {
	svc := newTestService(t, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.Generate(context.Background(), "hi")
	assert.ErrorIs(t, err, ErrConfigurationAbsent)

	reply := svc.RequestAssistantReply(context.Background(), "hi")
	assert.Equal(t, ConfigurationAbsent, reply.Outcome)
	assert.Equal(t, "죄송합니다. AI 서비스가 설정되지 않았습니다. 관리자에게 문의해주세요.", reply.Text)
}

func TestRequestAssistantReplyFallbacks(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		outcome Outcome
		text    string
	}{
		{
			name:    "rejected key",
			err:     errors.New("googleapi: API key not valid"),
			outcome: AuthRejected,
			text:    "죄송합니다. API 키 설정에 문제가 있습니다. 관리자에게 문의해주세요.",
		},
		{
			name:    "quota",
			err:     errors.New("Error 429: Resource has been exhausted (e.g. check quota)."),
			outcome: QuotaExceeded,
			text:    "죄송합니다. 일일 사용량을 초과했습니다. 나중에 다시 시도해주세요.",
		},
		{
			name:    "unclassified",
			err:     errors.New("connection reset by peer"),
			outcome: Transient,
			text:    "죄송합니다. 일시적인 오류가 발생했습니다. 다시 시도해주세요.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakeChatModel{err: tt.err})
			reply := svc.RequestAssistantReply(context.Background(), "hi")
			assert.Equal(t, tt.outcome, reply.Outcome)
			assert.Equal(t, tt.text, reply.Text)
			assert.Error(t, reply.Err)
		})
	}
}

func TestRequestAssistantReplyEmpty(t *testing.T) {
	svc := newTestService(t, &fakeChatModel{reply: "  \n"})
	reply := svc.RequestAssistantReply(context.Background(), "hi")
	assert.Equal(t, Empty, reply.Outcome)
	assert.Equal(t, "죄송합니다. 응답을 생성할 수 없습니다.", reply.Text)
	assert.NoError(t, reply.Err)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Outcome
	}{
		{"nil", nil, Success},
		{"not configured", fmt.Errorf("wrap: %w", ErrConfigurationAbsent), ConfigurationAbsent},
		{"api error 401", genai.APIError{Code: 401, Message: "bad"}, AuthRejected},
		{"api error 403 wrapped", fmt.Errorf("chain: %w", genai.APIError{Code: 403}), AuthRejected},
		{"api error 429 pointer", &genai.APIError{Code: 429}, QuotaExceeded},
		{"permission denied", errors.New("rpc error: PERMISSION_DENIED"), AuthRejected},
		{"unauthenticated", errors.New("UNAUTHENTICATED: missing credentials"), AuthRejected},
		{"resource exhausted", errors.New("RESOURCE_EXHAUSTED"), QuotaExceeded},
		{"rate limit", errors.New("Rate limit reached for requests"), QuotaExceeded},
		{"api error 500", genai.APIError{Code: 500, Message: "internal"}, Transient},
		{"other", errors.New("boom"), Transient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestFallbackTextSuccessIsEmpty(t *testing.T) {
	assert.Empty(t, FallbackText(Success))
	assert.Equal(t, FallbackText(Transient), FallbackText(Outcome(99)))
}
