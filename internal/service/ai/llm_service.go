package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mindful/backend/internal/config"
	"github.com/zhouzirui/mindful/backend/internal/metrics"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

const operationReply = "reply"

var (
	// ErrProvider wraps any transport or API-level failure from the model provider.
	ErrProvider     = errors.New("ai provider error")
	ErrEmptyHistory = errors.New("conversation history is empty")
)

// Service generates therapist replies through the configured chat model
type Service struct {
	chatModel model.BaseChatModel
	template  PromptTemplate
	timeout   time.Duration
	chain     compose.Runnable[map[string]any, *schema.Message]
}

// NewService creates a new AI service instance backed by the Ark model in cfg
func NewService(ctx context.Context, cfg config.AIConfig) (*Service, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewServiceWithModel(ctx, chatModel, cfg.Timeout)
}

// NewServiceWithModel builds the reply chain around an existing chat model.
func NewServiceWithModel(ctx context.Context, chatModel model.BaseChatModel, timeout time.Duration) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	return &Service{
		chatModel: chatModel,
		template:  DefaultTherapistTemplate(),
		timeout:   timeout,
		chain:     runnable,
	}, nil
}

// GetChatModel 返回底层的聊天模型
func (s *Service) GetChatModel() model.BaseChatModel {
	return s.chatModel
}

// Timeout returns the per-call deadline, zero meaning none.
func (s *Service) Timeout() time.Duration {
	return s.timeout
}

// GenerateReply produces the therapist's next turn for the full conversation history.
func (s *Service) GenerateReply(ctx context.Context, history []session.Message) (string, error) {
	if len(history) == 0 {
		return "", ErrEmptyHistory
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	input := map[string]any{
		"system":  buildSystemPrompt(s.template, history),
		"history": buildHistoryMessages(history),
	}

	started := time.Now()
	response, err := s.chain.Invoke(ctx, input)
	metrics.AILatency.WithLabelValues(operationReply).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.AIRequests.WithLabelValues(operationReply, metrics.OutcomeError).Inc()
		return "", fmt.Errorf("%w: %v", ErrProvider, err)
	}

	content := ""
	if response != nil {
		content = strings.TrimSpace(response.Content)
	}
	if content == "" {
		metrics.AIRequests.WithLabelValues(operationReply, metrics.OutcomeInvalid).Inc()
		return "", fmt.Errorf("%w: empty response", ErrProvider)
	}

	metrics.AIRequests.WithLabelValues(operationReply, metrics.OutcomeSuccess).Inc()
	log.Printf("[ai] generated reply: history=%d, length=%d", len(history), len(content))
	return content, nil
}

func buildHistoryMessages(messages []session.Message) []*schema.Message {
	history := make([]*schema.Message, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case session.RoleUser:
			history = append(history, schema.UserMessage(msg.Content))
		case session.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Content, nil))
		}
	}
	return history
}
