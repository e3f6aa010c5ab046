package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/zhouzirui/mindful/backend/internal/analysis/crisis"
	"github.com/zhouzirui/mindful/backend/internal/metrics"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

var (
	errMissingFields = errors.New("sessionId and message are required")
	errAIUnavailable = errors.New("ai service unavailable")
	errUpstream      = errors.New("failed to generate response")
)

// exchangeResult 一次用户消息处理的结果。
type exchangeResult struct {
	Reply      string
	Messages   int
	Evaluation *session.Evaluation
}

// exchange 处理一条用户消息：写入用户消息、生成回复、写入回复，并在消息数达到评估间隔的整数倍时触发评估。
// 回复生成失败时用户消息保留在会话中；评估失败只记录日志，不影响本次请求。
func (h *Handler) exchange(ctx context.Context, sessionID, text string) (exchangeResult, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.TrimSpace(text) == "" {
		return exchangeResult{}, errMissingFields
	}

	if _, err := h.sessions.Get(ctx, sessionID); err != nil {
		return exchangeResult{}, err
	}

	if h.replies == nil {
		return exchangeResult{}, errAIUnavailable
	}

	current, err := h.sessions.AppendMessage(ctx, sessionID, session.RoleUser, text)
	if err != nil {
		return exchangeResult{}, fmt.Errorf("save user message: %w", err)
	}

	if signal := crisis.Screen(text); signal.Flagged() {
		metrics.CrisisSignals.WithLabelValues(string(signal.Level)).Inc()
		log.Printf("[chat] crisis screen flagged session=%s level=%s matches=%v", sessionID, signal.Level, signal.Matches)
	}

	reply, err := h.replies.GenerateReply(ctx, current.Messages)
	if err != nil {
		log.Printf("[chat] reply generation failed for session=%s: %v", sessionID, err)
		return exchangeResult{}, fmt.Errorf("%w: %v", errUpstream, err)
	}

	current, err = h.sessions.AppendMessage(ctx, sessionID, session.RoleAssistant, reply)
	if err != nil {
		return exchangeResult{}, fmt.Errorf("save assistant message: %w", err)
	}

	result := exchangeResult{Reply: reply, Messages: len(current.Messages)}
	if h.shouldEvaluate(len(current.Messages)) {
		result.Evaluation = h.evaluate(ctx, current)
	}
	return result, nil
}

func (h *Handler) shouldEvaluate(count int) bool {
	return h.evaluator != nil && h.evaluationInterval > 0 && count > 0 && count%h.evaluationInterval == 0
}

func (h *Handler) evaluate(ctx context.Context, current session.Session) *session.Evaluation {
	evaluation, err := h.evaluator.Evaluate(ctx, current.Transcript())
	if err != nil {
		metrics.Evaluations.WithLabelValues(metrics.OutcomeError).Inc()
		log.Printf("[chat] evaluation failed for session=%s at %d messages: %v", current.ID, len(current.Messages), err)
		return nil
	}

	if _, err := h.sessions.SetEvaluation(ctx, current.ID, evaluation); err != nil {
		metrics.Evaluations.WithLabelValues(metrics.OutcomeError).Inc()
		log.Printf("[chat] save evaluation failed for session=%s: %v", current.ID, err)
		return nil
	}

	metrics.Evaluations.WithLabelValues(metrics.OutcomeSuccess).Inc()
	log.Printf("[chat] evaluated session=%s messages=%d score=%d risk=%s", current.ID, len(current.Messages), evaluation.WellnessScore, evaluation.RiskLevel)
	return &evaluation
}
