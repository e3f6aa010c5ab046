package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/mindful/backend/internal/analysis/crisis"
	"github.com/zhouzirui/mindful/backend/internal/metrics"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
	"github.com/zhouzirui/mindful/backend/internal/service/ai"
)

const operationEvaluate = "evaluate"

// ErrInvalidFormat 表示模型输出无法解析为合法的评估结果。
var ErrInvalidFormat = errors.New("invalid evaluation format")

// Config 控制评估服务的行为。
type Config struct {
	Timeout time.Duration
}

// Service 使用大模型根据对话记录生成结构化的健康评估。
type Service struct {
	classifier compose.Runnable[map[string]any, *schema.Message]
	timeout    time.Duration
	now        func() time.Time
}

// NewService 创建评估服务，chatModel 可复用回复服务的模型实例。
func NewService(ctx context.Context, chatModel model.BaseChatModel, cfg Config) (*Service, error) {
	if chatModel == nil {
		return nil, errors.New("chat model is required")
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage(evaluationSystemPrompt),
		schema.UserMessage(evaluationUserPrompt),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile evaluation chain: %w", err)
	}

	return &Service{
		classifier: runnable,
		timeout:    cfg.Timeout,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// Evaluate 对完整对话记录进行评估。模型输出被视为不可信输入，所有字段在返回前都会校验。
func (s *Service) Evaluate(ctx context.Context, transcript string) (session.Evaluation, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	started := time.Now()
	msg, err := s.classifier.Invoke(ctx, map[string]any{
		"transcript": strings.TrimSpace(transcript),
	})
	metrics.AILatency.WithLabelValues(operationEvaluate).Observe(time.Since(started).Seconds())
	if err != nil {
		metrics.AIRequests.WithLabelValues(operationEvaluate, metrics.OutcomeError).Inc()
		return session.Evaluation{}, fmt.Errorf("%w: %v", ai.ErrProvider, err)
	}

	content := ""
	if msg != nil {
		content = msg.Content
	}

	evaluation, err := parseEvaluation(content)
	if err != nil {
		metrics.AIRequests.WithLabelValues(operationEvaluate, metrics.OutcomeInvalid).Inc()
		return session.Evaluation{}, err
	}
	metrics.AIRequests.WithLabelValues(operationEvaluate, metrics.OutcomeSuccess).Inc()

	applyRiskFloor(&evaluation, screenTranscript(transcript))
	evaluation.EvaluatedAt = s.now()
	return evaluation, nil
}

// parseEvaluation 从模型输出中提取 JSON 对象并转换为评估结果。
func parseEvaluation(content string) (session.Evaluation, error) {
	raw, err := extractJSONObject(content)
	if err != nil {
		return session.Evaluation{}, err
	}

	payload := &evaluationPayload{}
	if err := json.Unmarshal([]byte(raw), payload); err != nil {
		return session.Evaluation{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	risk, ok := session.ParseRiskLevel(payload.RiskLevel)
	if !ok {
		return session.Evaluation{}, fmt.Errorf("%w: unknown risk level %q", ErrInvalidFormat, payload.RiskLevel)
	}

	evaluation := session.Evaluation{
		WellnessScore:   int(payload.WellnessScore),
		EmotionalState:  strings.TrimSpace(payload.EmotionalState),
		RiskLevel:       risk,
		Concerns:        cleanList(payload.Concerns),
		Recommendations: cleanList(payload.Recommendations),
		Summary:         strings.TrimSpace(payload.Summary),
	}
	if err := evaluation.Validate(); err != nil {
		return session.Evaluation{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	return evaluation, nil
}

func extractJSONObject(content string) (string, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return "", fmt.Errorf("%w: missing json object", ErrInvalidFormat)
	}
	return trimmed[start : end+1], nil
}

// applyRiskFloor 当用户发言触发危机关键词时，确保风险等级不低于筛查结果。
func applyRiskFloor(evaluation *session.Evaluation, signal crisis.Signal) {
	if signal.Level.Rank() <= evaluation.RiskLevel.Rank() {
		return
	}

	log.Printf("[evaluation] raising risk level %s -> %s (matches=%v)", evaluation.RiskLevel, signal.Level, signal.Matches)
	evaluation.RiskLevel = signal.Level
	evaluation.Concerns = append(evaluation.Concerns,
		"Crisis language detected in user messages: "+strings.Join(signal.Matches, ", "))
}

// screenTranscript 只筛查 "User:" 发言；不带前缀的续行归属上一位发言者。
func screenTranscript(transcript string) crisis.Signal {
	var (
		builder strings.Builder
		inUser  bool
	)
	for _, line := range strings.Split(transcript, "\n") {
		switch {
		case strings.HasPrefix(line, "User:"):
			inUser = true
			line = strings.TrimPrefix(line, "User:")
		case strings.HasPrefix(line, "Therapist:"):
			inUser = false
			continue
		}
		if inUser {
			builder.WriteString(line)
			builder.WriteString("\n")
		}
	}
	return crisis.Screen(builder.String())
}

func cleanList(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		if trimmed := strings.TrimSpace(item); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

type evaluationPayload struct {
	WellnessScore   flexibleInt  `json:"wellnessScore"`
	EmotionalState  string       `json:"emotionalState"`
	RiskLevel       string       `json:"riskLevel"`
	Concerns        flexibleList `json:"concerns"`
	Recommendations flexibleList `json:"recommendations"`
	Summary         string       `json:"summary"`
}

// flexibleInt 接受数字或数字字符串，小数四舍五入。
type flexibleInt int

func (f *flexibleInt) UnmarshalJSON(data []byte) error {
	text := strings.Trim(strings.TrimSpace(string(data)), `"`)
	if text == "" || text == "null" {
		return errors.New("wellnessScore is required")
	}
	val, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return fmt.Errorf("wellnessScore %q is not a number", text)
	}
	*f = flexibleInt(math.Round(val))
	return nil
}

// flexibleList 接受字符串数组或单个字符串。
type flexibleList []string

func (f *flexibleList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*f = list
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err != nil {
		return fmt.Errorf("expected string list, got %s", string(data))
	}
	if single == "" {
		*f = nil
		return nil
	}
	*f = []string{single}
	return nil
}

const evaluationSystemPrompt = "You are a clinical psychologist reviewing a conversation between a user and an AI therapist. Assess the user's current mental wellbeing from what they wrote.\nOutput requirements: return exactly one JSON object and no other text. Fields: wellnessScore (integer from 1 to 100, higher means better wellbeing), emotionalState (a short label such as anxious, hopeful or overwhelmed), riskLevel (must be one of low, medium, high; use high whenever the user mentions suicide, self-harm or harming others), concerns (array of short strings), recommendations (array of short, actionable strings), summary (two or three sentences written as a clinical note)."

const evaluationUserPrompt = "Conversation transcript:\n{transcript}\n\nReturn the JSON object now."
