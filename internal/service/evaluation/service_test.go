package evaluation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
	"github.com/zhouzirui/mindful/backend/internal/service/ai"
)

type fakeChatModel struct {
	reply    string
	err      error
	received []*schema.Message
}

func (f *fakeChatModel) Generate(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, input []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.received = input
	if f.err != nil {
		return nil, f.err
	}
	return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage(f.reply, nil)}), nil
}

func newService(t *testing.T, fake *fakeChatModel) *Service {
	t.Helper()
	svc, err := NewService(context.Background(), fake, Config{})
	require.NoError(t, err)
	svc.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	return svc
}

const wrappedReply = "Here is my assessment:\n```json\n" +
	`{"wellnessScore": 62, "emotionalState": " anxious ", "riskLevel": "Medium", ` +
	`"concerns": ["work stress", " "], "recommendations": ["daily walks"], "summary": "Ongoing anxiety tied to work."}` +
	"\n```\nTake care."

func TestEvaluateExtractsEmbeddedJSON(t *testing.T) {
	fake := &fakeChatModel{reply: wrappedReply}
	svc := newService(t, fake)

	eval, err := svc.Evaluate(context.Background(), "User: I feel anxious today\nTherapist: I hear you.")
	require.NoError(t, err)

	assert.Equal(t, 62, eval.WellnessScore)
	assert.Equal(t, "anxious", eval.EmotionalState)
	assert.Equal(t, session.RiskMedium, eval.RiskLevel)
	assert.Equal(t, []string{"work stress"}, eval.Concerns)
	assert.Equal(t, []string{"daily walks"}, eval.Recommendations)
	assert.Equal(t, "Ongoing anxiety tied to work.", eval.Summary)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), eval.EvaluatedAt)

	require.Len(t, fake.received, 2)
	assert.Contains(t, fake.received[1].Content, "User: I feel anxious today")
}

func TestEvaluateWithoutJSONIsInvalidFormat(t *testing.T) {
	svc := newService(t, &fakeChatModel{reply: "I cannot assess this conversation."})

	_, err := svc.Evaluate(context.Background(), "User: hi")
	require.ErrorIs(t, err, ErrInvalidFormat)
}

func TestEvaluateProviderFailure(t *testing.T) {
	svc := newService(t, &fakeChatModel{err: errors.New("connection reset")})

	_, err := svc.Evaluate(context.Background(), "User: hi")
	require.ErrorIs(t, err, ai.ErrProvider)
}

func TestEvaluateRaisesRiskFloorOnCrisisLanguage(t *testing.T) {
	reply := `{"wellnessScore": 40, "emotionalState": "low", "riskLevel": "low", "concerns": [], "recommendations": [], "summary": "Low mood."}`
	svc := newService(t, &fakeChatModel{reply: reply})

	transcript := "User: I keep thinking I want to die\nTherapist: Thank you for telling me. Are you safe right now?"
	eval, err := svc.Evaluate(context.Background(), transcript)
	require.NoError(t, err)

	assert.Equal(t, session.RiskHigh, eval.RiskLevel)
	require.Len(t, eval.Concerns, 1)
	assert.Contains(t, eval.Concerns[0], "want to die")
}

func TestEvaluateKeepsModelRiskForNegatedLanguage(t *testing.T) {
	reply := `{"wellnessScore": 78, "emotionalState": "motivated", "riskLevel": "low", "concerns": [], "recommendations": ["keep training"], "summary": "Goal focused."}`
	svc := newService(t, &fakeChatModel{reply: reply})

	transcript := "User: I'm not suicidal, I just never want to give up on my running goals\nTherapist: That drive is great to hear."
	eval, err := svc.Evaluate(context.Background(), transcript)
	require.NoError(t, err)

	assert.Equal(t, session.RiskLow, eval.RiskLevel)
	assert.Empty(t, eval.Concerns)
}

func TestParseEvaluationValidation(t *testing.T) {
	cases := map[string]string{
		"score out of range": `{"wellnessScore": 150, "emotionalState": "ok", "riskLevel": "low"}`,
		"score missing":      `{"emotionalState": "ok", "riskLevel": "low"}`,
		"score not numeric":  `{"wellnessScore": "high", "emotionalState": "ok", "riskLevel": "low"}`,
		"unknown risk":       `{"wellnessScore": 50, "emotionalState": "ok", "riskLevel": "severe"}`,
		"missing state":      `{"wellnessScore": 50, "emotionalState": "", "riskLevel": "low"}`,
		"malformed json":     `{"wellnessScore": 50,}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := parseEvaluation(raw)
			require.ErrorIs(t, err, ErrInvalidFormat)
		})
	}
}

func TestParseEvaluationLenientShapes(t *testing.T) {
	raw := `{"wellnessScore": "71.6", "emotionalState": "hopeful", "riskLevel": "LOW", "concerns": "sleep", "recommendations": null, "summary": "Improving."}`

	eval, err := parseEvaluation(raw)
	require.NoError(t, err)
	assert.Equal(t, 72, eval.WellnessScore)
	assert.Equal(t, session.RiskLow, eval.RiskLevel)
	assert.Equal(t, []string{"sleep"}, eval.Concerns)
	assert.Empty(t, eval.Recommendations)
}

func TestScreenTranscriptIgnoresTherapistLines(t *testing.T) {
	transcript := "User: rough day\nTherapist: If you have thoughts of suicide, call 988.\nsecond therapist line about self-harm"
	assert.False(t, screenTranscript(transcript).Flagged())

	multiline := "User: first line\nI don't want to be here, I want to die\nTherapist: I'm listening."
	assert.Equal(t, session.RiskHigh, screenTranscript(multiline).Level)
}
