package session

import (
	"fmt"
	"strings"
	"time"
)

// Role identifies who authored a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether the role is one the conversation accepts.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// Message is a single conversation turn. Messages are never edited after being appended.
type Message struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is one conversation thread plus the latest wellness evaluation, if any.
type Session struct {
	ID         string      `json:"id"`
	Messages   []Message   `json:"messages"`
	Evaluation *Evaluation `json:"evaluation,omitempty"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}

// Summary is the admin listing view of a session, without message bodies.
type Summary struct {
	ID           string      `json:"id"`
	MessageCount int         `json:"messageCount"`
	Evaluation   *Evaluation `json:"evaluation,omitempty"`
	CreatedAt    time.Time   `json:"createdAt"`
	UpdatedAt    time.Time   `json:"updatedAt"`
}

// Summary projects the session to its listing view.
func (s Session) Summary() Summary {
	return Summary{
		ID:           s.ID,
		MessageCount: len(s.Messages),
		Evaluation:   s.Evaluation,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}

// Transcript renders the conversation as "User:" / "Therapist:" lines.
func (s Session) Transcript() string {
	return RenderTranscript(s.Messages)
}

// RenderTranscript renders messages as alternating speaker lines, one turn per line.
func RenderTranscript(messages []Message) string {
	var builder strings.Builder
	for i, msg := range messages {
		if i > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(speakerLabel(msg.Role))
		builder.WriteString(": ")
		builder.WriteString(msg.Content)
	}
	return builder.String()
}

func speakerLabel(role Role) string {
	if role == RoleAssistant {
		return "Therapist"
	}
	return "User"
}

// RiskLevel is the categorical severity attached to an evaluation.
type RiskLevel string

const (
	RiskLow    RiskLevel = "low"
	RiskMedium RiskLevel = "medium"
	RiskHigh   RiskLevel = "high"
)

// ParseRiskLevel normalises raw provider output into a RiskLevel.
func ParseRiskLevel(raw string) (RiskLevel, bool) {
	switch RiskLevel(strings.ToLower(strings.TrimSpace(raw))) {
	case RiskLow:
		return RiskLow, true
	case RiskMedium:
		return RiskMedium, true
	case RiskHigh:
		return RiskHigh, true
	default:
		return "", false
	}
}

// Rank orders risk levels so callers can compare severity. Unknown levels rank lowest.
func (r RiskLevel) Rank() int {
	switch r {
	case RiskLow:
		return 1
	case RiskMedium:
		return 2
	case RiskHigh:
		return 3
	default:
		return 0
	}
}

const (
	MinWellnessScore = 1
	MaxWellnessScore = 100
)

// Evaluation is a structured wellness assessment computed from a session transcript.
type Evaluation struct {
	WellnessScore   int       `json:"wellnessScore"`
	EmotionalState  string    `json:"emotionalState"`
	RiskLevel       RiskLevel `json:"riskLevel"`
	Concerns        []string  `json:"concerns"`
	Recommendations []string  `json:"recommendations"`
	Summary         string    `json:"summary"`
	EvaluatedAt     time.Time `json:"evaluatedAt"`
}

// Validate checks the fields the rest of the system relies on.
func (e Evaluation) Validate() error {
	if e.WellnessScore < MinWellnessScore || e.WellnessScore > MaxWellnessScore {
		return fmt.Errorf("wellness score %d outside [%d, %d]", e.WellnessScore, MinWellnessScore, MaxWellnessScore)
	}
	if _, ok := ParseRiskLevel(string(e.RiskLevel)); !ok {
		return fmt.Errorf("unknown risk level %q", e.RiskLevel)
	}
	if strings.TrimSpace(e.EmotionalState) == "" {
		return fmt.Errorf("emotional state is required")
	}
	return nil
}
