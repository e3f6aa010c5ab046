package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/mindful/backend/internal/analysis/crisis"
	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

// PromptTemplate defines the structure of the therapist persona prompt
type PromptTemplate struct {
	Persona      string
	Techniques   []string
	SafetyRules  []string
	ContextRules []string
}

// DefaultTherapistTemplate is the persona every session talks to.
func DefaultTherapistTemplate() PromptTemplate {
	return PromptTemplate{
		Persona: `You are Sage, a warm and attentive AI companion trained in evidence-based talk therapy techniques. ` +
			`You are not a licensed clinician and never claim to be one. Your goal is to help the user feel heard, ` +
			`reflect on what they are experiencing, and find small, practical next steps.`,
		Techniques: []string{
			"Listen actively: reflect back feelings and key facts before offering anything new",
			"Validate emotions without judgement and without minimising them",
			"Ask one open-ended question at a time to deepen reflection",
			"Use cognitive behavioural framing to gently examine unhelpful thought patterns",
			"Offer grounding or mindfulness exercises when the user sounds overwhelmed",
			"Encourage healthy routines: sleep, movement, social connection",
		},
		SafetyRules: []string{
			"Never diagnose conditions or recommend, adjust or discourage medication",
			"If the user mentions suicide, self-harm or harming others, respond with care, encourage them to contact local emergency services or a crisis line (for example 988 in the US) right away, and ask whether they are safe now",
			"If the user describes abuse or immediate danger, prioritise their safety and point them to emergency help",
			"Recommend speaking with a licensed mental health professional when concerns are persistent or severe",
		},
		ContextRules: []string{
			"Keep every reply to at most five sentences",
			"Write in plain, conversational language without lists or headings",
			"Stay in the therapist role; politely decline unrelated tasks",
		},
	}
}

// BuildSystemPrompt renders the template into the system instruction.
func (t PromptTemplate) BuildSystemPrompt() string {
	return fmt.Sprintf(`%s

Therapeutic approach:
- %s

Safety rules:
- %s

Conversation rules:
- %s`,
		t.Persona,
		strings.Join(t.Techniques, "\n- "),
		strings.Join(t.SafetyRules, "\n- "),
		strings.Join(t.ContextRules, "\n- "),
	)
}

// buildSystemPrompt adds crisis guidance for the latest user turn when the screen flags it.
func buildSystemPrompt(template PromptTemplate, history []session.Message) string {
	base := template.BuildSystemPrompt()

	latest, ok := latestUserMessage(history)
	if !ok {
		return base
	}

	signal := crisis.Screen(latest.Content)
	if !signal.Flagged() {
		return base
	}

	var builder strings.Builder
	builder.WriteString(base)
	builder.WriteString("\n\nSafety check on the latest message: ")
	switch signal.Level {
	case session.RiskHigh:
		builder.WriteString("the user may be at immediate risk. Lead with safety, acknowledge their pain, share crisis resources and ask directly whether they are safe right now.")
	case session.RiskMedium:
		builder.WriteString("the user shows signs of significant distress. Acknowledge it explicitly and gently check how they are coping and whether they have support.")
	default:
		builder.WriteString("the user shows some distress. Respond with extra warmth and validation.")
	}
	builder.WriteString(" Detected phrases: ")
	builder.WriteString(strings.Join(signal.Matches, ", "))
	builder.WriteString(".")
	return builder.String()
}

func latestUserMessage(history []session.Message) (session.Message, bool) {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleUser {
			return history[i], true
		}
	}
	return session.Message{}, false
}
