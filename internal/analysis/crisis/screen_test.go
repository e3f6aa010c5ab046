package crisis

import (
	"testing"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

func TestScreenHighRiskPhrase(t *testing.T) {
	signal := Screen("Sometimes I think everyone would be better off   dead without me")
	if signal.Level != session.RiskHigh {
		t.Fatalf("expected high risk, got %s", signal.Level)
	}
	if !signal.Flagged() {
		t.Fatal("expected signal to be flagged")
	}
}

func TestScreenElevatedPhrasesAccumulate(t *testing.T) {
	single := Screen("I feel hopeless about work")
	if single.Level != session.RiskLow {
		t.Fatalf("expected low risk for single elevated phrase, got %s", single.Level)
	}
	if !single.Flagged() {
		t.Fatal("expected single elevated phrase to be flagged")
	}

	combined := Screen("I feel hopeless and worthless, I can’t cope anymore")
	if combined.Level != session.RiskMedium {
		t.Fatalf("expected medium risk, got %s (matches=%v)", combined.Level, combined.Matches)
	}
}

func TestScreenNeutralText(t *testing.T) {
	signal := Screen("I feel anxious today")
	if signal.Flagged() || signal.Level != session.RiskLow {
		t.Fatalf("expected no signal, got %+v", signal)
	}
}

func TestScreenMessagesIgnoresAssistantTurns(t *testing.T) {
	messages := []session.Message{
		{Role: session.RoleUser, Content: "I had a rough week"},
		{Role: session.RoleAssistant, Content: "If you ever think about suicide, please call a crisis line."},
	}
	if signal := ScreenMessages(messages); signal.Flagged() {
		t.Fatalf("assistant text should not be screened, got %v", signal.Matches)
	}
}

func TestScreenIgnoresNegatedPhrases(t *testing.T) {
	signal := Screen("I'm not suicidal, I just never want to give up on my running goals")
	if signal.Flagged() || signal.Level != session.RiskLow {
		t.Fatalf("expected negated phrases to be ignored, got %+v", signal)
	}

	signal = Screen("I don't want to die")
	if signal.Flagged() {
		t.Fatalf("expected negated phrase to be ignored, got %v", signal.Matches)
	}
}

func TestScreenNegationDoesNotCrossClauses(t *testing.T) {
	signal := Screen("I'm not okay, I want to die")
	if signal.Level != session.RiskHigh {
		t.Fatalf("expected high risk, got %s (matches=%v)", signal.Level, signal.Matches)
	}

	signal = Screen("I'm not suicidal but last night I felt suicidal again")
	if signal.Level != session.RiskHigh {
		t.Fatalf("expected a later affirmed mention to count, got %s", signal.Level)
	}
}
