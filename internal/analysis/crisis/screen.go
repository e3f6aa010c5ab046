package crisis

import (
	"sort"
	"strings"

	"github.com/zhouzirui/mindful/backend/internal/model/session"
)

// Signal 描述一段文本触发的危机信号。
type Signal struct {
	Level   session.RiskLevel
	Score   int
	Matches []string
}

// Flagged reports whether the text contained any crisis language at all.
func (s Signal) Flagged() bool {
	return len(s.Matches) > 0
}

// phrases that on their own warrant immediate escalation.
var highRiskPhrases = []string{
	"kill myself", "killing myself", "end my life", "ending my life", "take my own life",
	"suicide", "suicidal", "want to die", "wanna die", "better off dead", "no reason to live",
	"hurt myself", "hurting myself", "self-harm", "self harm", "cut myself", "cutting myself",
	"overdose", "jump off", "not be here anymore", "end it all",
}

// phrases that signal distress worth watching but not, alone, an emergency.
var elevatedPhrases = []string{
	"hopeless", "worthless", "can't go on", "cannot go on",
	"nobody cares", "no one cares", "empty inside", "trapped", "a burden", "can't cope",
	"cannot cope", "panic attack", "haven't slept", "can't stop crying", "falling apart",
}

const (
	highRiskWeight = 5
	elevatedWeight = 2

	// two or more elevated phrases together are treated as medium risk.
	mediumThreshold = 4

	// how many words before a phrase are searched for a negation.
	negationWindow = 2
)

var negations = map[string]struct{}{
	"not": {}, "never": {}, "don't": {}, "dont": {},
	"isn't": {}, "wasn't": {}, "won't": {}, "wouldn't": {}, "didn't": {},
}

// Screen scans free text for crisis language and grades it.
func Screen(text string) Signal {
	normalized := normalize(text)
	if normalized == "" {
		return Signal{Level: session.RiskLow}
	}

	score := 0
	matches := make([]string, 0)
	high := false

	for _, phrase := range highRiskPhrases {
		if containsAffirmed(normalized, phrase) {
			score += highRiskWeight
			matches = append(matches, phrase)
			high = true
		}
	}
	for _, phrase := range elevatedPhrases {
		if containsAffirmed(normalized, phrase) {
			score += elevatedWeight
			matches = append(matches, phrase)
		}
	}

	sort.Strings(matches)

	level := session.RiskLow
	switch {
	case high:
		level = session.RiskHigh
	case score >= mediumThreshold:
		level = session.RiskMedium
	}

	return Signal{Level: level, Score: score, Matches: matches}
}

// ScreenMessages screens only the user-authored turns of a conversation.
func ScreenMessages(messages []session.Message) Signal {
	var builder strings.Builder
	for _, msg := range messages {
		if msg.Role != session.RoleUser {
			continue
		}
		builder.WriteString(msg.Content)
		builder.WriteString("\n")
	}
	return Screen(builder.String())
}

// containsAffirmed reports whether phrase occurs at least once without a negation
// in the few words before it, e.g. "i'm not suicidal" does not count.
func containsAffirmed(text, phrase string) bool {
	offset := 0
	for {
		idx := strings.Index(text[offset:], phrase)
		if idx == -1 {
			return false
		}
		start := offset + idx
		if !negated(text[:start]) {
			return true
		}
		offset = start + len(phrase)
	}
}

// negated looks back over the words preceding a match, stopping at clause punctuation.
func negated(prefix string) bool {
	words := strings.Fields(prefix)
	for i := len(words) - 1; i >= 0 && i >= len(words)-negationWindow; i-- {
		word := words[i]
		if strings.ContainsAny(word[len(word)-1:], ".,;!?") {
			return false
		}
		if _, ok := negations[word]; ok {
			return true
		}
	}
	return false
}

func normalize(text string) string {
	lowered := strings.ToLower(strings.TrimSpace(text))
	// curly apostrophes from mobile keyboards
	lowered = strings.ReplaceAll(lowered, "’", "'")
	return strings.Join(strings.Fields(lowered), " ")
}
