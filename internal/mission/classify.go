package mission

import "strings"

// Intent is what pressing a button is expected to do.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentJoin
	IntentVerify
	IntentSkip
)

func (i Intent) String() string {
	switch i {
	case IntentJoin:
		return "join"
	case IntentVerify:
		return "verify"
	case IntentSkip:
		return "skip"
	default:
		return "unknown"
	}
}

// intentPrecedence decides ties when a label matches several intents.
// "go" is the loosest keyword, so join is checked last.
var intentPrecedence = []Intent{IntentVerify, IntentSkip, IntentJoin}

// DefaultKeywords returns the built-in keyword table. Keywords are matched as
// case-insensitive substrings of the button label.
func DefaultKeywords() map[Intent][]string {
	return map[Intent][]string{
		IntentJoin:   {"перейти", "go", "🔍"},
		IntentVerify: {"подтверд", "verify", "✓"},
		IntentSkip:   {"пропуст", "skip"},
	}
}

// Classifier maps button labels to intents using a keyword table.
type Classifier struct {
	keywords map[Intent][]string
}

// NewClassifier builds a classifier from the default table plus extra
// keywords. Blank keywords are dropped.
func NewClassifier(extra map[Intent][]string) *Classifier {
	table := make(map[Intent][]string)
	for intent, words := range DefaultKeywords() {
		table[intent] = appendKeywords(table[intent], words)
	}
	for intent, words := range extra {
		if intent == IntentUnknown {
			continue
		}
		table[intent] = appendKeywords(table[intent], words)
	}
	return &Classifier{keywords: table}
}

func appendKeywords(dst, words []string) []string {
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		dst = append(dst, w)
	}
	return dst
}

// Classify returns the intent of a button label, or IntentUnknown.
func (c *Classifier) Classify(label string) Intent {
	text := strings.ToLower(label)
	if text == "" {
		return IntentUnknown
	}
	for _, intent := range intentPrecedence {
		for _, kw := range c.keywords[intent] {
			if strings.Contains(text, kw) {
				return intent
			}
		}
	}
	return IntentUnknown
}

// Keywords returns a copy of the keywords registered for intent.
func (c *Classifier) Keywords(intent Intent) []string {
	return append([]string(nil), c.keywords[intent]...)
}
