package agent

import (
	"regexp"
	"strings"
	"unicode"
)

// Recording and monitoring notices. A person on the line waits these out.
var disclosurePatterns = compileAll(
	`may be recorded`,
	`recording.{0,15}(call|conversation)`,
	`quality and training`,
	`monitored for quality`,
	`calls? (are|is) recorded`,
)

// The agent asked the caller to wait.
var holdPatterns = compileAll(
	`\bone moment\b`,
	`\b1 moment\b`,
	`let me (check|look|pull|search|find|see|verify)`,
	`hold (on|please)`,
	`give me (a )?(moment|second)`,
	`i('ll| will) (check|look|search|verify|pull)`,
	`just a (moment|second|sec)`,
	`one sec(ond)?`,
	`bear with me`,
	`i'm (looking|checking|searching)`,
)

// Availability, outcome or offer language. Overrides a hold phrase in the same utterance.
var resultPatterns = compileAll(
	`there (are|is) no\b`,
	`no (available|openings|slots|appointments)`,
	`(couldn't|could not|can't|cannot) find`,
	`unfortunately`,
	`the (next|earliest) available`,
	`i (found|have|see)\b`,
	`would you like`,
	`do you (want|have|prefer)`,
	`we (don't|do not) have`,
	`the office (is|are) closed`,
)

// The agent is asking who is on the line.
var identityPatterns = compileAll(
	`\bam i speaking (with|to)\b`,
	`\bspeaking with\b`,
	`\bis this\b`,
	`\bcan i (speak|talk) (with|to)\b`,
	`\bwho am i (speaking|talking) (with|to)\b`,
	`\bcan you confirm your name\b`,
)

var aiDisclosurePattern = regexp.MustCompile(`(?i)\b(as an ai|i'm an ai|i am an ai|language model)\b`)

func compileAll(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(p)
	}
	return out
}

func matchesAny(set []*regexp.Regexp, lower string) bool {
	for _, re := range set {
		if re.MatchString(lower) {
			return true
		}
	}
	return false
}

// IsDisclosure reports a recording or monitoring notice.
func IsDisclosure(text string) bool {
	return matchesAny(disclosurePatterns, strings.ToLower(text))
}

// IsHold reports a pure request to wait: a hold phrase with no result phrase alongside it.
func IsHold(text string) bool {
	lower := strings.ToLower(text)
	return matchesAny(holdPatterns, lower) && !matchesAny(resultPatterns, lower)
}

// IsIdentityCue reports identity-confirmation phrasing or the patient's first name as a standalone token.
// The name check catches garbled openings like "my speaking with Felix" or "How can I help you, Felix?".
func IsIdentityCue(text, firstName string) bool {
	lower := strings.ToLower(text)
	if matchesAny(identityPatterns, lower) {
		return true
	}
	return containsToken(lower, strings.ToLower(strings.TrimSpace(firstName)))
}

func containsToken(lower, token string) bool {
	if token == "" {
		return false
	}
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\'' && r != '-'
	})
	for _, f := range fields {
		f = strings.Trim(f, "'-")
		if f == token || strings.TrimSuffix(f, "'s") == token {
			return true
		}
	}
	return false
}

func mentionsAI(text string) bool {
	return aiDisclosurePattern.MatchString(text)
}
