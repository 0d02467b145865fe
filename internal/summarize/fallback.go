package summarize

import (
	"fmt"
	"strings"
	"unicode"
)

var positiveWords = wordSet(
	"good", "great", "excellent", "happy", "satisfied", "pleased", "thanks", "thank", "wonderful",
	"perfect", "resolved", "helpful", "appreciate", "love", "fantastic", "glad", "awesome", "amazing",
)

var negativeWords = wordSet(
	"bad", "terrible", "awful", "unhappy", "angry", "frustrated", "disappointed", "problem", "issue",
	"complaint", "broken", "poor", "wrong", "upset", "hate", "worst", "failed", "delay",
)

// topicVocabulary is checked in order; only terms present in the text are returned.
var topicVocabulary = []string{
	"billing", "payment", "account", "appointment", "delivery", "order", "refund", "support",
	"technical", "schedule", "pricing", "subscription", "cancellation", "complaint", "shipping",
	"invoice", "password", "upgrade", "contract", "meeting",
}

func wordSet(words ...string) map[string]bool {
	m := make(map[string]bool, len(words))
	for _, w := range words {
		m[w] = true
	}
	return m
}

func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '\''
	})
}

// FallbackSentiment labels text positive or negative only when one side outnumbers the other by 1.5x.
func FallbackSentiment(text string) string {
	var pos, neg int
	for _, t := range tokens(text) {
		switch {
		case positiveWords[t]:
			pos++
		case negativeWords[t]:
			neg++
		}
	}
	switch {
	case pos > 0 && float64(pos) > 1.5*float64(neg):
		return SentimentPositive
	case neg > 0 && float64(neg) > 1.5*float64(pos):
		return SentimentNegative
	}
	return SentimentNeutral
}

func FallbackTopics(text string) []string {
	present := wordSet(tokens(text)...)
	out := []string{}
	for _, term := range topicVocabulary {
		if present[term] {
			out = append(out, term)
		}
	}
	return out
}

// FallbackSummary formats the text's sentences in the given style, capped at maxLength words.
func FallbackSummary(text string, style Style, maxLength int) string {
	sentences := splitSentences(text)
	lines := make([]string, 0, len(sentences))
	switch style {
	case StyleBullet:
		for _, s := range sentences {
			lines = append(lines, "• "+s)
		}
	case StyleParagraph:
		lines = append(lines, strings.Join(sentences, " "))
	default:
		for i, s := range sentences {
			lines = append(lines, fmt.Sprintf("%d. %s", i+1, s))
		}
	}
	return truncateWords(lines, maxLength)
}

func splitSentences(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if s := strings.Join(strings.Fields(b.String()), " "); s != "" {
			out = append(out, s)
		}
		b.Reset()
	}
	runes := []rune(text)
	for i, r := range runes {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
				flush()
			}
		}
	}
	flush()
	return out
}

// truncateWords keeps line structure and stops after max words, marking the cut with "...".
// Bullet and numbering markers do not count as words.
func truncateWords(lines []string, max int) string {
	out := make([]string, 0, len(lines))
	left := max
	for _, line := range lines {
		if left <= 0 {
			out[len(out)-1] += "..."
			break
		}
		fields := strings.Fields(line)
		prefix := ""
		if len(fields) > 0 && isMarker(fields[0]) {
			prefix, fields = fields[0]+" ", fields[1:]
		}
		if len(fields) > left {
			out = append(out, prefix+strings.Join(fields[:left], " ")+"...")
			left = 0
			break
		}
		out = append(out, prefix+strings.Join(fields, " "))
		left -= len(fields)
	}
	return strings.Join(out, "\n")
}

func isMarker(s string) bool {
	if s == "•" {
		return true
	}
	if !strings.HasSuffix(s, ".") || len(s) < 2 {
		return false
	}
	for _, r := range s[:len(s)-1] {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
