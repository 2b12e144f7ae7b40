package analyzer

import (
	"math"
	"strings"
	"unicode"
)

// IntentGeneral is returned when no intent keyword matches
const IntentGeneral = "general"

// CategoryGeneral is the category used when no bucket matches
const CategoryGeneral = "general_inquiry"

// keywordRule maps a label to its trigger keywords. Tables of rules are
// checked in declaration order; the first matching label wins.
type keywordRule struct {
	label    string
	keywords []string
}

var intentRules = []keywordRule{
	{label: "job_inquiry", keywords: []string{"job", "jobs", "position", "positions", "role", "vacancy", "opening", "career", "apply", "application"}},
	{label: "interview_scheduling", keywords: []string{"interview", "schedule", "reschedule", "appointment", "meeting", "availability", "available"}},
	{label: "payment", keywords: []string{"payment", "payments", "pay", "paid", "salary", "invoice", "compensation", "wage", "wages"}},
	{label: "document_submission", keywords: []string{"resume", "cv", "document", "documents", "upload", "certificate", "attachment"}},
	{label: "status_check", keywords: []string{"status", "update", "progress", "feedback", "decision"}},
	{label: "technical_support", keywords: []string{"login", "password", "error", "bug", "crash", "broken", "account"}},
}

var categoryRules = []keywordRule{
	{label: "job_related", keywords: []string{"job", "jobs", "position", "positions", "role", "career", "vacancy", "opening", "hiring", "apply", "application"}},
	{label: "payment_related", keywords: []string{"payment", "payments", "pay", "paid", "salary", "invoice", "money", "compensation", "wage", "wages"}},
	{label: "scheduling", keywords: []string{"schedule", "reschedule", "interview", "meeting", "appointment", "calendar", "time", "date", "availability"}},
	{label: "technical_support", keywords: []string{"help", "support", "problem", "issue", "error", "bug", "login", "password"}},
}

var positiveWords = []string{
	"good", "great", "excellent", "thank", "happy", "love", "appreciate",
	"awesome", "wonderful", "perfect", "interested", "excited", "glad",
}

var negativeWords = []string{
	"bad", "terrible", "awful", "problem", "issue", "angry", "frustrat",
	"disappoint", "hate", "worst", "poor", "wrong", "upset", "annoy", "unacceptable",
}

var urgencyKeywords = map[string]bool{
	"urgent":      true,
	"urgently":    true,
	"asap":        true,
	"immediately": true,
	"emergency":   true,
	"critical":    true,
	"deadline":    true,
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "but": true, "not": true,
	"you": true, "your": true, "all": true, "any": true, "can": true, "had": true,
	"her": true, "was": true, "one": true, "our": true, "out": true, "has": true,
	"have": true, "this": true, "that": true, "with": true, "from": true, "they": true,
	"will": true, "would": true, "there": true, "their": true, "what": true, "about": true,
	"which": true, "when": true, "make": true, "like": true, "just": true, "into": true,
	"than": true, "them": true, "been": true, "some": true, "could": true, "need": true,
	"now": true, "how": true, "get": true, "its": true, "also": true, "please": true,
}

const maxKeywords = 10

// tokenize lower-cases the message and splits it on anything that is not a
// letter or digit
func tokenize(message string) []string {
	return strings.FieldsFunc(strings.ToLower(message), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func tokenSet(tokens []string) map[string]bool {
	set := make(map[string]bool, len(tokens))
	for _, t := range tokens {
		set[t] = true
	}
	return set
}

// matchRules returns the first rule with at least one keyword in the token
// set, together with the keywords that matched
func matchRules(rules []keywordRule, tokens map[string]bool) (string, []string) {
	for _, rule := range rules {
		var matched []string
		for _, kw := range rule.keywords {
			if tokens[kw] {
				matched = append(matched, kw)
			}
		}
		if len(matched) > 0 {
			return rule.label, matched
		}
	}
	return "", nil
}

// ExtractIntent detects the intent of a message
func ExtractIntent(message string) Intent {
	label, matched := matchRules(intentRules, tokenSet(tokenize(message)))
	if label == "" {
		return Intent{Type: IntentGeneral, Confidence: 0.5, MatchedKeywords: []string{}}
	}
	return Intent{Type: label, Confidence: 0.8, MatchedKeywords: matched}
}

// ExtractSentiment scores the polarity of a message by counting positive
// and negative words
func ExtractSentiment(message string) Sentiment {
	lower := strings.ToLower(message)
	positive := countOccurrences(lower, positiveWords)
	negative := countOccurrences(lower, negativeWords)

	switch {
	case positive > negative:
		score := math.Min(float64(positive)*0.3, 1)
		return Sentiment{Label: SentimentPositive, Score: score, Confidence: score}
	case negative > positive:
		score := -math.Min(float64(negative)*0.3, 1)
		return Sentiment{Label: SentimentNegative, Score: score, Confidence: -score}
	default:
		return Sentiment{Label: SentimentNeutral, Score: 0, Confidence: 0}
	}
}

func countOccurrences(text string, words []string) int {
	n := 0
	for _, w := range words {
		n += strings.Count(text, w)
	}
	return n
}

// ExtractComplexity measures word count and punctuation of a message
func ExtractComplexity(message string) Complexity {
	words := len(strings.Fields(message))
	questions := strings.Count(message, "?")
	exclamations := strings.Count(message, "!")

	c := Complexity{
		WordCount:      words,
		HasQuestion:    questions > 0,
		HasExclamation: exclamations > 0,
	}

	switch {
	case words > 50 || questions > 2:
		c.Level, c.Score = ComplexityHigh, 0.8
	case words > 20 || questions > 0:
		c.Level, c.Score = ComplexityMedium, 0.5
	default:
		c.Level, c.Score = ComplexityLow, 0.2
	}
	return c
}

// ExtractUrgency detects how time-sensitive a message is
func ExtractUrgency(message string) Urgency {
	lower := strings.ToLower(message)
	indicators := []string{}

	for _, t := range tokenize(lower) {
		if urgencyKeywords[t] {
			indicators = append(indicators, IndicatorUrgentKeyword)
			break
		}
	}
	if strings.Count(message, "!") > 1 {
		indicators = append(indicators, IndicatorMultipleExclamations)
	}
	if len(indicators) > 0 {
		return Urgency{Level: UrgencyHigh, Score: 0.8, Indicators: indicators}
	}

	if strings.Contains(lower, "when") || strings.Contains(message, "?") {
		return Urgency{Level: UrgencyMedium, Score: 0.6, Indicators: []string{IndicatorTimeReference}}
	}
	return Urgency{Level: UrgencyNormal, Score: 0.3, Indicators: indicators}
}

// ExtractCategory assigns a message to a topic bucket, independently of intent
func ExtractCategory(message string) string {
	label, _ := matchRules(categoryRules, tokenSet(tokenize(message)))
	if label == "" {
		return CategoryGeneral
	}
	return label
}

// ExtractKeywords returns up to ten distinct content tokens in message order
func ExtractKeywords(message string) []string {
	keywords := make([]string, 0, maxKeywords)
	seen := make(map[string]bool)
	for _, t := range tokenize(message) {
		if len(t) < 3 || stopWords[t] || seen[t] {
			continue
		}
		seen[t] = true
		keywords = append(keywords, t)
		if len(keywords) == maxKeywords {
			break
		}
	}
	return keywords
}
